package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storefront"
)

var (
	errNotSignedIn = errors.New("not signed in, run -cmd login first")
	errUsage       = errors.New("missing required flag")
)

type cliOptions struct {
	cmd      string
	server   string
	store    string
	email    string
	password string
	name     string
	id       string
	category string
	search   string
	session  string
	pages    int
	hosted   bool
}

func run(ctx context.Context, app *storefront.App, o cliOptions, out io.Writer) error {
	switch o.cmd {
	case "login":
		if o.email == "" || o.password == "" {
			return fmt.Errorf("%w: -email and -password", errUsage)
		}
		if err := app.Login(ctx, o.email, o.password); err != nil {
			return friendly(err)
		}
		return whoami(app, out)
	case "register":
		if o.name == "" || o.email == "" || o.password == "" {
			return fmt.Errorf("%w: -name, -email and -password", errUsage)
		}
		if err := app.Register(ctx, o.name, o.email, o.password); err != nil {
			return friendly(err)
		}
		return whoami(app, out)
	case "logout":
		if err := app.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Signed out")
		return nil
	case "whoami":
		return whoami(app, out)
	case "products":
		return products(ctx, app, o, out)
	case "product":
		return product(ctx, app, o, out)
	}

	if !app.Session.Authenticated() {
		return errNotSignedIn
	}

	switch o.cmd {
	case "cart":
		if err := app.Cart.FetchCart(ctx); err != nil {
			return friendly(err)
		}
	case "add", "inc", "dec", "remove":
		if o.id == "" {
			return fmt.Errorf("%w: -id", errUsage)
		}
		if err := mutate(ctx, app, o.cmd, o.id); err != nil {
			return friendly(err)
		}
	case "clear":
		if err := app.Cart.ClearCart(ctx); err != nil {
			return friendly(err)
		}
	case "checkout":
		return checkout(ctx, app, o, out)
	case "confirm":
		if o.session == "" {
			return fmt.Errorf("%w: -session", errUsage)
		}
		return confirm(ctx, app, o.session, out)
	default:
		return fmt.Errorf("unknown command %q", o.cmd)
	}
	printCart(out, app.Cart.Snapshot())
	return nil
}

func mutate(ctx context.Context, app *storefront.App, cmd, id string) error {
	switch cmd {
	case "add":
		return app.Cart.AddToCart(ctx, id)
	case "inc":
		return app.Cart.IncrementQuantity(ctx, id)
	case "dec":
		return app.Cart.DecrementQuantity(ctx, id)
	default:
		return app.Cart.RemoveFromCart(ctx, id)
	}
}

func whoami(app *storefront.App, out io.Writer) error {
	u := app.Session.User()
	if u == nil {
		fmt.Fprintln(out, "Not signed in")
		return nil
	}
	fmt.Fprintf(out, "Signed in as %s <%s>\n", u.Name, u.Email)
	return nil
}

func products(ctx context.Context, app *storefront.App, o cliOptions, out io.Writer) error {
	if o.category != "" {
		if err := app.Feed.SelectCategory(ctx, o.category); err != nil {
			return friendly(err)
		}
	}
	if app.Feed.Page() == 0 {
		if err := app.Feed.Refresh(ctx); err != nil {
			return friendly(err)
		}
	}
	for i := 1; i < o.pages && app.Feed.HasMore(); i++ {
		if err := app.Feed.LoadMore(ctx); err != nil {
			return friendly(err)
		}
	}
	if o.search != "" {
		app.Feed.SearchLocally(o.search)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE")
	for _, p := range app.Feed.Products() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, p.Price.StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "category=%s page=%d more=%t\n", app.Feed.Category(), app.Feed.Page(), app.Feed.HasMore())
	return nil
}

func product(ctx context.Context, app *storefront.App, o cliOptions, out io.Writer) error {
	if o.id == "" {
		return fmt.Errorf("%w: -id", errUsage)
	}
	detail, err := app.Feed.Detail(ctx, o.id)
	if err != nil {
		return friendly(err)
	}
	p := detail.Product
	fmt.Fprintf(out, "%s (%s)\n%s\nPrice: %s\n", p.Name, p.Category, p.Description, p.Price.StringFixed(2))
	if len(detail.Related) > 0 {
		fmt.Fprintln(out, "Related:")
		for _, r := range detail.Related {
			fmt.Fprintf(out, "  %s  %s\n", r.ID, r.Name)
		}
	}
	return nil
}

// checkout opens a payment for the server cart. The order is placed later
// by confirm, once the payment went through.
func checkout(ctx context.Context, app *storefront.App, o cliOptions, out io.Writer) error {
	if o.hosted {
		session, err := app.Checkout.CreateSession(ctx)
		if err != nil {
			return friendly(err)
		}
		fmt.Fprintf(out, "Pay at %s\n", session.URL)
		fmt.Fprintf(out, "Session: %s\n", session.ID)
		return nil
	}

	sheet, err := app.Checkout.Prepare(ctx)
	if err != nil {
		return friendly(err)
	}
	fmt.Fprintf(out, "Payment sheet ready for customer %s\n", sheet.Customer)
	fmt.Fprintf(out, "Session: %s\n", sheet.PaymentIntent)
	return nil
}

func confirm(ctx context.Context, app *storefront.App, sessionID string, out io.Writer) error {
	conf, err := app.Checkout.Complete(ctx, sessionID)
	if err != nil {
		return friendly(err)
	}
	fmt.Fprintf(out, "Order %s: %s\n", conf.OrderID, conf.Message)
	return nil
}

func printCart(out io.Writer, snap domain.CartSnapshot) {
	if snap.Empty() {
		fmt.Fprintln(out, "Cart is empty")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL")
	for _, it := range snap.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", it.ID, it.Name, it.Quantity, it.UnitPrice.StringFixed(2), it.Subtotal().StringFixed(2))
	}
	_ = w.Flush()
	fmt.Fprintf(out, "Total: %s\n", snap.TotalAmount.StringFixed(2))
}

// friendly keeps the wrapped error but leads with the user-facing text.
func friendly(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s (%w)", api.UserMessage(err), err)
	}
	return err
}
