package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/storefront"
)

func main() {
	var o cliOptions
	flag.StringVar(&o.cmd, "cmd", "products", "Command: login|register|logout|whoami|products|product|cart|add|inc|dec|remove|clear|checkout|confirm")
	flag.StringVar(&o.server, "server", "", "Override backend base URL (e.g. http://localhost:8080)")
	flag.StringVar(&o.store, "store", "", "Session store: memory|redis|sqlite (default sqlite unless SESSION_STORE is set)")
	flag.StringVar(&o.email, "email", "", "Account email (login/register)")
	flag.StringVar(&o.password, "password", "", "Account password (login/register)")
	flag.StringVar(&o.name, "name", "", "Display name (register)")
	flag.StringVar(&o.id, "id", "", "Product ID (product/add/inc/dec/remove)")
	flag.StringVar(&o.category, "category", "", "Category filter (products)")
	flag.StringVar(&o.search, "search", "", "Local search text applied to loaded products (products)")
	flag.IntVar(&o.pages, "pages", 1, "Number of pages to load (products)")
	flag.StringVar(&o.session, "session", "", "Checkout session or payment intent to confirm (confirm)")
	flag.BoolVar(&o.hosted, "hosted", false, "Use a hosted checkout session instead of a payment sheet (checkout)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	if o.server != "" {
		cfg.APIURL = strings.TrimRight(o.server, "/")
	}
	switch {
	case o.store != "":
		cfg.SessionStore = o.store
	case os.Getenv("SESSION_STORE") == "":
		cfg.SessionStore = "sqlite"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := storefront.New(cfg)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	if err := run(ctx, app, o, os.Stdout); err != nil {
		fmt.Println("Error:", err)
		app.Close()
		os.Exit(1)
	}
}
