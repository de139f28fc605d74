package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// money encodes an amount as a plain JSON number, the form the backend uses.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// CartLineItem is one product line of the cart as reported by the cart service.
type CartLineItem struct {
	ID        string          `json:"_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"image,omitempty"`
}

// UnmarshalJSON accepts productId as an alias for _id.
func (i *CartLineItem) UnmarshalJSON(data []byte) error {
	type plain CartLineItem
	aux := struct {
		*plain
		ProductID string `json:"productId"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if i.ID == "" {
		i.ID = aux.ProductID
	}
	return nil
}

func (i CartLineItem) MarshalJSON() ([]byte, error) {
	type plain CartLineItem
	return json.Marshal(struct {
		plain
		UnitPrice json.Number `json:"price"`
	}{plain: plain(i), UnitPrice: money(i.UnitPrice)})
}

// Subtotal is unit price times quantity, unrounded.
func (i CartLineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartSnapshot is the full cart state at a point in time.
type CartSnapshot struct {
	Items       []CartLineItem  `json:"cartItems"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

func (s CartSnapshot) MarshalJSON() ([]byte, error) {
	type plain CartSnapshot
	return json.Marshal(struct {
		plain
		TotalAmount json.Number `json:"totalAmount"`
	}{plain: plain(s), TotalAmount: money(s.TotalAmount)})
}

// NewCartSnapshot builds a snapshot whose total is derived from items.
func NewCartSnapshot(items []CartLineItem) CartSnapshot {
	return CartSnapshot{Items: items, TotalAmount: ComputeTotal(items)}
}

// ComputeTotal sums unitPrice*quantity over items and rounds to cents.
func ComputeTotal(items []CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total.Round(2)
}

// Clone returns a deep copy safe to keep as a rollback point.
func (s CartSnapshot) Clone() CartSnapshot {
	var items []CartLineItem
	if s.Items != nil {
		items = make([]CartLineItem, len(s.Items))
		copy(items, s.Items)
	}
	return CartSnapshot{Items: items, TotalAmount: s.TotalAmount}
}

// Consistent reports whether TotalAmount matches the items.
func (s CartSnapshot) Consistent() bool {
	return s.TotalAmount.Equal(ComputeTotal(s.Items))
}

func (s CartSnapshot) Len() int { return len(s.Items) }

func (s CartSnapshot) Empty() bool { return len(s.Items) == 0 }

// IndexOf returns the position of the line with the given product id, or -1.
func (s CartSnapshot) IndexOf(productID string) int {
	for i := range s.Items {
		if s.Items[i].ID == productID {
			return i
		}
	}
	return -1
}

// Item returns the line for productID.
func (s CartSnapshot) Item(productID string) (CartLineItem, bool) {
	if i := s.IndexOf(productID); i >= 0 {
		return s.Items[i], true
	}
	return CartLineItem{}, false
}

// Without returns a copy of s with the productID line removed and the total recomputed.
func (s CartSnapshot) Without(productID string) CartSnapshot {
	items := make([]CartLineItem, 0, len(s.Items))
	for _, item := range s.Items {
		if item.ID != productID {
			items = append(items, item)
		}
	}
	return NewCartSnapshot(items)
}

// WithQuantityDelta returns a copy of s with the productID quantity moved by delta.
// A line whose quantity would drop below 1 is removed. Unknown ids leave s unchanged.
func (s CartSnapshot) WithQuantityDelta(productID string, delta int) CartSnapshot {
	i := s.IndexOf(productID)
	if i < 0 {
		return s.Clone()
	}
	if s.Items[i].Quantity+delta < 1 {
		return s.Without(productID)
	}
	next := s.Clone()
	next.Items[i].Quantity += delta
	next.TotalAmount = ComputeTotal(next.Items)
	return next
}
