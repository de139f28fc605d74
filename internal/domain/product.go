package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// AllCategories is the catalog filter that disables server-side category filtering.
const AllCategories = "All"

type ProductSummary struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageRef    string          `json:"image,omitempty"`
}

func (p ProductSummary) MarshalJSON() ([]byte, error) {
	type plain ProductSummary
	return json.Marshal(struct {
		plain
		Price json.Number `json:"price"`
	}{plain: plain(p), Price: money(p.Price)})
}

// CatalogPage is one window of the featured products listing.
type CatalogPage struct {
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	Products   []ProductSummary `json:"featuredProducts"`
}

func (p CatalogPage) HasMore() bool {
	return p.Page < p.TotalPages
}

// ProductDetail is a single product with a handful of products from the same category.
type ProductDetail struct {
	Product ProductSummary
	Related []ProductSummary
}
