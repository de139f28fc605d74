package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fjod/storefront/internal/domain"
)

type CatalogService struct {
	c *Client
}

func NewCatalogService(c *Client) *CatalogService {
	return &CatalogService{c: c}
}

// Featured fetches one page of featured products. page <= 0 omits the page
// parameter; category "" or "All" omits the category filter.
func (s *CatalogService) Featured(ctx context.Context, page, limit int, category string) (domain.CatalogPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if category != "" && category != domain.AllCategories {
		q.Set("category", category)
	}
	path := "/api/products/featured"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		FeaturedProducts []domain.ProductSummary `json:"featuredProducts"`
		TotalPages       int                     `json:"totalPages"`
		CurrentPage      int                     `json:"currentPage"`
	}
	if err := s.c.send(ctx, call{method: http.MethodGet, path: path, out: &resp}); err != nil {
		return domain.CatalogPage{}, err
	}

	current := page
	if current <= 0 {
		current = resp.CurrentPage
	}
	return domain.CatalogPage{
		Page:       current,
		TotalPages: resp.TotalPages,
		Products:   resp.FeaturedProducts,
	}, nil
}

func (s *CatalogService) Product(ctx context.Context, id string) (domain.ProductSummary, error) {
	var resp struct {
		Product domain.ProductSummary `json:"product"`
	}
	if err := s.c.send(ctx, call{method: http.MethodGet, path: "/api/products/" + url.PathEscape(id), out: &resp}); err != nil {
		return domain.ProductSummary{}, err
	}
	return resp.Product, nil
}
