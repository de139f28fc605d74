package catalog

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

const (
	relatedLimit   = 6
	relatedRequest = 10
)

// Detail loads one product and up to six others from its category.
// A failed related lookup still returns the product.
func (f *Feed) Detail(ctx context.Context, id string) (domain.ProductDetail, error) {
	product, err := f.remote.Product(ctx, id)
	if err != nil {
		f.fail(ctx, "fetch product", err)
		return domain.ProductDetail{}, fmt.Errorf("fetch product %s: %w", id, err)
	}

	detail := domain.ProductDetail{Product: product}
	if product.Category == "" {
		return detail, nil
	}

	page, err := f.remote.Featured(ctx, 1, relatedRequest, product.Category)
	if err != nil {
		f.log.WarnContext(ctx, "fetch related products failed", "product_id", id, "error", err)
		return detail, nil
	}
	for _, p := range page.Products {
		if p.ID == id {
			continue
		}
		detail.Related = append(detail.Related, p)
		if len(detail.Related) == relatedLimit {
			break
		}
	}
	return detail, nil
}
