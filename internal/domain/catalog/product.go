package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ProductStatus is the moderation state of a catalog entry. Only approved
// products are sellable.
type ProductStatus string

const (
	StatusDraft    ProductStatus = "draft"
	StatusPending  ProductStatus = "pending"
	StatusApproved ProductStatus = "approved"
	StatusRejected ProductStatus = "rejected"
	StatusArchived ProductStatus = "archived"
)

// Product is a catalog item offered by a single brand. Price is in the
// seller's listing currency; conversion to the settlement currency happens at
// checkout and again at settlement time, never at browse time.
type Product struct {
	ID        string
	BrandID   string
	BrandName string
	Name      string
	Price     decimal.Decimal
	Currency  string
	Status    ProductStatus
	Image     string
	Sizes     []SizeStock
}

// SizeStock is the available quantity for one size variant of a product.
type SizeStock struct {
	Size     string
	Quantity int
	InStock  bool
}

// Size returns the stock entry for the given size label.
func (p *Product) Size(label string) (SizeStock, bool) {
	for _, s := range p.Sizes {
		if s.Size == label {
			return s, true
		}
	}
	return SizeStock{}, false
}

// Sellable reports whether the product may appear in a cart.
func (p *Product) Sellable() bool {
	return p.Status == StatusApproved
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
