// Package checkout recomputes order value strictly from trusted catalog data.
// Client-submitted prices are never read; the validated total is what gets
// embedded into the payment authorization.
package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/nordmarkt/storefront/internal/domain/catalog"
)

// Sentinel errors for cart validation.
var (
	ErrEmptyCart = errors.New("cart is empty")

	// ErrMixedSellers rejects carts that span more than one brand. Split
	// multi-seller checkout is an acknowledged product limitation, not
	// something to paper over here.
	ErrMixedSellers = errors.New("cart spans multiple sellers")
)

// ProductNotFoundError indicates a cart line references an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductUnavailableError indicates a cart line references a product that is
// not approved for sale.
type ProductUnavailableError struct {
	ProductID string
	Status    catalog.ProductStatus
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available (status %s)", e.ProductID, e.Status)
}

// UnknownSizeError indicates a cart line requests a size the product does not
// come in.
type UnknownSizeError struct {
	ProductID string
	Size      string
}

func (e *UnknownSizeError) Error() string {
	return fmt.Sprintf("product %s has no size %q", e.ProductID, e.Size)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// CartLine is one client-submitted cart entry. Note the absence of a price
// field: prices come from the catalog only.
type CartLine struct {
	ProductID string
	Size      string
	Quantity  int
}

// ValidatedLine is a cart line joined with its authoritative catalog data.
type ValidatedLine struct {
	ProductID   string
	ProductName string
	BrandName   string
	Size        string
	Quantity    int
	Image       string

	// UnitPrice is the authoritative catalog price in the listing currency;
	// UnitPriceMinor is its settlement-currency equivalent at validation time.
	UnitPrice      decimal.Decimal
	Currency       string
	UnitPriceMinor int64
}

// ValidatedCart is the result of a successful validation: a single seller and
// a server-computed total in settlement-currency minor units.
type ValidatedCart struct {
	BrandID    string
	Lines      []ValidatedLine
	TotalMinor int64
}

// Converter normalizes a catalog price into settlement-currency minor units.
type Converter interface {
	ToSettlement(ctx context.Context, amount decimal.Decimal, currency string) (int64, error)
}

// Validator checks cart eligibility and computes the trusted total.
type Validator struct {
	products  catalog.Repository
	converter Converter
}

// NewValidator creates a Validator with the required dependencies.
func NewValidator(products catalog.Repository, converter Converter) *Validator {
	return &Validator{
		products:  products,
		converter: converter,
	}
}

// ValidateCart re-fetches every product in the cart, rejects unknown,
// unavailable, mis-sized, or multi-seller carts, and returns the validated
// lines with the settlement total. Runs strictly before payment
// authorization.
func (v *Validator) ValidateCart(ctx context.Context, lines []CartLine) (*ValidatedCart, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	fetched, err := v.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	cart := &ValidatedCart{Lines: make([]ValidatedLine, 0, len(lines))}
	var total int64
	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if !p.Sellable() {
			return nil, &ProductUnavailableError{ProductID: p.ID, Status: p.Status}
		}
		if _, ok := p.Size(line.Size); !ok {
			return nil, &UnknownSizeError{ProductID: p.ID, Size: line.Size}
		}

		if cart.BrandID == "" {
			cart.BrandID = p.BrandID
		} else if cart.BrandID != p.BrandID {
			return nil, ErrMixedSellers
		}

		unitMinor, err := v.converter.ToSettlement(ctx, p.Price, p.Currency)
		if err != nil {
			return nil, errors.Wrapf(err, "normalize price of product %s", p.ID)
		}

		cart.Lines = append(cart.Lines, ValidatedLine{
			ProductID:      p.ID,
			ProductName:    p.Name,
			BrandName:      p.BrandName,
			Size:           line.Size,
			Quantity:       line.Quantity,
			Image:          p.Image,
			UnitPrice:      p.Price,
			Currency:       p.Currency,
			UnitPriceMinor: unitMinor,
		})
		total += unitMinor * int64(line.Quantity)
	}

	cart.TotalMinor = total
	return cart, nil
}
