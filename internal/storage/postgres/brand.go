package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nordmarkt/storefront/internal/domain/brand"
)

const (
	getBrandByIDSQL = `SELECT id, name, owner_user_id, contact_email, gateway_account_id,
			balance_minor, total_sales_minor, total_orders
		FROM brands WHERE id = $1`

	getBrandContactSQL = `SELECT owner_user_id, contact_email FROM brands WHERE id = $1`

	getBrandGatewayAccountSQL = `SELECT gateway_account_id FROM brands WHERE id = $1`
)

var _ brand.Repository = (*BrandRepository)(nil)

// BrandRepository implements brand.Repository backed by PostgreSQL.
type BrandRepository struct {
	pool *pgxpool.Pool
}

// NewBrandRepository returns a BrandRepository that uses the given pool.
func NewBrandRepository(pool *pgxpool.Pool) *BrandRepository {
	return &BrandRepository{pool: pool}
}

// GetByID returns a brand with its current ledger values.
func (r *BrandRepository) GetByID(ctx context.Context, id string) (*brand.Brand, error) {
	var b brand.Brand
	err := r.pool.QueryRow(ctx, getBrandByIDSQL, id).Scan(
		&b.ID, &b.Name, &b.OwnerUserID, &b.ContactEmail, &b.GatewayAccountID,
		&b.BalanceMinor, &b.TotalSalesMinor, &b.TotalOrders,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, brand.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting brand %q", id)
	}
	return &b, nil
}

// GatewayAccountID returns the payment gateway destination account for a
// brand. Checkout uses it to route funds to the seller's connected account.
func (r *BrandRepository) GatewayAccountID(ctx context.Context, id string) (string, error) {
	var acct string
	err := r.pool.QueryRow(ctx, getBrandGatewayAccountSQL, id).Scan(&acct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", brand.ErrNotFound
		}
		return "", errors.Wrapf(err, "getting brand gateway account %q", id)
	}
	return acct, nil
}

// Contact returns the notification target for a brand.
func (r *BrandRepository) Contact(ctx context.Context, id string) (brand.Contact, error) {
	var c brand.Contact
	err := r.pool.QueryRow(ctx, getBrandContactSQL, id).Scan(&c.UserID, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return brand.Contact{}, brand.ErrNotFound
		}
		return brand.Contact{}, errors.Wrapf(err, "getting brand contact %q", id)
	}
	return c, nil
}
