package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nordmarkt/storefront/internal/domain/order"
	"github.com/nordmarkt/storefront/internal/settlement"
)

const (
	findOrderNumberByRefSQL = `SELECT number FROM orders WHERE payment_ref = $1`

	createOrderSQL = `INSERT INTO orders (
			id, buyer_id, brand_id, status, payment_status, payment_method,
			payment_ref, total_minor, currency,
			ship_name, ship_line1, ship_line2, ship_city, ship_postal, ship_country
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING number`

	createOrderItemSQL = `INSERT INTO order_items (
			order_id, product_id, product_name, brand_name, unit_price_minor, size, quantity, image
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	// Quantity never goes below zero; the RHS reads the pre-update quantity,
	// so both expressions agree on the new value.
	decrementStockSQL = `UPDATE product_size_stock
		SET quantity = GREATEST(quantity - $3, 0),
		    in_stock = GREATEST(quantity - $3, 0) > 0
		WHERE product_id = $1 AND size = $2`

	creditLedgerSQL = `UPDATE brands
		SET balance_minor = balance_minor + $2,
		    total_sales_minor = total_sales_minor + $2,
		    total_orders = total_orders + 1
		WHERE id = $1`

	bumpDailyStatSQL = `INSERT INTO brand_daily_stats (brand_id, day, orders, sales_minor)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (brand_id, day) DO UPDATE
		SET orders = brand_daily_stats.orders + 1,
		    sales_minor = brand_daily_stats.sales_minor + EXCLUDED.sales_minor`
)

// uniqueViolation is the PostgreSQL error code for unique-constraint breaks.
const uniqueViolation = "23505"

var _ settlement.Store = (*SettlementStore)(nil)

// SettlementStore implements settlement.Store: every write of a settlement
// runs inside one transaction, and the unique index on orders.payment_ref
// turns concurrent duplicate settlement into order.ErrDuplicateRef.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore returns a SettlementStore that uses the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// FindOrderNumberByRef returns the order number settled under the given
// payment reference.
func (s *SettlementStore) FindOrderNumberByRef(ctx context.Context, ref string) (int64, error) {
	var number int64
	err := s.pool.QueryRow(ctx, findOrderNumberByRefSQL, ref).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, order.ErrNotFound
		}
		return 0, errors.Wrapf(err, "finding order by payment ref %q", ref)
	}
	return number, nil
}

// WithinTx runs fn inside a single database transaction.
func (s *SettlementStore) WithinTx(ctx context.Context, fn func(tx settlement.TxStore) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&settlementTx{tx: tx})
	})
}

type settlementTx struct {
	tx pgx.Tx
}

// CreateOrder inserts the order and its item snapshots and returns the
// assigned sequence number.
func (t *settlementTx) CreateOrder(ctx context.Context, o *order.Order, items []order.Item) (int64, error) {
	var number int64
	err := t.tx.QueryRow(ctx, createOrderSQL,
		o.ID, o.BuyerID, o.BrandID, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.PaymentRef, o.TotalMinor, o.Currency,
		o.Shipping.Name, o.Shipping.Line1, o.Shipping.Line2,
		o.Shipping.City, o.Shipping.PostalCode, o.Shipping.Country,
	).Scan(&number)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "orders_payment_ref_key" {
			return 0, order.ErrDuplicateRef
		}
		return 0, errors.Wrapf(err, "creating order %q", o.ID)
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(createOrderItemSQL,
			o.ID, it.ProductID, it.ProductName, it.BrandName,
			it.UnitPriceMinor, it.Size, it.Quantity, it.Image,
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, errors.Wrapf(err, "creating items for order %q", o.ID)
	}

	return number, nil
}

// DecrementStock atomically lowers stock, clamped at zero.
func (t *settlementTx) DecrementStock(ctx context.Context, productID, size string, qty int) error {
	_, err := t.tx.Exec(ctx, decrementStockSQL, productID, size, qty)
	if err != nil {
		return errors.Wrapf(err, "decrementing stock %s/%s", productID, size)
	}
	return nil
}

// CreditLedger adds the seller amount to the brand's running ledger.
func (t *settlementTx) CreditLedger(ctx context.Context, brandID string, amountMinor int64) error {
	tag, err := t.tx.Exec(ctx, creditLedgerSQL, brandID, amountMinor)
	if err != nil {
		return errors.Wrapf(err, "crediting ledger of brand %q", brandID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("brand %q not found", brandID)
	}
	return nil
}

// BumpDailyStat creates or increments the per-day rollup.
func (t *settlementTx) BumpDailyStat(ctx context.Context, brandID string, day time.Time, amountMinor int64) error {
	_, err := t.tx.Exec(ctx, bumpDailyStatSQL, brandID, day, amountMinor)
	if err != nil {
		return errors.Wrapf(err, "bumping daily stat of brand %q", brandID)
	}
	return nil
}
