package settlement

import (
	"context"
	"time"

	"github.com/nordmarkt/storefront/internal/domain/order"
)

// Store is the persistence port for the engine. Implementations must back
// CreateOrder with a datastore-enforced unique constraint on the payment
// reference; the engine's pre-insert lookup is only a fast path and is never
// relied on for correctness.
type Store interface {
	// FindOrderNumberByRef returns the number of the order settled under the
	// given payment reference, or order.ErrNotFound.
	FindOrderNumberByRef(ctx context.Context, ref string) (int64, error)

	// WithinTx runs fn inside a single datastore transaction. Returning an
	// error rolls everything back.
	WithinTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the set of writes available inside a settlement transaction.
type TxStore interface {
	// CreateOrder inserts the order row and its items, assigns the
	// human-facing sequence number, and returns it. A payment-reference
	// collision surfaces as order.ErrDuplicateRef.
	CreateOrder(ctx context.Context, o *order.Order, items []order.Item) (number int64, err error)

	// DecrementStock atomically lowers the (product, size) quantity by qty,
	// clamped at zero, and recomputes the in-stock flag.
	DecrementStock(ctx context.Context, productID, size string, qty int) error

	// CreditLedger adds amountMinor to the brand's balance and total sales
	// and increments its order count, atomically.
	CreditLedger(ctx context.Context, brandID string, amountMinor int64) error

	// BumpDailyStat creates or increments the (brand, day) rollup.
	BumpDailyStat(ctx context.Context, brandID string, day time.Time, amountMinor int64) error
}
