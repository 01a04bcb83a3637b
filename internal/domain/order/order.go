package order

import (
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors surfaced by order persistence.
var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrDuplicateRef is returned when an insert collides with an existing
	// order carrying the same payment reference. The unique index on the
	// payment_ref column is what makes concurrent settlement of the same
	// payment event safe, so callers must treat this error as
	// "already settled", not as a failure.
	ErrDuplicateRef = errors.New("duplicate payment reference")
)

// Status is the fulfilment lifecycle of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// PaymentStatus is the payment lifecycle of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Address is the shipping address snapshot taken at settlement time. It is
// denormalized on purpose: later edits to the buyer's profile must not change
// where an already-paid order ships.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is one purchase transaction. It is created exactly once by the
// settlement engine and later mutated only by the shipping workflow.
type Order struct {
	ID      string
	Number  int64
	BuyerID string
	BrandID string

	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod string

	// PaymentRef is the idempotency marker derived from the upstream payment
	// event ("<provider>:<id>"). Unique across all orders.
	PaymentRef string

	// TotalMinor is the order total in minor units of the settlement currency.
	TotalMinor int64
	Currency   string

	Shipping Address

	// Populated later by the shipping workflow.
	Carrier  string
	Tracking string

	CreatedAt time.Time
}

// Item is one product line within an order. Product and brand names, the unit
// price, and the image reference are snapshots: they survive later catalog
// edits or product deletion.
type Item struct {
	ProductID   string
	ProductName string
	BrandName   string

	// UnitPriceMinor is the per-unit price in minor units of the settlement
	// currency, converted at settlement time.
	UnitPriceMinor int64

	Size     string
	Quantity int
	Image    string
}
