package brand

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested brand does not exist.
var ErrNotFound = errors.New("brand not found")

// Brand is a seller on the platform. The running ledger fields are embedded
// here and live in minor units of the settlement currency. Settlement only
// ever credits them; payouts and refunds are a separate flow.
type Brand struct {
	ID   string
	Name string

	// OwnerUserID and ContactEmail identify who gets notified of new orders.
	// ContactEmail may be empty for brands that never completed onboarding.
	OwnerUserID  string
	ContactEmail string

	// GatewayAccountID is the connected-seller destination at the payment
	// gateway, set during onboarding.
	GatewayAccountID string

	BalanceMinor    int64
	TotalSalesMinor int64
	TotalOrders     int64
}

// Contact is the notification target for a brand.
type Contact struct {
	UserID string
	Email  string
}

// Repository defines read operations on brands. Ledger writes go through the
// settlement store so they share the settlement transaction.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Brand, error)
	Contact(ctx context.Context, id string) (Contact, error)
}
