// Package notify fans out new-order notifications. Everything here is
// best-effort from the settlement engine's point of view: by the time a
// dispatch runs, the order is already durably created, so failures are
// logged and dropped, never propagated.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nordmarkt/storefront/internal/domain/brand"
)

// KindNewOrder is the notification kind for a freshly settled order.
const KindNewOrder = "new_order"

// Notification is one in-app message tied to a user. Its lifecycle is
// independent of the order it announces.
type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Payload   json.RawMessage
	Read      bool
	CreatedAt time.Time
}

// Repository persists in-app notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
}

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ItemSummary is one order line as shown in notifications.
type ItemSummary struct {
	Name           string `json:"name"`
	Size           string `json:"size"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// Settled carries the facts of a completed settlement.
type Settled struct {
	OrderID     string
	OrderNumber int64
	BrandID     string
	BuyerID     string
	TotalMinor  int64
	Currency    string
	Items       []ItemSummary
}

// newOrderPayload is the typed payload stored on the in-app notification.
type newOrderPayload struct {
	OrderID     string        `json:"order_id"`
	OrderNumber int64         `json:"order_number"`
	BuyerID     string        `json:"buyer_id"`
	TotalMinor  int64         `json:"total_minor"`
	Currency    string        `json:"currency"`
	Items       []ItemSummary `json:"items"`
}

// Dispatcher creates the in-app notification and sends the email for a
// settled order.
type Dispatcher struct {
	notifications Repository
	brands        brand.Repository
	mailer        Mailer
	lg            *zap.Logger
}

// NewDispatcher creates a Dispatcher with the required dependencies.
func NewDispatcher(notifications Repository, brands brand.Repository, mailer Mailer, lg *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		brands:        brands,
		mailer:        mailer,
		lg:            lg,
	}
}

// Dispatch resolves the seller contact and fans out one in-app notification
// and one email. When no contact email can be resolved the whole dispatch is
// a no-op rather than a half-delivery with a broken reference.
func (d *Dispatcher) Dispatch(ctx context.Context, s Settled) {
	contact, err := d.brands.Contact(ctx, s.BrandID)
	if err != nil {
		d.lg.Warn("Notification skipped: contact lookup failed",
			zap.String("brand_id", s.BrandID),
			zap.Int64("order_number", s.OrderNumber),
			zap.Error(err),
		)
		return
	}
	if contact.Email == "" {
		d.lg.Info("Notification skipped: brand has no contact email",
			zap.String("brand_id", s.BrandID),
			zap.Int64("order_number", s.OrderNumber),
		)
		return
	}

	payload, err := json.Marshal(newOrderPayload{
		OrderID:     s.OrderID,
		OrderNumber: s.OrderNumber,
		BuyerID:     s.BuyerID,
		TotalMinor:  s.TotalMinor,
		Currency:    s.Currency,
		Items:       s.Items,
	})
	if err != nil {
		d.lg.Error("Notification payload marshal failed", zap.Error(err))
		return
	}

	if err := d.notifications.Create(ctx, &Notification{
		ID:      uuid.New().String(),
		UserID:  contact.UserID,
		Kind:    KindNewOrder,
		Payload: payload,
	}); err != nil {
		d.lg.Warn("In-app notification create failed",
			zap.Int64("order_number", s.OrderNumber),
			zap.Error(err),
		)
	}

	subject := fmt.Sprintf("New order #%d", s.OrderNumber)
	if err := d.mailer.Send(ctx, contact.Email, subject, emailBody(s)); err != nil {
		d.lg.Warn("Order email send failed",
			zap.Int64("order_number", s.OrderNumber),
			zap.Error(err),
		)
	}
}

func emailBody(s Settled) string {
	body := fmt.Sprintf("You received a new order #%d.\n\n", s.OrderNumber)
	for _, it := range s.Items {
		body += fmt.Sprintf("  %dx %s (%s) — %s\n", it.Quantity, it.Name, it.Size, formatMinor(it.UnitPriceMinor, s.Currency))
	}
	body += fmt.Sprintf("\nTotal: %s\n", formatMinor(s.TotalMinor, s.Currency))
	return body
}

func formatMinor(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, currency)
}
