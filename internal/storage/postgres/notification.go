package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nordmarkt/storefront/internal/notify"
)

const createNotificationSQL = `INSERT INTO notifications (id, user_id, kind, payload)
	VALUES ($1, $2, $3, $4)`

var _ notify.Repository = (*NotificationRepository)(nil)

// NotificationRepository implements notify.Repository backed by PostgreSQL.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the
// given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create persists a new in-app notification.
func (r *NotificationRepository) Create(ctx context.Context, n *notify.Notification) error {
	_, err := r.pool.Exec(ctx, createNotificationSQL, n.ID, n.UserID, n.Kind, []byte(n.Payload))
	if err != nil {
		return errors.Wrapf(err, "creating notification %q", n.ID)
	}
	return nil
}
