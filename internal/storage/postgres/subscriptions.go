package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/rzbill/ordernotify/internal/subscriptions"
)

// Registry implements subscriptions.Registry.
type Registry struct {
	db *sql.DB
}

// Upsert relies on the (tenant_id, endpoint) unique constraint. On conflict
// the existing id is returned.
func (r *Registry) Upsert(ctx context.Context, tenantID, endpoint string, keys subscriptions.Keys, userAgent string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO push_subscriptions (id, tenant_id, endpoint, p256dh, auth, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, endpoint) DO UPDATE
		SET p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth,
		    user_agent = EXCLUDED.user_agent,
		    is_active = TRUE,
		    updated_at = now()
		RETURNING id`,
		uuid.NewString(), tenantID, endpoint, keys.P256dh, keys.Auth, userAgent).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert subscription: %w", err)
	}
	return id, nil
}

func (r *Registry) ListActive(ctx context.Context, tenantID string) ([]subscriptions.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, endpoint, p256dh, auth, user_agent, is_active, created_at, updated_at
		FROM push_subscriptions
		WHERE tenant_id = $1 AND is_active`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []subscriptions.Subscription
	for rows.Next() {
		var s subscriptions.Subscription
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Endpoint, &s.Keys.P256dh, &s.Keys.Auth, &s.UserAgent, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Registry) Deactivate(ctx context.Context, endpoint string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET is_active = FALSE, updated_at = now() WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return expectRows(res)
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	return expectRows(res)
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return subscriptions.ErrNotFound
	}
	return nil
}
