package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/rzbill/ordernotify/internal/orders"
)

// OrderStore implements orders.Store.
type OrderStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *OrderStore) Create(ctx context.Context, o orders.Order) (orders.Order, error) {
	if err := o.Validate(); err != nil {
		return orders.Order{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT nextval(pg_get_serial_sequence('orders', 'id'))`).Scan(&o.ID); err != nil {
		return orders.Order{}, fmt.Errorf("allocate order id: %w", err)
	}
	if o.OrderNumber == "" {
		o.OrderNumber = strconv.FormatInt(o.ID, 10)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, tenant_id, order_number, customer_name, total_amount, order_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.TenantID, o.OrderNumber, o.CustomerName, o.TotalAmount, o.OrderType, string(o.Status), o.CreatedAt)
	if err != nil {
		return orders.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (s *OrderStore) ListSince(ctx context.Context, tenantID string, cursor int64, limit int) ([]orders.SummaryEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, order_number, customer_name, total_amount, order_type, status, created_at
		FROM orders
		WHERE tenant_id = $1 AND id > $2 AND status <> ALL($3)
		ORDER BY id ASC
		LIMIT $4`,
		tenantID, cursor, pq.Array(orders.TerminalStatuses()), limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []orders.SummaryEvent
	for rows.Next() {
		var (
			e      orders.SummaryEvent
			status string
		)
		if err := rows.Scan(&e.OrderID, &e.TenantID, &e.OrderNumber, &e.CustomerName, &e.TotalAmount, &e.OrderType, &status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		e.Status = orders.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *OrderStore) MaxActiveID(ctx context.Context, tenantID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM orders WHERE tenant_id = $1 AND status <> ALL($2)`,
		tenantID, pq.Array(orders.TerminalStatuses())).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("max active order: %w", err)
	}
	return id, nil
}
