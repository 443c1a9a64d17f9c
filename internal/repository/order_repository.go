package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderFilter mirrors the history view's query surface: substring id,
// status set, created-at range, total range, carrier and tracking
// substrings, plus pagination.
type OrderFilter struct {
	IDContains     string
	Statuses       []domain.OrderStatus
	DateMin        *time.Time
	DateMax        *time.Time
	PriceMin       *int64
	PriceMax       *int64
	Carrier        string
	TrackingNumber string
	Page           int
	PageSize       int
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	CancelPendingByUser(ctx context.Context, tx pgx.Tx, userID string) (int64, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetItems(ctx context.Context, tx pgx.Tx, orderID string) ([]domain.OrderItem, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, orderID, paymentIntentID, customerEmail string, shipping, billing json.RawMessage) error
	MarkCancelled(ctx context.Context, orderID string) error
	MarkShipped(ctx context.Context, tx pgx.Tx, orderID, carrier, trackingNumber string) error
	ListUserOrders(ctx context.Context, userID string, filter OrderFilter) ([]domain.Order, int64, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/order_repo"),
	}
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (id, user_id, guest_email, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.ID,
		order.UserID,
		order.GuestEmail,
		string(order.Status),
		order.TotalAmount,
	).Scan(
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Error(err),
		)

		return err
	}

	queryItem := `
		INSERT INTO order_items (order_id, variant_id, name, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			order.ID,
			item.VariantID,
			item.Name,
			item.Quantity,
			item.PriceAtPurchase,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert order item",
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

// CancelPendingByUser cancels every live pending order of a registered
// user inside the caller's transaction. Running it in the same tx that
// inserts the replacement order keeps the at-most-one-pending rule from
// racing with itself.
func (r *orderRepo) CancelPendingByUser(ctx context.Context, tx pgx.Tx, userID string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CancelPendingByUser")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
	)

	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE user_id = $2 AND status = $3;
	`

	commandTag, err := tx.Exec(ctx, query, string(domain.OrderStatusCancelled), userID, string(domain.OrderStatusPending))
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to cancel stale pending orders",
			zap.String("user_id", userID),
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to cancel pending orders: %w", err)
	}

	return commandTag.RowsAffected(), nil
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", id),
	)

	query := `
		SELECT id, user_id, guest_email, status, total_amount,
			shipping_address, billing_address, payment_intent_id,
			customer_email, carrier, tracking_number, created_at, updated_at
		FROM orders
		WHERE id = $1;
	`

	var o domain.Order
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.UserID, &o.GuestEmail, &o.Status, &o.TotalAmount,
		&o.ShippingAddress, &o.BillingAddress, &o.PaymentIntentID,
		&o.CustomerEmail, &o.Carrier, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting order by id",
			zap.String("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting order: %w", err)
	}

	orders := []domain.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

func (r *orderRepo) GetItems(ctx context.Context, tx pgx.Tx, orderID string) ([]domain.OrderItem, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetItems")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	query := `
		SELECT id, order_id, variant_id, name, quantity, price_at_purchase
		FROM order_items
		WHERE order_id = $1;
	`

	rows, err := tx.Query(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order_items",
			zap.Error(err),
		)

		return nil, err
	}
	defer rows.Close()

	var result []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.VariantID,
			&item.Name,
			&item.Quantity,
			&item.PriceAtPurchase,
		); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan order item row",
				zap.Error(err),
			)

			return nil, err
		}

		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Rows error",
			zap.Error(err),
		)

		return nil, err
	}

	return result, nil
}

// MarkPaid claims a pending order: the status CAS doubles as the
// idempotency guard, so it must run before any stock write in the same
// transaction. Zero rows affected means another confirmation already
// finalized (or cancelled) this order.
func (r *orderRepo) MarkPaid(ctx context.Context, tx pgx.Tx, orderID, paymentIntentID, customerEmail string, shipping, billing json.RawMessage) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkPaid")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	query := `
		UPDATE orders
		SET status = $2,
			payment_intent_id = $3,
			customer_email = NULLIF($4, ''),
			shipping_address = $5,
			billing_address = $6,
			updated_at = NOW()
		WHERE id = $1 AND status = $7;
	`

	commandTag, err := tx.Exec(
		ctx,
		query,
		orderID,
		string(domain.OrderStatusPaid),
		paymentIntentID,
		customerEmail,
		shipping,
		billing,
		string(domain.OrderStatusPending),
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark order paid",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrOrderNotPending
	}

	return nil
}

// MarkCancelled is the compensating write. It runs on the pool, not in
// the failed transaction, and only ever moves pending orders; terminal
// states are left untouched.
func (r *orderRepo) MarkCancelled(ctx context.Context, orderID string) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkCancelled")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3;
	`

	_, err := r.pool.Exec(ctx, query, orderID, string(domain.OrderStatusCancelled), string(domain.OrderStatusPending))
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to cancel order",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to cancel order: %w", err)
	}

	return nil
}

func (r *orderRepo) MarkShipped(ctx context.Context, tx pgx.Tx, orderID, carrier, trackingNumber string) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkShipped")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("carrier", carrier),
	)

	query := `
		UPDATE orders
		SET status = $2, carrier = $3, tracking_number = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5;
	`

	commandTag, err := tx.Exec(
		ctx,
		query,
		orderID,
		string(domain.OrderStatusShipped),
		carrier,
		trackingNumber,
		string(domain.OrderStatusPaid),
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark order shipped",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to mark order shipped: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, orderID); err != nil {
			return err
		}
		return ErrOrderNotPaid
	}

	return nil
}

func (r *orderRepo) ListUserOrders(ctx context.Context, userID string, filter OrderFilter) ([]domain.Order, int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListUserOrders")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("page", filter.Page),
	)

	conditions := []string{"user_id = $1", "status IN ('paid', 'shipped')"}
	args := []interface{}{userID}
	argId := 2

	if filter.IDContains != "" {
		conditions = append(conditions, fmt.Sprintf("id ILIKE $%d", argId))
		args = append(args, "%"+filter.IDContains+"%")
		argId++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argId))
		args = append(args, statuses)
		argId++
	}
	if filter.DateMin != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argId))
		args = append(args, *filter.DateMin)
		argId++
	}
	if filter.DateMax != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argId))
		args = append(args, *filter.DateMax)
		argId++
	}
	if filter.PriceMin != nil {
		conditions = append(conditions, fmt.Sprintf("total_amount >= $%d", argId))
		args = append(args, *filter.PriceMin)
		argId++
	}
	if filter.PriceMax != nil {
		conditions = append(conditions, fmt.Sprintf("total_amount <= $%d", argId))
		args = append(args, *filter.PriceMax)
		argId++
	}
	if filter.Carrier != "" {
		conditions = append(conditions, fmt.Sprintf("carrier ILIKE $%d", argId))
		args = append(args, "%"+filter.Carrier+"%")
		argId++
	}
	if filter.TrackingNumber != "" {
		conditions = append(conditions, fmt.Sprintf("tracking_number ILIKE $%d", argId))
		args = append(args, "%"+filter.TrackingNumber+"%")
		argId++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := `SELECT COUNT(*) FROM orders WHERE ` + whereClause

	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to count orders",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	baseQuery := `
		SELECT id, user_id, guest_email, status, total_amount,
			shipping_address, billing_address, payment_intent_id,
			customer_email, carrier, tracking_number, created_at, updated_at
		FROM orders
		WHERE ` + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argId, argId+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, baseQuery, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting orders",
			zap.String("user_id", userID),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error selecting orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.GuestEmail, &o.Status, &o.TotalAmount,
			&o.ShippingAddress, &o.BillingAddress, &o.PaymentIntentID,
			&o.CustomerEmail, &o.Carrier, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan order row",
				zap.Error(err),
			)

			return nil, 0, fmt.Errorf("error scanning rows: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}

	return orders, totalCount, nil
}

func (r *orderRepo) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	index := make(map[string]*domain.Order, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		index[orders[i].ID] = &orders[i]
	}

	query := `
		SELECT id, order_id, variant_id, name, quantity, price_at_purchase
		FROM order_items
		WHERE order_id = ANY($1);
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("error selecting order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.VariantID,
			&item.Name,
			&item.Quantity,
			&item.PriceAtPurchase,
		); err != nil {
			return fmt.Errorf("error scanning order item: %w", err)
		}

		if o, ok := index[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	return rows.Err()
}
