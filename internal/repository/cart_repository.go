package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CartRepository interface {
	GetUserCart(ctx context.Context, userID string) ([]domain.CartLine, error)
	ClearUserCart(ctx context.Context, tx pgx.Tx, userID string) error
}

type cartRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCartRepository(pool *pgxpool.Pool, logger *zap.Logger) CartRepository {
	return &cartRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/cart_repo"),
	}
}

func (r *cartRepo) GetUserCart(ctx context.Context, userID string) ([]domain.CartLine, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.GetUserCart")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
	)

	query := `
		SELECT variant_id, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at ASC;
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query cart_items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting cart items: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.VariantID, &line.Quantity); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan cart row",
				zap.Error(err),
			)

			return nil, fmt.Errorf("error scanning cart row: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return lines, nil
}

func (r *cartRepo) ClearUserCart(ctx context.Context, tx pgx.Tx, userID string) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.ClearUserCart")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
	)

	query := `
		DELETE FROM cart_items
		WHERE user_id = $1;
	`

	if _, err := tx.Exec(ctx, query, userID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to clear user cart",
			zap.String("user_id", userID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}
