package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InventoryRepository owns the per-variant stock counter. DecreaseStock
// is the sole defense against overselling: the check and the write are
// a single conditional UPDATE, never a read followed by a write.
type InventoryRepository interface {
	DecreaseStock(ctx context.Context, tx pgx.Tx, variantID string, quantity int32) error
	IncreaseStock(ctx context.Context, tx pgx.Tx, variantID string, quantity int32) error
}

type inventoryRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryRepository(pool *pgxpool.Pool, logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/inventory_repo"),
	}
}

func (r *inventoryRepo) DecreaseStock(ctx context.Context, tx pgx.Tx, variantID string, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.DecreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("variant_id", variantID),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE product_variants
		SET stock = stock - $2
		WHERE id = $1
			AND stock >= $2;
	`

	commandTag, err := tx.Exec(ctx, query, variantID, quantity)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error decreasing stock",
			zap.String("variant_id", variantID),
			zap.Int32("quantity", quantity),
			zap.Error(err),
		)

		return fmt.Errorf("error decreasing stock for variant %s: %w", variantID, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}

	return nil
}

func (r *inventoryRepo) IncreaseStock(ctx context.Context, tx pgx.Tx, variantID string, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.IncreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("variant_id", variantID),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE product_variants
		SET stock = stock + $2
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, variantID, quantity)
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, r.logger, "Failed to update stock", zap.Error(err))

		return err
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "Variant not found", zap.String("variant_id", variantID))
		return ErrVariantNotFound
	}

	return nil
}
