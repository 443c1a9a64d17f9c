package repository

import (
	"context"
	"errors"
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

type VariantRepository interface {
	GetByID(ctx context.Context, id string) (*domain.VariantSnapshot, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.VariantSnapshot, error)
}

type variantRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewVariantRepository(pool *pgxpool.Pool, logger *zap.Logger) VariantRepository {
	return &variantRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/variant_repo"),
	}
}

func (r *variantRepo) GetByID(ctx context.Context, id string) (*domain.VariantSnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "VariantRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("variant_id", id),
	)

	query := `
		SELECT v.id, v.product_id, p.name, v.name, v.price, v.stock
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1;
	`

	var res domain.VariantSnapshot
	if err := r.pool.QueryRow(ctx, query, id).
		Scan(&res.ID, &res.ProductID, &res.ProductName, &res.Name, &res.Price, &res.Stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVariantNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting variant by id",
			zap.String("variant_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting variant: %w", err)
	}

	return &res, nil
}

func (r *variantRepo) GetByIDs(ctx context.Context, ids []string) (map[string]domain.VariantSnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "VariantRepository.GetByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
	)

	query := `
		SELECT v.id, v.product_id, p.name, v.name, v.price, v.stock
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1);
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error querying variants",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting variants: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.VariantSnapshot, len(ids))
	for rows.Next() {
		var v domain.VariantSnapshot
		if err := rows.Scan(&v.ID, &v.ProductID, &v.ProductName, &v.Name, &v.Price, &v.Stock); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan variant row",
				zap.Error(err),
			)

			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		result[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
