package service

import (
	"context"
	"fmt"

	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ResolvedItem struct {
	Snapshot domain.VariantSnapshot
	Quantity int32
}

type ResolvedCart struct {
	Items []ResolvedItem
}

func (c *ResolvedCart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Snapshot.Price * int64(item.Quantity)
	}
	return total
}

func (c *ResolvedCart) VariantIDs() []string {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.Snapshot.ID)
	}
	return ids
}

// CartReader turns raw cart lines into priced snapshots. Prices and
// names are read here once and frozen onto the order; later catalog
// edits never change what the buyer agreed to pay.
type CartReader interface {
	Resolve(ctx context.Context, lines []domain.CartLine) (*ResolvedCart, error)
}

type cartReader struct {
	variantRepo repository.VariantRepository
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewCartReader(variantRepo repository.VariantRepository, logger *zap.Logger) CartReader {
	return &cartReader{
		variantRepo: variantRepo,
		logger:      logger,
		tracer:      otel.Tracer("cart_reader"),
	}
}

func (r *cartReader) Resolve(ctx context.Context, lines []domain.CartLine) (*ResolvedCart, error) {
	ctx, span := r.tracer.Start(ctx, "CartReader.Resolve")
	defer span.End()

	span.SetAttributes(
		attribute.Int("line_count", len(lines)),
	)

	merged := mergeLines(lines)

	ids := make([]string, 0, len(merged))
	for _, line := range merged {
		ids = append(ids, line.VariantID)
	}

	snapshots, err := r.variantRepo.GetByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to load variant snapshots",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	cart := &ResolvedCart{Items: make([]ResolvedItem, 0, len(merged))}
	for _, line := range merged {
		snapshot, ok := snapshots[line.VariantID]
		if !ok {
			return nil, fmt.Errorf("variant %s: %w", line.VariantID, repository.ErrVariantNotFound)
		}

		// advisory only, the decrement at confirmation is the real guard
		if line.Quantity > snapshot.Stock {
			return nil, &OutOfStockError{
				VariantID:   snapshot.ID,
				ProductName: snapshot.DisplayName(),
			}
		}

		cart.Items = append(cart.Items, ResolvedItem{
			Snapshot: snapshot,
			Quantity: line.Quantity,
		})
	}

	return cart, nil
}

// mergeLines collapses duplicate variants into one line, preserving
// first-seen order.
func mergeLines(lines []domain.CartLine) []domain.CartLine {
	index := make(map[string]int, len(lines))
	merged := make([]domain.CartLine, 0, len(lines))

	for _, line := range lines {
		if i, ok := index[line.VariantID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}

		index[line.VariantID] = len(merged)
		merged = append(merged, line)
	}

	return merged
}
