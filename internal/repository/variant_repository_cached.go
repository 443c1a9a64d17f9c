package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
)

// CachedVariantRepository adds explicit invalidation on top of the
// read API so stock writers can drop stale snapshots.
type CachedVariantRepository interface {
	VariantRepository
	Invalidate(ctx context.Context, variantIDs []string)
}

type cachedVariantRepo struct {
	next        VariantRepository
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewCachedVariantRepository(next VariantRepository, redisClient *redis.Client) CachedVariantRepository {
	return &cachedVariantRepo{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    time.Minute * 10,
	}
}

func variantKey(id string) string {
	return fmt.Sprintf("variant:%s", id)
}

func (r *cachedVariantRepo) GetByID(ctx context.Context, id string) (*domain.VariantSnapshot, error) {
	val, err := r.redisClient.Get(ctx, variantKey(id)).Result()
	if err == nil {
		var snapshot domain.VariantSnapshot
		if err := json.Unmarshal([]byte(val), &snapshot); err == nil {
			return &snapshot, nil
		}
	}

	snapshot, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snapshot); err == nil {
		r.redisClient.Set(ctx, variantKey(id), data, r.cacheTTL)
	}

	return snapshot, nil
}

func (r *cachedVariantRepo) GetByIDs(ctx context.Context, ids []string) (map[string]domain.VariantSnapshot, error) {
	result := make(map[string]domain.VariantSnapshot, len(ids))

	var missing []string
	for _, id := range ids {
		val, err := r.redisClient.Get(ctx, variantKey(id)).Result()
		if err != nil {
			missing = append(missing, id)
			continue
		}

		var snapshot domain.VariantSnapshot
		if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
			missing = append(missing, id)
			continue
		}

		result[id] = snapshot
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := r.next.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	for id, snapshot := range fetched {
		result[id] = snapshot

		if data, err := json.Marshal(snapshot); err == nil {
			r.redisClient.Set(ctx, variantKey(id), data, r.cacheTTL)
		}
	}

	return result, nil
}

func (r *cachedVariantRepo) Invalidate(ctx context.Context, variantIDs []string) {
	for _, id := range variantIDs {
		r.redisClient.Del(ctx, variantKey(id))
	}
}
