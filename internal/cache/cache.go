package cache

import (
	"context"
	"time"

	"retailpos/internal/domain"
)

// TierCache holds the loyalty tier thresholds between reads. A miss is not an
// error; callers fall back to the repository.
type TierCache interface {
	Get(ctx context.Context) ([]domain.CustomerTier, bool, error)
	Set(ctx context.Context, tiers []domain.CustomerTier, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopTierCache struct{}

func (NoopTierCache) Get(_ context.Context) ([]domain.CustomerTier, bool, error) {
	return nil, false, nil
}

func (NoopTierCache) Set(_ context.Context, _ []domain.CustomerTier, _ time.Duration) error {
	return nil
}

func (NoopTierCache) Invalidate(_ context.Context) error {
	return nil
}
