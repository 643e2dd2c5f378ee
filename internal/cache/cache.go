package cache

import (
	"context"
	"time"

	"cantina/backend/internal/domain"
)

// AccountCache holds read-through copies of accounts. Entries are advisory:
// every balance change goes through the store and invalidates the entry.
type AccountCache interface {
	Get(ctx context.Context, id string) (*domain.Account, bool, error)
	Set(ctx context.Context, acct domain.Account, ttl time.Duration) error
	Invalidate(ctx context.Context, ids ...string) error
}

type NoopAccountCache struct{}

func (NoopAccountCache) Get(_ context.Context, _ string) (*domain.Account, bool, error) {
	return nil, false, nil
}

func (NoopAccountCache) Set(_ context.Context, _ domain.Account, _ time.Duration) error {
	return nil
}

func (NoopAccountCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
