package cache

import (
	"context"
	"time"
)

// BalanceCache fronts the credit ledger's balance reads. Writers must
// invalidate after every ledger append so a stale balance never leaks
// past the TTL.
type BalanceCache interface {
	GetBalance(ctx context.Context, clientID string) (int64, bool, error)
	SetBalance(ctx context.Context, clientID string, balanceCents int64, ttl time.Duration) error
	Invalidate(ctx context.Context, clientID string) error
}

type NoopBalanceCache struct{}

func (NoopBalanceCache) GetBalance(_ context.Context, _ string) (int64, bool, error) {
	return 0, false, nil
}

func (NoopBalanceCache) SetBalance(_ context.Context, _ string, _ int64, _ time.Duration) error {
	return nil
}

func (NoopBalanceCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
