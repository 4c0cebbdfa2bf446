package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/model"
)

// IdentityGate allows one visit per cooldown for each (origin, category).
type IdentityGate struct {
	store    Store
	cooldown time.Duration
	now      func() time.Time
}

var _ Gate = (*IdentityGate)(nil)

func NewIdentityGate(store Store, cooldown time.Duration) (*IdentityGate, error) {
	if store == nil {
		return nil, errors.New("throttle: store is required")
	}
	if cooldown <= 0 {
		return nil, fmt.Errorf("throttle: cooldown must be positive, got %s", cooldown)
	}
	return &IdentityGate{store: store, cooldown: cooldown, now: time.Now}, nil
}

// WithClock replaces the time source; used by tests.
func (g *IdentityGate) WithClock(now func() time.Time) *IdentityGate {
	g.now = now
	return g
}

func (g *IdentityGate) Cooldown() time.Duration { return g.cooldown }

func (g *IdentityGate) Visit(ctx context.Context, v Visitor) error {
	key := normalizeKey(v, model.DefaultCategory)
	if key.Origin == "" {
		return ErrUnidentified
	}

	now := g.now()
	d, err := g.store.TryVisit(ctx, key, now, g.cooldown)
	if err != nil {
		return fmt.Errorf("throttle store: %w", err)
	}
	if !d.Allowed {
		return &ThrottledError{Key: key, RetryAfter: d.LastVisit.Add(g.cooldown).Sub(now)}
	}
	return nil
}

// eligible is the cooldown rule shared by every store.
func eligible(last, now time.Time, cooldown time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= cooldown
}
