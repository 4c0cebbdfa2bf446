package throttle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGate(t *testing.T, store Store, cooldown time.Duration) (*IdentityGate, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	g, err := NewIdentityGate(store, cooldown)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	return g.WithClock(clock.Now), clock
}

func TestIdentityGate_CooldownBoundaries(t *testing.T) {
	g, clock := newTestGate(t, NewMemoryStore(), time.Hour)
	ctx := context.Background()
	v := Visitor{Origin: "203.0.113.7", Category: "faucet"}

	if err := g.Visit(ctx, v); err != nil {
		t.Fatalf("first visit: %v", err)
	}

	clock.Advance(59 * time.Minute)
	err := g.Visit(ctx, v)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected throttled within cooldown, got %v", err)
	}
	var te *ThrottledError
	if !errors.As(err, &te) || te.RetryAfter != time.Minute {
		t.Fatalf("expected retry after 1m, got %+v", te)
	}
	if !IsIneligible(err) {
		t.Fatalf("throttled must be classified as ineligible")
	}

	clock.Advance(2 * time.Minute)
	if err := g.Visit(ctx, v); err != nil {
		t.Fatalf("visit after cooldown: %v", err)
	}
}

func TestIdentityGate_ThrottledVisitDoesNotExtendCooldown(t *testing.T) {
	store := NewMemoryStore()
	g, clock := newTestGate(t, store, time.Hour)
	ctx := context.Background()
	v := Visitor{Origin: "198.51.100.1"}

	if err := g.Visit(ctx, v); err != nil {
		t.Fatalf("first visit: %v", err)
	}
	first := clock.Now()

	clock.Advance(30 * time.Minute)
	_ = g.Visit(ctx, v)

	last, ok := store.LastVisit(Key{Origin: "198.51.100.1", Category: "faucet"})
	if !ok || !last.Equal(first) {
		t.Fatalf("last visit = %v, want %v", last, first)
	}
}

func TestIdentityGate_CategoriesAndOriginsAreIndependent(t *testing.T) {
	g, _ := newTestGate(t, NewMemoryStore(), time.Hour)
	ctx := context.Background()

	for _, v := range []Visitor{
		{Origin: "10.0.0.1", Category: "faucet"},
		{Origin: "10.0.0.1", Category: "bonus"},
		{Origin: "10.0.0.2", Category: "faucet"},
	} {
		if err := g.Visit(ctx, v); err != nil {
			t.Fatalf("visit %+v: %v", v, err)
		}
	}

	// origin keys are case- and space-insensitive
	if err := g.Visit(ctx, Visitor{Origin: " 10.0.0.1 ", Category: "faucet"}); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected normalized key to be throttled, got %v", err)
	}
}

func TestIdentityGate_UnidentifiedFailsClosed(t *testing.T) {
	g, _ := newTestGate(t, NewMemoryStore(), time.Hour)
	for _, origin := range []string{"", "   "} {
		if err := g.Visit(context.Background(), Visitor{Origin: origin}); !errors.Is(err, ErrUnidentified) {
			t.Fatalf("origin %q: expected ErrUnidentified, got %v", origin, err)
		}
	}
}

func TestIdentityGate_ConcurrentSameOriginSingleWinner(t *testing.T) {
	g, _ := newTestGate(t, NewMemoryStore(), time.Hour)
	ctx := context.Background()

	const n = 64
	var allowed, throttled atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := g.Visit(ctx, Visitor{Origin: "192.0.2.10", Category: "faucet"})
			switch {
			case err == nil:
				allowed.Add(1)
			case errors.Is(err, ErrThrottled):
				throttled.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if allowed.Load() != 1 || throttled.Load() != n-1 {
		t.Fatalf("allowed=%d throttled=%d", allowed.Load(), throttled.Load())
	}
}

type failingStore struct{ err error }

func (f failingStore) TryVisit(context.Context, Key, time.Time, time.Duration) (Decision, error) {
	return Decision{}, f.err
}

func TestIdentityGate_StoreErrorIsNotIneligible(t *testing.T) {
	boom := errors.New("store down")
	g, _ := newTestGate(t, failingStore{err: boom}, time.Hour)
	err := g.Visit(context.Background(), Visitor{Origin: "10.1.1.1"})
	if !errors.Is(err, boom) || IsIneligible(err) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestNewIdentityGateValidates(t *testing.T) {
	if _, err := NewIdentityGate(nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewIdentityGate(NewMemoryStore(), 0); err == nil {
		t.Fatalf("expected error for zero cooldown")
	}
}

func TestPasswordGate(t *testing.T) {
	g := NewPasswordGate("s3cret")
	ctx := context.Background()

	if err := g.Visit(ctx, Visitor{Credential: "s3cret"}); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	// no per-origin state: the same origin passes again immediately
	if err := g.Visit(ctx, Visitor{Origin: "1.2.3.4", Credential: "s3cret"}); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	if err := g.Visit(ctx, Visitor{Credential: "nope"}); !errors.Is(err, ErrBadCredential) || !IsIneligible(err) {
		t.Fatalf("expected ErrBadCredential, got %v", err)
	}
	if err := g.Visit(ctx, Visitor{}); !errors.Is(err, ErrMissingCredential) || IsIneligible(err) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}
