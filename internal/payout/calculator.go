// Package payout derives the per-claim payout from the wallet balance and
// recent claim volume.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/model"
)

var (
	// ErrDepleted means the spendable balance cannot cover a minimum payout.
	ErrDepleted  = errors.New("faucet depleted")
	ErrBadPolicy = errors.New("invalid payout policy")
)

// BalanceSource is satisfied by wallet.Client.
type BalanceSource interface {
	Balance(ctx context.Context) (int64, error)
}

// ClaimStats is satisfied by the claims ledger.
type ClaimStats interface {
	Aggregate(ctx context.Context, since time.Time) (model.ClaimAggregate, error)
}

// Policy configures the payout curve. All amounts are minor units.
type Policy struct {
	BaseAmount    int64
	MinAmount     int64
	MaxShareBps   int64 // per-claim ceiling as basis points of spendable balance
	ReserveAmount int64 // never paid out
	Window        time.Duration
	TargetClaims  int64 // claims per window before the payout starts shrinking
}

func (p Policy) validate() error {
	switch {
	case p.BaseAmount <= 0:
		return fmt.Errorf("%w: base amount must be positive", ErrBadPolicy)
	case p.MinAmount < 0 || p.ReserveAmount < 0 || p.TargetClaims < 0:
		return fmt.Errorf("%w: negative amount", ErrBadPolicy)
	case p.MaxShareBps <= 0 || p.MaxShareBps > 10000:
		return fmt.Errorf("%w: max share must be in (0, 10000] bps", ErrBadPolicy)
	case p.Window <= 0:
		return fmt.Errorf("%w: window must be positive", ErrBadPolicy)
	}
	return nil
}

// Quote is the outcome of one payout calculation.
type Quote struct {
	Amount  int64
	Balance int64
	Recent  model.ClaimAggregate
}

type Calculator struct {
	wallet BalanceSource
	stats  ClaimStats
	policy Policy
	now    func() time.Time
}

func NewCalculator(wallet BalanceSource, stats ClaimStats, policy Policy) (*Calculator, error) {
	if wallet == nil || stats == nil {
		return nil, errors.New("payout: wallet and stats are required")
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	return &Calculator{wallet: wallet, stats: stats, policy: policy, now: time.Now}, nil
}

// WithClock replaces the time source used for the trailing window.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Quote fetches the balance (never cached) and recent claim volume and
// returns the amount to pay. It fails closed: any read error or an amount
// below the configured minimum is an error, never a zero payout.
func (c *Calculator) Quote(ctx context.Context) (Quote, error) {
	balance, err := c.wallet.Balance(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("read balance: %w", err)
	}
	if balance < 0 {
		return Quote{}, fmt.Errorf("read balance: negative balance %d", balance)
	}

	recent, err := c.stats.Aggregate(ctx, c.now().Add(-c.policy.Window))
	if err != nil {
		return Quote{}, fmt.Errorf("read claim stats: %w", err)
	}

	q := Quote{Balance: balance, Recent: recent, Amount: c.amount(balance, recent)}
	if q.Amount <= 0 {
		return q, ErrDepleted
	}
	return q, nil
}

func (c *Calculator) amount(balance int64, recent model.ClaimAggregate) int64 {
	p := c.policy

	amount := p.BaseAmount
	if p.TargetClaims > 0 && recent.Count >= p.TargetClaims {
		amount = p.BaseAmount * p.TargetClaims / (recent.Count + 1)
	}

	spendable := balance - p.ReserveAmount
	if spendable <= 0 {
		return 0
	}
	if ceiling := share(spendable, p.MaxShareBps); amount > ceiling {
		amount = ceiling
	}

	if amount < p.MinAmount {
		return 0
	}
	return amount
}

// share returns v*bps/10000 without overflowing for large balances.
func share(v, bps int64) int64 {
	return v/10000*bps + v%10000*bps/10000
}
