package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/kafka"
	"github.com/jmehdipour/coin-faucet/internal/model"
	"go.uber.org/zap"
)

// ClaimRecorder is the idempotent ledger write; satisfied by
// repository.ClaimsRepository.
type ClaimRecorder interface {
	Record(ctx context.Context, c model.Claim) error
}

// Reconciler consumes reconcile events. Unrecorded claims are written to the
// ledger (the write is idempotent by claim id, so replays are safe). Payments
// of unknown status are only logged: resolving them needs the node's
// transaction history and an operator.
type Reconciler struct {
	Source Source
	Ledger ClaimRecorder
	Log    *zap.Logger

	RetryWait time.Duration
}

func NewReconciler(src Source, ledger ClaimRecorder, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{Source: src, Ledger: ledger, Log: log, RetryWait: 2 * time.Second}
}

// Run blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.Source == nil || r.Ledger == nil {
		return errors.New("reconciler: source and ledger are required")
	}
	for {
		m, err := r.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.Log.Warn("reconcile fetch failed", zap.Error(err))
			if !sleepCtx(ctx, r.RetryWait) {
				return nil
			}
			continue
		}

		if !r.handle(ctx, m) {
			return nil
		}
		if err := r.Source.Commit(ctx, m); err != nil && ctx.Err() == nil {
			r.Log.Error("reconcile commit failed", zap.Error(err))
		}
	}
}

// handle returns false only when ctx ended before the message was handled.
func (r *Reconciler) handle(ctx context.Context, m kafka.Message) bool {
	var ev model.ReconcileEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil || !ev.Kind.Valid() || ev.Claim.ID == "" {
		r.Log.Warn("reconcile: bad event", zap.Int64("offset", m.Offset), zap.Error(err))
		return true
	}

	fields := []zap.Field{
		zap.String("kind", ev.Kind.String()),
		zap.String("claim_id", ev.Claim.ID),
		zap.String("address", ev.Claim.Address),
		zap.Int64("amount", ev.Claim.Amount),
		zap.String("origin", ev.Claim.Origin),
		zap.String("txid", ev.Claim.TxID),
		zap.String("cause", ev.Error),
	}

	switch ev.Kind {
	case model.ReconcilePaymentUnknown:
		r.Log.Warn("payment of unknown status needs manual reconciliation", fields...)
		return true

	case model.ReconcileUnrecorded:
		for {
			err := r.Ledger.Record(ctx, ev.Claim.Claim())
			if err == nil {
				r.Log.Info("unrecorded claim written to ledger", fields...)
				return true
			}
			r.Log.Error("reconcile record failed", append(fields, zap.Error(err))...)
			if !sleepCtx(ctx, r.RetryWait) {
				return false
			}
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
