package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/kafka"
	"github.com/jmehdipour/coin-faucet/internal/metrics"
	"github.com/jmehdipour/coin-faucet/internal/model"
	"go.uber.org/zap"
)

// ClaimSink stores projected claims; satisfied by repository.CHClaimsRepository.
type ClaimSink interface {
	InsertBatch(ctx context.Context, claims []model.Claim) error
}

// Projector:
// - fetches claim events (published by Debezium from the outbox),
// - batches them into the ClickHouse claims table,
// - commits offsets only after a batch is stored (at-least-once).
type Projector struct {
	Source Source
	Sink   ClaimSink
	Log    *zap.Logger

	BatchSize int           // max events per flush
	BatchWait time.Duration // max time to wait before flush
}

func NewProjector(src Source, sink ClaimSink, log *zap.Logger) *Projector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Projector{
		Source:    src,
		Sink:      sink,
		Log:       log,
		BatchSize: 200,
		BatchWait: 500 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled.
func (p *Projector) Run(ctx context.Context) error {
	if p.Source == nil || p.Sink == nil {
		return errors.New("projector: source and sink are required")
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 200
	}
	if p.BatchWait <= 0 {
		p.BatchWait = 500 * time.Millisecond
	}

	msgCh := make(chan kafka.Message, p.BatchSize)
	go p.fetch(ctx, msgCh)

	tick := time.NewTicker(p.BatchWait)
	defer tick.Stop()

	var (
		claims  []model.Claim
		pending []kafka.Message
	)

	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if len(claims) > 0 {
			if err := p.Sink.InsertBatch(ctx, claims); err != nil {
				// keep the batch; the next tick retries it
				metrics.ProjectedClaims.WithLabelValues("failed").Add(float64(len(claims)))
				p.Log.Error("projector insert batch failed", zap.Int("claims", len(claims)), zap.Error(err))
				return
			}
			metrics.ProjectedClaims.WithLabelValues("stored").Add(float64(len(claims)))
		}
		if err := p.Source.Commit(ctx, pending...); err != nil {
			p.Log.Error("projector commit failed", zap.Error(err))
		}
		p.Log.Debug("projector flushed", zap.Int("claims", len(claims)), zap.Int("messages", len(pending)))
		claims = claims[:0]
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			flush(flushCtx)
			cancel()
			return nil

		case m, ok := <-msgCh:
			if !ok {
				flush(ctx)
				return nil
			}
			pending = append(pending, m)
			if c, ok := p.decode(m); ok {
				claims = append(claims, c)
			}
			if len(pending) >= p.BatchSize {
				flush(ctx)
			}

		case <-tick.C:
			flush(ctx)
		}
	}
}

func (p *Projector) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := p.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.Log.Warn("projector fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

// decode skips poison messages; they are still committed with their batch.
func (p *Projector) decode(m kafka.Message) (model.Claim, bool) {
	var ev model.ClaimEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ID == "" {
		metrics.ProjectedClaims.WithLabelValues("skipped").Inc()
		p.Log.Warn("projector: bad claim event", zap.Int64("offset", m.Offset), zap.Error(err))
		return model.Claim{}, false
	}
	return ev.Claim(), true
}
