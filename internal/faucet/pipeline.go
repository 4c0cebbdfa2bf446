// Package faucet sequences a claim: validate address, compute the payout,
// consume eligibility, send the payment and record it in the ledger.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/metrics"
	"github.com/jmehdipour/coin-faucet/internal/model"
	"github.com/jmehdipour/coin-faucet/internal/payout"
	"github.com/jmehdipour/coin-faucet/internal/throttle"
	"github.com/jmehdipour/coin-faucet/internal/util"
	"github.com/jmehdipour/coin-faucet/internal/wallet"
	"go.uber.org/zap"
)

type Stage int

const (
	StageIdle Stage = iota
	StageAddressValidated
	StageAmountComputed
	StageEligibilityChecked
	StagePaymentSent
	StageRecorded
	StageResponded
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAddressValidated:
		return "address_validated"
	case StageAmountComputed:
		return "amount_computed"
	case StageEligibilityChecked:
		return "eligibility_checked"
	case StagePaymentSent:
		return "payment_sent"
	case StageRecorded:
		return "recorded"
	case StageResponded:
		return "responded"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Quoter is satisfied by *payout.Calculator.
type Quoter interface {
	Quote(ctx context.Context) (payout.Quote, error)
}

// Ledger is the write side of the claim ledger.
type Ledger interface {
	Record(ctx context.Context, c model.Claim) error
}

// Reconciler receives claims that need out-of-band follow-up.
type Reconciler interface {
	Report(ctx context.Context, ev model.ReconcileEvent) error
}

type Request struct {
	Address    string
	Origin     string
	Credential string
}

type Result struct {
	ClaimID string
	Address string
	Amount  int64
	TxID    string
	Stage   Stage
	// Unrecorded is set when the payment went out but the ledger write
	// failed. The claim is still a success for the caller.
	Unrecorded bool
}

type Pipeline struct {
	quoter     Quoter
	gate       throttle.Gate
	wallet     wallet.Client
	ledger     Ledger
	reconciler Reconciler
	category   string
	log        *zap.Logger

	recordTimeout time.Duration
	reportTimeout time.Duration
	now           func() time.Time
	newID         func(time.Time) string
}

type Option func(*Pipeline)

func WithReconciler(r Reconciler) Option { return func(p *Pipeline) { p.reconciler = r } }
func WithLogger(l *zap.Logger) Option    { return func(p *Pipeline) { p.log = l } }
func WithCategory(c string) Option       { return func(p *Pipeline) { p.category = c } }
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}
// WithReportTimeout bounds how long a reconcile report may hold up the
// response.
func WithReportTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.reportTimeout = d
		}
	}
}

func WithIDs(newID func(time.Time) string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

func NewPipeline(q Quoter, gate throttle.Gate, w wallet.Client, ledger Ledger, opts ...Option) (*Pipeline, error) {
	if q == nil || gate == nil || w == nil || ledger == nil {
		return nil, errors.New("faucet: quoter, gate, wallet and ledger are required")
	}
	p := &Pipeline{
		quoter:        q,
		gate:          gate,
		wallet:        w,
		ledger:        ledger,
		category:      model.DefaultCategory,
		log:           zap.NewNop(),
		recordTimeout: 10 * time.Second,
		reportTimeout: 2 * time.Second,
		now:           time.Now,
		newID:         util.NewAt,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// claim carries one request through the stages.
type claim struct {
	req        Request
	stage      Stage
	id         string
	amount     int64
	txid       string
	unrecorded bool
}

func (c *claim) result() Result {
	return Result{
		ClaimID:    c.id,
		Address:    c.req.Address,
		Amount:     c.amount,
		TxID:       c.txid,
		Stage:      c.stage,
		Unrecorded: c.unrecorded,
	}
}

func (c *claim) fields() []zap.Field {
	return []zap.Field{
		zap.String("claim_id", c.id),
		zap.String("address", c.req.Address),
		zap.String("origin", c.req.Origin),
		zap.Int64("amount", c.amount),
		zap.String("stage", c.stage.String()),
	}
}

// Claim runs the pipeline once. No step is retried. A *StageError is
// returned for every failure; Result.Stage is the last stage reached.
func (p *Pipeline) Claim(ctx context.Context, req Request) (Result, error) {
	c := &claim{req: req, stage: StageIdle}

	steps := []func(context.Context, *claim) error{
		p.validateAddress,
		p.computeAmount,
		p.checkEligibility,
		p.sendPayment,
		p.recordClaim,
	}
	for _, step := range steps {
		if err := step(ctx, c); err != nil {
			metrics.ClaimsTotal.WithLabelValues(KindOf(err).String()).Inc()
			return c.result(), err
		}
	}

	c.stage = StageResponded
	metrics.ClaimsTotal.WithLabelValues("paid").Inc()
	metrics.PayoutAmount.Observe(float64(c.amount))
	return c.result(), nil
}

func (p *Pipeline) validateAddress(_ context.Context, c *claim) error {
	if err := ValidateAddress(c.req.Address); err != nil {
		return &StageError{Stage: StageAddressValidated, Kind: KindInput, Err: err}
	}
	c.stage = StageAddressValidated
	return nil
}

func (p *Pipeline) computeAmount(ctx context.Context, c *claim) error {
	q, err := p.quoter.Quote(ctx)
	if err != nil {
		p.log.Warn("payout quote failed", append(c.fields(), zap.Error(err))...)
		return &StageError{Stage: StageAmountComputed, Kind: KindDependency, Err: err}
	}
	if q.Amount <= 0 || q.Amount > q.Balance {
		err := fmt.Errorf("unsafe payout %d for balance %d", q.Amount, q.Balance)
		p.log.Error("payout quote rejected", append(c.fields(), zap.Error(err))...)
		return &StageError{Stage: StageAmountComputed, Kind: KindDependency, Err: err}
	}
	c.amount = q.Amount
	c.stage = StageAmountComputed
	return nil
}

func (p *Pipeline) checkEligibility(ctx context.Context, c *claim) error {
	err := p.gate.Visit(ctx, throttle.Visitor{
		Origin:     c.req.Origin,
		Category:   p.category,
		Credential: c.req.Credential,
	})
	if err != nil {
		kind := classifyVisit(err)
		if kind == KindDependency {
			p.log.Error("eligibility check failed", append(c.fields(), zap.Error(err))...)
		} else {
			p.log.Debug("claim refused", append(c.fields(), zap.Error(err))...)
		}
		return &StageError{Stage: StageEligibilityChecked, Kind: kind, Err: err}
	}
	c.stage = StageEligibilityChecked
	return nil
}

// sendPayment uses the amount computed earlier, never a fresh quote. On
// failure the consumed eligibility is retained: a visitor whose payment
// status is unknown must not be able to trigger a second send.
func (p *Pipeline) sendPayment(ctx context.Context, c *claim) error {
	now := p.now()
	c.id = p.newID(now)

	// the caller going away must not abort a payment in flight
	txid, err := p.wallet.SendToAddress(context.WithoutCancel(ctx), c.req.Address, c.amount)
	if err != nil {
		kind := classifySend(err)
		p.log.Error("payment failed", append(c.fields(), zap.String("kind", kind.String()), zap.Error(err))...)
		if kind == KindPaymentUnknown {
			p.reconcile(ctx, c, model.ReconcilePaymentUnknown, now, err)
		}
		return &StageError{Stage: StagePaymentSent, Kind: kind, Err: err}
	}

	c.txid = txid
	c.stage = StagePaymentSent
	return nil
}

// recordClaim never fails the request: the payment has left the wallet, so
// the caller gets the confirmation and the gap is reported for reconciliation.
func (p *Pipeline) recordClaim(ctx context.Context, c *claim) error {
	now := p.now()
	row := model.Claim{
		ID:          c.id,
		Address:     c.req.Address,
		Amount:      c.amount,
		TxID:        c.txid,
		Origin:      c.req.Origin,
		CreatedAtMs: now.UnixMilli(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.recordTimeout)
	defer cancel()

	if err := p.ledger.Record(rctx, row); err != nil {
		c.unrecorded = true
		metrics.AuditGaps.Inc()
		p.log.Error("AUDIT GAP: payment sent but claim not recorded",
			append(c.fields(), zap.String("txid", c.txid), zap.Error(err))...)
		p.reconcile(ctx, c, model.ReconcileUnrecorded, now, err)
		return nil
	}

	c.stage = StageRecorded
	return nil
}

func (p *Pipeline) reconcile(ctx context.Context, c *claim, kind model.ReconcileKind, at time.Time, cause error) {
	if p.reconciler == nil {
		return
	}
	ev := model.ReconcileEvent{
		Kind: kind,
		Claim: model.NewClaimEvent(model.Claim{
			ID:          c.id,
			Address:     c.req.Address,
			Amount:      c.amount,
			TxID:        c.txid,
			Origin:      c.req.Origin,
			CreatedAtMs: at.UnixMilli(),
		}),
		Error: cause.Error(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.reportTimeout)
	defer cancel()

	result := "ok"
	if err := p.reconciler.Report(rctx, ev); err != nil {
		result = "error"
		p.log.Error("reconcile report failed",
			append(c.fields(), zap.String("reconcile_kind", kind.String()), zap.Error(err))...)
	}
	metrics.ReconcileReports.WithLabelValues(kind.String(), result).Inc()
}

// Info quotes the current payout without consuming eligibility or moving
// funds. Used by the landing endpoint. On payout.ErrDepleted the returned
// quote still carries the balance.
func (p *Pipeline) Info(ctx context.Context) (payout.Quote, error) {
	q, err := p.quoter.Quote(ctx)
	if err != nil {
		return q, &StageError{Stage: StageAmountComputed, Kind: KindDependency, Err: err}
	}
	return q, nil
}
