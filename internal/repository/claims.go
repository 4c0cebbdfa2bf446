package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/model"
	"github.com/jmoiron/sqlx"
)

// ClaimsTopic is the default Kafka topic claim events are routed to.
const ClaimsTopic = "faucet.claims"

// ClaimsRepository is the durable, append-only claim ledger.
type ClaimsRepository interface {
	// Record stores c and its outbox event atomically. Recording an id that
	// already exists is a no-op.
	Record(ctx context.Context, c model.Claim) error
	ExistsByID(ctx context.Context, id string) (bool, error)
	// Aggregate returns count and total amount of claims created at or after since.
	Aggregate(ctx context.Context, since time.Time) (model.ClaimAggregate, error)
}

type ClaimsRepositoryImpl struct {
	db     *sqlx.DB
	outbox OutboxRepository
	topic  string
}

var _ ClaimsRepository = (*ClaimsRepositoryImpl)(nil)

func NewClaimsRepository(db *sqlx.DB, outbox OutboxRepository, topic string) *ClaimsRepositoryImpl {
	if topic == "" {
		topic = ClaimsTopic
	}
	return &ClaimsRepositoryImpl{db: db, outbox: outbox, topic: topic}
}

func (r *ClaimsRepositoryImpl) Record(ctx context.Context, c model.Claim) error {
	if c.ID == "" {
		return errors.New("record claim: empty id")
	}
	payload, err := json.Marshal(model.NewClaimEvent(c))
	if err != nil {
		return fmt.Errorf("marshal claim event: %w", err)
	}

	return withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		exists, err := existsByID(ctx, tx, c.ID)
		if err != nil {
			return fmt.Errorf("claim exists: %w", err)
		}
		if exists {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO claims (id, address, amount, txid, origin, created_at_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.ID, c.Address, c.Amount, c.TxID, c.Origin, c.CreatedAtMs); err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}

		if err := r.outbox.Insert(ctx, tx, "claim", c.ID, r.topic, payload); err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
		return nil
	})
}

func (r *ClaimsRepositoryImpl) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var err error
		exists, err = existsByID(ctx, tx, id)
		return err
	})
	return exists, err
}

func existsByID(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRowxContext(ctx, `SELECT 1 FROM claims WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ClaimsRepositoryImpl) Aggregate(ctx context.Context, since time.Time) (model.ClaimAggregate, error) {
	var agg model.ClaimAggregate
	err := r.db.GetContext(ctx, &agg, `
		SELECT COUNT(*) AS cnt, COALESCE(SUM(amount), 0) AS total
		FROM claims
		WHERE created_at_ms >= ?
	`, since.UnixMilli())
	if err != nil {
		return model.ClaimAggregate{}, err
	}
	return agg, nil
}
