package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/coin-faucet/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHClaimsRepository is the ClickHouse projection of the claim ledger, fed
// by the projector worker and read by the admin reports.
type CHClaimsRepository interface {
	InsertBatch(ctx context.Context, claims []model.Claim) error
	ListRecent(ctx context.Context, address, origin string, limit, offset int) ([]model.Claim, error)
}

type chClaimsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHClaimsRepository(ch *sqlx.DB) CHClaimsRepository {
	return &chClaimsRepository{ch: ch}
}

// InsertBatch writes claims in one ClickHouse block. The table is a
// ReplacingMergeTree keyed by id, so replays collapse.
func (r *chClaimsRepository) InsertBatch(ctx context.Context, claims []model.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO faucet.claims (id, address, amount, txid, origin, created_at_ms)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, c := range claims {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Address, c.Amount, c.TxID, c.Origin, c.CreatedAtMs); err != nil {
			return fmt.Errorf("append claim %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (r *chClaimsRepository) ListRecent(ctx context.Context, address, origin string, limit, offset int) ([]model.Claim, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, address, amount, txid, origin, created_at_ms
		FROM faucet.claims FINAL
		WHERE 1 = 1
	`
	args := []any{}

	if address != "" {
		q += " AND address = ?"
		args = append(args, address)
	}
	if origin != "" {
		q += " AND origin = ?"
		args = append(args, origin)
	}

	q += " ORDER BY created_at_ms DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.Claim
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
