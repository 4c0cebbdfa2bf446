package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

const mysqlErrDeadlock = 1213

// MySQLStore keeps visitor records in the visitors table. The row for a key
// is created up front (last_visit_ms = 0 means never visited), so the
// check-and-record always locks an existing record and concurrent first
// visits queue on it instead of on a gap lock.
type MySQLStore struct {
	db *sqlx.DB
}

var _ Store = (*MySQLStore)(nil)

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) TryVisit(ctx context.Context, key Key, now time.Time, cooldown time.Duration) (Decision, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT IGNORE INTO visitors (origin, category, last_visit_ms)
		VALUES (?, ?, 0)
	`, key.Origin, key.Category); err != nil {
		return Decision{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Decision{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var lastMs int64
	err = tx.QueryRowxContext(ctx, `
		SELECT last_visit_ms
		FROM visitors
		WHERE origin = ? AND category = ?
		FOR UPDATE
	`, key.Origin, key.Category).Scan(&lastMs)
	if err != nil {
		return lostRace(err, now)
	}

	var last time.Time
	if lastMs > 0 {
		last = time.UnixMilli(lastMs)
	}
	if !eligible(last, now, cooldown) {
		return Decision{Allowed: false, LastVisit: last}, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE visitors
		SET last_visit_ms = ?
		WHERE origin = ? AND category = ?
	`, now.UnixMilli(), key.Origin, key.Category); err != nil {
		return lostRace(err, now)
	}
	if err := tx.Commit(); err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true, LastVisit: last}, nil
}

// lostRace turns a deadlock on the visitor row into a refusal: the only
// contender for that row is a concurrent visit of the same key, and it won.
func lostRace(err error, now time.Time) (Decision, error) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlErrDeadlock {
		return Decision{Allowed: false, LastVisit: now}, nil
	}
	return Decision{}, err
}
