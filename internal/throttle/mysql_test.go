package throttle

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

func newTestMySQLStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewMySQLStore(sqlx.NewDb(db, "mysql")), mock
}

var (
	ensureVisitor = regexp.QuoteMeta("INSERT IGNORE INTO visitors (origin, category, last_visit_ms) VALUES (?, ?, 0)")
	selectVisitor = regexp.QuoteMeta("SELECT last_visit_ms FROM visitors WHERE origin = ? AND category = ? FOR UPDATE")
	updateVisitor = regexp.QuoteMeta("UPDATE visitors SET last_visit_ms = ? WHERE origin = ? AND category = ?")
)

var testKey = Key{Origin: "1.2.3.4", Category: "faucet"}

func TestMySQLStore_FirstVisitRecords(t *testing.T) {
	store, mock := newTestMySQLStore(t)
	now := time.UnixMilli(1_700_000_000_000)

	mock.ExpectExec(ensureVisitor).WithArgs("1.2.3.4", "faucet").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectBegin()
	mock.ExpectQuery(selectVisitor).WithArgs("1.2.3.4", "faucet").
		WillReturnRows(sqlmock.NewRows([]string{"last_visit_ms"}).AddRow(int64(0)))
	mock.ExpectExec(updateVisitor).WithArgs(now.UnixMilli(), "1.2.3.4", "faucet").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := store.TryVisit(context.Background(), testKey, now, time.Hour)
	if err != nil || !d.Allowed || !d.LastVisit.IsZero() {
		t.Fatalf("d=%+v err=%v", d, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLStore_WithinCooldownRollsBack(t *testing.T) {
	store, mock := newTestMySQLStore(t)
	now := time.UnixMilli(1_700_000_000_000)
	last := now.Add(-10 * time.Minute)

	mock.ExpectExec(ensureVisitor).WithArgs("1.2.3.4", "faucet").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery(selectVisitor).WithArgs("1.2.3.4", "faucet").
		WillReturnRows(sqlmock.NewRows([]string{"last_visit_ms"}).AddRow(last.UnixMilli()))
	mock.ExpectRollback()

	d, err := store.TryVisit(context.Background(), testKey, now, time.Hour)
	if err != nil || d.Allowed || !d.LastVisit.Equal(last) {
		t.Fatalf("d=%+v err=%v", d, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLStore_AfterCooldownUpdates(t *testing.T) {
	store, mock := newTestMySQLStore(t)
	now := time.UnixMilli(1_700_000_000_000)
	last := now.Add(-2 * time.Hour)

	mock.ExpectExec(ensureVisitor).WithArgs("1.2.3.4", "faucet").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery(selectVisitor).WithArgs("1.2.3.4", "faucet").
		WillReturnRows(sqlmock.NewRows([]string{"last_visit_ms"}).AddRow(last.UnixMilli()))
	mock.ExpectExec(updateVisitor).WithArgs(now.UnixMilli(), "1.2.3.4", "faucet").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := store.TryVisit(context.Background(), testKey, now, time.Hour)
	if err != nil || !d.Allowed || !d.LastVisit.Equal(last) {
		t.Fatalf("d=%+v err=%v", d, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLStore_DeadlockedVisitIsThrottled(t *testing.T) {
	for _, stage := range []string{"select", "update"} {
		t.Run(stage, func(t *testing.T) {
			store, mock := newTestMySQLStore(t)
			now := time.UnixMilli(1_700_000_000_000)
			deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}

			mock.ExpectExec(ensureVisitor).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectBegin()
			if stage == "select" {
				mock.ExpectQuery(selectVisitor).WillReturnError(deadlock)
			} else {
				mock.ExpectQuery(selectVisitor).
					WillReturnRows(sqlmock.NewRows([]string{"last_visit_ms"}).AddRow(int64(0)))
				mock.ExpectExec(updateVisitor).WillReturnError(deadlock)
			}
			mock.ExpectRollback()

			d, err := store.TryVisit(context.Background(), testKey, now, time.Hour)
			if err != nil || d.Allowed {
				t.Fatalf("d=%+v err=%v", d, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}

func TestMySQLStore_DeadlockReachesCallerAsThrottled(t *testing.T) {
	store, mock := newTestMySQLStore(t)
	now := time.UnixMilli(1_700_000_000_000)

	mock.ExpectExec(ensureVisitor).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery(selectVisitor).WillReturnError(&mysql.MySQLError{Number: 1213})
	mock.ExpectRollback()

	gate, err := NewIdentityGate(store, time.Hour)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	err = gate.WithClock(func() time.Time { return now }).
		Visit(context.Background(), Visitor{Origin: "1.2.3.4", Category: "faucet"})
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected throttled, got %v", err)
	}
}

func TestMySQLStore_QueryErrorPropagates(t *testing.T) {
	store, mock := newTestMySQLStore(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(ensureVisitor).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery(selectVisitor).WillReturnError(boom)
	mock.ExpectRollback()

	if _, err := store.TryVisit(context.Background(), testKey, time.Now(), time.Hour); !errors.Is(err, boom) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestMySQLStore_EnsureErrorPropagates(t *testing.T) {
	store, mock := newTestMySQLStore(t)
	boom := errors.New("read-only")

	mock.ExpectExec(ensureVisitor).WillReturnError(boom)

	if _, err := store.TryVisit(context.Background(), testKey, time.Now(), time.Hour); !errors.Is(err, boom) {
		t.Fatalf("expected ensure error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
