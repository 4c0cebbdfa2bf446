package db

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQL opens the ledger / visitor database. The DSN should carry
// parseTime=true; migrations additionally need multiStatements=true.
func NewMySQL(opts PoolOpts) (*sqlx.DB, error) {
	return open("mysql", opts)
}
