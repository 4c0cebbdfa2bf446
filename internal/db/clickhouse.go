package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
)

// NewClickHouse opens the analytics database holding projected claims,
// e.g. clickhouse://default:@localhost:9000/faucet?dial_timeout=5s
func NewClickHouse(opts PoolOpts) (*sqlx.DB, error) {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}
	return open("clickhouse", opts)
}
