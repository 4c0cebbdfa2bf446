package model

import "time"

// Claim is a completed payout persisted in the claims table. Rows are
// append-only.
type Claim struct {
	ID          string `db:"id"            json:"id"` // ULID
	Address     string `db:"address"       json:"address"`
	Amount      int64  `db:"amount"        json:"amount"` // minor units
	TxID        string `db:"txid"          json:"txid"`
	Origin      string `db:"origin"        json:"origin"`
	CreatedAtMs int64  `db:"created_at_ms" json:"created_at_ms"`
}

func (c Claim) CreatedAt() time.Time { return time.UnixMilli(c.CreatedAtMs) }

// ClaimAggregate summarises claims over a trailing window.
type ClaimAggregate struct {
	Count int64 `db:"cnt"`
	Total int64 `db:"total"`
}
