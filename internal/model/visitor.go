package model

import "time"

// DefaultCategory is the only claim category the faucet serves.
const DefaultCategory = "faucet"

// Visitor is the last successful visit of an (origin, category) pair.
type Visitor struct {
	Origin      string `db:"origin"`
	Category    string `db:"category"`
	LastVisitMs int64  `db:"last_visit_ms"`
}

func (v Visitor) LastVisit() time.Time { return time.UnixMilli(v.LastVisitMs) }
