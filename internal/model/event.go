package model

// ClaimEvent is the payload written to the outbox and published to Kafka
// (via Debezium outbox SMT) for every recorded claim.
type ClaimEvent struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	Amount      int64  `json:"amount"`
	TxID        string `json:"txid"`
	Origin      string `json:"origin"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

func NewClaimEvent(c Claim) ClaimEvent {
	return ClaimEvent{
		ID:          c.ID,
		Address:     c.Address,
		Amount:      c.Amount,
		TxID:        c.TxID,
		Origin:      c.Origin,
		CreatedAtMs: c.CreatedAtMs,
	}
}

type ReconcileKind string

const (
	// ReconcilePaymentUnknown: the send call failed or timed out, funds may have moved.
	ReconcilePaymentUnknown ReconcileKind = "payment_unknown"
	// ReconcileUnrecorded: payment succeeded but the ledger write failed.
	ReconcileUnrecorded ReconcileKind = "unrecorded"
)

func (k ReconcileKind) String() string { return string(k) }

func (k ReconcileKind) Valid() bool {
	return k == ReconcilePaymentUnknown || k == ReconcileUnrecorded
}

// ReconcileEvent is published when a claim needs out-of-band reconciliation.
type ReconcileEvent struct {
	Kind  ReconcileKind `json:"kind"`
	Claim ClaimEvent    `json:"claim"`
	Error string        `json:"error,omitempty"`
}

// Claim converts the event back into a ledger row.
func (e ClaimEvent) Claim() Claim {
	return Claim{
		ID:          e.ID,
		Address:     e.Address,
		Amount:      e.Amount,
		TxID:        e.TxID,
		Origin:      e.Origin,
		CreatedAtMs: e.CreatedAtMs,
	}
}
