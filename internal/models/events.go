package models

import (
	"time"

	"github.com/google/uuid"
)

// Deal event kinds
const (
	DealEventKindTransition = "transition"
	DealEventKindProposal   = "proposal"
	DealEventKindMessage    = "message"
)

// DealEvent — append-only история сделки. Строки не изменяются и не
// удаляются после записи.
type DealEvent struct {
	ID          uuid.UUID      `json:"id"`
	DealID      uuid.UUID      `json:"deal_id"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty"`
	Kind        string         `json:"kind"`
	FromStatus  *string        `json:"from_status,omitempty"`
	ToStatus    *string        `json:"to_status,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Escrow event kinds
const (
	EscrowEventKindTransition       = "transition"
	EscrowEventKindTxSeen           = "tx_seen"
	EscrowEventKindDepositDetected  = "deposit_detected"
	EscrowEventKindConfirmed        = "confirmed"
	EscrowEventKindAddressGenerated = "address_generated"
)

// EscrowEvent mirrors DealEvent for escrow transitions and deposit
// observations. For tx_seen rows, (escrow_id, tx_hash) and
// (escrow_id, ledger_lt) are unique — the idempotency boundary for
// ledger polling.
type EscrowEvent struct {
	ID          uuid.UUID      `json:"id"`
	EscrowID    uuid.UUID      `json:"escrow_id"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty"`
	Kind        string         `json:"kind"`
	FromStatus  *string        `json:"from_status,omitempty"`
	ToStatus    *string        `json:"to_status,omitempty"`
	TxHash      *string        `json:"tx_hash,omitempty"`
	LedgerLT    *uint64        `json:"ledger_lt,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
