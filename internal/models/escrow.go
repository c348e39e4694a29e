package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EscrowStatusCreated         = "created"
	EscrowStatusAwaitingDeposit = "awaiting_deposit"
	EscrowStatusDepositDetected = "deposit_detected"
	EscrowStatusFunded          = "funded"
	EscrowStatusFailed          = "failed"
)

// Valid escrow transitions: from -> []to. Terminal: funded, failed.
var validEscrowTransitions = map[string][]string{
	EscrowStatusCreated:         {EscrowStatusAwaitingDeposit, EscrowStatusFailed},
	EscrowStatusAwaitingDeposit: {EscrowStatusDepositDetected, EscrowStatusFailed},
	EscrowStatusDepositDetected: {EscrowStatusFunded, EscrowStatusFailed},
	EscrowStatusFunded:          {},
	EscrowStatusFailed:          {},
}

func IsTerminalEscrowStatus(status string) bool {
	return status == EscrowStatusFunded || status == EscrowStatusFailed
}

// ApplyEscrowTransition validates the (from, to) pair against the
// allow-list, mutates the escrow on success and returns the transition
// event to append. The escrow is untouched on rejection.
func ApplyEscrowTransition(e *Escrow, to string, actor Actor, payload map[string]any) (*EscrowEvent, error) {
	allowed, ok := validEscrowTransitions[e.Status]
	if !ok {
		return nil, ErrNoSuchTransition
	}
	found := false
	for _, s := range allowed {
		if s == to {
			found = true
			break
		}
	}
	if !found {
		if IsTerminalEscrowStatus(e.Status) {
			return nil, ErrAlreadyTerminal
		}
		return nil, ErrNoSuchTransition
	}

	from := e.Status
	e.Status = to
	e.UpdatedAt = time.Now()

	fromCopy, toCopy := from, to
	return &EscrowEvent{
		EscrowID:    e.ID,
		ActorUserID: actor.UserIDPtr(),
		Kind:        EscrowEventKindTransition,
		FromStatus:  &fromCopy,
		ToStatus:    &toCopy,
		Payload:     payload,
	}, nil
}

// Escrow — одна запись финансирования на сделку (1:1).
type Escrow struct {
	ID     uuid.UUID `json:"id"`
	DealID uuid.UUID `json:"deal_id"`
	Status string    `json:"status"`

	DepositAddress         string `json:"deposit_address"`          // raw: 0:<hex>
	DepositAddressFriendly string `json:"deposit_address_friendly"` // EQ.../UQ...
	SubwalletID            uint32 `json:"subwallet_id"`             // derived from deal id
	Network                string `json:"network"`                  // mainnet/testnet

	ExpectedTON      string  `json:"expected_ton"`
	ReceivedTON      string  `json:"received_ton"` // monotone non-decreasing
	DepositTxHash    *string `json:"deposit_tx_hash,omitempty"`
	DepositSeenSeqno *int64  `json:"deposit_seen_seqno,omitempty"` // masterchain seqno at first observation
	Confirmations    int     `json:"confirmations"`
	FeePercent       string  `json:"fee_percent"`

	ReleaseAmountTON *string    `json:"release_amount_ton,omitempty"`
	ReleaseTxHash    *string    `json:"release_tx_hash,omitempty"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	RefundAmountTON  *string    `json:"refund_amount_ton,omitempty"`
	RefundTxHash     *string    `json:"refund_tx_hash,omitempty"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settled reports whether a payout has already happened in either
// direction. Once true the escrow is terminal for payout purposes.
func (e *Escrow) Settled() bool {
	return e.ReleaseTxHash != nil || e.RefundTxHash != nil ||
		e.ReleaseAmountTON != nil || e.RefundAmountTON != nil
}
