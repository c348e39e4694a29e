package models

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestApplyEscrowTransition(t *testing.T) {
	tests := []struct {
		from    string
		to      string
		wantErr error
	}{
		{EscrowStatusCreated, EscrowStatusAwaitingDeposit, nil},
		{EscrowStatusAwaitingDeposit, EscrowStatusDepositDetected, nil},
		{EscrowStatusDepositDetected, EscrowStatusFunded, nil},
		{EscrowStatusCreated, EscrowStatusFailed, nil},
		{EscrowStatusAwaitingDeposit, EscrowStatusFailed, nil},
		{EscrowStatusDepositDetected, EscrowStatusFailed, nil},

		{EscrowStatusCreated, EscrowStatusFunded, ErrNoSuchTransition},
		{EscrowStatusCreated, EscrowStatusDepositDetected, ErrNoSuchTransition},
		{EscrowStatusAwaitingDeposit, EscrowStatusFunded, ErrNoSuchTransition},
		{EscrowStatusFunded, EscrowStatusFailed, ErrAlreadyTerminal},
		{EscrowStatusFailed, EscrowStatusAwaitingDeposit, ErrAlreadyTerminal},
		{EscrowStatusFunded, EscrowStatusDepositDetected, ErrAlreadyTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			e := &Escrow{ID: uuid.New(), DealID: uuid.New(), Status: tt.from}
			ev, err := ApplyEscrowTransition(e, tt.to, SystemActor(), nil)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if e.Status != tt.from {
					t.Errorf("escrow mutated on rejection: %s -> %s", tt.from, e.Status)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if e.Status != tt.to {
				t.Errorf("status = %s, want %s", e.Status, tt.to)
			}
			if ev.Kind != EscrowEventKindTransition {
				t.Errorf("event kind = %s", ev.Kind)
			}
			if *ev.FromStatus != tt.from || *ev.ToStatus != tt.to {
				t.Errorf("event statuses = %s->%s", *ev.FromStatus, *ev.ToStatus)
			}
		})
	}
}

func TestEscrowSettled(t *testing.T) {
	e := &Escrow{}
	if e.Settled() {
		t.Error("fresh escrow should not be settled")
	}

	hash := "abc"
	e.ReleaseTxHash = &hash
	if !e.Settled() {
		t.Error("escrow with release tx should be settled")
	}

	amount := "0"
	e2 := &Escrow{RefundAmountTON: &amount}
	if !e2.Settled() {
		t.Error("escrow with recorded zero refund should be settled")
	}
}
