package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/Cuttlas90/ads-project-sub000/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeUnsettled struct {
	rows []repositories.UnsettledDeal
	err  error
}

func (f *fakeUnsettled) ListUnsettled(context.Context, int) ([]repositories.UnsettledDeal, error) {
	return f.rows, f.err
}

type fakeSettler struct {
	released []uuid.UUID
	refunded []uuid.UUID
	err      error
}

func (f *fakeSettler) ReleaseFunds(_ context.Context, dealID uuid.UUID) error {
	f.released = append(f.released, dealID)
	return f.err
}

func (f *fakeSettler) RefundFunds(_ context.Context, dealID uuid.UUID) error {
	f.refunded = append(f.refunded, dealID)
	return f.err
}

// A deal stuck with a funded escrow after its verify or refund decision
// gets its payout re-driven on the next tick.
func TestRetrySettlements_Dispatch(t *testing.T) {
	verified, refunded := uuid.New(), uuid.New()
	settler := &fakeSettler{}
	s := &SchedulerService{
		escrowRepo: &fakeUnsettled{rows: []repositories.UnsettledDeal{
			{DealID: verified, DealStatus: models.DealStatusVerified},
			{DealID: refunded, DealStatus: models.DealStatusRefunded},
		}},
		settlement: settler,
		log:        zap.NewNop(),
	}

	s.retrySettlements(context.Background())

	if len(settler.released) != 1 || settler.released[0] != verified {
		t.Errorf("released = %v, want exactly the verified deal", settler.released)
	}
	if len(settler.refunded) != 1 || settler.refunded[0] != refunded {
		t.Errorf("refunded = %v, want exactly the refunded deal", settler.refunded)
	}
}

// A concurrent settle winning the race answers ErrAlreadyProcessed; the
// sweep takes that as done and keeps going.
func TestRetrySettlements_AlreadyProcessed(t *testing.T) {
	settler := &fakeSettler{err: ErrAlreadyProcessed}
	s := &SchedulerService{
		escrowRepo: &fakeUnsettled{rows: []repositories.UnsettledDeal{
			{DealID: uuid.New(), DealStatus: models.DealStatusVerified},
			{DealID: uuid.New(), DealStatus: models.DealStatusVerified},
		}},
		settlement: settler,
		log:        zap.NewNop(),
	}

	s.retrySettlements(context.Background())

	if len(settler.released) != 2 {
		t.Errorf("released %d deals, want both attempted", len(settler.released))
	}
}

// A failing ledger never stops the sweep from attempting every row, so a
// single broken payout does not freeze the others.
func TestRetrySettlements_ErrorKeepsGoing(t *testing.T) {
	settler := &fakeSettler{err: errors.New("ledger down")}
	s := &SchedulerService{
		escrowRepo: &fakeUnsettled{rows: []repositories.UnsettledDeal{
			{DealID: uuid.New(), DealStatus: models.DealStatusVerified},
			{DealID: uuid.New(), DealStatus: models.DealStatusRefunded},
		}},
		settlement: settler,
		log:        zap.NewNop(),
	}

	s.retrySettlements(context.Background())

	if len(settler.released) != 1 || len(settler.refunded) != 1 {
		t.Errorf("attempted %d releases and %d refunds, want 1 and 1",
			len(settler.released), len(settler.refunded))
	}
}
