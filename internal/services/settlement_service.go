package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Cuttlas90/ads-project-sub000/internal/config"
	"github.com/Cuttlas90/ads-project-sub000/internal/events"
	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/Cuttlas90/ads-project-sub000/internal/payout"
	"github.com/Cuttlas90/ads-project-sub000/internal/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNoPayoutWallet = errors.New("recipient has no connected wallet")

// SettlementService moves escrowed funds out: to the channel owner after
// verification, back to the advertiser after a refund. Both paths record
// the payout exactly once; a second call on the same escrow returns
// ErrAlreadyProcessed no matter how the first one was triggered.
type SettlementService struct {
	pool            *pgxpool.Pool
	dealRepo        *repositories.DealRepo
	dealEventRepo   *repositories.DealEventRepo
	escrowRepo      *repositories.EscrowRepo
	escrowEventRepo *repositories.EscrowEventRepo
	walletRepo      *repositories.WalletRepo
	ledger          LedgerClient
	publisher       events.Publisher
	cfg             *config.Config
	log             *zap.Logger
}

func NewSettlementService(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	dealEventRepo *repositories.DealEventRepo,
	escrowRepo *repositories.EscrowRepo,
	escrowEventRepo *repositories.EscrowEventRepo,
	walletRepo *repositories.WalletRepo,
	ledger LedgerClient,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		pool:            pool,
		dealRepo:        dealRepo,
		dealEventRepo:   dealEventRepo,
		escrowRepo:      escrowRepo,
		escrowEventRepo: escrowEventRepo,
		walletRepo:      walletRepo,
		ledger:          ledger,
		publisher:       publisher,
		cfg:             cfg,
		log:             log,
	}
}

// ReleaseFunds pays the channel owner for a verified deal and moves the
// deal to released.
func (s *SettlementService) ReleaseFunds(ctx context.Context, dealID uuid.UUID) error {
	return s.settle(ctx, dealID, models.DealActionRelease)
}

// RefundFunds returns the deposit to the advertiser after a failed
// verification. The deal must already be in refunded.
func (s *SettlementService) RefundFunds(ctx context.Context, dealID uuid.UUID) error {
	return s.settle(ctx, dealID, models.DealActionRefund)
}

func (s *SettlementService) settle(ctx context.Context, dealID uuid.UUID, action models.DealAction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deals := s.dealRepo.WithTx(tx)
	escrows := s.escrowRepo.WithTx(tx)

	d, err := deals.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	e, err := escrows.GetByDealIDForUpdate(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if e.Settled() {
		return ErrAlreadyProcessed
	}
	if e.Status != models.EscrowStatusFunded {
		return fmt.Errorf("escrow %s is %s, not funded", e.ID, e.Status)
	}

	expected, err := payout.ParseTON(e.ExpectedTON)
	if err != nil {
		return err
	}
	received, err := payout.ParseTON(e.ReceivedTON)
	if err != nil {
		return err
	}
	feePercent, err := payout.ParseTON(e.FeePercent)
	if err != nil {
		return err
	}
	networkFee, err := payout.ParseTON(s.cfg.NetworkFeeTON)
	if err != nil {
		return err
	}

	principal := payout.Principal(expected, received)

	var recipientID uuid.UUID
	var amount = principal
	switch action {
	case models.DealActionRelease:
		if d.Status != models.DealStatusVerified {
			return fmt.Errorf("deal %s is %s, release needs verified", d.ID, d.Status)
		}
		recipientID = d.ChannelOwnerUserID
		amount = payout.ReleaseAmount(principal, feePercent, networkFee)
	case models.DealActionRefund:
		// Сделка уже переведена в refunded при падении верификации.
		if d.Status != models.DealStatusRefunded {
			return fmt.Errorf("deal %s is %s, refund needs refunded", d.ID, d.Status)
		}
		recipientID = d.AdvertiserUserID
		amount = payout.RefundAmount(principal, networkFee)
	default:
		return fmt.Errorf("unsupported settlement action %q", action)
	}

	var txHash *string
	if amount.IsPositive() {
		w, err := s.walletRepo.GetActiveWallet(ctx, recipientID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNoPayoutWallet
			}
			return err
		}
		hash, err := s.ledger.SubmitTransfer(ctx, e.SubwalletID, w.Address, payout.ToNano(amount), fmt.Sprintf("%s %s", action, dealID))
		if err != nil {
			return fmt.Errorf("submit transfer: %w", err)
		}
		txHash = &hash
	}

	var marked bool
	if action == models.DealActionRelease {
		marked, err = escrows.MarkReleased(ctx, e.ID, amount.String(), txHash)
	} else {
		marked, err = escrows.MarkRefunded(ctx, e.ID, amount.String(), txHash)
	}
	if err != nil {
		return err
	}
	if !marked {
		return ErrAlreadyProcessed
	}

	payload := map[string]any{
		"action":     string(action),
		"amount_ton": amount.String(),
	}
	if txHash == nil {
		// Нулевая сумма: перевод не отправлялся, но расчёт состоялся.
		payload["transfer_skipped"] = true
	}
	if err := s.escrowEventRepo.WithTx(tx).Append(ctx, &models.EscrowEvent{
		EscrowID: e.ID,
		Kind:     models.EscrowEventKindTransition,
		TxHash:   txHash,
		Payload:  payload,
	}); err != nil {
		return err
	}

	// release переводит сделку verified -> released; refund уже был
	// применён к сделке при падении верификации.
	if action == models.DealActionRelease {
		ev, err := models.ApplyDealAction(d, models.DealActionRelease, models.SystemActor(), map[string]any{
			"amount_ton": amount.String(),
		})
		if err != nil {
			return err
		}
		ok, err := deals.UpdateStatus(ctx, d.ID, *ev.FromStatus, d.Status)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		if err := s.dealEventRepo.WithTx(tx).Append(ctx, ev); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.log.Info("settlement complete",
		zap.String("deal_id", dealID.String()),
		zap.String("action", string(action)),
		zap.String("amount_ton", amount.String()))

	_ = s.publisher.Publish(ctx, events.StreamEscrows, events.Event{
		Type: events.EventPayoutSent,
		Payload: map[string]any{
			"deal_id":    dealID.String(),
			"action":     string(action),
			"amount_ton": amount.String(),
		},
	})
	return nil
}
