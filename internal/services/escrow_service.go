package services

import (
	"context"
	"errors"

	"github.com/Cuttlas90/ads-project-sub000/internal/config"
	"github.com/Cuttlas90/ads-project-sub000/internal/events"
	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/Cuttlas90/ads-project-sub000/internal/repositories"
	"github.com/Cuttlas90/ads-project-sub000/internal/ton"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrDealNotFundable = errors.New("deal is not ready for funding")

type EscrowService struct {
	pool       *pgxpool.Pool
	dealRepo   *repositories.DealRepo
	escrowRepo *repositories.EscrowRepo
	eventRepo  *repositories.EscrowEventRepo
	ledger     LedgerClient
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewEscrowService(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	escrowRepo *repositories.EscrowRepo,
	eventRepo *repositories.EscrowEventRepo,
	ledger LedgerClient,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *EscrowService {
	return &EscrowService{
		pool:       pool,
		dealRepo:   dealRepo,
		escrowRepo: escrowRepo,
		eventRepo:  eventRepo,
		ledger:     ledger,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// InitEscrow provisions the deposit address for an approved deal. The
// subwallet id is a pure function of the deal id, so retries land on the
// same address; the unique deal_id constraint makes the escrow row 1:1.
func (s *EscrowService) InitEscrow(ctx context.Context, dealID, requesterID uuid.UUID) (*models.Escrow, error) {
	d, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	role, ok := d.RoleOf(requesterID)
	if !ok {
		return nil, ErrForbidden
	}
	if role != models.RoleAdvertiser {
		return nil, ErrForbidden
	}
	if d.Status != models.DealStatusCreativeApproved {
		return nil, ErrDealNotFundable
	}

	// Повторный вызов возвращает уже созданный эскроу.
	if existing, err := s.escrowRepo.GetByDealID(ctx, dealID); err == nil {
		return existing, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	subwalletID := ton.DeriveSubwalletID(dealID)
	raw, friendly, err := s.ledger.SubwalletAddress(subwalletID)
	if err != nil {
		return nil, err
	}

	e := &models.Escrow{
		DealID:                 dealID,
		Status:                 models.EscrowStatusCreated,
		DepositAddress:         raw,
		DepositAddressFriendly: friendly,
		SubwalletID:            subwalletID,
		Network:                s.cfg.TONNetwork,
		ExpectedTON:            d.PriceTON,
		ReceivedTON:            "0",
		FeePercent:             s.cfg.PlatformFeePercent,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	escrows := s.escrowRepo.WithTx(tx)
	escrowEvents := s.eventRepo.WithTx(tx)

	if err := escrows.Create(ctx, e); err != nil {
		return nil, err
	}
	if err := escrowEvents.Append(ctx, &models.EscrowEvent{
		EscrowID: e.ID,
		Kind:     models.EscrowEventKindAddressGenerated,
		Payload: map[string]any{
			"deposit_address": raw,
			"subwallet_id":    subwalletID,
		},
	}); err != nil {
		return nil, err
	}

	ev, err := models.ApplyEscrowTransition(e, models.EscrowStatusAwaitingDeposit, models.SystemActor(), nil)
	if err != nil {
		return nil, err
	}
	ok, err = escrows.UpdateStatus(ctx, e.ID, *ev.FromStatus, e.Status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	if err := escrowEvents.Append(ctx, ev); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info("escrow initialized",
		zap.String("deal_id", dealID.String()),
		zap.String("escrow_id", e.ID.String()),
		zap.String("deposit_address", friendly))

	_ = s.publisher.Publish(ctx, events.StreamEscrows, events.Event{
		Type: events.EventEscrowStatusChanged,
		Payload: map[string]any{
			"escrow_id": e.ID.String(),
			"deal_id":   dealID.String(),
			"status":    e.Status,
		},
	})
	return e, nil
}

func (s *EscrowService) GetByDeal(ctx context.Context, dealID, requesterID uuid.UUID) (*models.Escrow, error) {
	d, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, ok := d.RoleOf(requesterID); !ok {
		return nil, ErrForbidden
	}
	e, err := s.escrowRepo.GetByDealID(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EscrowService) ListEvents(ctx context.Context, dealID, requesterID uuid.UUID, limit int) ([]models.EscrowEvent, error) {
	e, err := s.GetByDeal(ctx, dealID, requesterID)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.ListByEscrow(ctx, e.ID, limit)
}
