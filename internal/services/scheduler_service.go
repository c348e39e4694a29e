package services

import (
	"context"
	"errors"
	"time"

	"github.com/Cuttlas90/ads-project-sub000/internal/config"
	"github.com/Cuttlas90/ads-project-sub000/internal/content"
	"github.com/Cuttlas90/ads-project-sub000/internal/events"
	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/Cuttlas90/ads-project-sub000/internal/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const dueBatchSize = 20

// Сколько ждём после дедлайна, если t.me не отвечает, прежде чем считать
// пост удалённым.
const verifyFetchGrace = time.Hour

// unsettledSource lists settlements that failed mid-flight.
type unsettledSource interface {
	ListUnsettled(ctx context.Context, limit int) ([]repositories.UnsettledDeal, error)
}

// SchedulerService drives the time-based part of the deal lifecycle:
// publishing scheduled creatives, deciding release vs refund once the
// retention window closes, and re-driving payouts that failed.
type SchedulerService struct {
	pool          *pgxpool.Pool
	dealRepo      *repositories.DealRepo
	dealEventRepo *repositories.DealEventRepo
	escrowRepo    unsettledSource
	bridge        Publisher
	inspector     ContentInspector
	settlement    Settler
	eventsPub     events.Publisher
	cfg           *config.Config
	log           *zap.Logger
}

func NewSchedulerService(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	dealEventRepo *repositories.DealEventRepo,
	escrowRepo unsettledSource,
	bridge Publisher,
	inspector ContentInspector,
	settlement Settler,
	eventsPub events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *SchedulerService {
	return &SchedulerService{
		pool:          pool,
		dealRepo:      dealRepo,
		dealEventRepo: dealEventRepo,
		escrowRepo:    escrowRepo,
		bridge:        bridge,
		inspector:     inspector,
		settlement:    settlement,
		eventsPub:     eventsPub,
		cfg:           cfg,
		log:           log,
	}
}

// PostDueDeals moves freshly funded deals onto the schedule, then
// publishes every scheduled deal whose time has come.
func (s *SchedulerService) PostDueDeals(ctx context.Context) {
	s.scheduleFunded(ctx)

	deals, err := s.dealRepo.GetScheduledDue(ctx, time.Now(), dueBatchSize)
	if err != nil {
		s.log.Error("list due deals", zap.Error(err))
		return
	}
	for i := range deals {
		if err := s.postOne(ctx, &deals[i]); err != nil {
			s.log.Error("post deal failed",
				zap.String("deal_id", deals[i].ID.String()),
				zap.Error(err))
		}
	}
}

func (s *SchedulerService) scheduleFunded(ctx context.Context) {
	deals, err := s.dealRepo.GetByStatus(ctx, models.DealStatusFunded, dueBatchSize)
	if err != nil {
		s.log.Error("list funded deals", zap.Error(err))
		return
	}
	for i := range deals {
		d := &deals[i]
		payload := map[string]any{}
		if d.ScheduledAt != nil {
			payload["scheduled_at"] = d.ScheduledAt.UTC().Format(time.RFC3339)
		}
		if err := s.applySystemAction(ctx, d.ID, models.DealActionSchedule, payload); err != nil {
			s.log.Error("schedule deal failed",
				zap.String("deal_id", d.ID.String()),
				zap.Error(err))
		}
	}
}

func (s *SchedulerService) postOne(ctx context.Context, d *models.Deal) error {
	kind := "post"
	if d.PlacementKind != nil {
		kind = *d.PlacementKind
	}
	result, err := s.bridge.Publish(ctx, PublishRequest{
		DealID:        d.ID.String(),
		PlacementKind: kind,
		Text:          d.CreativeText,
		MediaRef:      d.CreativeMediaRef,
		MediaKind:     d.CreativeMediaKind,
	})
	if err != nil {
		return err
	}

	// Эталонный отпечаток снимаем с текста, который реально ушёл в
	// канал, а не с черновика креатива.
	fingerprint := content.Fingerprint(result.Text)

	retention := s.cfg.VerifyRetentionHours
	if d.RetentionHours != nil && *d.RetentionHours > 0 {
		retention = *d.RetentionHours
	}
	deadline := time.Now().Add(time.Duration(retention) * time.Hour)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deals := s.dealRepo.WithTx(tx)

	locked, err := deals.GetByIDForUpdate(ctx, d.ID)
	if err != nil {
		return err
	}
	ev, err := models.ApplyDealAction(locked, models.DealActionPost, models.SystemActor(), map[string]any{
		"message_id": result.MessageID,
		"post_url":   result.PostURL,
	})
	if err != nil {
		return err
	}
	ok, err := deals.UpdateStatus(ctx, locked.ID, *ev.FromStatus, locked.Status)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if err := deals.SetPosted(ctx, locked.ID, result.MessageID, result.PostURL, fingerprint, deadline); err != nil {
		return err
	}
	if err := s.dealEventRepo.WithTx(tx).Append(ctx, ev); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.log.Info("deal posted",
		zap.String("deal_id", d.ID.String()),
		zap.String("post_url", result.PostURL),
		zap.Time("verify_deadline", deadline))

	_ = s.eventsPub.Publish(ctx, events.StreamDeals, events.Event{
		Type: events.EventDealStatusChanged,
		Payload: map[string]any{
			"deal_id": d.ID.String(),
			"status":  models.DealStatusPosted,
		},
	})
	return nil
}

// VerifyPostedDeals re-checks every posted deal whose retention window
// has closed and settles it: release when the post survived unchanged,
// refund when it was deleted or edited. Settlements that failed on a
// previous tick are driven again first.
func (s *SchedulerService) VerifyPostedDeals(ctx context.Context) {
	s.retrySettlements(ctx)

	deals, err := s.dealRepo.GetPostedPastDeadline(ctx, time.Now(), dueBatchSize)
	if err != nil {
		s.log.Error("list deals past deadline", zap.Error(err))
		return
	}
	for i := range deals {
		if err := s.verifyOne(ctx, &deals[i]); err != nil {
			s.log.Error("verify deal failed",
				zap.String("deal_id", deals[i].ID.String()),
				zap.Error(err))
		}
	}
}

// retrySettlements re-drives payouts for deals that already reached
// verified or refunded but whose escrow still holds the money. Падение
// леджера или отсутствие кошелька на прошлом тике не должно замораживать
// средства навсегда: settle идемпотентен, повторный вызов безопасен.
func (s *SchedulerService) retrySettlements(ctx context.Context) {
	rows, err := s.escrowRepo.ListUnsettled(ctx, dueBatchSize)
	if err != nil {
		s.log.Error("list unsettled escrows", zap.Error(err))
		return
	}
	for _, row := range rows {
		var err error
		switch row.DealStatus {
		case models.DealStatusVerified:
			err = s.settlement.ReleaseFunds(ctx, row.DealID)
		case models.DealStatusRefunded:
			err = s.settlement.RefundFunds(ctx, row.DealID)
		}
		if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
			s.log.Error("settlement retry failed",
				zap.String("deal_id", row.DealID.String()),
				zap.Error(err))
		}
	}
}

func (s *SchedulerService) verifyOne(ctx context.Context, d *models.Deal) error {
	intact := false
	if d.PostedURL != nil && d.ContentFingerprint != nil {
		got, exists, err := s.inspector.FetchFingerprint(ctx, *d.PostedURL)
		switch {
		case err != nil && d.VerifyDeadline != nil && time.Since(*d.VerifyDeadline) < verifyFetchGrace:
			// Транзиентная ошибка сети: не решаем судьбу сделки, попробуем
			// на следующем тике.
			return err
		case err != nil:
			// Пост недоступен дольше grace-периода, считаем его удалённым.
			s.log.Warn("post unreachable past grace, treating as removed",
				zap.String("deal_id", d.ID.String()),
				zap.Error(err))
		default:
			intact = exists && got == *d.ContentFingerprint
		}
	}

	if intact {
		if err := s.applySystemAction(ctx, d.ID, models.DealActionVerify, map[string]any{
			"fingerprint": *d.ContentFingerprint,
		}); err != nil {
			return err
		}
		return s.settlement.ReleaseFunds(ctx, d.ID)
	}

	if err := s.applySystemAction(ctx, d.ID, models.DealActionRefund, map[string]any{
		"reason": "content missing or altered",
	}); err != nil {
		return err
	}
	return s.settlement.RefundFunds(ctx, d.ID)
}

func (s *SchedulerService) applySystemAction(ctx context.Context, dealID uuid.UUID, action models.DealAction, payload map[string]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deals := s.dealRepo.WithTx(tx)
	d, err := deals.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return err
	}
	ev, err := models.ApplyDealAction(d, action, models.SystemActor(), payload)
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
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	_ = s.eventsPub.Publish(ctx, events.StreamDeals, events.Event{
		Type: events.EventDealStatusChanged,
		Payload: map[string]any{
			"deal_id": d.ID.String(),
			"action":  string(action),
			"status":  d.Status,
		},
	})
	return nil
}
