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

type DealService struct {
	pool      *pgxpool.Pool
	dealRepo  *repositories.DealRepo
	eventRepo *repositories.DealEventRepo
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewDealService(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	eventRepo *repositories.DealEventRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DealService {
	return &DealService{
		pool:      pool,
		dealRepo:  dealRepo,
		eventRepo: eventRepo,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

type CreateDealInput struct {
	AdvertiserUserID   uuid.UUID
	ChannelOwnerUserID uuid.UUID
	ListingID          *uuid.UUID
	CampaignID         *uuid.UUID
	PriceTON           string
	PlacementKind      *string
	ExclusiveHours     *int
	RetentionHours     *int
}

func validPlacementKind(kind string) bool {
	switch kind {
	case "post", "repost", "story":
		return true
	}
	return false
}

// CreateListingDeal opens a draft deal against a channel listing. The
// advertiser then negotiates terms via propose/accept/reject.
func (s *DealService) CreateListingDeal(ctx context.Context, in CreateDealInput) (*models.Deal, error) {
	return s.createDeal(ctx, in, models.DealSourceListing, models.DealStatusDraft)
}

// CreateCampaignDeal records a channel owner's accepted campaign offer.
// Campaign terms are fixed up front, so the deal starts in accepted and
// proceeds straight to the creative cycle.
func (s *DealService) CreateCampaignDeal(ctx context.Context, in CreateDealInput) (*models.Deal, error) {
	return s.createDeal(ctx, in, models.DealSourceCampaign, models.DealStatusAccepted)
}

func (s *DealService) createDeal(ctx context.Context, in CreateDealInput, source, status string) (*models.Deal, error) {
	// Зеркало CHECK-ограничения в схеме: ровно один источник, и он
	// согласован с source.
	switch source {
	case models.DealSourceListing:
		if in.ListingID == nil || in.CampaignID != nil {
			return nil, fmt.Errorf("listing deal must reference a listing and no campaign")
		}
	case models.DealSourceCampaign:
		if in.CampaignID == nil || in.ListingID != nil {
			return nil, fmt.Errorf("campaign deal must reference a campaign and no listing")
		}
	}
	if in.AdvertiserUserID == in.ChannelOwnerUserID {
		return nil, fmt.Errorf("advertiser and channel owner must differ")
	}
	if in.PlacementKind != nil && !validPlacementKind(*in.PlacementKind) {
		return nil, fmt.Errorf("invalid placement kind %q, must be one of: post, repost, story", *in.PlacementKind)
	}
	if _, err := payout.ParseTON(in.PriceTON); err != nil {
		return nil, fmt.Errorf("invalid price: %w", err)
	}

	d := &models.Deal{
		Source:             source,
		ListingID:          in.ListingID,
		CampaignID:         in.CampaignID,
		AdvertiserUserID:   in.AdvertiserUserID,
		ChannelOwnerUserID: in.ChannelOwnerUserID,
		Status:             status,
		PriceTON:           in.PriceTON,
		PlacementKind:      in.PlacementKind,
		ExclusiveHours:     in.ExclusiveHours,
		RetentionHours:     in.RetentionHours,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.dealRepo.WithTx(tx).Create(ctx, d); err != nil {
		return nil, err
	}
	st := d.Status
	if err := s.eventRepo.WithTx(tx).Append(ctx, &models.DealEvent{
		DealID:   d.ID,
		Kind:     models.DealEventKindProposal,
		ToStatus: &st,
		Payload:  map[string]any{"source": source, "price_ton": d.PriceTON},
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info("deal created",
		zap.String("deal_id", d.ID.String()),
		zap.String("source", source),
		zap.String("status", d.Status))
	return d, nil
}

// Apply runs a single lifecycle action on a deal inside a transaction.
// The deal row is locked, the transition table consulted, and the status
// updated with a compare-and-set. Of two racing identical actions exactly
// one commits; the other gets ErrConflict.
//
// actorUserID == nil means the platform itself is acting.
func (s *DealService) Apply(ctx context.Context, dealID uuid.UUID, action models.DealAction, actorUserID *uuid.UUID, payload map[string]any) (*models.Deal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d, err := s.applyInTx(ctx, tx, dealID, action, actorUserID, payload)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publishTransition(ctx, d, action)
	return d, nil
}

// applyInTx is Apply without the transaction bookkeeping, for callers
// that compose the transition with other writes (escrow funding, posting).
func (s *DealService) applyInTx(ctx context.Context, tx pgx.Tx, dealID uuid.UUID, action models.DealAction, actorUserID *uuid.UUID, payload map[string]any) (*models.Deal, error) {
	deals := s.dealRepo.WithTx(tx)

	d, err := deals.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	actor := models.SystemActor()
	if actorUserID != nil {
		role, ok := d.RoleOf(*actorUserID)
		if !ok {
			return nil, ErrForbidden
		}
		actor = models.UserActor(*actorUserID, role)
	}

	ev, err := models.ApplyDealAction(d, action, actor, payload)
	if err != nil {
		return nil, err
	}

	ok, err := deals.UpdateStatus(ctx, d.ID, *ev.FromStatus, d.Status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	if err := s.eventRepo.WithTx(tx).Append(ctx, ev); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DealService) publishTransition(ctx context.Context, d *models.Deal, action models.DealAction) {
	_ = s.publisher.Publish(ctx, events.StreamDeals, events.Event{
		Type: events.EventDealStatusChanged,
		Payload: map[string]any{
			"deal_id": d.ID.String(),
			"action":  string(action),
			"status":  d.Status,
		},
	})
}

// Propose records a counter-offer during negotiation. A new price, when
// given, replaces the deal price.
func (s *DealService) Propose(ctx context.Context, dealID uuid.UUID, actorUserID uuid.UUID, newPriceTON *string, note *string) (*models.Deal, error) {
	payload := map[string]any{}
	if newPriceTON != nil {
		if _, err := payout.ParseTON(*newPriceTON); err != nil {
			return nil, fmt.Errorf("invalid price: %w", err)
		}
		payload["price_ton"] = *newPriceTON
	}
	if note != nil {
		payload["note"] = *note
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d, err := s.applyInTx(ctx, tx, dealID, models.DealActionPropose, &actorUserID, payload)
	if err != nil {
		return nil, err
	}
	if newPriceTON != nil {
		if _, err := tx.Exec(ctx, `UPDATE deals SET price_ton = $1, updated_at = now() WHERE id = $2`, *newPriceTON, dealID); err != nil {
			return nil, err
		}
		d.PriceTON = *newPriceTON
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publishTransition(ctx, d, models.DealActionPropose)
	return d, nil
}

// Accept closes the negotiation. When the accepting side attaches the
// final creative the deal skips the review cycle entirely and lands in
// creative_approved with that creative on record.
func (s *DealService) Accept(ctx context.Context, dealID uuid.UUID, actorUserID uuid.UUID, text, mediaRef, mediaKind *string) (*models.Deal, error) {
	payload := map[string]any{}
	if text != nil {
		payload["creative_text"] = *text
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d, err := s.applyInTx(ctx, tx, dealID, models.DealActionAccept, &actorUserID, payload)
	if err != nil {
		return nil, err
	}
	if text != nil || mediaRef != nil {
		if err := s.dealRepo.WithTx(tx).UpdateCreative(ctx, dealID, text, mediaRef, mediaKind); err != nil {
			return nil, err
		}
		d.CreativeText, d.CreativeMediaRef, d.CreativeMediaKind = text, mediaRef, mediaKind
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publishTransition(ctx, d, models.DealActionAccept)
	return d, nil
}

// SubmitCreative stores the creative payload and moves the deal to
// creative_submitted in one transaction.
func (s *DealService) SubmitCreative(ctx context.Context, dealID uuid.UUID, actorUserID uuid.UUID, text, mediaRef, mediaKind *string) (*models.Deal, error) {
	if text == nil && mediaRef == nil {
		return nil, fmt.Errorf("creative must have text or media")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	payload := map[string]any{}
	if text != nil {
		payload["creative_text"] = *text
	}
	d, err := s.applyInTx(ctx, tx, dealID, models.DealActionSubmitCreative, &actorUserID, payload)
	if err != nil {
		return nil, err
	}
	if err := s.dealRepo.WithTx(tx).UpdateCreative(ctx, dealID, text, mediaRef, mediaKind); err != nil {
		return nil, err
	}
	d.CreativeText, d.CreativeMediaRef, d.CreativeMediaKind = text, mediaRef, mediaKind

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publishTransition(ctx, d, models.DealActionSubmitCreative)
	return d, nil
}

func (s *DealService) GetDeal(ctx context.Context, dealID, requesterID uuid.UUID) (*models.Deal, error) {
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
	return d, nil
}

func (s *DealService) ListDeals(ctx context.Context, userID uuid.UUID, status *string, limit, offset int) ([]models.Deal, error) {
	return s.dealRepo.List(ctx, repositories.DealFilter{
		UserID: &userID,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *DealService) ListEvents(ctx context.Context, dealID, requesterID uuid.UUID, limit int) ([]models.DealEvent, error) {
	if _, err := s.GetDeal(ctx, dealID, requesterID); err != nil {
		return nil, err
	}
	return s.eventRepo.ListByDeal(ctx, dealID, limit)
}
