package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const dealColumns = `
	id, source, listing_id, campaign_id, advertiser_user_id, channel_owner_user_id,
	status, price_ton, creative_text, creative_media_ref, creative_media_kind,
	placement_kind, exclusive_hours, retention_hours,
	scheduled_at, posted_message_id, posted_url, content_fingerprint, verify_deadline,
	created_at, updated_at`

type DealRepo struct {
	db DBTX
}

func NewDealRepo(db DBTX) *DealRepo {
	return &DealRepo{db: db}
}

// WithTx returns a view of the repo bound to the given transaction.
func (r *DealRepo) WithTx(tx pgx.Tx) *DealRepo {
	return &DealRepo{db: tx}
}

func (r *DealRepo) Create(ctx context.Context, d *models.Deal) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO deals (
			source, listing_id, campaign_id, advertiser_user_id, channel_owner_user_id,
			status, price_ton, creative_text, creative_media_ref, creative_media_kind,
			placement_kind, exclusive_hours, retention_hours, scheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`, d.Source, d.ListingID, d.CampaignID, d.AdvertiserUserID, d.ChannelOwnerUserID,
		d.Status, d.PriceTON, d.CreativeText, d.CreativeMediaRef, d.CreativeMediaKind,
		d.PlacementKind, d.ExclusiveHours, d.RetentionHours, d.ScheduledAt,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *DealRepo) scanDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(
		&d.ID, &d.Source, &d.ListingID, &d.CampaignID, &d.AdvertiserUserID, &d.ChannelOwnerUserID,
		&d.Status, &d.PriceTON, &d.CreativeText, &d.CreativeMediaRef, &d.CreativeMediaKind,
		&d.PlacementKind, &d.ExclusiveHours, &d.RetentionHours,
		&d.ScheduledAt, &d.PostedMessageID, &d.PostedURL, &d.ContentFingerprint, &d.VerifyDeadline,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DealRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return r.scanDeal(r.db.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
}

// GetByIDForUpdate locks the deal row for the duration of the enclosing
// transaction. Concurrent transitions on the same deal serialize here.
func (r *DealRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return r.scanDeal(r.db.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1 FOR UPDATE`, id))
}

// UpdateStatus performs a compare-and-set on the status column. Returns
// false when the deal was no longer in `from` — of two concurrent
// identical transitions exactly one sees true.
func (r *DealRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deals SET status = $1, updated_at = now() WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DealRepo) UpdateScheduledAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE deals SET scheduled_at = $1, updated_at = now() WHERE id = $2`, at, id)
	return err
}

func (r *DealRepo) UpdateCreative(ctx context.Context, id uuid.UUID, text, mediaRef, mediaKind *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE deals SET creative_text = $1, creative_media_ref = $2, creative_media_kind = $3, updated_at = now()
		WHERE id = $4
	`, text, mediaRef, mediaKind, id)
	return err
}

func (r *DealRepo) SetPosted(ctx context.Context, id uuid.UUID, messageID int64, postURL, fingerprint string, verifyDeadline time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE deals SET posted_message_id = $1, posted_url = $2, content_fingerprint = $3,
		       verify_deadline = $4, updated_at = now()
		WHERE id = $5
	`, messageID, postURL, fingerprint, verifyDeadline, id)
	return err
}

type DealFilter struct {
	UserID *uuid.UUID // matches either side of the deal
	Status *string
	Limit  int
	Offset int
}

func (r *DealRepo) List(ctx context.Context, f DealFilter) ([]models.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("(advertiser_user_id = $%d OR channel_owner_user_id = $%d)", argIdx, argIdx))
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return r.queryDeals(ctx, query, args...)
}

// GetScheduledDue returns scheduled deals whose publish time has come.
func (r *DealRepo) GetScheduledDue(ctx context.Context, now time.Time, limit int) ([]models.Deal, error) {
	return r.queryDeals(ctx, `
		SELECT `+dealColumns+` FROM deals
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at LIMIT $3
	`, models.DealStatusScheduled, now, limit)
}

func (r *DealRepo) GetByStatus(ctx context.Context, status string, limit int) ([]models.Deal, error) {
	return r.queryDeals(ctx, `
		SELECT `+dealColumns+` FROM deals WHERE status = $1 ORDER BY updated_at LIMIT $2
	`, status, limit)
}

// GetPostedPastDeadline returns posted deals whose verification deadline
// has passed and which are ready for the release/refund decision.
func (r *DealRepo) GetPostedPastDeadline(ctx context.Context, now time.Time, limit int) ([]models.Deal, error) {
	return r.queryDeals(ctx, `
		SELECT `+dealColumns+` FROM deals
		WHERE status = $1 AND verify_deadline IS NOT NULL AND verify_deadline <= $2
		ORDER BY verify_deadline LIMIT $3
	`, models.DealStatusPosted, now, limit)
}

func (r *DealRepo) queryDeals(ctx context.Context, query string, args ...any) ([]models.Deal, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		var d models.Deal
		if err := rows.Scan(
			&d.ID, &d.Source, &d.ListingID, &d.CampaignID, &d.AdvertiserUserID, &d.ChannelOwnerUserID,
			&d.Status, &d.PriceTON, &d.CreativeText, &d.CreativeMediaRef, &d.CreativeMediaKind,
			&d.PlacementKind, &d.ExclusiveHours, &d.RetentionHours,
			&d.ScheduledAt, &d.PostedMessageID, &d.PostedURL, &d.ContentFingerprint, &d.VerifyDeadline,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}
