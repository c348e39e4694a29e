package repositories

import (
	"context"

	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type DealEventRepo struct {
	db DBTX
}

func NewDealEventRepo(db DBTX) *DealEventRepo {
	return &DealEventRepo{db: db}
}

func (r *DealEventRepo) WithTx(tx pgx.Tx) *DealEventRepo {
	return &DealEventRepo{db: tx}
}

func (r *DealEventRepo) Append(ctx context.Context, e *models.DealEvent) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO deal_events (deal_id, actor_user_id, kind, from_status, to_status, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, e.DealID, e.ActorUserID, e.Kind, e.FromStatus, e.ToStatus, e.Payload,
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *DealEventRepo) ListByDeal(ctx context.Context, dealID uuid.UUID, limit int) ([]models.DealEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, deal_id, actor_user_id, kind, from_status, to_status, payload, created_at
		FROM deal_events WHERE deal_id = $1 ORDER BY created_at, id LIMIT $2
	`, dealID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.DealEvent
	for rows.Next() {
		var e models.DealEvent
		if err := rows.Scan(&e.ID, &e.DealID, &e.ActorUserID, &e.Kind, &e.FromStatus, &e.ToStatus, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
