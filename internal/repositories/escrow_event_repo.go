package repositories

import (
	"context"
	"errors"

	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateTx is returned by Append when a tx_seen row with the same
// (escrow_id, tx_hash) or (escrow_id, ledger_lt) already exists.
var ErrDuplicateTx = errors.New("transaction already recorded for escrow")

type EscrowEventRepo struct {
	db DBTX
}

func NewEscrowEventRepo(db DBTX) *EscrowEventRepo {
	return &EscrowEventRepo{db: db}
}

func (r *EscrowEventRepo) WithTx(tx pgx.Tx) *EscrowEventRepo {
	return &EscrowEventRepo{db: tx}
}

func (r *EscrowEventRepo) Append(ctx context.Context, e *models.EscrowEvent) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO escrow_events (escrow_id, actor_user_id, kind, from_status, to_status, tx_hash, ledger_lt, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, e.EscrowID, e.ActorUserID, e.Kind, e.FromStatus, e.ToStatus, e.TxHash, e.LedgerLT, e.Payload,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTx
		}
		return err
	}
	return nil
}

// ListTxSeen returns the deposit observations already recorded for the
// escrow. The reconciler rebuilds its dedup set and ledger cursor from
// these rows on every run.
func (r *EscrowEventRepo) ListTxSeen(ctx context.Context, escrowID uuid.UUID) ([]models.EscrowEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, escrow_id, actor_user_id, kind, from_status, to_status, tx_hash, ledger_lt, payload, created_at
		FROM escrow_events WHERE escrow_id = $1 AND kind = $2 ORDER BY ledger_lt
	`, escrowID, models.EscrowEventKindTxSeen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.EscrowEvent
	for rows.Next() {
		var e models.EscrowEvent
		if err := rows.Scan(&e.ID, &e.EscrowID, &e.ActorUserID, &e.Kind, &e.FromStatus, &e.ToStatus, &e.TxHash, &e.LedgerLT, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *EscrowEventRepo) ListByEscrow(ctx context.Context, escrowID uuid.UUID, limit int) ([]models.EscrowEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, escrow_id, actor_user_id, kind, from_status, to_status, tx_hash, ledger_lt, payload, created_at
		FROM escrow_events WHERE escrow_id = $1 ORDER BY created_at, id LIMIT $2
	`, escrowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.EscrowEvent
	for rows.Next() {
		var e models.EscrowEvent
		if err := rows.Scan(&e.ID, &e.EscrowID, &e.ActorUserID, &e.Kind, &e.FromStatus, &e.ToStatus, &e.TxHash, &e.LedgerLT, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
