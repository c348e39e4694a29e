package repositories

import (
	"context"

	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const escrowColumns = `
	id, deal_id, status, deposit_address, deposit_address_friendly, subwallet_id, network,
	expected_ton, received_ton, deposit_tx_hash, deposit_seen_seqno, confirmations, fee_percent,
	release_amount_ton, release_tx_hash, released_at,
	refund_amount_ton, refund_tx_hash, refunded_at,
	created_at, updated_at`

type EscrowRepo struct {
	db DBTX
}

func NewEscrowRepo(db DBTX) *EscrowRepo {
	return &EscrowRepo{db: db}
}

func (r *EscrowRepo) WithTx(tx pgx.Tx) *EscrowRepo {
	return &EscrowRepo{db: tx}
}

func (r *EscrowRepo) Create(ctx context.Context, e *models.Escrow) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO escrows (
			deal_id, status, deposit_address, deposit_address_friendly, subwallet_id,
			network, expected_ton, received_ton, fee_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, e.DealID, e.Status, e.DepositAddress, e.DepositAddressFriendly, e.SubwalletID,
		e.Network, e.ExpectedTON, e.ReceivedTON, e.FeePercent,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (r *EscrowRepo) scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(
		&e.ID, &e.DealID, &e.Status, &e.DepositAddress, &e.DepositAddressFriendly, &e.SubwalletID, &e.Network,
		&e.ExpectedTON, &e.ReceivedTON, &e.DepositTxHash, &e.DepositSeenSeqno, &e.Confirmations, &e.FeePercent,
		&e.ReleaseAmountTON, &e.ReleaseTxHash, &e.ReleasedAt,
		&e.RefundAmountTON, &e.RefundTxHash, &e.RefundedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return r.scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
}

func (r *EscrowRepo) GetByDealID(ctx context.Context, dealID uuid.UUID) (*models.Escrow, error) {
	return r.scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE deal_id = $1`, dealID))
}

// GetByIDForUpdate locks the escrow row. The reconciler and the
// settlement path both go through here so a scan and a payout never
// interleave on the same escrow.
func (r *EscrowRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return r.scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, id))
}

func (r *EscrowRepo) GetByDealIDForUpdate(ctx context.Context, dealID uuid.UUID) (*models.Escrow, error) {
	return r.scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE deal_id = $1 FOR UPDATE`, dealID))
}

// ListScanIDs returns ids of escrows the reconciler should look at:
// those still waiting on deposits or confirmations.
func (r *EscrowRepo) ListScanIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM escrows WHERE status IN ($1, $2) ORDER BY updated_at LIMIT $3
	`, models.EscrowStatusAwaitingDeposit, models.EscrowStatusDepositDetected, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UnsettledDeal pairs a funded-but-unpaid escrow with its deal's state.
type UnsettledDeal struct {
	DealID     uuid.UUID
	DealStatus string
}

// ListUnsettled returns funded escrows with no payout recorded whose
// deal already reached a settling state. These are payouts that failed
// mid-flight and must be driven again.
func (r *EscrowRepo) ListUnsettled(ctx context.Context, limit int) ([]UnsettledDeal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT e.deal_id, d.status
		FROM escrows e
		JOIN deals d ON d.id = e.deal_id
		WHERE e.status = $1
		  AND e.release_amount_ton IS NULL AND e.refund_amount_ton IS NULL
		  AND d.status IN ($2, $3)
		ORDER BY e.updated_at
		LIMIT $4
	`, models.EscrowStatusFunded, models.DealStatusVerified, models.DealStatusRefunded, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnsettledDeal
	for rows.Next() {
		var u UnsettledDeal
		if err := rows.Scan(&u.DealID, &u.DealStatus); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateStatus is the escrow compare-and-set, same shape as the deal one.
func (r *EscrowRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE escrows SET status = $1, updated_at = now() WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordDeposit stores the accumulated received amount, the hash of the
// first qualifying transaction and the masterchain seqno it was first
// seen at. received_ton only ever grows; hash and seqno are set once.
func (r *EscrowRepo) RecordDeposit(ctx context.Context, id uuid.UUID, receivedTON string, txHash *string, seenSeqno *int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE escrows SET received_ton = $1,
		       deposit_tx_hash = COALESCE(deposit_tx_hash, $2),
		       deposit_seen_seqno = COALESCE(deposit_seen_seqno, $3),
		       updated_at = now()
		WHERE id = $4
	`, receivedTON, txHash, seenSeqno, id)
	return err
}

func (r *EscrowRepo) UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE escrows SET confirmations = $1, updated_at = now() WHERE id = $2
	`, confirmations, id)
	return err
}

// MarkReleased records the outgoing payout exactly once. Returns false
// when a release or refund was already recorded. txHash is nil for
// zero-amount payouts where no transfer was sent.
func (r *EscrowRepo) MarkReleased(ctx context.Context, id uuid.UUID, amountTON string, txHash *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE escrows SET release_amount_ton = $1, release_tx_hash = $2,
		       released_at = now(), updated_at = now()
		WHERE id = $3 AND release_amount_ton IS NULL AND refund_amount_ton IS NULL
	`, amountTON, txHash, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) MarkRefunded(ctx context.Context, id uuid.UUID, amountTON string, txHash *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE escrows SET refund_amount_ton = $1, refund_tx_hash = $2,
		       refunded_at = now(), updated_at = now()
		WHERE id = $3 AND release_amount_ton IS NULL AND refund_amount_ton IS NULL
	`, amountTON, txHash, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
