package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ChallengeRepo struct {
	db DBTX
}

func NewChallengeRepo(db DBTX) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

func (r *ChallengeRepo) WithTx(tx pgx.Tx) *ChallengeRepo {
	return &ChallengeRepo{db: tx}
}

func generateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Create issues a fresh random challenge for the user with the given TTL.
func (r *ChallengeRepo) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*models.WalletProofChallenge, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, err
	}
	c := &models.WalletProofChallenge{
		Challenge: nonce,
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO wallet_proof_challenges (challenge, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, c.Challenge, c.UserID, c.ExpiresAt).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChallengeRepo) Get(ctx context.Context, challenge string) (*models.WalletProofChallenge, error) {
	var c models.WalletProofChallenge
	err := r.db.QueryRow(ctx, `
		SELECT id, challenge, user_id, created_at, expires_at, consumed_at
		FROM wallet_proof_challenges WHERE challenge = $1
	`, challenge).Scan(&c.ID, &c.Challenge, &c.UserID, &c.CreatedAt, &c.ExpiresAt, &c.ConsumedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Consume marks the challenge used. Returns false when it was already
// consumed or has expired, so a replayed proof loses the race.
func (r *ChallengeRepo) Consume(ctx context.Context, challenge string, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE wallet_proof_challenges SET consumed_at = now()
		WHERE challenge = $1 AND user_id = $2 AND consumed_at IS NULL AND expires_at > now()
	`, challenge, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteExpired clears stale rows. Called from the worker on a timer.
func (r *ChallengeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM wallet_proof_challenges WHERE expires_at < now() - interval '1 hour'
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
