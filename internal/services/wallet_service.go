package services

import (
	"context"
	"errors"
	"time"

	"github.com/Cuttlas90/ads-project-sub000/internal/config"
	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/Cuttlas90/ads-project-sub000/internal/repositories"
	"github.com/Cuttlas90/ads-project-sub000/internal/ton"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found or not yours")
	ErrChallengeExpired  = errors.New("challenge expired or already used")
	ErrDomainNotAllowed  = errors.New("proof domain is not allowed")
)

// WalletService runs the TON Connect wallet-ownership flow: issue a
// one-time challenge, verify the signed proof, store the wallet.
type WalletService struct {
	pool          *pgxpool.Pool
	walletRepo    *repositories.WalletRepo
	userRepo      *repositories.UserRepo
	challengeRepo *repositories.ChallengeRepo
	cfg           *config.Config
	log           *zap.Logger
}

func NewWalletService(
	pool *pgxpool.Pool,
	walletRepo *repositories.WalletRepo,
	userRepo *repositories.UserRepo,
	challengeRepo *repositories.ChallengeRepo,
	cfg *config.Config,
	log *zap.Logger,
) *WalletService {
	return &WalletService{
		pool:          pool,
		walletRepo:    walletRepo,
		userRepo:      userRepo,
		challengeRepo: challengeRepo,
		cfg:           cfg,
		log:           log,
	}
}

func (s *WalletService) IssueChallenge(ctx context.Context, userID uuid.UUID) (*models.WalletProofChallenge, error) {
	return s.challengeRepo.Create(ctx, userID, s.cfg.ChallengeTTL)
}

type ConnectWalletInput struct {
	Address   string // raw или friendly
	Network   string
	PublicKey string // hex
	Proof     ton.Proof
}

// ConnectWallet verifies the signed proof and stores the wallet as the
// user's active payout destination.
//
// The challenge is consumed only after the full verification succeeds: a
// proof that fails any check leaves the challenge intact for a retry
// within its TTL, while a replay of an already-consumed challenge is
// rejected by the conditional consume.
func (s *WalletService) ConnectWallet(ctx context.Context, userID uuid.UUID, in ConnectWalletInput) (*models.UserWallet, error) {
	ch, err := s.challengeRepo.Get(ctx, in.Proof.Payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	if ch.UserID != userID {
		return nil, ErrChallengeNotFound
	}
	if ch.ConsumedAt != nil || time.Now().After(ch.ExpiresAt) {
		return nil, ErrChallengeExpired
	}
	// Ожидаемый домен берём из конфигурации, а не из самого proof,
	// иначе проверка домена в верификаторе проверяла бы строку саму
	// с собой.
	expectedDomain, ok := s.cfg.MatchedProofDomain(in.Proof.Domain.Value)
	if !ok {
		return nil, ErrDomainNotAllowed
	}

	raw, err := ton.NormalizeToRaw(in.Address)
	if err != nil {
		return nil, err
	}
	workchain, addrHash, err := ton.ParseRawAddress(raw)
	if err != nil {
		return nil, err
	}

	if err := ton.VerifyProof(in.PublicKey, workchain, addrHash, in.Proof, ch.Challenge, expectedDomain); err != nil {
		return nil, err
	}

	consumed, err := s.challengeRepo.Consume(ctx, ch.Challenge, userID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrChallengeExpired
	}

	friendly, err := ton.FormatFriendlyAddress(workchain, addrHash, false, s.cfg.TONNetwork == "testnet")
	if err != nil {
		return nil, err
	}

	w := &models.UserWallet{
		UserID:          userID,
		Address:         raw,
		AddressFriendly: friendly,
		Network:         s.cfg.TONNetwork,
		PublicKey:       in.PublicKey,
		ProofChallenge:  ch.Challenge,
		ProofSignature:  in.Proof.Signature,
		ProofTimestamp:  in.Proof.Timestamp,
		ProofDomain:     in.Proof.Domain.Value,
		Verified:        true,
		IsActive:        true,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.walletRepo.WithTx(tx).ConnectWallet(ctx, w); err != nil {
		return nil, err
	}
	if err := s.userRepo.WithTx(tx).UpdateWalletAddress(ctx, userID, &raw); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info("wallet connected",
		zap.String("user_id", userID.String()),
		zap.String("address", friendly))
	return w, nil
}

func (s *WalletService) DisconnectWallet(ctx context.Context, userID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.walletRepo.WithTx(tx).DeactivateAll(ctx, userID); err != nil {
		return err
	}
	if err := s.userRepo.WithTx(tx).UpdateWalletAddress(ctx, userID, nil); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *WalletService) GetActiveWallet(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	w, err := s.walletRepo.GetActiveWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return w, nil
}
