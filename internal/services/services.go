package services

import (
	"context"
	"errors"

	"github.com/Cuttlas90/ads-project-sub000/internal/ton"
	"github.com/google/uuid"
)

// Shared service-level errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflicting concurrent update")
	ErrAlreadyProcessed = errors.New("payout already processed")
)

// LedgerClient is the slice of the TON client the settlement side needs.
// Satisfied by *ton.Client; tests plug in fakes.
type LedgerClient interface {
	FindIncomingTx(ctx context.Context, addr string, minAmountNano int64, sinceLT uint64) (*ton.LedgerTx, error)
	CurrentSeqno(ctx context.Context) (uint32, error)
	SubwalletAddress(subwalletID uint32) (raw, friendly string, err error)
	SubmitTransfer(ctx context.Context, subwalletID uint32, toAddress string, amountNano int64, comment string) (string, error)
}

// Settler is the settlement slice the scheduler drives. Both operations
/// are idempotent: a repeat call answers ErrAlreadyProcessed.
type Settler interface {
	ReleaseFunds(ctx context.Context, dealID uuid.UUID) error
	RefundFunds(ctx context.Context, dealID uuid.UUID) error
}

// ContentInspector fetches a published post and fingerprints it.
type ContentInspector interface {
	FetchFingerprint(ctx context.Context, postURL string) (fingerprint string, exists bool, err error)
}

// Publisher posts creatives through the bot bridge.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
	SendNotification(ctx context.Context, telegramUserID int64, text string) error
}
