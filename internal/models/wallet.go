package models

import (
	"time"

	"github.com/google/uuid"
)

type UserWallet struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Address         string     `json:"address"`          // raw: 0:<hex>
	AddressFriendly string     `json:"address_friendly"` // EQ.../UQ...
	Network         string     `json:"network"`          // mainnet/testnet
	PublicKey       string     `json:"public_key"`       // hex
	ProofChallenge  string     `json:"-"`
	ProofSignature  string     `json:"-"`
	ProofTimestamp  int64      `json:"-"`
	ProofDomain     string     `json:"-"`
	Verified        bool       `json:"verified"`
	ConnectedAt     time.Time  `json:"connected_at"`
	DisconnectedAt  *time.Time `json:"disconnected_at,omitempty"`
	IsActive        bool       `json:"is_active"`
}

// WalletProofChallenge — одноразовый nonce для TON Proof. Выдаётся одному
// пользователю, истекает через TTL, помечается использованным ровно один
// раз — только после полной успешной проверки подписи.
type WalletProofChallenge struct {
	ID         uuid.UUID  `json:"id"`
	Challenge  string     `json:"challenge"`
	UserID     uuid.UUID  `json:"-"`
	CreatedAt  time.Time  `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"-"`
}
