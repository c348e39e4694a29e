package ton

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/uuid"
)

const (
	// DefaultSubwalletID — стандартный subwallet id кошельков TON.
	DefaultSubwalletID uint32 = 698983191

	// subwalletSpan bounds the derived offset so ids stay clear of the
	// defaults used by ordinary wallets.
	subwalletSpan uint32 = 1 << 24
)

// DeriveSubwalletID maps a deal id into a fixed-width subwallet id range
// under the custodial hot wallet. One-way and stable: the same deal always
// funds from the same on-chain sub-account, no lookup table needed.
func DeriveSubwalletID(dealID uuid.UUID) uint32 {
	sum := sha256.Sum256(dealID[:])
	offset := binary.BigEndian.Uint32(sum[:4]) % subwalletSpan
	return DefaultSubwalletID + 1 + offset
}
