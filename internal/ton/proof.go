package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TonProofPrefix — фиксированный префикс для TON Proof по спецификации TON Connect.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix = "ton-proof-item-v2/"

	// TonConnectPrefix — префикс перед SHA256 хешем сообщения.
	TonConnectPrefix = "ton-connect"

	// MaxProofAge — максимальный возраст proof (защита от replay).
	MaxProofAge = 5 * time.Minute

	// ClockSkewTolerance — насколько timestamp может быть из будущего.
	ClockSkewTolerance = time.Minute
)

// Proof verification failures. The challenge row stays unconsumed on any
// of these, so the client can retry until the challenge expires.
var (
	ErrChallengeMismatch = errors.New("proof challenge does not match the issued one")
	ErrDomainMismatch    = errors.New("proof domain does not match the verification domain")
	ErrDomainLength      = errors.New("declared domain length does not match the domain value")
	ErrProofExpired      = errors.New("proof timestamp is too old")
	ErrProofFromFuture   = errors.New("proof timestamp is in the future")
	ErrBadSignature      = errors.New("proof signature verification failed")
)

// Proof содержит подписанные данные из TON Connect ton_proof.
type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`   // выданный challenge
	Signature string      `json:"signature"` // base64
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// VerifyProof проверяет TON Proof подпись против выданного challenge.
//
// Алгоритм (по спецификации TON Connect):
//
//	message = "ton-proof-item-v2/" ++ workchain(4 bytes BE) ++ address_hash(32 bytes)
//	          ++ domain_len(4 bytes LE) ++ domain ++ timestamp(8 bytes LE) ++ payload
//	digest  = sha256(0xffff ++ "ton-connect" ++ sha256(message))
//	ed25519.Verify(public_key, digest, signature)
//
// expectedChallenge is the challenge string the server issued, domain is
// the server's configured verification domain.
func VerifyProof(pubKeyHex string, workchain int32, addrHash []byte, proof Proof, expectedChallenge, domain string) error {
	if proof.Payload != expectedChallenge {
		return ErrChallengeMismatch
	}

	if !strings.EqualFold(proof.Domain.Value, domain) {
		return fmt.Errorf("%w: got %q, want %q", ErrDomainMismatch, proof.Domain.Value, domain)
	}
	if proof.Domain.LengthBytes != len(proof.Domain.Value) {
		return fmt.Errorf("%w: declared %d, actual %d", ErrDomainLength, proof.Domain.LengthBytes, len(proof.Domain.Value))
	}

	proofTime := time.Unix(proof.Timestamp, 0)
	if time.Since(proofTime) > MaxProofAge {
		return fmt.Errorf("%w: %s old", ErrProofExpired, time.Since(proofTime).Round(time.Second))
	}
	if proofTime.After(time.Now().Add(ClockSkewTolerance)) {
		return ErrProofFromFuture
	}

	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pubKey))
	}

	sig, err := base64.StdEncoding.DecodeString(proof.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature base64: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature size: %d", len(sig))
	}

	if len(addrHash) != 32 {
		return fmt.Errorf("address hash must be 32 bytes, got %d", len(addrHash))
	}

	digest := ProofDigest(workchain, addrHash, proof.Domain.Value, proof.Timestamp, proof.Payload)
	if !ed25519.Verify(pubKey, digest, sig) {
		return ErrBadSignature
	}

	return nil
}

// ProofDigest computes the digest the wallet signs. Exported so tests and
// tooling can produce valid proofs.
func ProofDigest(workchain int32, addrHash []byte, domain string, timestamp int64, payload string) []byte {
	message := make([]byte, 0, len(TonProofPrefix)+4+32+4+len(domain)+8+len(payload))
	message = append(message, TonProofPrefix...)

	wcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(wcBytes, uint32(workchain))
	message = append(message, wcBytes...)

	message = append(message, addrHash...)

	domainLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(domainLen, uint32(len(domain)))
	message = append(message, domainLen...)
	message = append(message, domain...)

	tsBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBytes, uint64(timestamp))
	message = append(message, tsBytes...)

	message = append(message, payload...)

	msgHash := sha256.Sum256(message)

	signatureMessage := make([]byte, 0, 2+len(TonConnectPrefix)+32)
	signatureMessage = append(signatureMessage, 0xff, 0xff)
	signatureMessage = append(signatureMessage, TonConnectPrefix...)
	signatureMessage = append(signatureMessage, msgHash[:]...)

	digest := sha256.Sum256(signatureMessage)
	return digest[:]
}
