package dto

import "time"

type AuthResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type ProofPayloadResponse struct {
	Payload   string    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
}

type DepositInfoResponse struct {
	DealID          string `json:"deal_id"`
	EscrowID        string `json:"escrow_id"`
	DepositAddress  string `json:"deposit_address"` // friendly, non-bounceable
	AmountTON       string `json:"amount_ton"`
	Network         string `json:"network"`
	Status          string `json:"status"`
	ReceivedTON     string `json:"received_ton"`
	Confirmations   int    `json:"confirmations"`
}
