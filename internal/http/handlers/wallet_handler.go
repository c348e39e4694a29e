package handlers

import (
	"errors"

	"github.com/Cuttlas90/ads-project-sub000/internal/http/dto"
	"github.com/Cuttlas90/ads-project-sub000/internal/middleware"
	"github.com/Cuttlas90/ads-project-sub000/internal/services"
	"github.com/Cuttlas90/ads-project-sub000/internal/ton"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletService *services.WalletService
	log           *zap.Logger
}

func NewWalletHandler(walletService *services.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletService: walletService, log: log}
}

// GeneratePayload создаёт nonce для TON Proof.
// POST /me/wallet/proof-payload
func (h *WalletHandler) GeneratePayload(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	ch, err := h.walletService.IssueChallenge(c.Context(), userID)
	if err != nil {
		h.log.Error("failed to issue proof challenge", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.ProofPayloadResponse{Payload: ch.Challenge, ExpiresAt: ch.ExpiresAt})
}

// ConnectWallet подключает кошелёк после проверки TON Proof.
// POST /me/wallet/connect
func (h *WalletHandler) ConnectWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req dto.ConnectWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Address == "" || req.PublicKey == "" || req.Proof.Signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address, public_key and proof.signature are required"})
	}

	w, err := h.walletService.ConnectWallet(c.Context(), userID, services.ConnectWalletInput{
		Address:   req.Address,
		Network:   req.Network,
		PublicKey: req.PublicKey,
		Proof:     req.Proof,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChallengeNotFound),
			errors.Is(err, services.ErrChallengeExpired):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrDomainNotAllowed),
			errors.Is(err, ton.ErrDomainMismatch),
			errors.Is(err, ton.ErrBadSignature),
			errors.Is(err, ton.ErrChallengeMismatch),
			errors.Is(err, ton.ErrProofExpired),
			errors.Is(err, ton.ErrProofFromFuture):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
		default:
			h.log.Warn("wallet connect rejected", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}

// DELETE /me/wallet
func (h *WalletHandler) DisconnectWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if err := h.walletService.DisconnectWallet(c.Context(), userID); err != nil {
		h.log.Error("failed to disconnect wallet", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	w, err := h.walletService.GetActiveWallet(c.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no connected wallet"})
		}
		h.log.Error("failed to get wallet", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}
