package handlers

import (
	"errors"

	"github.com/Cuttlas90/ads-project-sub000/internal/http/dto"
	"github.com/Cuttlas90/ads-project-sub000/internal/middleware"
	"github.com/Cuttlas90/ads-project-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewEscrowHandler(escrowService *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService, log: log}
}

// InitEscrow выдаёт адрес для депозита по одобренной сделке.
// POST /deals/:id/escrow
func (h *EscrowHandler) InitEscrow(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	e, err := h.escrowService.InitEscrow(c.Context(), dealID, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal not found"})
		case errors.Is(err, services.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "only the advertiser can fund the deal"})
		case errors.Is(err, services.ErrDealNotFundable):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "deal is not ready for funding"})
		default:
			h.log.Error("failed to init escrow", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.DepositInfoResponse{
		DealID:         dealID.String(),
		EscrowID:       e.ID.String(),
		DepositAddress: e.DepositAddressFriendly,
		AmountTON:      e.ExpectedTON,
		Network:        e.Network,
		Status:         e.Status,
		ReceivedTON:    e.ReceivedTON,
		Confirmations:  e.Confirmations,
	}})
}

// GET /deals/:id/escrow
func (h *EscrowHandler) GetEscrow(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	e, err := h.escrowService.GetByDeal(c.Context(), dealID, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "escrow not found"})
		case errors.Is(err, services.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a party to this deal"})
		default:
			h.log.Error("failed to get escrow", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
		}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: e})
}

// GET /deals/:id/escrow/events
func (h *EscrowHandler) GetEscrowEvents(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	evs, err := h.escrowService.ListEvents(c.Context(), dealID, userID, c.QueryInt("limit", 50))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "escrow not found"})
		case errors.Is(err, services.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a party to this deal"})
		default:
			h.log.Error("failed to list escrow events", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
		}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: evs})
}
