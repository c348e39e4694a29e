package handlers

import (
	"errors"

	"github.com/Cuttlas90/ads-project-sub000/internal/http/dto"
	"github.com/Cuttlas90/ads-project-sub000/internal/middleware"
	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/Cuttlas90/ads-project-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DealHandler struct {
	dealService *services.DealService
	log         *zap.Logger
}

func NewDealHandler(dealService *services.DealService, log *zap.Logger) *DealHandler {
	return &DealHandler{dealService: dealService, log: log}
}

// dealError maps domain errors onto HTTP statuses.
func dealError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal not found"})
	case errors.Is(err, services.ErrForbidden), errors.Is(err, models.ErrRoleNotAllowed):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not allowed for your role in this deal"})
	case errors.Is(err, models.ErrAlreadyTerminal):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "deal is already in a terminal state"})
	case errors.Is(err, models.ErrNoSuchTransition):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "action is not valid in the current state"})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "deal was modified concurrently, retry"})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
}

// CreateDeal открывает сделку. Для source=listing сделка начинается с
// черновика и переговоров; source=campaign сразу в accepted.
// POST /deals
func (h *DealHandler) CreateDeal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req dto.CreateDealRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	counterparty, err := uuid.Parse(req.CounterpartyUserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid counterparty_user_id"})
	}

	in := services.CreateDealInput{
		PriceTON:       req.PriceTON,
		PlacementKind:  req.PlacementKind,
		ExclusiveHours: req.ExclusiveHours,
		RetentionHours: req.RetentionHours,
	}
	if req.ListingID != nil {
		id, err := uuid.Parse(*req.ListingID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing_id"})
		}
		in.ListingID = &id
	}
	if req.CampaignID != nil {
		id, err := uuid.Parse(*req.CampaignID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid campaign_id"})
		}
		in.CampaignID = &id
	}

	var deal *models.Deal
	switch req.Source {
	case models.DealSourceListing:
		// Рекламодатель открывает сделку по листингу канала.
		in.AdvertiserUserID = userID
		in.ChannelOwnerUserID = counterparty
		deal, err = h.dealService.CreateListingDeal(c.Context(), in)
	case models.DealSourceCampaign:
		// Владелец канала принимает оффер кампании.
		in.ChannelOwnerUserID = userID
		in.AdvertiserUserID = counterparty
		deal, err = h.dealService.CreateCampaignDeal(c.Context(), in)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "source must be listing or campaign"})
	}
	if err != nil {
		return dealError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: deal})
}

// GET /deals
func (h *DealHandler) ListDeals(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var status *string
	if s := c.Query("status"); s != "" {
		status = &s
	}
	deals, err := h.dealService.ListDeals(c.Context(), userID, status, c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("failed to list deals", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deals})
}

// GET /deals/:id
func (h *DealHandler) GetDeal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealService.GetDeal(c.Context(), dealID, userID)
	if err != nil {
		return dealError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

// GET /deals/:id/events
func (h *DealHandler) GetDealEvents(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	evs, err := h.dealService.ListEvents(c.Context(), dealID, userID, c.QueryInt("limit", 50))
	if err != nil {
		return dealError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: evs})
}

// Propose записывает контроффер в переговорах.
// POST /deals/:id/propose
func (h *DealHandler) Propose(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.ProposeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	deal, err := h.dealService.Propose(c.Context(), dealID, userID, req.PriceTON, req.Note)
	if err != nil {
		return dealError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *DealHandler) applyAction(c *fiber.Ctx, action models.DealAction, payload map[string]any) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealService.Apply(c.Context(), dealID, action, &userID, payload)
	if err != nil {
		return dealError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

// POST /deals/:id/accept
func (h *DealHandler) AcceptDeal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	// Тело опционально: accept может нести финальный креатив.
	var req dto.SubmitCreativeRequest
	_ = c.BodyParser(&req)

	deal, err := h.dealService.Accept(c.Context(), dealID, userID, req.Text, req.MediaRef, req.MediaKind)
	if err != nil {
		return dealError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

// POST /deals/:id/reject
func (h *DealHandler) RejectDeal(c *fiber.Ctx) error {
	return h.applyAction(c, models.DealActionReject, nil)
}

// POST /deals/:id/creative
func (h *DealHandler) SubmitCreative(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.SubmitCreativeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	deal, err := h.dealService.SubmitCreative(c.Context(), dealID, userID, req.Text, req.MediaRef, req.MediaKind)
	if err != nil {
		return dealError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

// POST /deals/:id/creative/approve
func (h *DealHandler) ApproveCreative(c *fiber.Ctx) error {
	return h.applyAction(c, models.DealActionApproveCreative, nil)
}

// POST /deals/:id/creative/request-changes
func (h *DealHandler) RequestCreativeChanges(c *fiber.Ctx) error {
	var req dto.RequestChangesRequest
	_ = c.BodyParser(&req)

	payload := map[string]any{}
	if req.Feedback != nil {
		payload["feedback"] = *req.Feedback
	}
	return h.applyAction(c, models.DealActionRequestChanges, payload)
}
