package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-triage/internal/api/dto"
	"github.com/spec-kit/complaint-triage/internal/domain"
	"github.com/spec-kit/complaint-triage/internal/repository"
	"github.com/spec-kit/complaint-triage/internal/service"
	apperrors "github.com/spec-kit/complaint-triage/pkg/util/errorutil"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// TicketsHandler serves intake and agent ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Trim()
	if err := dto.Validate(req); err != nil {
		return err
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), req.ToDomain())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.CreateTicketResponse{
		ID:      ticket.ID,
		Status:  ticket.Status,
		Message: "Ticket received and queued for analysis",
	})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	tickets, total, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketListResponse(tickets, total))
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), c.Params("id"), req.FinalResponse, req.AgentNotes)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// ResolveTicket POST /api/tickets/:id/resolve.
func (h *TicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Trim()
	if err := dto.Validate(req); err != nil {
		return err
	}

	ticket, err := h.service.ResolveTicket(c.UserContext(), c.Params("id"), req.ToDomain())
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// DeleteTicket DELETE /api/tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.service.DeleteTicket(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Stats GET /api/tickets/stats/summary.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.NewStatsResponse(stats))
}

// History GET /api/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	id := c.Params("id")
	entries, err := h.service.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewHistoryResponse(id, entries))
}

func parseTicketFilter(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{Limit: defaultListLimit}
	invalid := map[string]any{}

	if raw := c.Query("status"); raw != "" {
		if status, err := domain.ParseTicketStatus(raw); err != nil {
			invalid["status"] = err.Error()
		} else {
			filter.Status = &status
		}
	}
	if raw := c.Query("urgency"); raw != "" {
		if urgency, err := domain.ParseTicketUrgency(raw); err != nil {
			invalid["urgency"] = err.Error()
		} else {
			filter.Urgency = &urgency
		}
	}
	if raw := c.Query("category"); raw != "" {
		if category, err := domain.ParseTicketCategory(raw); err != nil {
			invalid["category"] = err.Error()
		} else {
			filter.Category = &category
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			invalid["limit"] = "must be an integer between 1 and " + strconv.Itoa(maxListLimit)
		} else {
			filter.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			invalid["offset"] = "must be a non-negative integer"
		} else {
			filter.Offset = offset
		}
	}

	if len(invalid) > 0 {
		return filter, apperrors.NewValidationError("invalid query parameters", invalid)
	}
	return filter, nil
}
