package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/desk-automation/internal/api/dto"
	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/helpdesk"
	"github.com/spec-kit/desk-automation/internal/service"
	apperrors "github.com/spec-kit/desk-automation/pkg/util/errorutil"
)

// TicketsHandler exposes listing and AI automation batch endpoints.
type TicketsHandler struct {
	source    service.TicketSource
	autoReply *service.AutoReplyService
	routing   *service.RoutingService
	cfg       config.AutomationConfig
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(source service.TicketSource, autoReply *service.AutoReplyService, routing *service.RoutingService, cfg config.AutomationConfig) *TicketsHandler {
	return &TicketsHandler{source: source, autoReply: autoReply, routing: routing, cfg: cfg}
}

// List GET /api/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	count, err := parseCount(c, h.cfg.DefaultTicketLimit)
	if err != nil {
		return err
	}

	tickets, err := h.source.ListOpenTickets(c.UserContext(), helpdesk.ListOptions{Limit: count})
	if err != nil {
		return apperrors.MapError(err)
	}

	items := make([]dto.TicketSummary, 0, len(tickets))
	for _, t := range tickets {
		items = append(items, dto.NewTicketSummary(t))
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(items),
		"tickets": items,
	})
}

// AutoReply GET /api/tickets/autoreply.
func (h *TicketsHandler) AutoReply(c *fiber.Ctx) error {
	count, err := parseCount(c, h.cfg.DefaultTicketLimit)
	if err != nil {
		return err
	}

	outcomes, err := h.autoReply.ProcessOpenTickets(c.UserContext(), count)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"mode":      domain.ModeFor(h.cfg.LiveMode),
		"processed": len(outcomes),
		"results":   outcomes,
	})
}

// AutoAssign GET /api/tickets/autoassign.
func (h *TicketsHandler) AutoAssign(c *fiber.Ctx) error {
	count, err := parseCount(c, h.cfg.DefaultTicketLimit)
	if err != nil {
		return err
	}

	outcomes, err := h.routing.AutoAssign(c.UserContext(), count)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"mode":      domain.ModeFor(h.cfg.LiveMode),
		"processed": len(outcomes),
		"results":   outcomes,
	})
}

// parseCount reads the optional count query parameter. Absent means the
// configured default; garbage is a validation failure, not a silent default.
func parseCount(c *fiber.Ctx, fallback int) (int, error) {
	raw := c.Query("count")
	if raw == "" {
		return fallback, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count <= 0 {
		return 0, apperrors.NewValidationError("count must be a positive integer", nil)
	}
	return count, nil
}

// parseMaxAge reads the required time query parameter, in seconds.
func parseMaxAge(c *fiber.Ctx) (time.Duration, error) {
	raw := c.Query("time")
	if raw == "" {
		return 0, apperrors.NewValidationError("time query parameter required", nil)
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, apperrors.NewValidationError("time must be a positive number of seconds", nil)
	}
	return time.Duration(seconds) * time.Second, nil
}
