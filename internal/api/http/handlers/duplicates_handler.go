package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/desk-automation/internal/api/dto"
	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/service"
	apperrors "github.com/spec-kit/desk-automation/pkg/util/errorutil"
)

// DuplicatesHandler exposes duplicate detection and close endpoints.
type DuplicatesHandler struct {
	detector *service.DuplicateService
	closer   *service.CloseService
	cfg      config.AutomationConfig
}

// NewDuplicatesHandler constructs handler.
func NewDuplicatesHandler(detector *service.DuplicateService, closer *service.CloseService, cfg config.AutomationConfig) *DuplicatesHandler {
	return &DuplicatesHandler{detector: detector, closer: closer, cfg: cfg}
}

// CheckDuplicates GET /api/tickets/checkduplicates.
func (h *DuplicatesHandler) CheckDuplicates(c *fiber.Ctx) error {
	maxAge, err := parseMaxAge(c)
	if err != nil {
		return err
	}
	return h.runDetection(c, service.DetectInput{
		Strategy: service.StrategyConservative,
		MaxAge:   maxAge,
	}, domain.ModeFor(h.cfg.LiveMode))
}

// CheckDuplicatesByTeam GET /api/tickets/checkduplicatesbyteam.
func (h *DuplicatesHandler) CheckDuplicatesByTeam(c *fiber.Ctx) error {
	maxAge, err := parseMaxAge(c)
	if err != nil {
		return err
	}
	teamID, err := h.resolveTeam(c)
	if err != nil {
		return err
	}
	return h.runDetection(c, service.DetectInput{
		Strategy: service.StrategyConservative,
		MaxAge:   maxAge,
		TeamIDs:  []string{teamID},
	}, domain.ModeFor(h.cfg.LiveMode))
}

// TeamDuplicates GET /api/tickets/getteamduplicates. Matches over the full
// customer conversation instead of the last message only. Report-only
// regardless of the process mode: callers inspect the grouped duplicates
// and close them through an explicit closetickets request.
func (h *DuplicatesHandler) TeamDuplicates(c *fiber.Ctx) error {
	teamID, err := h.resolveTeam(c)
	if err != nil {
		return err
	}
	return h.runDetection(c, service.DetectInput{
		Strategy: service.StrategyContentOnly,
		TeamIDs:  []string{teamID},
	}, domain.ModeDryRun)
}

// CloseTickets POST /api/tickets/closetickets.
func (h *DuplicatesHandler) CloseTickets(c *fiber.Ctx) error {
	var req dto.CloseTicketsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("ticketIds must be an array of ids", nil)
	}
	ids, err := req.Normalize()
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	outcome := h.closer.CloseByIDs(c.UserContext(), ids, domain.ModeFor(h.cfg.LiveMode))
	return c.JSON(fiber.Map{
		"success": true,
		"result":  outcome,
	})
}

func (h *DuplicatesHandler) runDetection(c *fiber.Ctx, input service.DetectInput, mode domain.Mode) error {
	report, err := h.detector.Detect(c.UserContext(), input)
	if err != nil {
		return apperrors.MapError(err)
	}

	closed := h.closer.CloseGroups(c.UserContext(), report.Groups, mode)

	return c.JSON(fiber.Map{
		"success":               true,
		"mode":                  mode,
		"runId":                 report.RunID,
		"strategy":              report.Strategy,
		"ticketsChecked":        len(report.All),
		"duplicatesTimeRange":   report.TimeRange,
		"totalDuplicateTickets": report.DuplicateCount(),
		"groupedDuplicates":     dto.NewDuplicateGroupViews(report.Groups),
		"closed":                closed,
	})
}

func (h *DuplicatesHandler) resolveTeam(c *fiber.Ctx) (string, error) {
	name := c.Query("team")
	if name == "" {
		return "", apperrors.NewValidationError("team query parameter required", nil)
	}
	teamID, ok := h.cfg.TeamID(name)
	if !ok {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown team %q", name), nil)
	}
	return teamID, nil
}
