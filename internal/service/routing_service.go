package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/ai"
	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/events"
	"github.com/spec-kit/desk-automation/internal/helpdesk"
)

const routingAck = "Thank you for reaching out. We have forwarded your message to the appropriate department.\n\nRegards,\nSupport"

// RouteOutcome is the per-ticket result of an auto-assign batch.
type RouteOutcome struct {
	TicketID   string `json:"ticketId"`
	Subject    string `json:"subject"`
	Team       string `json:"team,omitempty"`
	TeamID     string `json:"teamId,omitempty"`
	AssigneeID string `json:"assigneeId,omitempty"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RoutingService assigns unassigned tickets to teams from AI-inferred
// subject matter.
type RoutingService struct {
	source     TicketSource
	mutator    TicketMutator
	enricher   *EnrichmentService
	analyzer   ai.Analyzer
	dispatcher events.Dispatcher
	cfg        config.AutomationConfig
	logger     *zap.Logger

	csRotation atomic.Uint64
}

// RoutingDependencies bundles collaborators for the service.
type RoutingDependencies struct {
	Source     TicketSource
	Mutator    TicketMutator
	Enricher   *EnrichmentService
	Analyzer   ai.Analyzer
	Dispatcher events.Dispatcher
}

// NewRoutingService constructs the service.
func NewRoutingService(deps RoutingDependencies, cfg config.AutomationConfig, logger *zap.Logger) *RoutingService {
	return &RoutingService{
		source:     deps.Source,
		mutator:    deps.Mutator,
		enricher:   deps.Enricher,
		analyzer:   deps.Analyzer,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// AutoAssign classifies up to count unassigned open tickets and routes
// each to its team. A label outside the configured team set means no
// routing for that ticket. In dry-run mode routing decisions are reported
// without upstream mutations.
func (s *RoutingService) AutoAssign(ctx context.Context, count int) ([]RouteOutcome, error) {
	if count <= 0 {
		count = s.cfg.DefaultTicketLimit
	}
	tickets, err := s.source.ListOpenTickets(ctx, helpdesk.ListOptions{Limit: count})
	if err != nil {
		return nil, err
	}

	teams := s.teamLabels()
	mode := domain.ModeFor(s.cfg.LiveMode)

	outcomes := make([]RouteOutcome, 0, len(tickets))
	for _, ticket := range tickets {
		if !ticket.Unassigned() {
			continue
		}
		outcomes = append(outcomes, s.routeTicket(ctx, ticket, teams, mode))
	}
	return outcomes, nil
}

func (s *RoutingService) routeTicket(ctx context.Context, ticket domain.Ticket, teams []string, mode domain.Mode) RouteOutcome {
	outcome := RouteOutcome{TicketID: ticket.ID, Subject: ticket.Subject}

	message := s.enricher.LastIncomingMessages(ctx, ticket.ID, 1)
	body := ""
	if len(message) > 0 {
		body = message[0].Content
	}

	label, err := s.analyzer.ClassifyDepartment(ctx, ticket.Subject, body, teams)
	if err != nil {
		s.logger.Error("ai classification failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		outcome.Decision = "Error"
		outcome.Error = err.Error()
		return outcome
	}

	assignment, team, ok := s.resolveAssignment(label)
	if !ok {
		outcome.Decision = string(domain.DecisionSkip)
		outcome.Reason = "Unclear classification"
		return outcome
	}
	outcome.Team = team
	outcome.TeamID = assignment.TeamID
	outcome.AssigneeID = assignment.AssigneeID

	if !mode.Live() {
		outcome.Decision = "Test Only"
		return outcome
	}

	if err := s.mutator.AssignTicket(ctx, ticket.ID, assignment); err != nil {
		s.logger.Error("assignment failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		outcome.Decision = "Error"
		outcome.Error = err.Error()
		return outcome
	}
	if err := s.mutator.SendReply(ctx, ticket.ID, helpdesk.ReplyInput{Content: routingAck, To: ticket.Email}); err != nil {
		// routed but unacknowledged; report the assignment as done
		s.logger.Warn("routing ack failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	outcome.Decision = "Assigned"
	s.publishRouted(ctx, outcome, mode)
	return outcome
}

// resolveAssignment maps an AI team label onto an upstream assignment.
// Customer-service tickets rotate across the configured agents; hotspot
// tickets pin to the dedicated agent; other teams get a team-only PATCH.
func (s *RoutingService) resolveAssignment(label string) (helpdesk.Assignment, string, bool) {
	if label == domain.DepartmentUnknown {
		return helpdesk.Assignment{}, "", false
	}
	team := strings.ToLower(label)

	switch team {
	case "customer service":
		if s.cfg.CSTeamID == "" || len(s.cfg.CSAgentIDs) == 0 {
			return helpdesk.Assignment{}, "", false
		}
		agent := s.cfg.CSAgentIDs[int(s.csRotation.Add(1)-1)%len(s.cfg.CSAgentIDs)]
		return helpdesk.Assignment{TeamID: s.cfg.CSTeamID, AssigneeID: agent}, team, true
	case "hotspot and fibre":
		if s.cfg.HotspotTeamID == "" {
			return helpdesk.Assignment{}, "", false
		}
		return helpdesk.Assignment{TeamID: s.cfg.HotspotTeamID, AssigneeID: s.cfg.HotspotAgentID}, team, true
	default:
		if id, ok := s.cfg.TeamID(team); ok {
			return helpdesk.Assignment{TeamID: id}, team, true
		}
		return helpdesk.Assignment{}, "", false
	}
}

func (s *RoutingService) teamLabels() []string {
	labels := make([]string, 0, len(s.cfg.TeamIDs)+2)
	for name := range s.cfg.TeamIDs {
		labels = append(labels, name)
	}
	if s.cfg.CSTeamID != "" {
		labels = append(labels, "customer service")
	}
	if s.cfg.HotspotTeamID != "" {
		labels = append(labels, "hotspot and fibre")
	}
	return labels
}

func (s *RoutingService) publishRouted(ctx context.Context, outcome RouteOutcome, mode domain.Mode) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketRouted,
		RunID:     uuid.NewString(),
		Mode:      mode,
		Timestamp: time.Now(),
		Payload: events.TicketRoutedPayload{
			TicketID:   outcome.TicketID,
			Team:       outcome.Team,
			TeamID:     outcome.TeamID,
			AssigneeID: outcome.AssigneeID,
		},
	})
}
