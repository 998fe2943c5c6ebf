package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/ai"
	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/events"
	"github.com/spec-kit/desk-automation/internal/helpdesk"
)

// ReplyOutcome is the per-ticket result of an auto-reply batch.
type ReplyOutcome struct {
	TicketID  string              `json:"ticketId"`
	Subject   string              `json:"subject"`
	Email     string              `json:"email"`
	Status    domain.TicketStatus `json:"status"`
	Decision  string              `json:"decision"`
	Sentiment domain.Sentiment    `json:"sentiment"`
	Reply     string              `json:"reply"`
	Reason    string              `json:"reason,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// AutoReplyService replies to and closes simple tickets using AI analysis.
type AutoReplyService struct {
	source     TicketSource
	mutator    TicketMutator
	enricher   *EnrichmentService
	analyzer   ai.Analyzer
	dispatcher events.Dispatcher
	cfg        config.AutomationConfig
	logger     *zap.Logger
}

// AutoReplyDependencies bundles collaborators for the service.
type AutoReplyDependencies struct {
	Source     TicketSource
	Mutator    TicketMutator
	Enricher   *EnrichmentService
	Analyzer   ai.Analyzer
	Dispatcher events.Dispatcher
}

// NewAutoReplyService constructs the service.
func NewAutoReplyService(deps AutoReplyDependencies, cfg config.AutomationConfig, logger *zap.Logger) *AutoReplyService {
	return &AutoReplyService{
		source:     deps.Source,
		mutator:    deps.Mutator,
		enricher:   deps.Enricher,
		analyzer:   deps.Analyzer,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// ProcessOpenTickets analyzes up to count open tickets and, for those the
// AI decides to answer, sends a reply and closes them (live mode only).
// Every per-ticket failure is recorded in its outcome, never aborting the
// batch; only the initial listing is fatal.
func (s *AutoReplyService) ProcessOpenTickets(ctx context.Context, count int) ([]ReplyOutcome, error) {
	if count <= 0 {
		count = s.cfg.DefaultTicketLimit
	}
	tickets, err := s.source.ListOpenTickets(ctx, helpdesk.ListOptions{Limit: count, Include: "departments,contacts,team,assignee"})
	if err != nil {
		return nil, err
	}

	mode := domain.ModeFor(s.cfg.LiveMode)
	outcomes := make([]ReplyOutcome, 0, len(tickets))
	for _, ticket := range tickets {
		outcomes = append(outcomes, s.processTicket(ctx, ticket, mode))
	}
	return outcomes, nil
}

func (s *AutoReplyService) processTicket(ctx context.Context, ticket domain.Ticket, mode domain.Mode) ReplyOutcome {
	outcome := ReplyOutcome{
		TicketID: ticket.ID,
		Subject:  ticket.Subject,
		Email:    ticket.Email,
		Status:   ticket.Status,
	}

	threads := s.enricher.LastIncomingMessages(ctx, ticket.ID, 2)
	for _, th := range threads {
		if th.HasAttachment {
			outcome.Decision = string(domain.DecisionSkip)
			outcome.Sentiment = domain.SentimentUnknown
			outcome.Reason = "Attachment present"
			return outcome
		}
	}

	messages := make([]domain.ThreadMessage, 0, len(threads))
	for _, th := range threads {
		messages = append(messages, domain.ThreadMessage{
			Type:      domain.MessageTypeCustomer,
			Timestamp: th.CreatedTime,
			Content:   th.Content,
		})
	}

	analysis, err := s.analyzer.AnalyzeMessages(ctx, messages)
	if err != nil {
		s.logger.Error("ai analysis failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		outcome.Decision = "Error"
		outcome.Sentiment = domain.SentimentUnknown
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Sentiment = analysis.Sentiment

	if analysis.Decision != domain.DecisionRespond {
		outcome.Decision = string(domain.DecisionSkip)
		outcome.Reason = "AI decided to Skip"
		return outcome
	}

	if !mode.Live() {
		outcome.Decision = "Test Only"
		outcome.Reply = analysis.Reply
		return outcome
	}

	if err := s.mutator.SendReply(ctx, ticket.ID, helpdesk.ReplyInput{Content: analysis.Reply, To: ticket.Email}); err != nil {
		s.logger.Error("send reply failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		outcome.Decision = "Error"
		outcome.Reply = analysis.Reply
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = domain.TicketStatusClosed
	outcome.Decision = "Replied"
	outcome.Reply = analysis.Reply
	s.publishReplied(ctx, ticket.ID, analysis.Sentiment, mode)
	return outcome
}

func (s *AutoReplyService) publishReplied(ctx context.Context, ticketID string, sentiment domain.Sentiment, mode domain.Mode) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketReplied,
		RunID:     uuid.NewString(),
		Mode:      mode,
		Timestamp: time.Now(),
		Payload:   events.TicketRepliedPayload{TicketID: ticketID, Sentiment: sentiment},
	})
}
