package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/helpdesk"
	"github.com/spec-kit/desk-automation/internal/textutil"
	"github.com/spec-kit/desk-automation/internal/worker"
)

// TicketSource reads tickets and threads from the helpdesk platform.
type TicketSource interface {
	ListOpenTickets(ctx context.Context, opts helpdesk.ListOptions) ([]domain.Ticket, error)
	ListThreads(ctx context.Context, ticketID string) ([]domain.Thread, error)
	GetThread(ctx context.Context, ticketID, threadID string) (domain.Thread, error)
}

// TicketMutator issues mutations against the helpdesk platform.
type TicketMutator interface {
	CloseTicket(ctx context.Context, ticketID string) error
	AssignTicket(ctx context.Context, ticketID string, assignment helpdesk.Assignment) error
	SendReply(ctx context.Context, ticketID string, reply helpdesk.ReplyInput) error
}

// EnrichmentService attaches comparable content to candidate tickets.
// Enrichment of distinct tickets runs concurrently under a bounded pool;
// per-ticket fetch failures degrade that ticket instead of aborting the
// batch. Output order is unspecified beyond one result per input ticket.
type EnrichmentService struct {
	source TicketSource
	cfg    config.AutomationConfig
	logger *zap.Logger
}

// NewEnrichmentService constructs the service.
func NewEnrichmentService(source TicketSource, cfg config.AutomationConfig, logger *zap.Logger) *EnrichmentService {
	return &EnrichmentService{source: source, cfg: cfg, logger: logger}
}

// EnrichLastMessage builds one EnrichedTicket per input ticket, the content
// being the stripped text of the last incoming message. Tickets whose
// fetches fail keep an empty content.
func (s *EnrichmentService) EnrichLastMessage(ctx context.Context, tickets []domain.Ticket) []domain.EnrichedTicket {
	results := worker.Run(ctx, tickets, s.cfg.EnrichConcurrency, func(ctx context.Context, t domain.Ticket) (domain.EnrichedTicket, error) {
		content := s.lastIncomingContent(ctx, t.ID)
		return domain.EnrichedTicket{
			ID:          t.ID,
			Subject:     t.Subject,
			Email:       t.Email,
			CreatedTime: t.CreatedTime,
			Content:     content,
		}, nil
	})

	enriched := make([]domain.EnrichedTicket, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			// only context cancellation reaches here; skip the unstarted task
			continue
		}
		enriched = append(enriched, r.Value)
	}
	return enriched
}

// EnrichFullContent builds one EnrichedTicket per input ticket over the
// whole conversation: every non-system thread is detail-fetched (bounded),
// normalized, and the customer messages concatenated lower-cased.
func (s *EnrichmentService) EnrichFullContent(ctx context.Context, tickets []domain.Ticket) []domain.EnrichedTicket {
	results := worker.Run(ctx, tickets, s.cfg.EnrichConcurrency, func(ctx context.Context, t domain.Ticket) (domain.EnrichedTicket, error) {
		messages := s.conversation(ctx, t.ID)

		var customerParts []string
		for _, msg := range messages {
			if msg.Type == domain.MessageTypeCustomer {
				customerParts = append(customerParts, msg.Content)
			}
		}
		combined := strings.TrimSpace(strings.ToLower(strings.Join(customerParts, " ")))

		return domain.EnrichedTicket{
			ID:          t.ID,
			Subject:     t.Subject,
			Email:       t.Email,
			CreatedTime: t.CreatedTime,
			Content:     combined,
			Messages:    messages,
		}, nil
	})

	enriched := make([]domain.EnrichedTicket, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		enriched = append(enriched, r.Value)
	}
	return enriched
}

// LastIncomingMessages returns up to n detail-fetched incoming messages,
// oldest first. An unreachable thread list yields an empty slice.
func (s *EnrichmentService) LastIncomingMessages(ctx context.Context, ticketID string, n int) []domain.Thread {
	incoming, err := s.incomingThreads(ctx, ticketID)
	if err != nil {
		s.logger.Warn("could not fetch thread list", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil
	}
	if len(incoming) > n {
		incoming = incoming[len(incoming)-n:]
	}

	out := make([]domain.Thread, 0, len(incoming))
	for _, th := range incoming {
		detail, err := s.source.GetThread(ctx, ticketID, th.ID)
		if err != nil {
			s.logger.Warn("thread detail unavailable",
				zap.String("ticket_id", ticketID), zap.String("thread_id", th.ID), zap.Error(err))
			continue
		}
		if detail.Content == "" {
			detail.Content = th.Summary
		}
		detail.HasAttachment = detail.HasAttachment || th.HasAttachment
		out = append(out, detail)
	}
	return out
}

func (s *EnrichmentService) lastIncomingContent(ctx context.Context, ticketID string) string {
	incoming, err := s.incomingThreads(ctx, ticketID)
	if err != nil {
		s.logger.Warn("could not fetch thread list", zap.String("ticket_id", ticketID), zap.Error(err))
		return ""
	}
	if len(incoming) == 0 {
		return ""
	}

	last := incoming[len(incoming)-1]
	detail, err := s.source.GetThread(ctx, ticketID, last.ID)
	if err != nil {
		s.logger.Warn("thread detail unavailable",
			zap.String("ticket_id", ticketID), zap.String("thread_id", last.ID), zap.Error(err))
		return ""
	}
	content := detail.Content
	if content == "" {
		content = last.Summary
	}
	return textutil.StripHTML(content)
}

// conversation fetches every non-system thread of a ticket with an inner
// concurrency bound, degrading failed details to the thread summary.
func (s *EnrichmentService) conversation(ctx context.Context, ticketID string) []domain.ThreadMessage {
	threads, err := s.source.ListThreads(ctx, ticketID)
	if err != nil {
		s.logger.Warn("could not fetch thread list", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil
	}

	kept := threads[:0]
	for _, th := range threads {
		if strings.EqualFold(th.Channel, "SYSTEM") {
			continue
		}
		kept = append(kept, th)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].CreatedTime.Before(kept[j].CreatedTime)
	})

	results := worker.Run(ctx, kept, s.cfg.ThreadConcurrency, func(ctx context.Context, th domain.Thread) (domain.ThreadMessage, error) {
		content := ""
		detail, err := s.source.GetThread(ctx, ticketID, th.ID)
		if err != nil {
			s.logger.Warn("thread detail unavailable, falling back to summary",
				zap.String("ticket_id", ticketID), zap.String("thread_id", th.ID), zap.Error(err))
			content = strings.TrimSpace(th.Summary)
		} else {
			raw := detail.Content
			if raw == "" {
				raw = th.Summary
			}
			content = textutil.NormalizeThreadContent(raw)
		}

		msgType := domain.MessageTypeAgent
		if th.Incoming() {
			msgType = domain.MessageTypeCustomer
		}
		return domain.ThreadMessage{Type: msgType, Timestamp: th.CreatedTime, Content: content}, nil
	})

	messages := make([]domain.ThreadMessage, 0, len(results))
	for _, r := range results {
		if r.Err != nil || r.Value.Content == "" {
			continue
		}
		messages = append(messages, r.Value)
	}
	return messages
}

func (s *EnrichmentService) incomingThreads(ctx context.Context, ticketID string) ([]domain.Thread, error) {
	threads, err := s.source.ListThreads(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	incoming := make([]domain.Thread, 0, len(threads))
	for _, th := range threads {
		if th.Incoming() {
			incoming = append(incoming, th)
		}
	}
	sort.SliceStable(incoming, func(i, j int) bool {
		return incoming[i].CreatedTime.Before(incoming[j].CreatedTime)
	})
	return incoming, nil
}
