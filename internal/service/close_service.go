package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/events"
	"github.com/spec-kit/desk-automation/internal/worker"
)

// CloseFailure records one failed close action.
type CloseFailure struct {
	TicketID string `json:"ticketId"`
	Error    string `json:"error"`
}

// CloseOutcome reports a close batch. Successes and failures sit side by
// side; a multi-ticket operation is never all-or-nothing.
type CloseOutcome struct {
	Mode      domain.Mode    `json:"mode"`
	Total     int            `json:"total"`
	Previewed []string       `json:"previewed,omitempty"`
	Closed    []string       `json:"closed,omitempty"`
	Failed    []CloseFailure `json:"failed,omitempty"`
}

// CloseService executes close actions for duplicate decisions.
type CloseService struct {
	mutator    TicketMutator
	dispatcher events.Dispatcher
	cfg        config.AutomationConfig
	logger     *zap.Logger
}

// NewCloseService constructs the service.
func NewCloseService(mutator TicketMutator, dispatcher events.Dispatcher, cfg config.AutomationConfig, logger *zap.Logger) *CloseService {
	return &CloseService{mutator: mutator, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// CloseGroups closes every non-original member of every group. In dry-run
// mode no upstream call is made and the ids are returned as a preview.
func (s *CloseService) CloseGroups(ctx context.Context, groups []domain.DuplicateGroup, mode domain.Mode) *CloseOutcome {
	ids := make([]string, 0)
	for _, g := range groups {
		ids = append(ids, g.DuplicateIDs()...)
	}
	return s.close(ctx, ids, mode)
}

// CloseByIDs closes exactly the caller-supplied tickets. Input shape
// validation happens at the transport boundary before any upstream call.
func (s *CloseService) CloseByIDs(ctx context.Context, ids []string, mode domain.Mode) *CloseOutcome {
	return s.close(ctx, ids, mode)
}

func (s *CloseService) close(ctx context.Context, ids []string, mode domain.Mode) *CloseOutcome {
	outcome := &CloseOutcome{Mode: mode, Total: len(ids)}
	if len(ids) == 0 {
		return outcome
	}

	if !mode.Live() {
		outcome.Previewed = ids
		s.logger.Info("dry-run: tickets would be closed", zap.Int("count", len(ids)))
		return outcome
	}

	results := worker.Run(ctx, ids, s.cfg.CloseConcurrency, func(ctx context.Context, id string) (string, error) {
		if err := s.mutator.CloseTicket(ctx, id); err != nil {
			return id, err
		}
		return id, nil
	})

	for i, r := range results {
		if r.Err != nil {
			s.logger.Error("failed to close ticket", zap.String("ticket_id", ids[i]), zap.Error(r.Err))
			outcome.Failed = append(outcome.Failed, CloseFailure{TicketID: ids[i], Error: r.Err.Error()})
			continue
		}
		outcome.Closed = append(outcome.Closed, r.Value)
	}

	s.publishClosed(ctx, outcome)
	return outcome
}

func (s *CloseService) publishClosed(ctx context.Context, outcome *CloseOutcome) {
	if s.dispatcher == nil {
		return
	}
	failedIDs := make([]string, 0, len(outcome.Failed))
	for _, f := range outcome.Failed {
		failedIDs = append(failedIDs, f.TicketID)
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketsClosed,
		RunID:     uuid.NewString(),
		Mode:      outcome.Mode,
		Timestamp: time.Now(),
		Payload: events.TicketsClosedPayload{
			Closed: outcome.Closed,
			Failed: failedIDs,
		},
	})
}
