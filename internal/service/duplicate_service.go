package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/events"
	"github.com/spec-kit/desk-automation/internal/helpdesk"
)

// Strategy selects the duplicate-matching flavor.
type Strategy string

const (
	// StrategyConservative matches on the full subject|email|content key,
	// falling back to the loose email|content key, over the last incoming
	// message of each ticket.
	StrategyConservative Strategy = "conservative"
	// StrategyContentOnly matches strictly on email|content over the
	// concatenated lower-cased customer conversation.
	StrategyContentOnly Strategy = "content-only"
)

// DetectInput filters a detection run.
type DetectInput struct {
	Strategy Strategy
	MaxAge   time.Duration
	TeamIDs  []string
}

// DetectionReport is the outcome of one detection run. All derived state
// lives only for the duration of the run.
type DetectionReport struct {
	RunID     string
	Strategy  Strategy
	Groups    []domain.DuplicateGroup
	All       []domain.EnrichedTicket
	TimeRange domain.TimeRange
}

// DuplicateCount returns the number of non-original tickets across groups.
func (r DetectionReport) DuplicateCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Duplicates)
	}
	return n
}

// DuplicateIDs returns every non-original ticket id across groups.
func (r DetectionReport) DuplicateIDs() []string {
	ids := make([]string, 0, r.DuplicateCount())
	for _, g := range r.Groups {
		ids = append(ids, g.DuplicateIDs()...)
	}
	return ids
}

// DuplicateService runs duplicate detection over open tickets.
type DuplicateService struct {
	source     TicketSource
	enricher   *EnrichmentService
	dispatcher events.Dispatcher
	cfg        config.AutomationConfig
	logger     *zap.Logger
}

// DuplicateDependencies bundles collaborators for the service.
type DuplicateDependencies struct {
	Source     TicketSource
	Enricher   *EnrichmentService
	Dispatcher events.Dispatcher
}

// NewDuplicateService constructs the service.
func NewDuplicateService(deps DuplicateDependencies, cfg config.AutomationConfig, logger *zap.Logger) *DuplicateService {
	return &DuplicateService{
		source:     deps.Source,
		enricher:   deps.Enricher,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Detect fetches candidate tickets, enriches them and partitions them into
// duplicate groups under the selected strategy. Empty candidate sets yield
// zero groups and a null time range.
func (s *DuplicateService) Detect(ctx context.Context, input DetectInput) (*DetectionReport, error) {
	var (
		tickets []domain.Ticket
		err     error
	)
	switch input.Strategy {
	case StrategyContentOnly:
		tickets, err = s.source.ListOpenTickets(ctx, helpdesk.ListOptions{
			All:     true,
			Limit:   s.cfg.PageSize,
			TeamIDs: input.TeamIDs,
			MaxAge:  input.MaxAge,
		})
	default:
		tickets, err = s.source.ListOpenTickets(ctx, helpdesk.ListOptions{
			TeamIDs: input.TeamIDs,
			MaxAge:  input.MaxAge,
		})
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("duplicate detection started",
		zap.String("strategy", string(input.Strategy)),
		zap.Int("tickets_checked", len(tickets)))

	var enriched []domain.EnrichedTicket
	if input.Strategy == StrategyContentOnly {
		enriched = s.enricher.EnrichFullContent(ctx, tickets)
	} else {
		enriched = s.enricher.EnrichLastMessage(ctx, tickets)
	}

	SortByCreatedTime(enriched)

	var groups []domain.DuplicateGroup
	if input.Strategy == StrategyContentOnly {
		groups = GroupContentOnly(enriched)
	} else {
		groups = GroupConservative(enriched)
	}

	report := &DetectionReport{
		RunID:     uuid.NewString(),
		Strategy:  input.Strategy,
		Groups:    groups,
		All:       enriched,
		TimeRange: domain.RangeOf(enriched),
	}
	s.publishDetected(ctx, report)
	return report, nil
}

// SortByCreatedTime orders tickets ascending by creation time. The sort is
// stable: ties preserve relative input order.
func SortByCreatedTime(tickets []domain.EnrichedTicket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedTime.Before(tickets[j].CreatedTime)
	})
}

// GroupConservative walks tickets in chronological order keeping two seen
// tables, one per match policy. A ticket matching either table joins the
// group of whichever earlier ticket first registered that key; otherwise it
// registers both its keys as an original. Because registration is
// incremental, a chain of tickets with drifting subjects but constant
// email+content collapses into one group anchored at the first-ever ticket
// (union-like transitive matching; intentional).
//
// Tickets whose enrichment degraded to empty content never participate in
// matching.
func GroupConservative(sorted []domain.EnrichedTicket) []domain.DuplicateGroup {
	type accumulator struct {
		key        domain.MatchKey
		original   domain.EnrichedTicket
		duplicates []domain.EnrichedTicket
	}

	var order []*accumulator
	byFull := map[string]*accumulator{}
	byLoose := map[string]*accumulator{}

	for _, t := range sorted {
		fullKey := domain.FullKey(t)
		if !fullKey.Eligible() {
			continue
		}
		looseKey := domain.LooseKey(t)

		if group, ok := byFull[fullKey.String()]; ok {
			group.duplicates = append(group.duplicates, t)
			continue
		}
		if group, ok := byLoose[looseKey.String()]; ok {
			// same email and content, different subject: still a duplicate
			group.key = domain.LooseKey(group.original)
			group.duplicates = append(group.duplicates, t)
			continue
		}

		group := &accumulator{key: fullKey, original: t}
		byFull[fullKey.String()] = group
		byLoose[looseKey.String()] = group
		order = append(order, group)
	}

	groups := make([]domain.DuplicateGroup, 0, len(order))
	for _, g := range order {
		if len(g.duplicates) == 0 {
			continue
		}
		groups = append(groups, domain.DuplicateGroup{
			MatchKey:   g.key,
			Original:   g.original,
			Duplicates: g.duplicates,
		})
	}
	return groups
}

// GroupContentOnly groups strictly by the loose email|content key. Within
// each group of size > 1 the earliest ticket is the original; the rest are
// flagged duplicates and get the display marker prefixed to their subject
// (idempotently).
func GroupContentOnly(sorted []domain.EnrichedTicket) []domain.DuplicateGroup {
	var keys []string
	buckets := map[string][]domain.EnrichedTicket{}

	for _, t := range sorted {
		key := domain.LooseKey(t)
		if !key.Eligible() {
			continue
		}
		rendered := key.String()
		if _, ok := buckets[rendered]; !ok {
			keys = append(keys, rendered)
		}
		buckets[rendered] = append(buckets[rendered], t)
	}

	var groups []domain.DuplicateGroup
	for _, key := range keys {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}
		original := members[0]
		duplicates := make([]domain.EnrichedTicket, 0, len(members)-1)
		for _, dup := range members[1:] {
			dup.IsDuplicate = true
			dup.Subject = domain.MarkDuplicateSubject(dup.Subject)
			duplicates = append(duplicates, dup)
		}
		groups = append(groups, domain.DuplicateGroup{
			MatchKey:   domain.LooseKey(original),
			Original:   original,
			Duplicates: duplicates,
		})
	}
	return groups
}

func (s *DuplicateService) publishDetected(ctx context.Context, report *DetectionReport) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventDuplicatesDetected,
		RunID:     report.RunID,
		Mode:      domain.ModeFor(s.cfg.LiveMode),
		Timestamp: time.Now(),
		Payload: events.DuplicatesDetectedPayload{
			Strategy:        string(report.Strategy),
			GroupCount:      len(report.Groups),
			DuplicateCount:  report.DuplicateCount(),
			TicketsReviewed: len(report.All),
			TimeRange:       report.TimeRange,
		},
	})
}
