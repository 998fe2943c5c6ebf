package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/helpdesk"
)

var epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func enrichedAt(id, subject, email, content string, offset time.Duration) domain.EnrichedTicket {
	return domain.EnrichedTicket{
		ID:          id,
		Subject:     subject,
		Email:       email,
		Content:     content,
		CreatedTime: epoch.Add(offset),
	}
}

func TestGroupConservativeUnionSemantics(t *testing.T) {
	// T2 matches T1 via the loose key (different subject), T3 via the full
	// key; all three collapse into one group anchored at T1.
	tickets := []domain.EnrichedTicket{
		enrichedAt("t1", "A", "e@x.com", "no internet", 0),
		enrichedAt("t2", "B", "e@x.com", "no internet", time.Minute),
		enrichedAt("t3", "A", "e@x.com", "no internet", 2*time.Minute),
	}

	groups := GroupConservative(tickets)
	require.Len(t, groups, 1)
	assert.Equal(t, "t1", groups[0].Original.ID)
	assert.Equal(t, []string{"t2", "t3"}, groups[0].DuplicateIDs())
}

func TestGroupConservativeOriginalIsEarliest(t *testing.T) {
	tickets := []domain.EnrichedTicket{
		enrichedAt("t1", "S", "e@x.com", "c", 0),
		enrichedAt("t2", "S", "e@x.com", "c", time.Hour),
		enrichedAt("t3", "S", "e@x.com", "c", 30*time.Minute),
	}
	SortByCreatedTime(tickets)

	groups := GroupConservative(tickets)
	require.Len(t, groups, 1)
	for _, dup := range groups[0].Duplicates {
		assert.False(t, dup.CreatedTime.Before(groups[0].Original.CreatedTime),
			"original must not be later than any duplicate")
	}
}

func TestGroupConservativeCompleteness(t *testing.T) {
	tickets := []domain.EnrichedTicket{
		enrichedAt("a1", "S1", "a@x.com", "ca", 0),
		enrichedAt("a2", "S1", "a@x.com", "ca", time.Minute),
		enrichedAt("b1", "S2", "b@x.com", "cb", 2*time.Minute),
		enrichedAt("lone", "S3", "c@x.com", "cc", 3*time.Minute),
	}

	groups := GroupConservative(tickets)

	roles := map[string]int{}
	for _, g := range groups {
		roles[g.Original.ID]++
		for _, d := range g.Duplicates {
			roles[d.ID]++
		}
	}
	// every matched ticket appears in exactly one role; unmatched tickets
	// are absent from group output entirely
	assert.Equal(t, map[string]int{"a1": 1, "a2": 1}, roles)
}

func TestGroupConservativeTieBreakIsStable(t *testing.T) {
	tickets := []domain.EnrichedTicket{
		enrichedAt("first", "S", "e@x.com", "c", 0),
		enrichedAt("second", "S", "e@x.com", "c", 0),
	}
	SortByCreatedTime(tickets)

	groups := GroupConservative(tickets)
	require.Len(t, groups, 1)
	assert.Equal(t, "first", groups[0].Original.ID)
	assert.Equal(t, []string{"second"}, groups[0].DuplicateIDs())
}

func TestGroupConservativeLooseMatchRecordsPolicy(t *testing.T) {
	tickets := []domain.EnrichedTicket{
		enrichedAt("t1", "A", "e@x.com", "c", 0),
		enrichedAt("t2", "B", "e@x.com", "c", time.Minute),
	}

	groups := GroupConservative(tickets)
	require.Len(t, groups, 1)
	assert.Equal(t, domain.PolicyLoose, groups[0].MatchKey.Policy)
}

func TestGroupConservativeDegradedTicketsNeverMatch(t *testing.T) {
	// enrichment failures leave empty content; such tickets must not be
	// grouped with each other even when emails collide
	tickets := []domain.EnrichedTicket{
		enrichedAt("d1", "S", "e@x.com", "", 0),
		enrichedAt("d2", "S", "e@x.com", "", time.Minute),
	}

	assert.Empty(t, GroupConservative(tickets))
}

func TestGroupConservativeNoGroupWithoutDuplicates(t *testing.T) {
	tickets := []domain.EnrichedTicket{
		enrichedAt("only", "S", "e@x.com", "c", 0),
	}
	assert.Empty(t, GroupConservative(tickets))
}

func TestGroupContentOnly(t *testing.T) {
	tickets := []domain.EnrichedTicket{
		enrichedAt("t1", "Router down", "e@x.com", "router down since monday", 0),
		enrichedAt("t2", "Router still down", "e@x.com", "router down since monday", time.Minute),
		enrichedAt("t3", "Other issue", "f@x.com", "billing question", 2*time.Minute),
	}

	groups := GroupContentOnly(tickets)
	require.Len(t, groups, 1)
	group := groups[0]
	assert.Equal(t, "t1", group.Original.ID)
	assert.False(t, group.Original.IsDuplicate)
	require.Len(t, group.Duplicates, 1)
	assert.True(t, group.Duplicates[0].IsDuplicate)
	assert.Equal(t, "[DUP] Router still down", group.Duplicates[0].Subject)
	assert.Equal(t, domain.PolicyLoose, group.MatchKey.Policy)
}

func TestGroupContentOnlyMarkerIsIdempotent(t *testing.T) {
	tickets := []domain.EnrichedTicket{
		enrichedAt("t1", "Subject", "e@x.com", "c", 0),
		enrichedAt("t2", "[DUP] Subject", "e@x.com", "c", time.Minute),
	}

	groups := GroupContentOnly(tickets)
	require.Len(t, groups, 1)
	assert.Equal(t, "[DUP] Subject", groups[0].Duplicates[0].Subject)
}

func TestGroupContentOnlyIgnoresSubjectDimension(t *testing.T) {
	tickets := []domain.EnrichedTicket{
		enrichedAt("t1", "A", "e@x.com", "same text", 0),
		enrichedAt("t2", "completely different", "e@x.com", "same text", time.Minute),
	}
	groups := GroupContentOnly(tickets)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"t2"}, groups[0].DuplicateIDs())
}

// fakeSource serves canned tickets and threads.
type fakeSource struct {
	tickets    []domain.Ticket
	threads    map[string][]domain.Thread
	details    map[string]domain.Thread
	listErr    error
	threadErrs map[string]error
	detailErrs map[string]error
}

func (f *fakeSource) ListOpenTickets(_ context.Context, _ helpdesk.ListOptions) ([]domain.Ticket, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tickets, nil
}

func (f *fakeSource) ListThreads(_ context.Context, ticketID string) ([]domain.Thread, error) {
	if err := f.threadErrs[ticketID]; err != nil {
		return nil, err
	}
	return f.threads[ticketID], nil
}

func (f *fakeSource) GetThread(_ context.Context, ticketID, threadID string) (domain.Thread, error) {
	if err := f.detailErrs[ticketID+"/"+threadID]; err != nil {
		return domain.Thread{}, err
	}
	return f.details[ticketID+"/"+threadID], nil
}

func newDuplicateService(source TicketSource) *DuplicateService {
	cfg := config.AutomationConfig{EnrichConcurrency: 5, ThreadConcurrency: 3, PageSize: 100}
	enricher := NewEnrichmentService(source, cfg, zap.NewNop())
	return NewDuplicateService(DuplicateDependencies{Source: source, Enricher: enricher}, cfg, zap.NewNop())
}

func TestDetectEmptyInputIsSafe(t *testing.T) {
	svc := newDuplicateService(&fakeSource{})

	report, err := svc.Detect(context.Background(), DetectInput{Strategy: StrategyConservative, MaxAge: time.Hour})
	require.NoError(t, err)
	assert.Empty(t, report.Groups)
	assert.Empty(t, report.All)
	assert.Nil(t, report.TimeRange.Earliest)
	assert.Nil(t, report.TimeRange.Latest)
	assert.NotEmpty(t, report.RunID)
}

func TestDetectListFailureIsFatal(t *testing.T) {
	svc := newDuplicateService(&fakeSource{listErr: assert.AnError})

	_, err := svc.Detect(context.Background(), DetectInput{Strategy: StrategyConservative})
	assert.Error(t, err)
}

func TestDetectConservativeEndToEnd(t *testing.T) {
	mkThread := func(id string, at time.Time) domain.Thread {
		return domain.Thread{ID: id, Direction: domain.DirectionIn, CreatedTime: at}
	}
	source := &fakeSource{
		tickets: []domain.Ticket{
			{ID: "t2", Subject: "Help", Email: "e@x.com", CreatedTime: epoch.Add(time.Minute)},
			{ID: "t1", Subject: "Help", Email: "e@x.com", CreatedTime: epoch},
		},
		threads: map[string][]domain.Thread{
			"t1": {mkThread("th1", epoch)},
			"t2": {mkThread("th2", epoch.Add(time.Minute))},
		},
		details: map[string]domain.Thread{
			"t1/th1": {ID: "th1", Content: "<p>my internet is down</p>"},
			"t2/th2": {ID: "th2", Content: "my internet is   down"},
		},
	}
	svc := newDuplicateService(source)

	report, err := svc.Detect(context.Background(), DetectInput{Strategy: StrategyConservative, MaxAge: time.Hour})
	require.NoError(t, err)
	// enrichment completion order does not matter: the explicit re-sort
	// restores chronology before grouping
	require.Len(t, report.Groups, 1)
	assert.Equal(t, "t1", report.Groups[0].Original.ID)
	assert.Equal(t, []string{"t2"}, report.Groups[0].DuplicateIDs())
	assert.Equal(t, 1, report.DuplicateCount())
	require.NotNil(t, report.TimeRange.Earliest)
	assert.True(t, report.TimeRange.Earliest.Equal(epoch))
	assert.True(t, report.TimeRange.Latest.Equal(epoch.Add(time.Minute)))
}

func TestDetectDegradedTicketStillCounted(t *testing.T) {
	// a ticket whose thread fetches fail is considered (appears in All)
	// but cannot match anything
	source := &fakeSource{
		tickets: []domain.Ticket{
			{ID: "ok", Subject: "S", Email: "e@x.com", CreatedTime: epoch},
			{ID: "broken", Subject: "S", Email: "e@x.com", CreatedTime: epoch.Add(time.Minute)},
		},
		threads: map[string][]domain.Thread{
			"ok": {{ID: "th", Direction: domain.DirectionIn, CreatedTime: epoch}},
		},
		details: map[string]domain.Thread{
			"ok/th": {ID: "th", Content: "hello"},
		},
		threadErrs: map[string]error{"broken": assert.AnError},
	}
	svc := newDuplicateService(source)

	report, err := svc.Detect(context.Background(), DetectInput{Strategy: StrategyConservative, MaxAge: time.Hour})
	require.NoError(t, err)
	assert.Len(t, report.All, 2)
	assert.Empty(t, report.Groups)
}
