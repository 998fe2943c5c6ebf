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
)

func newEnrichmentService(source TicketSource) *EnrichmentService {
	cfg := config.AutomationConfig{EnrichConcurrency: 5, ThreadConcurrency: 3}
	return NewEnrichmentService(source, cfg, zap.NewNop())
}

func TestEnrichLastMessagePicksLastIncoming(t *testing.T) {
	source := &fakeSource{
		tickets: []domain.Ticket{{ID: "t1"}},
		threads: map[string][]domain.Thread{
			"t1": {
				{ID: "old", Direction: domain.DirectionIn, CreatedTime: epoch},
				{ID: "reply", Direction: domain.DirectionOut, CreatedTime: epoch.Add(time.Minute)},
				{ID: "new", Direction: domain.DirectionIn, CreatedTime: epoch.Add(2 * time.Minute)},
			},
		},
		details: map[string]domain.Thread{
			"t1/old": {ID: "old", Content: "first message"},
			"t1/new": {ID: "new", Content: "<div>latest   message</div>"},
		},
	}
	svc := newEnrichmentService(source)

	enriched := svc.EnrichLastMessage(context.Background(), source.tickets)
	require.Len(t, enriched, 1)
	assert.Equal(t, "latest message", enriched[0].Content)
}

func TestEnrichLastMessageFailureDegrades(t *testing.T) {
	source := &fakeSource{
		tickets: []domain.Ticket{
			{ID: "good"},
			{ID: "bad"},
		},
		threads: map[string][]domain.Thread{
			"good": {{ID: "th", Direction: domain.DirectionIn, CreatedTime: epoch}},
		},
		details: map[string]domain.Thread{
			"good/th": {ID: "th", Content: "hello"},
		},
		threadErrs: map[string]error{"bad": assert.AnError},
	}
	svc := newEnrichmentService(source)

	enriched := svc.EnrichLastMessage(context.Background(), source.tickets)
	require.Len(t, enriched, 2, "a failing ticket degrades, it does not disappear")

	byID := map[string]domain.EnrichedTicket{}
	for _, e := range enriched {
		byID[e.ID] = e
	}
	assert.Equal(t, "hello", byID["good"].Content)
	assert.Empty(t, byID["bad"].Content)
}

func TestEnrichLastMessageSummaryFallback(t *testing.T) {
	source := &fakeSource{
		tickets: []domain.Ticket{{ID: "t1"}},
		threads: map[string][]domain.Thread{
			"t1": {{ID: "th", Direction: domain.DirectionIn, Summary: "summary text", CreatedTime: epoch}},
		},
		details: map[string]domain.Thread{
			"t1/th": {ID: "th", Content: ""},
		},
	}
	svc := newEnrichmentService(source)

	enriched := svc.EnrichLastMessage(context.Background(), source.tickets)
	require.Len(t, enriched, 1)
	assert.Equal(t, "summary text", enriched[0].Content)
}

func TestEnrichFullContentConcatenatesCustomerMessages(t *testing.T) {
	source := &fakeSource{
		tickets: []domain.Ticket{{ID: "t1"}},
		threads: map[string][]domain.Thread{
			"t1": {
				{ID: "c2", Direction: domain.DirectionIn, CreatedTime: epoch.Add(2 * time.Minute)},
				{ID: "a1", Direction: domain.DirectionOut, CreatedTime: epoch.Add(time.Minute)},
				{ID: "c1", Direction: domain.DirectionIn, CreatedTime: epoch},
				{ID: "sys", Channel: "SYSTEM", CreatedTime: epoch},
			},
		},
		details: map[string]domain.Thread{
			"t1/c1": {ID: "c1", Content: "My ROUTER is broken"},
			"t1/a1": {ID: "a1", Content: "We are looking into it"},
			"t1/c2": {ID: "c2", Content: "Still BROKEN"},
		},
	}
	svc := newEnrichmentService(source)

	enriched := svc.EnrichFullContent(context.Background(), source.tickets)
	require.Len(t, enriched, 1)
	// chronological customer messages only, lower-cased
	assert.Equal(t, "my router is broken still broken", enriched[0].Content)

	require.Len(t, enriched[0].Messages, 3)
	assert.Equal(t, domain.MessageTypeCustomer, enriched[0].Messages[0].Type)
	assert.Equal(t, domain.MessageTypeAgent, enriched[0].Messages[1].Type)
}

func TestEnrichFullContentDetailFallsBackToSummary(t *testing.T) {
	source := &fakeSource{
		tickets: []domain.Ticket{{ID: "t1"}},
		threads: map[string][]domain.Thread{
			"t1": {{ID: "th", Direction: domain.DirectionIn, Summary: "from summary", CreatedTime: epoch}},
		},
		detailErrs: map[string]error{"t1/th": assert.AnError},
	}
	svc := newEnrichmentService(source)

	enriched := svc.EnrichFullContent(context.Background(), source.tickets)
	require.Len(t, enriched, 1)
	assert.Equal(t, "from summary", enriched[0].Content)
}

func TestLastIncomingMessagesLimitsAndFlagsAttachments(t *testing.T) {
	source := &fakeSource{
		threads: map[string][]domain.Thread{
			"t1": {
				{ID: "m1", Direction: domain.DirectionIn, CreatedTime: epoch},
				{ID: "m2", Direction: domain.DirectionIn, CreatedTime: epoch.Add(time.Minute), HasAttachment: true},
				{ID: "m3", Direction: domain.DirectionIn, CreatedTime: epoch.Add(2 * time.Minute)},
			},
		},
		details: map[string]domain.Thread{
			"t1/m2": {ID: "m2", Content: "see attached"},
			"t1/m3": {ID: "m3", Content: "ping"},
		},
	}
	svc := newEnrichmentService(source)

	messages := svc.LastIncomingMessages(context.Background(), "t1", 2)
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[0].ID)
	assert.True(t, messages[0].HasAttachment, "attachment flag from the listing survives the detail fetch")
	assert.Equal(t, "m3", messages[1].ID)
}
