package events

import (
	"time"

	"github.com/spec-kit/desk-automation/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventDuplicatesDetected EventType = "duplicates_detected"
	EventTicketsClosed      EventType = "tickets_closed"
	EventTicketReplied      EventType = "ticket_replied"
	EventTicketRouted       EventType = "ticket_routed"
)

// Event represents an automation event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id"`
	Mode      domain.Mode `json:"mode"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// DuplicatesDetectedPayload payload.
type DuplicatesDetectedPayload struct {
	Strategy        string           `json:"strategy"`
	GroupCount      int              `json:"group_count"`
	DuplicateCount  int              `json:"duplicate_count"`
	TicketsReviewed int              `json:"tickets_reviewed"`
	TimeRange       domain.TimeRange `json:"time_range"`
}

// TicketsClosedPayload payload.
type TicketsClosedPayload struct {
	Closed []string `json:"closed"`
	Failed []string `json:"failed,omitempty"`
}

// TicketRepliedPayload payload.
type TicketRepliedPayload struct {
	TicketID  string           `json:"ticket_id"`
	Sentiment domain.Sentiment `json:"sentiment"`
}

// TicketRoutedPayload payload.
type TicketRoutedPayload struct {
	TicketID   string `json:"ticket_id"`
	Team       string `json:"team"`
	TeamID     string `json:"team_id,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
}
