package domain

import "time"

// TicketStatus enumerates upstream ticket states.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "Open"
	TicketStatusClosed TicketStatus = "Closed"
	TicketStatusOnHold TicketStatus = "On Hold"
)

// Ticket mirrors the helpdesk platform's ticket resource. The platform owns
// and mutates it; this service only reads it and, in live mode, issues
// status-change commands.
type Ticket struct {
	ID          string
	Subject     string
	Email       string
	Status      TicketStatus
	CreatedTime time.Time
	WebURL      string
	TeamID      *string
	AssigneeID  *string
}

// Unassigned reports whether the ticket has no assignee.
func (t Ticket) Unassigned() bool {
	return t.AssigneeID == nil || *t.AssigneeID == ""
}

// ThreadDirection marks a message as inbound or outbound.
type ThreadDirection string

const (
	DirectionIn  ThreadDirection = "in"
	DirectionOut ThreadDirection = "out"
)

// Thread is one message within a ticket's conversation.
type Thread struct {
	ID            string
	Direction     ThreadDirection
	Channel       string
	CreatedTime   time.Time
	Summary       string
	Content       string
	HasAttachment bool
}

// Incoming reports whether the thread is a customer message.
func (t Thread) Incoming() bool {
	return t.Direction == DirectionIn
}

// ThreadMessage is a normalized conversation entry produced by enrichment.
type ThreadMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

const (
	MessageTypeCustomer = "Customer Message"
	MessageTypeAgent    = "Agent Reply"
)
