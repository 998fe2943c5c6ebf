package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/desk-automation/internal/domain"
)

// TokenRequest payload for operator token exchange.
type TokenRequest struct {
	OperatorKey string `json:"operatorKey"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CloseTicketsRequest payload. Upstream callers send ticket ids sometimes
// as strings and sometimes as raw numbers, so the field is typed loosely
// and normalized before use.
type CloseTicketsRequest struct {
	TicketIDs []interface{} `json:"ticketIds"`
}

// Normalize validates the id list and coerces every element to a string.
func (r CloseTicketsRequest) Normalize() ([]string, error) {
	if len(r.TicketIDs) == 0 {
		return nil, fmt.Errorf("ticketIds must be a non-empty array")
	}
	ids := make([]string, 0, len(r.TicketIDs))
	for i, raw := range r.TicketIDs {
		switch v := raw.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("ticketIds[%d] is empty", i)
			}
			ids = append(ids, strings.TrimSpace(v))
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("ticketIds[%d] is not an integer id", i)
			}
			ids = append(ids, strconv.FormatInt(int64(v), 10))
		default:
			return nil, fmt.Errorf("ticketIds[%d] must be a string or number", i)
		}
	}
	return ids, nil
}

// TicketSummary response for ticket listings.
type TicketSummary struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Email       string    `json:"email"`
	Status      string    `json:"status"`
	CreatedTime time.Time `json:"createdTime"`
	WebURL      string    `json:"webUrl,omitempty"`
	TeamID      *string   `json:"teamId,omitempty"`
	AssigneeID  *string   `json:"assigneeId,omitempty"`
}

// NewTicketSummary maps a domain ticket to its response shape.
func NewTicketSummary(t domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:          t.ID,
		Subject:     t.Subject,
		Email:       t.Email,
		Status:      string(t.Status),
		CreatedTime: t.CreatedTime,
		WebURL:      t.WebURL,
		TeamID:      t.TeamID,
		AssigneeID:  t.AssigneeID,
	}
}

// DuplicateTicketView is one non-original member of a duplicate group.
type DuplicateTicketView struct {
	TicketID    string    `json:"ticketId"`
	Subject     string    `json:"subject"`
	Email       string    `json:"email"`
	CreatedTime time.Time `json:"createdTime"`
}

// DuplicateGroupView is one original with its matched duplicates.
type DuplicateGroupView struct {
	MatchedOn           string                `json:"matchedOn"`
	OriginalTicketID    string                `json:"originalTicketId"`
	OriginalSubject     string                `json:"originalSubject"`
	OriginalCreatedTime time.Time             `json:"originalCreatedTime"`
	DuplicateCount      int                   `json:"duplicateCount"`
	Duplicates          []DuplicateTicketView `json:"duplicates"`
}

// NewDuplicateGroupViews maps detection groups to their response shape.
func NewDuplicateGroupViews(groups []domain.DuplicateGroup) []DuplicateGroupView {
	views := make([]DuplicateGroupView, 0, len(groups))
	for _, g := range groups {
		dups := make([]DuplicateTicketView, 0, len(g.Duplicates))
		for _, d := range g.Duplicates {
			dups = append(dups, DuplicateTicketView{
				TicketID:    d.ID,
				Subject:     d.Subject,
				Email:       d.Email,
				CreatedTime: d.CreatedTime,
			})
		}
		views = append(views, DuplicateGroupView{
			MatchedOn:           string(g.MatchKey.Policy),
			OriginalTicketID:    g.Original.ID,
			OriginalSubject:     g.Original.Subject,
			OriginalCreatedTime: g.Original.CreatedTime,
			DuplicateCount:      len(g.Duplicates),
			Duplicates:          dups,
		})
	}
	return views
}
