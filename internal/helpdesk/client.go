// Package helpdesk is the adapter for the external helpdesk ticketing API:
// ticket listing with pagination, thread retrieval, and the status-change
// and reply mutations issued in live mode.
package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/observability"
)

// TokenSource supplies a bearer token for upstream calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// UpstreamError reports a non-2xx helpdesk response.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("helpdesk %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// ListOptions filters an open-ticket listing.
type ListOptions struct {
	Limit   int
	TeamIDs []string
	Include string
	// MaxAge keeps only tickets created within the window. Zero disables
	// the filter.
	MaxAge time.Duration
	// All pages through the collection instead of a single limited call.
	All bool
}

// ReplyInput is the payload for SendReply.
type ReplyInput struct {
	Content string
	To      string
}

// Assignment carries the fields for an assignment PATCH.
type Assignment struct {
	TeamID     string
	AssigneeID string
}

// Client calls the helpdesk REST API.
type Client struct {
	cfg     config.HelpdeskConfig
	tokens  TokenSource
	http    *http.Client
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewClient builds a helpdesk client. httpClient may be nil.
func NewClient(cfg config.HelpdeskConfig, tokens TokenSource, httpClient *http.Client, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	return &Client{cfg: cfg, tokens: tokens, http: httpClient, logger: logger, metrics: metrics}
}

type ticketPayload struct {
	ID          string  `json:"id"`
	Subject     string  `json:"subject"`
	Status      string  `json:"status"`
	Email       string  `json:"email"`
	WebURL      string  `json:"webUrl"`
	CreatedTime string  `json:"createdTime"`
	TeamID      *string `json:"teamId"`
	AssigneeID  *string `json:"assigneeId"`
	Contact     *struct {
		Email string `json:"email"`
	} `json:"contact"`
}

type threadPayload struct {
	ID            string `json:"id"`
	Direction     string `json:"direction"`
	Channel       string `json:"channel"`
	CreatedTime   string `json:"createdTime"`
	Summary       string `json:"summary"`
	Content       string `json:"content"`
	HasAttachment bool   `json:"hasAttach"`
}

// ListOpenTickets fetches open tickets. With All set it pages through the
// upstream collection (page size from options.Limit, default 100) until a
// short page signals the end of data. Failure here is fatal for the
// enclosing request.
func (c *Client) ListOpenTickets(ctx context.Context, opts ListOptions) ([]domain.Ticket, error) {
	include := opts.Include
	if include == "" {
		include = "contacts,assignee"
	}

	base := url.Values{
		"status":  {string(domain.TicketStatusOpen)},
		"include": {include},
	}
	if len(opts.TeamIDs) > 0 {
		base.Set("teamIds", strings.Join(opts.TeamIDs, ","))
	}

	var payloads []ticketPayload
	if opts.All {
		pageSize := opts.Limit
		if pageSize <= 0 {
			pageSize = 100
		}
		base.Set("limit", strconv.Itoa(pageSize))
		for from := 0; ; from += pageSize {
			params := cloneValues(base)
			params.Set("from", strconv.Itoa(from))
			page, err := c.listPage(ctx, params)
			if err != nil {
				return nil, err
			}
			payloads = append(payloads, page...)
			if len(page) < pageSize {
				break
			}
		}
	} else {
		if opts.Limit > 0 {
			base.Set("limit", strconv.Itoa(opts.Limit))
		}
		page, err := c.listPage(ctx, base)
		if err != nil {
			return nil, err
		}
		payloads = page
	}

	now := time.Now()
	tickets := make([]domain.Ticket, 0, len(payloads))
	for _, p := range payloads {
		ticket := p.toDomain()
		if opts.MaxAge > 0 && now.Sub(ticket.CreatedTime) > opts.MaxAge {
			continue
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

// ListThreads fetches the thread index of one ticket.
func (c *Client) ListThreads(ctx context.Context, ticketID string) ([]domain.Thread, error) {
	var envelope struct {
		Data []threadPayload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tickets/%s/threads", ticketID), nil, &envelope, "list_threads"); err != nil {
		return nil, err
	}
	threads := make([]domain.Thread, 0, len(envelope.Data))
	for _, p := range envelope.Data {
		threads = append(threads, p.toDomain())
	}
	return threads, nil
}

// GetThread fetches one thread's full content.
func (c *Client) GetThread(ctx context.Context, ticketID, threadID string) (domain.Thread, error) {
	var payload threadPayload
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tickets/%s/threads/%s", ticketID, threadID), nil, &payload, "get_thread"); err != nil {
		return domain.Thread{}, err
	}
	return payload.toDomain(), nil
}

// CloseTicket sets the ticket's status to Closed. Idempotent upstream.
func (c *Client) CloseTicket(ctx context.Context, ticketID string) error {
	body := map[string]any{"status": string(domain.TicketStatusClosed)}
	return c.do(ctx, http.MethodPatch, "/tickets/"+ticketID, body, nil, "close_ticket")
}

// AssignTicket patches team and/or assignee.
func (c *Client) AssignTicket(ctx context.Context, ticketID string, assignment Assignment) error {
	body := map[string]any{}
	if assignment.TeamID != "" {
		body["teamId"] = assignment.TeamID
	}
	if assignment.AssigneeID != "" {
		body["assigneeId"] = assignment.AssigneeID
	}
	return c.do(ctx, http.MethodPatch, "/tickets/"+ticketID, body, nil, "assign_ticket")
}

// SendReply posts an outbound email reply and closes the ticket.
func (c *Client) SendReply(ctx context.Context, ticketID string, reply ReplyInput) error {
	body := map[string]any{
		"ticketStatus":     string(domain.TicketStatusClosed),
		"channel":          "EMAIL",
		"contentType":      "plainText",
		"content":          reply.Content,
		"fromEmailAddress": c.cfg.FromEmail,
		"to":               reply.To,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tickets/%s/sendReply", ticketID), body, nil, "send_reply")
}

func (c *Client) listPage(ctx context.Context, params url.Values) ([]ticketPayload, error) {
	var envelope struct {
		Data []ticketPayload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/tickets?"+params.Encode(), nil, &envelope, "list_tickets"); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, operation string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.cfg.TokenScheme+" "+token)
	req.Header.Set("orgId", c.cfg.OrgID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamCall(operation, false)
		return fmt.Errorf("helpdesk %s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordUpstreamCall(operation, false)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordUpstreamCall(operation, false)
		return &UpstreamError{Operation: operation, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	c.metrics.RecordUpstreamCall(operation, true)

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("helpdesk %s: decode: %w", operation, err)
		}
	}
	return nil
}

func (p ticketPayload) toDomain() domain.Ticket {
	email := p.Email
	if email == "" && p.Contact != nil {
		email = p.Contact.Email
	}
	return domain.Ticket{
		ID:          p.ID,
		Subject:     p.Subject,
		Email:       email,
		Status:      domain.TicketStatus(p.Status),
		CreatedTime: parseTime(p.CreatedTime),
		WebURL:      p.WebURL,
		TeamID:      p.TeamID,
		AssigneeID:  p.AssigneeID,
	}
}

func (p threadPayload) toDomain() domain.Thread {
	return domain.Thread{
		ID:            p.ID,
		Direction:     domain.ThreadDirection(p.Direction),
		Channel:       p.Channel,
		CreatedTime:   parseTime(p.CreatedTime),
		Summary:       p.Summary,
		Content:       p.Content,
		HasAttachment: p.HasAttachment,
	}
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func cloneValues(src url.Values) url.Values {
	dst := url.Values{}
	for k, vs := range src {
		dst[k] = append([]string(nil), vs...)
	}
	return dst
}
