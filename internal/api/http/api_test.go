package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/api/http/handlers"
	"github.com/spec-kit/desk-automation/internal/auth"
	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/helpdesk"
	"github.com/spec-kit/desk-automation/internal/observability"
	"github.com/spec-kit/desk-automation/internal/service"
)

// stubPlatform satisfies both service-facing helpdesk interfaces while
// recording every mutation.
type stubPlatform struct {
	mu      sync.Mutex
	tickets []domain.Ticket
	threads map[string][]domain.Thread
	details map[string]domain.Thread
	listErr error
	closed  []string
}

func (s *stubPlatform) ListOpenTickets(context.Context, helpdesk.ListOptions) ([]domain.Ticket, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tickets, nil
}

func (s *stubPlatform) ListThreads(_ context.Context, ticketID string) ([]domain.Thread, error) {
	return s.threads[ticketID], nil
}

func (s *stubPlatform) GetThread(_ context.Context, ticketID, threadID string) (domain.Thread, error) {
	return s.details[ticketID+"/"+threadID], nil
}

func (s *stubPlatform) CloseTicket(_ context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, ticketID)
	return nil
}

func (s *stubPlatform) AssignTicket(context.Context, string, helpdesk.Assignment) error {
	return nil
}

func (s *stubPlatform) SendReply(context.Context, string, helpdesk.ReplyInput) error {
	return nil
}

func newTestApp(t *testing.T, live bool) (*fiber.App, *stubPlatform) {
	t.Helper()

	platform := &stubPlatform{}
	autoCfg := config.AutomationConfig{
		LiveMode:           live,
		EnrichConcurrency:  2,
		ThreadConcurrency:  2,
		CloseConcurrency:   2,
		PageSize:           100,
		DefaultTicketLimit: 10,
		TeamIDs:            map[string]string{"support": "team-1"},
	}
	logger := zap.NewNop()

	enricher := service.NewEnrichmentService(platform, autoCfg, logger)
	duplicates := service.NewDuplicateService(service.DuplicateDependencies{
		Source:   platform,
		Enricher: enricher,
	}, autoCfg, logger)
	closer := service.NewCloseService(platform, nil, autoCfg, logger)

	authCfg := config.AuthConfig{JWTSecret: "test-secret", OperatorKey: "magic", AccessTokenTTLMinutes: 5}
	tokens := auth.NewTokenManager(authCfg.JWTSecret, authCfg.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New()
	RegisterMiddlewares(app, logger, observability.NewMetrics(), 0)

	duplicatesHandler := handlers.NewDuplicatesHandler(duplicates, closer, autoCfg)
	authHandler := handlers.NewAuthHandler(tokens, authCfg)

	app.Post("/auth/token", authHandler.Token)
	app.Get("/api/tickets/checkduplicates", duplicatesHandler.CheckDuplicates)
	app.Get("/api/tickets/getteamduplicates", duplicatesHandler.TeamDuplicates)
	app.Post("/api/tickets/closetickets",
		authMiddleware.Handle, authMiddleware.RequireOperator, duplicatesHandler.CloseTickets)

	return app, platform
}

func postJSON(t *testing.T, app *fiber.App, path, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp.StatusCode, parsed
}

func operatorToken(t *testing.T, app *fiber.App) string {
	t.Helper()
	status, body := postJSON(t, app, "/auth/token", `{"operatorKey":"magic"}`, nil)
	require.Equal(t, 200, status)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestTokenExchangeRejectsWrongKey(t *testing.T) {
	app, _ := newTestApp(t, false)

	status, body := postJSON(t, app, "/auth/token", `{"operatorKey":"wrong"}`, nil)
	assert.Equal(t, 401, status)
	assert.Equal(t, false, body["success"])
}

func TestCloseTicketsRequiresToken(t *testing.T) {
	app, platform := newTestApp(t, true)

	status, body := postJSON(t, app, "/api/tickets/closetickets", `{"ticketIds":["1"]}`, nil)
	assert.Equal(t, 401, status)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, platform.closed)
}

func TestCloseTicketsValidation(t *testing.T) {
	app, platform := newTestApp(t, true)
	headers := map[string]string{"Authorization": "Bearer " + operatorToken(t, app)}

	cases := []struct {
		name string
		body string
	}{
		{"empty list", `{"ticketIds":[]}`},
		{"not an array", `{"ticketIds":"abc"}`},
		{"boolean element", `{"ticketIds":[true]}`},
		{"blank string element", `{"ticketIds":["  "]}`},
		{"fractional number", `{"ticketIds":[1.5]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := postJSON(t, app, "/api/tickets/closetickets", tc.body, headers)
			assert.Equal(t, 400, status)
			assert.Equal(t, false, body["success"])
		})
	}
	assert.Empty(t, platform.closed, "no upstream call may precede validation")
}

func TestCloseTicketsDryRunPreviews(t *testing.T) {
	app, platform := newTestApp(t, false)
	headers := map[string]string{"Authorization": "Bearer " + operatorToken(t, app)}

	status, body := postJSON(t, app, "/api/tickets/closetickets", `{"ticketIds":["11","22"]}`, headers)
	require.Equal(t, 200, status)
	assert.Equal(t, true, body["success"])

	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dry-run", result["mode"])
	assert.ElementsMatch(t, []any{"11", "22"}, result["previewed"])
	assert.Empty(t, platform.closed)
}

func TestCloseTicketsAcceptsNumericIDs(t *testing.T) {
	app, platform := newTestApp(t, true)
	headers := map[string]string{"Authorization": "Bearer " + operatorToken(t, app)}

	status, body := postJSON(t, app, "/api/tickets/closetickets", `{"ticketIds":[123, "456"]}`, headers)
	require.Equal(t, 200, status)
	assert.Equal(t, true, body["success"])
	assert.ElementsMatch(t, []string{"123", "456"}, platform.closed)
}

func TestCheckDuplicatesRequiresTime(t *testing.T) {
	app, _ := newTestApp(t, false)

	for _, path := range []string{
		"/api/tickets/checkduplicates",
		"/api/tickets/checkduplicates?time=abc",
		"/api/tickets/checkduplicates?time=-5",
	} {
		req := httptest.NewRequest("GET", path, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 400, resp.StatusCode, path)
	}
}

func TestTeamDuplicatesNeverClosesInLiveMode(t *testing.T) {
	app, platform := newTestApp(t, true)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	platform.tickets = []domain.Ticket{
		{ID: "t1", Subject: "Router down", Email: "e@x.com", CreatedTime: base},
		{ID: "t2", Subject: "Still down", Email: "e@x.com", CreatedTime: base.Add(time.Minute)},
	}
	platform.threads = map[string][]domain.Thread{
		"t1": {{ID: "th1", Direction: domain.DirectionIn, CreatedTime: base}},
		"t2": {{ID: "th2", Direction: domain.DirectionIn, CreatedTime: base.Add(time.Minute)}},
	}
	platform.details = map[string]domain.Thread{
		"t1/th1": {ID: "th1", Content: "router down since monday"},
		"t2/th2": {ID: "th2", Content: "router down since monday"},
	}

	req := httptest.NewRequest("GET", "/api/tickets/getteamduplicates?team=support", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))

	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(1), body["totalDuplicateTickets"])

	// report-only: the caller closes via an explicit closetickets request
	closed, ok := body["closed"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dry-run", closed["mode"])
	assert.ElementsMatch(t, []any{"t2"}, closed["previewed"])
	assert.Empty(t, platform.closed)
}

func TestCheckDuplicatesUpstreamFailureIsUpstreamError(t *testing.T) {
	app, platform := newTestApp(t, false)
	platform.listErr = &helpdesk.UpstreamError{Operation: "list_tickets", StatusCode: 502, Message: "bad gateway"}

	req := httptest.NewRequest("GET", "/api/tickets/checkduplicates?time=3600", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))

	assert.Equal(t, 500, resp.StatusCode)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "UPSTREAM_ERROR", errBody["code"])
	assert.Contains(t, errBody["message"], "list_tickets")
}

func TestTeamDuplicatesRejectsUnknownTeam(t *testing.T) {
	app, _ := newTestApp(t, false)

	req := httptest.NewRequest("GET", "/api/tickets/getteamduplicates?team=nosuch", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/tickets/getteamduplicates?team=Support", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode, "team names resolve case-insensitively")
}
