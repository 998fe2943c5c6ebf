package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/desk-automation/internal/api/http/handlers"
	"github.com/spec-kit/desk-automation/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Duplicates     *handlers.DuplicatesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Read-only detection endpoints are open;
// endpoints that can mutate upstream tickets require an operator token.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/token", cfg.Auth.Token)

	tickets := app.Group("/api/tickets")
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/checkduplicates", cfg.Duplicates.CheckDuplicates)
	tickets.Get("/checkduplicatesbyteam", cfg.Duplicates.CheckDuplicatesByTeam)
	tickets.Get("/getteamduplicates", cfg.Duplicates.TeamDuplicates)

	protected := tickets.Group("", cfg.AuthMiddleware.Handle, cfg.AuthMiddleware.RequireOperator)
	protected.Get("/autoreply", cfg.Tickets.AutoReply)
	protected.Get("/autoassign", cfg.Tickets.AutoAssign)
	protected.Post("/closetickets", cfg.Duplicates.CloseTickets)
}
