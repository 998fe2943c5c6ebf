package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/ai"
	httptransport "github.com/spec-kit/desk-automation/internal/api/http"
	"github.com/spec-kit/desk-automation/internal/api/http/handlers"
	"github.com/spec-kit/desk-automation/internal/auth"
	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/events"
	"github.com/spec-kit/desk-automation/internal/helpdesk"
	"github.com/spec-kit/desk-automation/internal/observability"
	"github.com/spec-kit/desk-automation/internal/persistence"
	"github.com/spec-kit/desk-automation/internal/service"
	"github.com/spec-kit/desk-automation/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	httpClient := &http.Client{Timeout: cfg.Helpdesk.HTTPTimeout()}
	credentials := helpdesk.NewCredentialProvider(cfg.Helpdesk, httpClient, redis, logger)
	deskClient := helpdesk.NewClient(cfg.Helpdesk, credentials, httpClient, logger, metrics)
	analyzer := ai.NewClient(cfg.AI, logger)

	dispatcher := events.NewInMemoryDispatcher(logger)

	enricher := service.NewEnrichmentService(deskClient, cfg.Automation, logger)
	duplicates := service.NewDuplicateService(service.DuplicateDependencies{
		Source:     deskClient,
		Enricher:   enricher,
		Dispatcher: dispatcher,
	}, cfg.Automation, logger)
	closer := service.NewCloseService(deskClient, dispatcher, cfg.Automation, logger)
	autoReply := service.NewAutoReplyService(service.AutoReplyDependencies{
		Source:     deskClient,
		Mutator:    deskClient,
		Enricher:   enricher,
		Analyzer:   analyzer,
		Dispatcher: dispatcher,
	}, cfg.Automation, logger)
	routing := service.NewRoutingService(service.RoutingDependencies{
		Source:     deskClient,
		Mutator:    deskClient,
		Enricher:   enricher,
		Analyzer:   analyzer,
		Dispatcher: dispatcher,
	}, cfg.Automation, logger)

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications.RegisterHandlers()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, redis),
		Auth:           handlers.NewAuthHandler(tokens, cfg.Auth),
		Tickets:        handlers.NewTicketsHandler(deskClient, autoReply, routing, cfg.Automation),
		Duplicates:     handlers.NewDuplicatesHandler(duplicates, closer, cfg.Automation),
		AuthMiddleware: authMiddleware,
	})

	sweeper := worker.NewSweeper(cfg.Automation.SweepSchedule, sweepJob(duplicates, closer, cfg.Automation, logger), logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("failed to start sweeper", zap.Error(err))
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	sweeper.Stop()
	_ = app.Shutdown()
}

// sweepJob builds the scheduled run: detect duplicates over the configured
// age window and close them under the process-wide mode.
func sweepJob(detector *service.DuplicateService, closer *service.CloseService, cfg config.AutomationConfig, logger *zap.Logger) worker.SweepJob {
	return func(ctx context.Context) {
		report, err := detector.Detect(ctx, service.DetectInput{
			Strategy: service.StrategyConservative,
			MaxAge:   time.Duration(cfg.SweepMaxAgeSeconds) * time.Second,
		})
		if err != nil {
			logger.Error("duplicate sweep failed", zap.Error(err))
			return
		}

		outcome := closer.CloseGroups(ctx, report.Groups, domain.ModeFor(cfg.LiveMode))
		logger.Info("duplicate sweep finished",
			zap.String("run_id", report.RunID),
			zap.Int("tickets_checked", len(report.All)),
			zap.Int("duplicates", report.DuplicateCount()),
			zap.Int("closed", len(outcome.Closed)),
			zap.Int("previewed", len(outcome.Previewed)),
			zap.Int("failed", len(outcome.Failed)))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
