package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Helpdesk     HelpdeskConfig
	AI           AIConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Automation   AutomationConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// HelpdeskConfig holds upstream helpdesk API credentials and endpoints.
type HelpdeskConfig struct {
	BaseURL          string
	AccountsURL      string
	ClientID         string
	ClientSecret     string
	RefreshToken     string
	OrgID            string
	FromEmail        string
	TokenScheme      string
	TokenLifetimeSec int
	HTTPTimeoutSec   int
}

// AIConfig configures the AI text service collaborator.
type AIConfig struct {
	APIKey string
	Model  string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines operator authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	OperatorKey           string
	AccessTokenTTLMinutes int
}

// AutomationConfig controls the ticket automation workflows.
type AutomationConfig struct {
	LiveMode           bool
	EnrichConcurrency  int
	ThreadConcurrency  int
	CloseConcurrency   int
	PageSize           int
	TeamIDs            map[string]string
	CSTeamID           string
	CSAgentIDs         []string
	HotspotTeamID      string
	HotspotAgentID     string
	AccountTeamID      string
	SweepSchedule      string
	SweepMaxAgeSeconds int
	DefaultTicketLimit int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	teamIDs, err := parseTeamIDs(os.Getenv("HELPDESK_TEAM_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid HELPDESK_TEAM_IDS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "desk-automation"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 120),
		},
		Helpdesk: HelpdeskConfig{
			BaseURL:          getEnv("HELPDESK_BASE_URL", "https://desk.zoho.com/api/v1"),
			AccountsURL:      getEnv("ACCOUNTS_URL", "https://accounts.zoho.com"),
			ClientID:         os.Getenv("CLIENT_ID"),
			ClientSecret:     os.Getenv("CLIENT_SECRET"),
			RefreshToken:     os.Getenv("REFRESH_TOKEN"),
			OrgID:            os.Getenv("ORG_ID"),
			FromEmail:        os.Getenv("FROM_EMAIL"),
			TokenScheme:      getEnv("HELPDESK_TOKEN_SCHEME", "Zoho-oauthtoken"),
			TokenLifetimeSec: getEnvAsInt("HELPDESK_TOKEN_LIFETIME_SECONDS", 3600),
			HTTPTimeoutSec:   getEnvAsInt("HELPDESK_HTTP_TIMEOUT_SECONDS", 30),
		},
		AI: AIConfig{
			APIKey: os.Getenv("AI_API_KEY"),
			Model:  getEnv("AI_MODEL", "claude-sonnet-4-5-20250929"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			OperatorKey:           os.Getenv("AUTH_OPERATOR_KEY"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Automation: AutomationConfig{
			LiveMode:           getEnvAsBool("AUTOMATION_LIVE_MODE", false),
			EnrichConcurrency:  getEnvAsInt("AUTOMATION_ENRICH_CONCURRENCY", 5),
			ThreadConcurrency:  getEnvAsInt("AUTOMATION_THREAD_CONCURRENCY", 3),
			CloseConcurrency:   getEnvAsInt("AUTOMATION_CLOSE_CONCURRENCY", 5),
			PageSize:           getEnvAsInt("AUTOMATION_PAGE_SIZE", 100),
			TeamIDs:            teamIDs,
			CSTeamID:           os.Getenv("AUTOMATION_CS_TEAM_ID"),
			CSAgentIDs:         splitList(os.Getenv("AUTOMATION_CS_AGENT_IDS")),
			HotspotTeamID:      os.Getenv("AUTOMATION_HOTSPOT_TEAM_ID"),
			HotspotAgentID:     os.Getenv("AUTOMATION_HOTSPOT_AGENT_ID"),
			AccountTeamID:      os.Getenv("AUTOMATION_ACCOUNT_TEAM_ID"),
			SweepSchedule:      os.Getenv("AUTOMATION_SWEEP_SCHEDULE"),
			SweepMaxAgeSeconds: getEnvAsInt("AUTOMATION_SWEEP_MAX_AGE_SECONDS", 3600),
			DefaultTicketLimit: getEnvAsInt("AUTOMATION_DEFAULT_TICKET_LIMIT", 10),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the upstream HTTP client timeout.
func (h HelpdeskConfig) HTTPTimeout() time.Duration {
	if h.HTTPTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(h.HTTPTimeoutSec) * time.Second
}

// TokenLifetime returns the nominal access-token lifetime.
func (h HelpdeskConfig) TokenLifetime() time.Duration {
	if h.TokenLifetimeSec <= 0 {
		return time.Hour
	}
	return time.Duration(h.TokenLifetimeSec) * time.Second
}

// TeamID resolves a case-insensitive team name to its upstream id.
func (a AutomationConfig) TeamID(name string) (string, bool) {
	id, ok := a.TeamIDs[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

func parseTeamIDs(raw string) (map[string]string, error) {
	teams := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return teams, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, id, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("malformed pair %q", pair)
		}
		teams[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(id)
	}
	return teams, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
