package helpdesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/persistence"
)

// ErrRefreshTokenMissing is returned when no refresh token is configured.
// Credential failure is fatal; there is no silent fallback.
var ErrRefreshTokenMissing = errors.New("helpdesk: refresh token missing")

// renewMargin is how long before nominal expiry a token is refreshed.
const renewMargin = 60 * time.Second

const tokenCacheKey = "desk-automation:helpdesk:access_token"

// CredentialProvider owns the OAuth access-token state for the helpdesk
// API. Token is its only public operation. Concurrent callers needing a
// refresh share a single in-flight token-endpoint call.
type CredentialProvider struct {
	cfg    config.HelpdeskConfig
	client *http.Client
	cache  *persistence.Redis
	logger *zap.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewCredentialProvider builds a provider. cache may be nil; it is only a
// best-effort mirror so restarts reuse a live token.
func NewCredentialProvider(cfg config.HelpdeskConfig, client *http.Client, cache *persistence.Redis, logger *zap.Logger) *CredentialProvider {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	return &CredentialProvider{cfg: cfg, client: client, cache: cache, logger: logger}
}

// Token returns a fresh access token, refreshing it when the cached one is
// within the renewal margin of expiry.
func (p *CredentialProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, expiresAt := p.token, p.expiresAt
	p.mu.RUnlock()

	if token != "" && time.Until(expiresAt) > renewMargin {
		return token, nil
	}

	if token == "" {
		if mirrored := p.loadMirror(ctx); mirrored != "" {
			return mirrored, nil
		}
	}

	result, err, _ := p.group.Do("refresh", func() (any, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (p *CredentialProvider) refresh(ctx context.Context) (string, error) {
	if p.cfg.RefreshToken == "" {
		return "", ErrRefreshTokenMissing
	}

	params := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"refresh_token": {p.cfg.RefreshToken},
	}
	endpoint := strings.TrimRight(p.cfg.AccountsURL, "/") + "/oauth/v2/token?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("helpdesk: token refresh: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("helpdesk: token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("helpdesk: token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("helpdesk: token response missing access_token")
	}

	lifetime := p.cfg.TokenLifetime()
	if payload.ExpiresIn > 0 {
		lifetime = time.Duration(payload.ExpiresIn) * time.Second
	}
	expiresAt := time.Now().Add(lifetime)

	p.mu.Lock()
	p.token = payload.AccessToken
	p.expiresAt = expiresAt
	p.mu.Unlock()

	p.storeMirror(ctx, payload.AccessToken, expiresAt)
	if p.logger != nil {
		p.logger.Info("helpdesk access token refreshed", zap.Time("expires_at", expiresAt))
	}
	return payload.AccessToken, nil
}

// loadMirror recovers a token cached by a previous process. The mirrored
// entry stores "token|unix-expiry"; entries inside the renewal margin are
// ignored.
func (p *CredentialProvider) loadMirror(ctx context.Context) string {
	if p.cache == nil {
		return ""
	}
	entry := p.cache.GetString(ctx, tokenCacheKey)
	token, expiryRaw, ok := strings.Cut(entry, "|")
	if !ok || token == "" {
		return ""
	}
	unix, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil {
		return ""
	}
	expiresAt := time.Unix(unix, 0)
	if time.Until(expiresAt) <= renewMargin {
		return ""
	}
	p.mu.Lock()
	p.token = token
	p.expiresAt = expiresAt
	p.mu.Unlock()
	return token
}

func (p *CredentialProvider) storeMirror(ctx context.Context, token string, expiresAt time.Time) {
	if p.cache == nil {
		return
	}
	entry := token + "|" + strconv.FormatInt(expiresAt.Unix(), 10)
	p.cache.SetString(ctx, tokenCacheKey, entry, time.Until(expiresAt))
}
