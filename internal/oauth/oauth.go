// Package oauth runs the authorization-code flow for OAuth2 providers and
// refreshes their tokens. One handler serves every provider; a server-side
// state entry ties the callback to the organization and provider that
// started the flow.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
)

// stateTTL bounds how long an authorization flow may stay open.
const stateTTL = 10 * time.Minute

// ClientConfig is the per-provider OAuth2 client registration.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	// Offline requests a refresh token on first consent. Google endpoints
	// only hand one out with access_type=offline and forced approval.
	Offline bool
}

// pendingState is one in-flight authorization flow.
type pendingState struct {
	orgID         string
	integrationID string
	userID        string
	expiresAt     time.Time
}

// Handler drives authorization flows and token refreshes. It implements
// integration.TokenRefresher.
type Handler struct {
	logger      *logger.Logger
	redirectURL string
	now         func() time.Time

	mu      sync.Mutex
	configs map[string]*oauth2.Config
	offline map[string]bool
	pending map[string]pendingState
}

// NewHandler creates a handler whose providers all share one callback URL.
func NewHandler(log *logger.Logger, redirectURL string) *Handler {
	return &Handler{
		logger:      log.WithComponent("oauth"),
		redirectURL: redirectURL,
		now:         time.Now,
		configs:     make(map[string]*oauth2.Config),
		offline:     make(map[string]bool),
		pending:     make(map[string]pendingState),
	}
}

// RegisterProvider adds an OAuth2 client for one integration.
func (h *Handler) RegisterProvider(integrationID string, cfg ClientConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.configs[integrationID] = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  h.redirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
	h.offline[integrationID] = cfg.Offline
}

// AuthorizeURL starts an authorization flow and returns the provider URL to
// redirect the user to. The returned state is single-use and expires.
func (h *Handler) AuthorizeURL(orgID, userID, integrationID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, ok := h.configs[integrationID]
	if !ok {
		return "", apperrors.IntegrationNotFound(integrationID)
	}

	state, err := generateState()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternalError, "failed to generate oauth state")
	}

	h.prunePendingLocked()
	h.pending[state] = pendingState{
		orgID:         orgID,
		integrationID: integrationID,
		userID:        userID,
		expiresAt:     h.now().Add(stateTTL),
	}

	var opts []oauth2.AuthCodeOption
	if h.offline[integrationID] {
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// ExchangeResult carries everything the callback needs to persist a new
// connection.
type ExchangeResult struct {
	OrgID         string
	UserID        string
	IntegrationID string
	Credential    *integration.Credential
}

// Exchange completes the flow for a callback. The state ties the code back
// to the organization that initiated it; an unknown or expired state is
// rejected before any provider call.
func (h *Handler) Exchange(ctx context.Context, state, code string) (*ExchangeResult, error) {
	h.mu.Lock()
	ps, ok := h.pending[state]
	if ok {
		delete(h.pending, state)
	}
	cfg := h.configs[ps.integrationID]
	h.mu.Unlock()

	if !ok || h.now().After(ps.expiresAt) {
		return nil, apperrors.BadRequest("invalid or expired oauth state")
	}
	if cfg == nil {
		return nil, apperrors.IntegrationNotFound(ps.integrationID)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUpstream,
			fmt.Sprintf("oauth code exchange for %q failed", ps.integrationID))
	}

	h.logger.Info("oauth flow completed",
		"integration_id", ps.integrationID,
		"organization_id", ps.orgID,
		"has_refresh_token", token.RefreshToken != "",
	)

	return &ExchangeResult{
		OrgID:         ps.orgID,
		UserID:        ps.userID,
		IntegrationID: ps.integrationID,
		Credential:    credentialFromToken(token),
	}, nil
}

// Refresh exchanges the refresh token for a new access token. A missing
// refresh token fails immediately, before any network call. A rejection by
// the provider is permanent; transport failures are not.
func (h *Handler) Refresh(ctx context.Context, integrationID string, cred *integration.Credential) (*integration.Credential, error) {
	if cred == nil || !cred.CanRefresh() {
		return nil, apperrors.NoRefreshToken(integrationID)
	}

	h.mu.Lock()
	cfg, ok := h.configs[integrationID]
	h.mu.Unlock()
	if !ok {
		return nil, apperrors.Internal(fmt.Sprintf("no oauth client configured for %q", integrationID))
	}

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if stderrors.As(err, &rerr) && rerr.Response != nil &&
			(rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized) {
			reason := rerr.ErrorCode
			if reason == "" {
				reason = fmt.Sprintf("refresh rejected with status %d", rerr.Response.StatusCode)
			}
			return nil, apperrors.CredentialRevoked(integrationID, reason)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeUpstream,
			fmt.Sprintf("token refresh for %q failed", integrationID))
	}

	fresh := credentialFromToken(token)
	// Providers may omit the refresh token on rotation; keep the one we hold.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	fresh.Scope = cred.Scope

	h.logger.Debug("access token refreshed",
		"integration_id", integrationID,
		"expires_at", fresh.ExpiresAt,
	)
	return fresh, nil
}

// prunePendingLocked drops expired flows. Caller holds the mutex.
func (h *Handler) prunePendingLocked() {
	now := h.now()
	for state, ps := range h.pending {
		if now.After(ps.expiresAt) {
			delete(h.pending, state)
		}
	}
}

// credentialFromToken converts an oauth2 token to the stored form.
func credentialFromToken(t *oauth2.Token) *integration.Credential {
	return &integration.Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresAt:    t.Expiry,
	}
}

// generateState returns a random URL-safe state value.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
