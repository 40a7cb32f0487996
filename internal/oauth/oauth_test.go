package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
)

func newTestHandler(t *testing.T, tokenURL string, offline bool) *Handler {
	t.Helper()
	h := NewHandler(logger.NewNop(), "http://localhost:8090/api/v1/integrations/oauth/callback")
	h.RegisterProvider("google-sheets", ClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      "https://accounts.example.com/auth",
		TokenURL:     tokenURL,
		Scopes:       []string{"spreadsheets.readonly"},
		Offline:      offline,
	})
	return h
}

func stateFromAuthorizeURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// TestAuthorizeURL tests flow initiation and the state it mints.
func TestAuthorizeURL(t *testing.T) {
	t.Run("carries client, redirect and state", func(t *testing.T) {
		h := newTestHandler(t, "https://accounts.example.com/token", false)

		raw, err := h.AuthorizeURL("org-1", "user-1", "google-sheets")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "client-id", q.Get("client_id"))
		assert.Equal(t, "http://localhost:8090/api/v1/integrations/oauth/callback", q.Get("redirect_uri"))
		assert.Equal(t, "spreadsheets.readonly", q.Get("scope"))
		assert.NotEmpty(t, q.Get("state"))
		assert.Empty(t, q.Get("access_type"))
	})

	t.Run("offline providers ask for a refresh token", func(t *testing.T) {
		h := newTestHandler(t, "https://accounts.example.com/token", true)

		raw, err := h.AuthorizeURL("org-1", "user-1", "google-sheets")
		require.NoError(t, err)

		q, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "offline", q.Query().Get("access_type"))
		assert.Equal(t, "force", q.Query().Get("approval_prompt"))
	})

	t.Run("unknown provider", func(t *testing.T) {
		h := newTestHandler(t, "https://accounts.example.com/token", false)

		_, err := h.AuthorizeURL("org-1", "user-1", "fax-machine")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeIntegrationNotFound))
	})

	t.Run("each flow gets its own state", func(t *testing.T) {
		h := newTestHandler(t, "https://accounts.example.com/token", false)

		a, err := h.AuthorizeURL("org-1", "user-1", "google-sheets")
		require.NoError(t, err)
		b, err := h.AuthorizeURL("org-1", "user-1", "google-sheets")
		require.NoError(t, err)
		assert.NotEqual(t, stateFromAuthorizeURL(t, a), stateFromAuthorizeURL(t, b))
	})
}

// TestExchange tests callback completion against a fake token endpoint.
func TestExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("completes the flow it started", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
			assert.Equal(t, "the-code", r.Form.Get("code"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`))
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		raw, err := h.AuthorizeURL("org-1", "user-1", "google-sheets")
		require.NoError(t, err)
		state := stateFromAuthorizeURL(t, raw)

		res, err := h.Exchange(ctx, state, "the-code")
		require.NoError(t, err)
		assert.Equal(t, "org-1", res.OrgID)
		assert.Equal(t, "user-1", res.UserID)
		assert.Equal(t, "google-sheets", res.IntegrationID)
		require.NotNil(t, res.Credential)
		assert.Equal(t, "at", res.Credential.AccessToken)
		assert.Equal(t, "rt", res.Credential.RefreshToken)
		assert.False(t, res.Credential.ExpiresAt.IsZero())
	})

	t.Run("state is single use", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at","token_type":"Bearer"}`))
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		raw, err := h.AuthorizeURL("org-1", "user-1", "google-sheets")
		require.NoError(t, err)
		state := stateFromAuthorizeURL(t, raw)

		_, err = h.Exchange(ctx, state, "the-code")
		require.NoError(t, err)

		_, err = h.Exchange(ctx, state, "the-code")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
	})

	t.Run("unknown state", func(t *testing.T) {
		h := newTestHandler(t, "https://accounts.example.com/token", false)

		_, err := h.Exchange(ctx, "forged", "the-code")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
	})

	t.Run("expired state", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		start := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
		h.now = func() time.Time { return start }

		raw, err := h.AuthorizeURL("org-1", "user-1", "google-sheets")
		require.NoError(t, err)
		state := stateFromAuthorizeURL(t, raw)

		h.now = func() time.Time { return start.Add(11 * time.Minute) }
		_, err = h.Exchange(ctx, state, "the-code")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
		assert.Equal(t, int32(0), atomic.LoadInt32(&hits), "expired state must not reach the provider")
	})

	t.Run("provider rejecting the code is an upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		raw, err := h.AuthorizeURL("org-1", "user-1", "google-sheets")
		require.NoError(t, err)

		_, err = h.Exchange(ctx, stateFromAuthorizeURL(t, raw), "bad-code")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeUpstream))
	})
}

// TestRefresh tests the refresh contract: no-token failures stay local,
// rejections are permanent, transport failures are not.
func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("no refresh token fails without any network call", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		_, err := h.Refresh(ctx, "google-sheets", &integration.Credential{AccessToken: "at"})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeCredentialRevoked))
		assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
	})

	t.Run("success keeps the held refresh token when the provider omits it", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
			assert.Equal(t, "rt", r.Form.Get("refresh_token"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`))
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		fresh, err := h.Refresh(ctx, "google-sheets", &integration.Credential{
			AccessToken:  "at-1",
			RefreshToken: "rt",
			Scope:        "spreadsheets.readonly",
		})
		require.NoError(t, err)
		assert.Equal(t, "at-2", fresh.AccessToken)
		assert.Equal(t, "rt", fresh.RefreshToken)
		assert.Equal(t, "spreadsheets.readonly", fresh.Scope)
	})

	t.Run("rotated refresh token replaces the held one", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","refresh_token":"rt-2","expires_in":3600}`))
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		fresh, err := h.Refresh(ctx, "google-sheets", &integration.Credential{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "rt-2", fresh.RefreshToken)
	})

	t.Run("provider rejection marks the credential revoked", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		_, err := h.Refresh(ctx, "google-sheets", &integration.Credential{
			AccessToken:  "at",
			RefreshToken: "rt",
		})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeCredentialRevoked))
		assert.Contains(t, err.Error(), "invalid_grant")
	})

	t.Run("provider outage is retryable, not a revocation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		h := newTestHandler(t, srv.URL, false)
		_, err := h.Refresh(ctx, "google-sheets", &integration.Credential{
			AccessToken:  "at",
			RefreshToken: "rt",
		})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeUpstream))
		assert.False(t, apperrors.Is(err, apperrors.CodeCredentialRevoked))
	})

	t.Run("unregistered provider", func(t *testing.T) {
		h := NewHandler(logger.NewNop(), "http://localhost:8090/callback")
		_, err := h.Refresh(ctx, "slack", &integration.Credential{RefreshToken: "rt"})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeInternalError))
	})
}
