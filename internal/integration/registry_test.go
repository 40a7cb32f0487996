package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/ratelimit"
)

// stubIntegration is a minimal adapter for registry tests: one echo action,
// authentication that accepts whatever api_key it is handed.
type stubIntegration struct {
	*BaseIntegration
}

func (s *stubIntegration) Authenticate(_ context.Context, params map[string]interface{}) (*Credential, error) {
	key, _ := params["api_key"].(string)
	if key == "" {
		return nil, apperrors.Unauthorized("api_key is required")
	}
	cred := &Credential{AccessToken: key}
	s.SetCredentials(cred)
	return cred, nil
}

func (s *stubIntegration) ValidateCredentials(_ context.Context) (bool, error) {
	return s.Credentials() != nil, nil
}

func stubProvider(id string, rl RateLimit) Provider {
	return Provider{
		ID: id,
		Build: func(cfg ProviderConfig) (Integration, error) {
			base := NewBaseIntegration(Descriptor{
				ID:          id,
				DisplayName: id,
				AuthType:    AuthOAuth2,
				RateLimit:   rl,
			})
			base.RegisterAction(ActionDefinition{
				ID:     "echo",
				Inputs: []Field{{Name: "value", Type: FieldString, Required: true}},
			}, func(_ context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
				return map[string]interface{}{"value": inputs["value"]}, nil
			})
			return &stubIntegration{BaseIntegration: base}, nil
		},
	}
}

type fakeCredStore struct {
	creds map[string]*Credential
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{creds: make(map[string]*Credential)}
}

func credKey(orgID, integrationID string) string { return orgID + "/" + integrationID }

func (f *fakeCredStore) Get(_ context.Context, orgID, integrationID string) (*Credential, error) {
	return f.creds[credKey(orgID, integrationID)].Clone(), nil
}

func (f *fakeCredStore) Set(_ context.Context, orgID, integrationID string, cred *Credential) error {
	f.creds[credKey(orgID, integrationID)] = cred.Clone()
	return nil
}

func (f *fakeCredStore) Delete(_ context.Context, orgID, integrationID string) error {
	delete(f.creds, credKey(orgID, integrationID))
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeCredStore) {
	t.Helper()
	store := newFakeCredStore()
	return NewRegistry(logger.NewNop(), ratelimit.New(), store), store
}

// TestRegistryDispatch tests that dispatch failure modes stay distinguishable.
func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown integration", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.ExecuteAction(ctx, "org-1", "fax-machine", "echo", nil)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeIntegrationNotFound))
	})

	t.Run("unknown action on a known integration", func(t *testing.T) {
		r, store := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"}))
		require.NoError(t, store.Set(ctx, "org-1", "slack", &Credential{AccessToken: "tok"}))

		_, err := r.ExecuteAction(ctx, "org-1", "slack", "teleport", nil)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeActionNotFound))
		assert.False(t, apperrors.Is(err, apperrors.CodeIntegrationNotFound))

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "slack", appErr.Details["integration_id"])
		assert.Equal(t, "teleport", appErr.Details["action_id"])
	})

	t.Run("unconfigured integration is forbidden", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		p := stubProvider("jira", RateLimit{})
		p.Configured = func(ProviderConfig) bool { return false }
		require.NoError(t, r.Register(p, ProviderConfig{ID: "jira"}))

		_, err := r.ExecuteAction(ctx, "org-1", "jira", "echo", map[string]interface{}{"value": "x"})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

		statuses := r.Statuses()
		require.Len(t, statuses, 1)
		assert.False(t, statuses[0].Configured)
	})

	t.Run("disabled catalog entry is forbidden", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		off := false
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack", Enabled: &off}))

		_, err := r.ExecuteAction(ctx, "org-1", "slack", "echo", map[string]interface{}{"value": "x"})
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("successful dispatch returns the handler output", func(t *testing.T) {
		r, store := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"}))
		require.NoError(t, store.Set(ctx, "org-1", "slack", &Credential{AccessToken: "tok"}))

		out, err := r.ExecuteAction(ctx, "org-1", "slack", "echo", map[string]interface{}{"value": "ping"})
		require.NoError(t, err)
		assert.Equal(t, "ping", out["value"])
	})

	t.Run("revoked credential blocks dispatch", func(t *testing.T) {
		r, store := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"}))
		require.NoError(t, store.Set(ctx, "org-1", "slack", &Credential{AccessToken: "tok", Revoked: true}))

		_, err := r.ExecuteAction(ctx, "org-1", "slack", "echo", map[string]interface{}{"value": "x"})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeCredentialRevoked))
	})

	t.Run("duplicate registration rejected", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"}))
		err := r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})
}

// TestRegistryRateLimit tests the dispatch-boundary budget.
func TestRegistryRateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("declared budget denies the overflow call", func(t *testing.T) {
		r, store := newTestRegistry(t)
		require.NoError(t, r.Register(
			stubProvider("slack", RateLimit{Requests: 2, Per: "minute"}),
			ProviderConfig{ID: "slack"},
		))
		require.NoError(t, store.Set(ctx, "org-1", "slack", &Credential{AccessToken: "tok"}))
		require.NoError(t, store.Set(ctx, "org-2", "slack", &Credential{AccessToken: "tok"}))

		inputs := map[string]interface{}{"value": "x"}
		_, err := r.ExecuteAction(ctx, "org-1", "slack", "echo", inputs)
		require.NoError(t, err)
		_, err = r.ExecuteAction(ctx, "org-1", "slack", "echo", inputs)
		require.NoError(t, err)

		_, err = r.ExecuteAction(ctx, "org-1", "slack", "echo", inputs)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeRateLimited))

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "slack", appErr.Details["integration_id"])
		retry, ok := appErr.Details["retry_after_seconds"].(int)
		require.True(t, ok)
		assert.GreaterOrEqual(t, retry, 1)

		// The window is keyed per organization; another tenant is unaffected.
		_, err = r.ExecuteAction(ctx, "org-2", "slack", "echo", inputs)
		assert.NoError(t, err)
	})

	t.Run("catalog override narrows the declared budget", func(t *testing.T) {
		r, store := newTestRegistry(t)
		require.NoError(t, r.Register(
			stubProvider("jira", RateLimit{Requests: 100, Per: "minute"}),
			ProviderConfig{ID: "jira", RateLimit: &RateLimitConfig{Requests: 1, Per: "minute"}},
		))
		require.NoError(t, store.Set(ctx, "org-1", "jira", &Credential{AccessToken: "tok"}))

		inputs := map[string]interface{}{"value": "x"}
		_, err := r.ExecuteAction(ctx, "org-1", "jira", "echo", inputs)
		require.NoError(t, err)
		_, err = r.ExecuteAction(ctx, "org-1", "jira", "echo", inputs)
		assert.True(t, apperrors.Is(err, apperrors.CodeRateLimited))
	})

	t.Run("bad override window fails registration", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		err := r.Register(
			stubProvider("jira", RateLimit{}),
			ProviderConfig{ID: "jira", RateLimit: &RateLimitConfig{Requests: 5, Per: "fortnight"}},
		)
		require.Error(t, err)
	})
}

// TestRegistryCredentialLifecycle tests connect, state reads and disconnect.
func TestRegistryCredentialLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("connection state follows the stored credential", func(t *testing.T) {
		r, store := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"}))

		state, err := r.ConnectionState(ctx, "org-1", "slack")
		require.NoError(t, err)
		assert.Equal(t, StateUnauthenticated, state)

		require.NoError(t, r.SetCredential(ctx, "org-1", "slack", &Credential{
			AccessToken: "tok",
			ExpiresAt:   time.Now().Add(time.Hour),
		}))
		state, err = r.ConnectionState(ctx, "org-1", "slack")
		require.NoError(t, err)
		assert.Equal(t, StateAuthenticated, state)

		require.NoError(t, store.Set(ctx, "org-1", "slack", &Credential{
			AccessToken: "tok",
			ExpiresAt:   time.Now().Add(-time.Hour),
		}))
		state, err = r.ConnectionState(ctx, "org-1", "slack")
		require.NoError(t, err)
		assert.Equal(t, StateExpired, state)

		require.NoError(t, r.RemoveCredential(ctx, "org-1", "slack"))
		state, err = r.ConnectionState(ctx, "org-1", "slack")
		require.NoError(t, err)
		assert.Equal(t, StateUnauthenticated, state)
	})

	t.Run("set credential updates the cached instance", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"}))

		inst, err := r.GetIntegration(ctx, "org-1", "slack")
		require.NoError(t, err)
		assert.Nil(t, inst.Credentials())

		require.NoError(t, r.SetCredential(ctx, "org-1", "slack", &Credential{AccessToken: "tok"}))
		assert.Equal(t, "tok", inst.Credentials().AccessToken)
	})

	t.Run("remove credential evicts the cached instance", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"}))
		require.NoError(t, r.SetCredential(ctx, "org-1", "slack", &Credential{AccessToken: "tok"}))

		inst, err := r.GetIntegration(ctx, "org-1", "slack")
		require.NoError(t, err)
		require.NotNil(t, inst.Credentials())

		require.NoError(t, r.RemoveCredential(ctx, "org-1", "slack"))

		rebuilt, err := r.GetIntegration(ctx, "org-1", "slack")
		require.NoError(t, err)
		assert.Nil(t, rebuilt.Credentials())
	})

	t.Run("organizations get isolated instances", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("slack", RateLimit{}), ProviderConfig{ID: "slack"}))

		require.NoError(t, r.SetCredential(ctx, "org-1", "slack", &Credential{AccessToken: "tok-1"}))

		one, err := r.GetIntegration(ctx, "org-1", "slack")
		require.NoError(t, err)
		two, err := r.GetIntegration(ctx, "org-2", "slack")
		require.NoError(t, err)

		assert.Equal(t, "tok-1", one.Credentials().AccessToken)
		assert.Nil(t, two.Credentials())
	})

	t.Run("authenticate persists the credential", func(t *testing.T) {
		r, store := newTestRegistry(t)
		require.NoError(t, r.Register(stubProvider("mailer", RateLimit{}), ProviderConfig{ID: "mailer"}))

		cred, err := r.Authenticate(ctx, "org-1", "mailer", map[string]interface{}{"api_key": "smtp-secret"})
		require.NoError(t, err)
		assert.Equal(t, "smtp-secret", cred.AccessToken)

		stored, err := store.Get(ctx, "org-1", "mailer")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "smtp-secret", stored.AccessToken)
	})

	t.Run("refreshed tokens are written back to the store", func(t *testing.T) {
		r, store := newTestRegistry(t)
		ref := &fakeRefresher{cred: &Credential{
			AccessToken:  "fresh",
			RefreshToken: "rt",
			ExpiresAt:    time.Now().Add(time.Hour),
		}}
		r.SetTokenRefresher(ref)
		require.NoError(t, r.Register(stubProvider("google-sheets", RateLimit{}), ProviderConfig{ID: "google-sheets"}))
		require.NoError(t, store.Set(ctx, "org-1", "google-sheets", &Credential{
			AccessToken:  "stale",
			RefreshToken: "rt",
			ExpiresAt:    time.Now().Add(-time.Minute),
		}))

		inst, err := r.GetIntegration(ctx, "org-1", "google-sheets")
		require.NoError(t, err)

		_, err = inst.RefreshToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, ref.calls)

		stored, err := store.Get(ctx, "org-1", "google-sheets")
		require.NoError(t, err)
		assert.Equal(t, "fresh", stored.AccessToken, "the persistence hook must reach the store")
	})
}
