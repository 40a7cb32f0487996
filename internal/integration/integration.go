// Package integration defines the uniform contract every provider adapter
// implements, plus the shared pieces the adapters are built from: the
// credential lifecycle, declarative action/trigger schemas, schema-checked
// dispatch, and the authenticated HTTP request path.
package integration

import (
	"context"
	"time"
)

// AuthType identifies how a provider authenticates requests.
type AuthType string

const (
	AuthOAuth2 AuthType = "oauth2"
	AuthAPIKey AuthType = "apikey"
	AuthBasic  AuthType = "basic"
)

// Integration is the surface every provider adapter exposes. Concrete
// adapters embed BaseIntegration for the dispatch plumbing and implement
// Authenticate and ValidateCredentials themselves.
type Integration interface {
	// Descriptor returns the static provider metadata.
	Descriptor() Descriptor

	// Authenticate exchanges a provider-specific proof (authorization code,
	// API key, username/password) for a credential. It mutates nothing
	// beyond this instance's credential slot.
	Authenticate(ctx context.Context, params map[string]interface{}) (*Credential, error)

	// RefreshToken exchanges the held refresh token for a new access token.
	// Providers whose tokens do not expire return the current credential
	// unchanged. Holding no refresh token is an explicit error, not a
	// network call.
	RefreshToken(ctx context.Context) (*Credential, error)

	// ValidateCredentials performs a cheap read-only call to confirm the
	// held credential still works. No side effects on the provider.
	ValidateCredentials(ctx context.Context) (bool, error)

	// ExecuteAction dispatches a declared action. Unknown action ids and
	// inputs missing required fields are precondition violations.
	ExecuteAction(ctx context.Context, actionID string, inputs map[string]interface{}) (map[string]interface{}, error)

	// Actions returns the declared action schemas. Pure, no I/O.
	Actions() []ActionDefinition

	// Triggers returns the declared trigger schemas. Pure, no I/O.
	Triggers() []TriggerDefinition

	// SetCredentials replaces the transient in-memory credential copy.
	// The instance never persists credentials itself.
	SetCredentials(cred *Credential)

	// Credentials returns the held credential, nil when unauthenticated.
	Credentials() *Credential
}

// TokenRefresher exchanges refresh tokens for new access tokens. Implemented
// by the OAuth handler and injected into oauth2 integrations.
type TokenRefresher interface {
	Refresh(ctx context.Context, integrationID string, cred *Credential) (*Credential, error)
}

// CredentialState describes where a credential sits in its lifecycle.
type CredentialState string

const (
	StateUnauthenticated CredentialState = "unauthenticated"
	StateAuthenticated   CredentialState = "authenticated"
	StateExpired         CredentialState = "expired"
	StateRevoked         CredentialState = "revoked"
)

// Credential holds the token material authorizing calls to one provider on
// behalf of one organization. For apikey providers AccessToken carries the
// key (Username the key id where the provider pairs them); for basic
// providers Username/AccessToken carry the basic-auth pair.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Username     string    `json:"username,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Revoked      bool      `json:"revoked,omitempty"`

	// Extra carries provider-specific connection settings that belong to
	// the credential rather than the catalog, like a Jira site URL.
	Extra map[string]string `json:"extra,omitempty"`
}

// Expired reports whether the access token is past its expiry. A zero
// ExpiresAt means the token never expires.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}

// CanRefresh reports whether a refresh token is held.
func (c *Credential) CanRefresh() bool {
	return c != nil && c.RefreshToken != ""
}

// State derives the lifecycle state at the given instant.
func (c *Credential) State(now time.Time) CredentialState {
	switch {
	case c == nil || c.AccessToken == "":
		return StateUnauthenticated
	case c.Revoked:
		return StateRevoked
	case c.Expired(now):
		return StateExpired
	default:
		return StateAuthenticated
	}
}

// Clone returns a copy so callers cannot mutate a shared credential.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Extra != nil {
		cp.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}
