package integration

import (
	"context"
	"sync"
	"time"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// ActionHandler executes one action with schema-validated inputs.
type ActionHandler func(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)

const defaultActionTimeout = 30 * time.Second

// BaseIntegration carries the shared adapter machinery: the descriptor being
// assembled, the mutex-guarded credential slot, the action handler table, and
// the refresh plumbing. Concrete adapters embed it and add Authenticate and
// ValidateCredentials.
type BaseIntegration struct {
	mu         sync.RWMutex
	descriptor Descriptor
	cred       *Credential
	handlers   map[string]ActionHandler
	refresher  TokenRefresher
	onUpdate   func(*Credential)
	timeout    time.Duration
}

// NewBaseIntegration creates the shared adapter core from static metadata.
// Action and trigger schemas are added via RegisterAction/RegisterTrigger.
func NewBaseIntegration(desc Descriptor) *BaseIntegration {
	return &BaseIntegration{
		descriptor: desc,
		handlers:   make(map[string]ActionHandler),
		timeout:    defaultActionTimeout,
	}
}

// Descriptor returns the provider metadata including all registered schemas.
func (b *BaseIntegration) Descriptor() Descriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.descriptor
}

// ID returns the provider id.
func (b *BaseIntegration) ID() string {
	return b.descriptor.ID
}

// Actions returns the declared action schemas.
func (b *BaseIntegration) Actions() []ActionDefinition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.descriptor.Actions
}

// Triggers returns the declared trigger schemas.
func (b *BaseIntegration) Triggers() []TriggerDefinition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.descriptor.Triggers
}

// RegisterAction declares an action schema and binds its handler.
func (b *BaseIntegration) RegisterAction(def ActionDefinition, handler ActionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[def.ID] = handler
	b.descriptor.Actions = append(b.descriptor.Actions, def)
}

// RegisterTrigger declares a trigger schema.
func (b *BaseIntegration) RegisterTrigger(def TriggerDefinition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.descriptor.Triggers = append(b.descriptor.Triggers, def)
}

// SetTimeout overrides the per-action timeout.
func (b *BaseIntegration) SetTimeout(d time.Duration) {
	if d > 0 {
		b.timeout = d
	}
}

// SetTokenRefresher injects the refresh-token exchanger. Only oauth2
// providers use it.
func (b *BaseIntegration) SetTokenRefresher(r TokenRefresher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresher = r
}

// OnCredentialUpdate registers a hook fired whenever a refresh replaces the
// held credential, so the owner can persist it. The instance itself never
// writes to durable storage.
func (b *BaseIntegration) OnCredentialUpdate(fn func(*Credential)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUpdate = fn
}

// SetCredentials replaces the transient in-memory credential copy.
func (b *BaseIntegration) SetCredentials(cred *Credential) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cred = cred.Clone()
}

// Credentials returns a copy of the held credential, nil when none is set.
func (b *BaseIntegration) Credentials() *Credential {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cred.Clone()
}

// ExecuteAction looks the action up, validates inputs against its schema and
// runs the handler under the configured timeout. Unknown ids and schema
// violations fail before any I/O.
func (b *BaseIntegration) ExecuteAction(ctx context.Context, actionID string, inputs map[string]interface{}) (map[string]interface{}, error) {
	b.mu.RLock()
	handler, ok := b.handlers[actionID]
	def, defOK := b.descriptor.Action(actionID)
	timeout := b.timeout
	b.mu.RUnlock()

	if !ok || !defOK {
		return nil, errors.ActionNotFound(b.descriptor.ID, actionID)
	}

	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	if err := ValidateInputs(def, inputs); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return handler(ctx, inputs)
}

// RefreshToken exchanges the held refresh token for a fresh credential.
// Non-oauth2 providers and non-expiring tokens return the current credential
// unchanged. A missing refresh token fails explicitly without touching the
// network. A permanent rejection marks the credential revoked.
func (b *BaseIntegration) RefreshToken(ctx context.Context) (*Credential, error) {
	cred := b.Credentials()
	if cred == nil || cred.AccessToken == "" {
		return nil, errors.Unauthorized("integration " + b.descriptor.ID + " holds no credential")
	}

	if b.descriptor.AuthType != AuthOAuth2 || cred.ExpiresAt.IsZero() {
		return cred, nil
	}

	if !cred.CanRefresh() {
		return nil, errors.NoRefreshToken(b.descriptor.ID)
	}

	b.mu.RLock()
	refresher := b.refresher
	b.mu.RUnlock()
	if refresher == nil {
		return nil, errors.Internal("no token refresher configured for " + b.descriptor.ID)
	}

	fresh, err := refresher.Refresh(ctx, b.descriptor.ID, cred)
	if err != nil {
		if errors.Is(err, errors.CodeCredentialRevoked) {
			cred.Revoked = true
			b.storeCredentials(cred)
		}
		return nil, err
	}

	b.storeCredentials(fresh)
	return fresh.Clone(), nil
}

// storeCredentials replaces the slot and fires the persistence hook.
func (b *BaseIntegration) storeCredentials(cred *Credential) {
	b.mu.Lock()
	b.cred = cred.Clone()
	onUpdate := b.onUpdate
	b.mu.Unlock()

	if onUpdate != nil {
		onUpdate(cred.Clone())
	}
}
