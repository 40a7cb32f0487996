package integration

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/ratelimit"
)

// Provider constructs instances of one integration family. Build is called
// once per organization; Configured reports whether the catalog entry carries
// everything the provider needs at deploy time (per-organization credentials
// arrive later through the connect flow).
type Provider struct {
	ID         string
	Build      func(cfg ProviderConfig) (Integration, error)
	Configured func(cfg ProviderConfig) bool
}

// CredentialStore persists per-organization credentials. Get returns nil
// without error when no credential is stored.
type CredentialStore interface {
	Get(ctx context.Context, orgID, integrationID string) (*Credential, error)
	Set(ctx context.Context, orgID, integrationID string, cred *Credential) error
	Delete(ctx context.Context, orgID, integrationID string) error
}

// refreshable is satisfied by instances that can have a token refresher
// injected. BaseIntegration implements it.
type refreshable interface {
	SetTokenRefresher(TokenRefresher)
}

// credentialNotifier is satisfied by instances that announce credential
// changes, so refreshed tokens can be written back to the store.
type credentialNotifier interface {
	OnCredentialUpdate(func(*Credential))
}

// ProviderStatus is the catalog view of one provider.
type ProviderStatus struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	AuthType    AuthType `json:"auth_type"`
	Configured  bool     `json:"is_configured"`
	Actions     int      `json:"actions"`
	Triggers    int      `json:"triggers"`
}

// registration is one provider plus its deploy-time state.
type registration struct {
	provider   Provider
	config     ProviderConfig
	prototype  Integration
	configured bool
	limit      ratelimit.Limit
}

// defaultRateLimit applies when neither the provider descriptor nor the
// catalog names a budget.
func defaultRateLimit() ratelimit.Limit {
	return ratelimit.Limit{Requests: 60, Per: ratelimit.PerMinute}
}

// Registry is the process-wide integration catalog. It owns provider
// registrations, a per-organization instance cache, rate limiting at the
// dispatch boundary, and credential persistence wiring. Handlers and the
// workflow runner go through the registry; nothing else touches provider
// instances directly.
type Registry struct {
	logger    *logger.Logger
	limiter   *ratelimit.Limiter
	store     CredentialStore
	refresher TokenRefresher
	now       func() time.Time

	mu        sync.RWMutex
	providers map[string]*registration
	order     []string
	instances map[string]Integration
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger, limiter *ratelimit.Limiter, store CredentialStore) *Registry {
	return &Registry{
		logger:    log.WithComponent("integration_registry"),
		limiter:   limiter,
		store:     store,
		now:       time.Now,
		providers: make(map[string]*registration),
		instances: make(map[string]Integration),
	}
}

// SetTokenRefresher injects the refresher handed to every OAuth2 instance.
// Call before Register.
func (r *Registry) SetTokenRefresher(tr TokenRefresher) {
	r.refresher = tr
}

// Register adds a provider under its catalog configuration. The prototype
// instance built here backs descriptor listings; it never carries
// credentials.
func (r *Registry) Register(p Provider, cfg ProviderConfig) error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if p.Build == nil {
		return fmt.Errorf("provider %q has no builder", p.ID)
	}

	prototype, err := p.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to build provider %q: %w", p.ID, err)
	}

	limit := defaultRateLimit()
	if rl := prototype.Descriptor().RateLimit; !rl.Zero() {
		limit = ratelimit.Limit{Requests: rl.Requests, Per: ratelimit.PerMinute}
		if w, err := ratelimit.ParseWindow(rl.Per); err == nil {
			limit.Per = w
		}
	}
	if cfg.RateLimit != nil && cfg.RateLimit.Requests > 0 {
		w, err := ratelimit.ParseWindow(cfg.RateLimit.Per)
		if err != nil {
			return fmt.Errorf("provider %q: %w", p.ID, err)
		}
		limit = ratelimit.Limit{Requests: cfg.RateLimit.Requests, Per: w}
	}

	configured := cfg.IsEnabled() && (p.Configured == nil || p.Configured(cfg))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.ID]; exists {
		return fmt.Errorf("provider %q already registered", p.ID)
	}

	r.providers[p.ID] = &registration{
		provider:   p,
		config:     cfg,
		prototype:  prototype,
		configured: configured,
		limit:      limit,
	}
	r.order = append(r.order, p.ID)

	r.logger.Info("integration registered",
		"integration_id", p.ID,
		"configured", configured,
		"actions", len(prototype.Actions()),
		"rate_limit", fmt.Sprintf("%d/%s", limit.Requests, limit.Per),
	)
	return nil
}

// IDs returns registered provider ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Statuses returns the catalog view for every registered provider.
func (r *Registry) Statuses() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(r.order))
	for _, id := range r.order {
		reg := r.providers[id]
		desc := reg.prototype.Descriptor()
		out = append(out, ProviderStatus{
			ID:          desc.ID,
			DisplayName: desc.DisplayName,
			Description: desc.Description,
			AuthType:    desc.AuthType,
			Configured:  reg.configured,
			Actions:     len(desc.Actions),
			Triggers:    len(desc.Triggers),
		})
	}
	return out
}

// Descriptor returns the full descriptor for a provider, configured or not.
func (r *Registry) Descriptor(integrationID string) (Descriptor, error) {
	reg, err := r.registration(integrationID)
	if err != nil {
		return Descriptor{}, err
	}
	return reg.prototype.Descriptor(), nil
}

// GetIntegration resolves the per-organization instance for a configured
// provider, loading stored credentials on first use.
func (r *Registry) GetIntegration(ctx context.Context, orgID, integrationID string) (Integration, error) {
	reg, err := r.registration(integrationID)
	if err != nil {
		return nil, err
	}
	if !reg.configured {
		return nil, apperrors.Forbidden(fmt.Sprintf("integration %q is not configured", integrationID))
	}
	return r.instance(ctx, orgID, reg)
}

// ExecuteAction dispatches one action call. The failure modes stay
// distinguishable for callers: unknown integration, unconfigured
// integration, rate limited, unknown action, and upstream failures each
// carry their own code.
func (r *Registry) ExecuteAction(ctx context.Context, orgID, integrationID, actionID string, inputs map[string]interface{}) (map[string]interface{}, error) {
	reg, err := r.registration(integrationID)
	if err != nil {
		return nil, err
	}
	if !reg.configured {
		return nil, apperrors.Forbidden(fmt.Sprintf("integration %q is not configured", integrationID))
	}

	rateKey := integrationID + ":" + orgID
	if !r.limiter.CheckLimit(rateKey, reg.limit) {
		e := apperrors.RateLimited(fmt.Sprintf("rate limit exceeded for integration %q", integrationID))
		e.WithDetail("integration_id", integrationID)
		if reset := r.limiter.GetResetTime(rateKey); !reset.IsZero() {
			retry := int(reset.Sub(r.now()).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			e.WithDetail("retry_after_seconds", retry)
		}
		return nil, e
	}

	inst, err := r.instance(ctx, orgID, reg)
	if err != nil {
		return nil, err
	}

	if cred := inst.Credentials(); cred != nil && cred.Revoked {
		return nil, apperrors.CredentialRevoked(integrationID, "re-authentication required")
	}

	log := r.logger.WithContext(ctx)
	start := r.now()
	out, err := inst.ExecuteAction(ctx, actionID, inputs)
	if err != nil {
		log.Error("integration action failed",
			"integration_id", integrationID,
			"action_id", actionID,
			"error", err,
		)
		var appErr *apperrors.AppError
		if stderrors.As(err, &appErr) {
			return nil, appErr.WithDetail("integration_id", integrationID).WithDetail("action_id", actionID)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeUpstream,
			fmt.Sprintf("action %q on integration %q failed", actionID, integrationID))
	}

	log.Debug("integration action executed",
		"integration_id", integrationID,
		"action_id", actionID,
		"duration_ms", r.now().Sub(start).Milliseconds(),
	)
	return out, nil
}

// Authenticate runs the provider's authentication with user-supplied
// parameters and persists the resulting credential for the organization.
func (r *Registry) Authenticate(ctx context.Context, orgID, integrationID string, params map[string]interface{}) (*Credential, error) {
	inst, err := r.GetIntegration(ctx, orgID, integrationID)
	if err != nil {
		return nil, err
	}

	cred, err := inst.Authenticate(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := r.SetCredential(ctx, orgID, integrationID, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// ValidateCredentials checks the stored credential against the provider API.
func (r *Registry) ValidateCredentials(ctx context.Context, orgID, integrationID string) (bool, error) {
	inst, err := r.GetIntegration(ctx, orgID, integrationID)
	if err != nil {
		return false, err
	}
	return inst.ValidateCredentials(ctx)
}

// SetCredential stores a credential and updates any cached instance. The
// OAuth callback lands here after a token exchange.
func (r *Registry) SetCredential(ctx context.Context, orgID, integrationID string, cred *Credential) error {
	reg, err := r.registration(integrationID)
	if err != nil {
		return err
	}

	if err := r.store.Set(ctx, orgID, integrationID, cred); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalError,
			fmt.Sprintf("failed to store credentials for %q", integrationID))
	}

	r.mu.RLock()
	inst, ok := r.instances[instanceKey(reg.provider.ID, orgID)]
	r.mu.RUnlock()
	if ok {
		inst.SetCredentials(cred)
	}
	return nil
}

// RemoveCredential deletes the stored credential and evicts the cached
// instance, returning the pair to the unauthenticated state.
func (r *Registry) RemoveCredential(ctx context.Context, orgID, integrationID string) error {
	reg, err := r.registration(integrationID)
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, orgID, integrationID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalError,
			fmt.Sprintf("failed to delete credentials for %q", integrationID))
	}

	r.mu.Lock()
	delete(r.instances, instanceKey(reg.provider.ID, orgID))
	r.mu.Unlock()
	return nil
}

// ConnectionState reports the credential lifecycle state for an
// organization-provider pair without touching the provider API.
func (r *Registry) ConnectionState(ctx context.Context, orgID, integrationID string) (CredentialState, error) {
	if _, err := r.registration(integrationID); err != nil {
		return "", err
	}

	cred, err := r.store.Get(ctx, orgID, integrationID)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternalError,
			fmt.Sprintf("failed to load credentials for %q", integrationID))
	}
	if cred == nil {
		return StateUnauthenticated, nil
	}
	return cred.State(r.now()), nil
}

// registration looks up a provider or returns the not-found error that keeps
// "unknown integration" distinct from "unknown action".
func (r *Registry) registration(integrationID string) (*registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.providers[integrationID]
	if !ok {
		return nil, apperrors.IntegrationNotFound(integrationID)
	}
	return reg, nil
}

// instance returns the cached per-organization instance, building and wiring
// one on first use.
func (r *Registry) instance(ctx context.Context, orgID string, reg *registration) (Integration, error) {
	key := instanceKey(reg.provider.ID, orgID)

	r.mu.RLock()
	inst, ok := r.instances[key]
	r.mu.RUnlock()
	if ok {
		return inst, nil
	}

	inst, err := reg.provider.Build(reg.config)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError,
			fmt.Sprintf("failed to build integration %q", reg.provider.ID))
	}

	if rf, ok := inst.(refreshable); ok && r.refresher != nil {
		rf.SetTokenRefresher(r.refresher)
	}

	cred, err := r.store.Get(ctx, orgID, reg.provider.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError,
			fmt.Sprintf("failed to load credentials for %q", reg.provider.ID))
	}
	if cred != nil {
		inst.SetCredentials(cred)
	}

	if n, ok := inst.(credentialNotifier); ok {
		integrationID := reg.provider.ID
		org := orgID
		n.OnCredentialUpdate(func(c *Credential) {
			// Refreshes happen mid-request; persistence must not inherit the
			// request deadline.
			if err := r.store.Set(context.Background(), org, integrationID, c); err != nil {
				r.logger.Error("failed to persist refreshed credentials",
					"integration_id", integrationID,
					"organization_id", org,
					"error", err,
				)
			}
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.instances[key]; ok {
		return existing, nil
	}
	r.instances[key] = inst
	return inst, nil
}

func instanceKey(integrationID, orgID string) string {
	return integrationID + ":" + orgID
}
