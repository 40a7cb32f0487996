package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/oauth"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// OAuthCallbackPath is the public route providers redirect back to. The
// redirect URL registered with each provider is the service base URL plus
// this path.
const OAuthCallbackPath = "/integrations/oauth/callback"

// IntegrationHandler handles the integration catalog, connections and
// action execution.
type IntegrationHandler struct {
	logger   *logger.Logger
	registry *integration.Registry
	oauth    *oauth.Handler
}

// NewIntegrationHandler creates the integration handler.
func NewIntegrationHandler(log *logger.Logger, registry *integration.Registry, oauthHandler *oauth.Handler) *IntegrationHandler {
	return &IntegrationHandler{
		logger:   log.WithComponent("integration-handler"),
		registry: registry,
		oauth:    oauthHandler,
	}
}

// RegisterRoutes registers integration routes on the authenticated router.
func (h *IntegrationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/integrations", h.List).Methods("GET")
	r.HandleFunc("/integrations/{id}", h.Get).Methods("GET")
	r.HandleFunc("/integrations/{id}/connection", h.Connection).Methods("GET")
	r.HandleFunc("/integrations/{id}/connection", h.Disconnect).Methods("DELETE")
	r.HandleFunc("/integrations/{id}/connect", h.Connect).Methods("POST")
	r.HandleFunc("/integrations/{id}/validate", h.Validate).Methods("POST")
	r.HandleFunc("/integrations/{id}/execute", h.Execute).Methods("POST")
}

// RegisterPublicRoutes registers the OAuth callback, which providers hit
// without a bearer token; the state parameter is what ties the redirect
// back to an organization.
func (h *IntegrationHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc(OAuthCallbackPath, h.OAuthCallback).Methods("GET")
}

// List returns the catalog with per-provider configuration status.
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"integrations": h.registry.Statuses(),
	})
}

// Get returns one provider's full descriptor including action and trigger
// schemas.
func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	desc, err := h.registry.Descriptor(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, desc)
}

// Connection reports where the organization's credential sits in its
// lifecycle.
func (h *IntegrationHandler) Connection(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	state, err := h.registry.ConnectionState(r.Context(), p.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"integration_id": mux.Vars(r)["id"],
		"state":          state,
	})
}

// Connect starts a connection. OAuth2 providers get an authorization URL to
// send the user through; everything else authenticates directly with the
// posted parameters. Tokens never appear in responses.
func (h *IntegrationHandler) Connect(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	integrationID := mux.Vars(r)["id"]

	desc, err := h.registry.Descriptor(integrationID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if desc.AuthType == integration.AuthOAuth2 {
		authorizeURL, err := h.oauth.AuthorizeURL(p.OrganizationID, p.UserID, integrationID)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"integration_id": integrationID,
			"authorize_url":  authorizeURL,
		})
		return
	}

	var params map[string]interface{}
	if err := decodeJSON(r, &params); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if _, err := h.registry.Authenticate(r.Context(), p.OrganizationID, integrationID, params); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"integration_id": integrationID,
		"state":          integration.StateAuthenticated,
	})
}

// OAuthCallback completes the authorization round trip: the state parameter
// resolves which organization and provider started the flow, the code is
// exchanged for tokens, and the credential is stored.
func (h *IntegrationHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		h.logger.WithContext(r.Context()).Warn("oauth consent rejected", "error", errCode)
		respondError(w, r, h.logger, errors.BadRequest("authorization was not granted: "+errCode))
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		respondError(w, r, h.logger, errors.BadRequest("state and code are required"))
		return
	}

	result, err := h.oauth.Exchange(r.Context(), state, code)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.registry.SetCredential(r.Context(), result.OrgID, result.IntegrationID, result.Credential); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"integration_id": result.IntegrationID,
		"state":          integration.StateAuthenticated,
	})
}

// Validate checks whether the stored credential still works against the
// provider.
func (h *IntegrationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	valid, err := h.registry.ValidateCredentials(r.Context(), p.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"integration_id": mux.Vars(r)["id"],
		"valid":          valid,
	})
}

// Disconnect removes the organization's credential.
func (h *IntegrationHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.registry.RemoveCredential(r.Context(), p.OrganizationID, mux.Vars(r)["id"]); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Execute dispatches one action through the registry.
func (h *IntegrationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req struct {
		ActionID string                 `json:"action_id"`
		Inputs   map[string]interface{} `json:"inputs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if req.ActionID == "" {
		respondError(w, r, h.logger, errors.Validation("action_id is required"))
		return
	}

	output, err := h.registry.ExecuteAction(r.Context(), p.OrganizationID, mux.Vars(r)["id"], req.ActionID, req.Inputs)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"integration_id": mux.Vars(r)["id"],
		"action_id":      req.ActionID,
		"output":         output,
	})
}
