// Package providers contains the built-in integration families. Each
// provider embeds integration.BaseIntegration for dispatch and declares its
// actions and triggers at construction; the registry builds one instance
// per organization.
package providers

import (
	stderrors "errors"
	"fmt"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// All returns every built-in provider in catalog order.
func All() []integration.Provider {
	return []integration.Provider{
		{
			ID:         "slack",
			Build:      NewSlack,
			Configured: oauthConfigured,
		},
		{
			ID:         "google-sheets",
			Build:      NewGoogleSheets,
			Configured: oauthConfigured,
		},
		{
			ID:         "google-calendar",
			Build:      NewGoogleCalendar,
			Configured: oauthConfigured,
		},
		{
			ID:    "jira",
			Build: NewJira,
			// Per-organization site URL and API token arrive through the
			// connect flow; nothing is required at deploy time.
			Configured: func(integration.ProviderConfig) bool { return true },
		},
		{
			ID:         "mailer",
			Build:      NewMailer,
			Configured: mailerConfigured,
		},
		{
			ID:         "s3",
			Build:      NewS3,
			Configured: func(integration.ProviderConfig) bool { return true },
		},
	}
}

// oauthConfigured requires the OAuth client registration from the catalog.
func oauthConfigured(cfg integration.ProviderConfig) bool {
	return cfg.Credentials.ClientID != "" && cfg.Credentials.ClientSecret != ""
}

// mailerConfigured requires an SMTP host.
func mailerConfigured(cfg integration.ProviderConfig) bool {
	return cfg.Extra["smtp_host"] != ""
}

// withDefault returns value, or def when value is empty.
func withDefault(value, def string) string {
	if value != "" {
		return value
	}
	return def
}

// stringInput reads a string input, returning "" when absent or mistyped.
func stringInput(inputs map[string]interface{}, key string) string {
	v, _ := inputs[key].(string)
	return v
}

// credentialRejected reports whether an error means the provider refused the
// credential itself, as opposed to the call failing for operational reasons.
// ValidateCredentials implementations turn these into a clean (false, nil).
func credentialRejected(err error) bool {
	switch {
	case errors.Is(err, errors.CodeUnauthorized),
		errors.Is(err, errors.CodeForbidden),
		errors.Is(err, errors.CodeCredentialExpired),
		errors.Is(err, errors.CodeCredentialRevoked):
		return true
	}
	if status, ok := upstreamStatus(err); ok {
		return status == 401 || status == 403
	}
	return false
}

// integrationRejectedToken is the uniform error for a token the provider
// turned down during authentication.
func integrationRejectedToken(integrationID string) error {
	return errors.Unauthorized(fmt.Sprintf("%s rejected the provided token", integrationID))
}

// upstreamStatus extracts the HTTP status attached to an upstream error.
func upstreamStatus(err error) (int, bool) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) || appErr.Code != errors.CodeUpstream {
		return 0, false
	}
	status, ok := appErr.Details["status_code"].(int)
	return status, ok
}

// stringSliceInput accepts both []string and the []interface{} JSON
// decoding produces.
func stringSliceInput(inputs map[string]interface{}, key string) []string {
	switch v := inputs[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
