package providers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// Google OAuth endpoints shared by every Google-backed adapter.
const (
	googleAuthURL      = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL     = "https://oauth2.googleapis.com/token"
	googleTokenInfoURL = "https://www.googleapis.com/oauth2/v3/tokeninfo"
)

// googleCredentialFromParams assembles a credential from token material
// issued by the consent flow. expires_in is seconds from now, the shape
// Google's token endpoint returns.
func googleCredentialFromParams(params map[string]interface{}) (*integration.Credential, error) {
	token := stringInput(params, "access_token")
	if token == "" {
		return nil, errors.Validation("access_token is required")
	}

	cred := &integration.Credential{
		AccessToken:  token,
		RefreshToken: stringInput(params, "refresh_token"),
		TokenType:    "Bearer",
		Scope:        stringInput(params, "scope"),
	}
	if secs, ok := integration.NumberInput(params["expires_in"]); ok && secs > 0 {
		cred.ExpiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return cred, nil
}

// validateGoogleToken asks the tokeninfo endpoint whether the held access
// token is still live. Google answers 400 for dead tokens; anything 5xx is an
// outage, not a verdict.
func validateGoogleToken(ctx context.Context, client *integration.Client, cred *integration.Credential) (bool, error) {
	if cred == nil || cred.AccessToken == "" {
		return false, nil
	}

	endpoint := googleTokenInfoURL + "?access_token=" + url.QueryEscape(cred.AccessToken)
	_, err := client.DoJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		if status, ok := upstreamStatus(err); ok && status >= 500 {
			return false, err
		}
		if credentialRejected(err) || errors.Is(err, errors.CodeUpstream) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
