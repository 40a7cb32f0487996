package integration

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// Client is the authenticated request path shared by every HTTP-backed
// adapter. Each call checks token expiry first, refreshes synchronously when
// needed, attaches the auth header matching the provider's auth type, and
// performs at most one refresh-and-retry when the provider answers 401.
// Non-2xx responses surface as upstream errors carrying status and body.
type Client struct {
	base *BaseIntegration
	http *http.Client
}

// NewClient creates the request helper for an adapter. A zero timeout
// falls back to the adapter's action timeout.
func NewClient(base *BaseIntegration, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = base.timeout
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}
}

// DoJSON performs a JSON request against the provider and decodes the JSON
// response. A nil payload sends no body; 204 responses decode to an empty
// map.
func (c *Client) DoJSON(ctx context.Context, method, url string, payload interface{}) (map[string]interface{}, error) {
	id := c.base.ID()

	cred := c.base.Credentials()
	if cred == nil || cred.AccessToken == "" {
		return nil, errors.Unauthorized("integration " + id + " holds no credential")
	}
	if cred.Revoked {
		return nil, errors.CredentialRevoked(id, "re-authentication required")
	}

	// Expired tokens are refreshed before the request is attempted. No call
	// goes out on a token known to be expired.
	refreshed := false
	if cred.Expired(time.Now()) {
		fresh, err := c.base.RefreshToken(ctx)
		if err != nil {
			return nil, err
		}
		cred = fresh
		refreshed = true
	}

	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternalError, "failed to marshal request payload")
		}
		body = data
	}

	resp, err := c.attempt(ctx, method, url, body, cred)
	if err != nil {
		return nil, err
	}

	// One refresh per logical call: retry a 401 only if the expiry check did
	// not already refresh.
	if resp.StatusCode == http.StatusUnauthorized && !refreshed &&
		c.base.Descriptor().AuthType == AuthOAuth2 && cred.CanRefresh() {
		resp.Body.Close()

		fresh, err := c.base.RefreshToken(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = c.attempt(ctx, method, url, body, fresh)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errors.Upstream(resp.StatusCode, string(respBody)).
			WithDetail("integration_id", id)
	}

	if resp.StatusCode == http.StatusNoContent {
		return map[string]interface{}{}, nil
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, errors.CodeUpstream, fmt.Sprintf("failed to decode response from %s", id))
	}

	return result, nil
}

// attempt executes a single HTTP exchange with the given credential.
func (c *Client) attempt(ctx context.Context, method, url string, body []byte, cred *Credential) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternalError, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req, cred)

	resp, err := c.http.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Timeout(fmt.Sprintf("request to %s timed out", c.base.ID()))
		}
		return nil, errors.Wrap(err, errors.CodeUpstream, fmt.Sprintf("request to %s failed", c.base.ID()))
	}
	return resp, nil
}

// setAuthHeader attaches authentication matching the provider's auth type:
// bearer tokens for oauth2 and apikey, HTTP basic for basic.
func (c *Client) setAuthHeader(req *http.Request, cred *Credential) {
	switch c.base.Descriptor().AuthType {
	case AuthBasic:
		req.SetBasicAuth(cred.Username, cred.AccessToken)
	default:
		tokenType := cred.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		req.Header.Set("Authorization", tokenType+" "+cred.AccessToken)
	}
}
