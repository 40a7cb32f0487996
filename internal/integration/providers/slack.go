package providers

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// Slack posts and manages messages in a Slack workspace. Bot tokens issued
// by Slack's OAuth flow do not expire, so the refresh path is never taken.
type Slack struct {
	*integration.BaseIntegration
	client *integration.Client
}

// NewSlack builds the Slack adapter.
func NewSlack(cfg integration.ProviderConfig) (integration.Integration, error) {
	s := &Slack{}
	s.BaseIntegration = integration.NewBaseIntegration(integration.Descriptor{
		ID:          "slack",
		DisplayName: "Slack",
		Description: "Send messages, manage channels and look up users in a Slack workspace.",
		AuthType:    integration.AuthOAuth2,
		Scopes: []string{
			"chat:write",
			"channels:manage",
			"channels:read",
			"reactions:write",
			"users:read",
			"users:read.email",
		},
		BaseURL:   withDefault(cfg.BaseURL, "https://slack.com/api"),
		AuthURL:   "https://slack.com/oauth/v2/authorize",
		TokenURL:  "https://slack.com/api/oauth.v2.access",
		RateLimit: integration.RateLimit{Requests: 50, Per: "minute"},
	})
	s.client = integration.NewClient(s.BaseIntegration, 0)
	s.registerActions()
	s.registerTriggers()
	return s, nil
}

func (s *Slack) registerActions() {
	s.RegisterAction(integration.ActionDefinition{
		ID:          "send_message",
		Name:        "Send Message",
		Description: "Post a message to a channel or thread.",
		Inputs: []integration.Field{
			{Name: "channel", Type: integration.FieldString, Required: true, Description: "Channel id or name"},
			{Name: "text", Type: integration.FieldString, Required: true},
			{Name: "thread_ts", Type: integration.FieldString, Description: "Reply in the thread rooted at this timestamp"},
		},
		Outputs: []integration.Field{
			{Name: "ts", Type: integration.FieldString, Description: "Timestamp of the posted message"},
			{Name: "channel", Type: integration.FieldString},
		},
	}, s.sendMessage)

	s.RegisterAction(integration.ActionDefinition{
		ID:          "update_message",
		Name:        "Update Message",
		Description: "Replace the text of a previously posted message.",
		Inputs: []integration.Field{
			{Name: "channel", Type: integration.FieldString, Required: true},
			{Name: "ts", Type: integration.FieldString, Required: true},
			{Name: "text", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "ts", Type: integration.FieldString},
		},
	}, s.updateMessage)

	s.RegisterAction(integration.ActionDefinition{
		ID:          "add_reaction",
		Name:        "Add Reaction",
		Description: "Add an emoji reaction to a message.",
		Inputs: []integration.Field{
			{Name: "channel", Type: integration.FieldString, Required: true},
			{Name: "timestamp", Type: integration.FieldString, Required: true},
			{Name: "name", Type: integration.FieldString, Required: true, Description: "Emoji name without colons"},
		},
	}, s.addReaction)

	s.RegisterAction(integration.ActionDefinition{
		ID:          "create_channel",
		Name:        "Create Channel",
		Description: "Create a public or private channel.",
		Inputs: []integration.Field{
			{Name: "name", Type: integration.FieldString, Required: true},
			{Name: "is_private", Type: integration.FieldBoolean},
		},
		Outputs: []integration.Field{
			{Name: "channel_id", Type: integration.FieldString},
			{Name: "name", Type: integration.FieldString},
		},
	}, s.createChannel)

	s.RegisterAction(integration.ActionDefinition{
		ID:          "lookup_user",
		Name:        "Look Up User",
		Description: "Find a workspace user by email address.",
		Inputs: []integration.Field{
			{Name: "email", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "user_id", Type: integration.FieldString},
			{Name: "name", Type: integration.FieldString},
		},
	}, s.lookupUser)
}

func (s *Slack) registerTriggers() {
	s.RegisterTrigger(integration.TriggerDefinition{
		ID:          "message_posted",
		Name:        "Message Posted",
		Description: "Fires when a message is posted in a subscribed channel.",
		Kind:        integration.TriggerRealtime,
		Outputs: []integration.Field{
			{Name: "channel", Type: integration.FieldString},
			{Name: "user", Type: integration.FieldString},
			{Name: "text", Type: integration.FieldString},
			{Name: "ts", Type: integration.FieldString},
		},
	})
	s.RegisterTrigger(integration.TriggerDefinition{
		ID:          "reaction_added",
		Name:        "Reaction Added",
		Description: "Fires when a reaction is added to a message.",
		Kind:        integration.TriggerRealtime,
		Outputs: []integration.Field{
			{Name: "channel", Type: integration.FieldString},
			{Name: "user", Type: integration.FieldString},
			{Name: "reaction", Type: integration.FieldString},
			{Name: "item_ts", Type: integration.FieldString},
		},
	})
}

// Authenticate accepts a bot token issued by Slack's OAuth flow and confirms
// it against auth.test before holding it.
func (s *Slack) Authenticate(ctx context.Context, params map[string]interface{}) (*integration.Credential, error) {
	token := stringInput(params, "access_token")
	if token == "" {
		return nil, errors.Validation("access_token is required")
	}

	cred := &integration.Credential{
		AccessToken: token,
		TokenType:   "Bearer",
		Scope:       stringInput(params, "scope"),
	}
	s.SetCredentials(cred)

	if _, err := s.api(ctx, "auth.test", map[string]interface{}{}); err != nil {
		return nil, err
	}
	return cred, nil
}

// ValidateCredentials asks auth.test whether the held token still works.
func (s *Slack) ValidateCredentials(ctx context.Context) (bool, error) {
	if cred := s.Credentials(); cred == nil || cred.AccessToken == "" {
		return false, nil
	}
	_, err := s.api(ctx, "auth.test", map[string]interface{}{})
	if err != nil {
		if credentialRejected(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Slack) sendMessage(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"channel": inputs["channel"],
		"text":    inputs["text"],
	}
	if ts := stringInput(inputs, "thread_ts"); ts != "" {
		payload["thread_ts"] = ts
	}

	result, err := s.api(ctx, "chat.postMessage", payload)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"ts":      result["ts"],
		"channel": result["channel"],
	}, nil
}

func (s *Slack) updateMessage(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	result, err := s.api(ctx, "chat.update", map[string]interface{}{
		"channel": inputs["channel"],
		"ts":      inputs["ts"],
		"text":    inputs["text"],
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ts": result["ts"]}, nil
}

func (s *Slack) addReaction(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	_, err := s.api(ctx, "reactions.add", map[string]interface{}{
		"channel":   inputs["channel"],
		"timestamp": inputs["timestamp"],
		"name":      inputs["name"],
	})
	if err != nil {
		// Reacting twice is not a failure worth surfacing to a workflow.
		if slackErrorCode(err) == "already_reacted" {
			return map[string]interface{}{"added": false}, nil
		}
		return nil, err
	}
	return map[string]interface{}{"added": true}, nil
}

func (s *Slack) createChannel(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	isPrivate, _ := inputs["is_private"].(bool)
	result, err := s.api(ctx, "conversations.create", map[string]interface{}{
		"name":       inputs["name"],
		"is_private": isPrivate,
	})
	if err != nil {
		return nil, err
	}

	channel, _ := result["channel"].(map[string]interface{})
	return map[string]interface{}{
		"channel_id": channel["id"],
		"name":       channel["name"],
	}, nil
}

func (s *Slack) lookupUser(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	email := stringInput(inputs, "email")
	result, err := s.get(ctx, "users.lookupByEmail", url.Values{"email": {email}})
	if err != nil {
		if slackErrorCode(err) == "users_not_found" {
			return nil, errors.NotFound("slack user")
		}
		return nil, err
	}

	user, _ := result["user"].(map[string]interface{})
	return map[string]interface{}{
		"user_id": user["id"],
		"name":    user["name"],
	}, nil
}

// api posts a JSON payload to a Web API method and unwraps Slack's in-band
// ok/error envelope. Slack reports auth failures inside a 200 response, so
// the envelope check is where credential errors are detected.
func (s *Slack) api(ctx context.Context, method string, payload map[string]interface{}) (map[string]interface{}, error) {
	result, err := s.client.DoJSON(ctx, http.MethodPost, s.Descriptor().BaseURL+"/"+method, payload)
	if err != nil {
		return nil, err
	}
	return s.unwrap(result)
}

// get calls a Web API method that only accepts query parameters.
func (s *Slack) get(ctx context.Context, method string, query url.Values) (map[string]interface{}, error) {
	result, err := s.client.DoJSON(ctx, http.MethodGet, s.Descriptor().BaseURL+"/"+method+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return s.unwrap(result)
}

func (s *Slack) unwrap(result map[string]interface{}) (map[string]interface{}, error) {
	if ok, _ := result["ok"].(bool); ok {
		return result, nil
	}

	code, _ := result["error"].(string)
	switch code {
	case "invalid_auth", "not_authed", "account_inactive":
		return nil, errors.Unauthorized("slack rejected the credential: " + code).
			WithDetail("slack_error", code)
	case "token_revoked":
		return nil, errors.CredentialRevoked("slack", code).
			WithDetail("slack_error", code)
	case "token_expired":
		return nil, errors.CredentialExpired("slack").
			WithDetail("slack_error", code)
	case "ratelimited", "rate_limited":
		return nil, errors.RateLimited("slack rate limit reached").
			WithDetail("slack_error", code)
	}
	return nil, errors.Newf(errors.CodeUpstream, "slack API error: %s", code).
		WithDetail("slack_error", code)
}

// slackErrorCode extracts the Slack error string attached by unwrap, "" for
// anything else.
func slackErrorCode(err error) string {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return ""
	}
	code, _ := appErr.Details["slack_error"].(string)
	return code
}
