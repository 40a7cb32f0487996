package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// Jira creates and manages issues on a Jira Cloud site. Authentication is
// email plus API token over HTTP basic; the site URL travels with the
// credential because every organization connects its own site.
type Jira struct {
	*integration.BaseIntegration
	client *integration.Client
}

// NewJira builds the Jira adapter.
func NewJira(cfg integration.ProviderConfig) (integration.Integration, error) {
	j := &Jira{}
	j.BaseIntegration = integration.NewBaseIntegration(integration.Descriptor{
		ID:          "jira",
		DisplayName: "Jira",
		Description: "Create, comment on and transition issues in Jira Cloud.",
		AuthType:    integration.AuthBasic,
		BaseURL:     cfg.BaseURL,
		RateLimit:   integration.RateLimit{Requests: 100, Per: "minute"},
	})
	j.client = integration.NewClient(j.BaseIntegration, 0)
	j.registerActions()
	return j, nil
}

func (j *Jira) registerActions() {
	j.RegisterAction(integration.ActionDefinition{
		ID:          "create_issue",
		Name:        "Create Issue",
		Description: "Create an issue in a project.",
		Inputs: []integration.Field{
			{Name: "project_key", Type: integration.FieldString, Required: true},
			{Name: "summary", Type: integration.FieldString, Required: true},
			{Name: "issue_type", Type: integration.FieldString, Description: "Defaults to Task"},
			{Name: "description", Type: integration.FieldString},
		},
		Outputs: []integration.Field{
			{Name: "issue_key", Type: integration.FieldString},
			{Name: "issue_id", Type: integration.FieldString},
			{Name: "url", Type: integration.FieldString},
		},
	}, j.createIssue)

	j.RegisterAction(integration.ActionDefinition{
		ID:          "add_comment",
		Name:        "Add Comment",
		Description: "Add a comment to an issue.",
		Inputs: []integration.Field{
			{Name: "issue_key", Type: integration.FieldString, Required: true},
			{Name: "body", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "comment_id", Type: integration.FieldString},
		},
	}, j.addComment)

	j.RegisterAction(integration.ActionDefinition{
		ID:          "transition_issue",
		Name:        "Transition Issue",
		Description: "Move an issue through its workflow.",
		Inputs: []integration.Field{
			{Name: "issue_key", Type: integration.FieldString, Required: true},
			{Name: "transition_id", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "transitioned", Type: integration.FieldBoolean},
		},
	}, j.transitionIssue)

	j.RegisterAction(integration.ActionDefinition{
		ID:          "get_issue",
		Name:        "Get Issue",
		Description: "Fetch an issue's key fields.",
		Inputs: []integration.Field{
			{Name: "issue_key", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "issue_key", Type: integration.FieldString},
			{Name: "summary", Type: integration.FieldString},
			{Name: "status", Type: integration.FieldString},
			{Name: "assignee", Type: integration.FieldString},
		},
	}, j.getIssue)

	j.RegisterAction(integration.ActionDefinition{
		ID:          "search_issues",
		Name:        "Search Issues",
		Description: "Run a JQL query.",
		Inputs: []integration.Field{
			{Name: "jql", Type: integration.FieldString, Required: true},
			{Name: "max_results", Type: integration.FieldNumber},
		},
		Outputs: []integration.Field{
			{Name: "issues", Type: integration.FieldArray},
			{Name: "total", Type: integration.FieldNumber},
		},
	}, j.searchIssues)
}

// Authenticate takes the account email, an API token and the site URL, and
// confirms them against the myself endpoint.
func (j *Jira) Authenticate(ctx context.Context, params map[string]interface{}) (*integration.Credential, error) {
	email := stringInput(params, "email")
	token := stringInput(params, "api_token")
	site := strings.TrimRight(stringInput(params, "site_url"), "/")

	if email == "" || token == "" {
		return nil, errors.Validation("email and api_token are required")
	}
	if site == "" && j.Descriptor().BaseURL == "" {
		return nil, errors.Validation("site_url is required")
	}

	cred := &integration.Credential{
		Username:    email,
		AccessToken: token,
	}
	if site != "" {
		cred.Extra = map[string]string{"site_url": site}
	}
	j.SetCredentials(cred)

	if _, err := j.client.DoJSON(ctx, http.MethodGet, j.siteURL()+"/rest/api/3/myself", nil); err != nil {
		if credentialRejected(err) {
			return nil, integrationRejectedToken("jira")
		}
		return nil, err
	}
	return cred, nil
}

// ValidateCredentials checks the held token against the myself endpoint.
func (j *Jira) ValidateCredentials(ctx context.Context) (bool, error) {
	if cred := j.Credentials(); cred == nil || cred.AccessToken == "" {
		return false, nil
	}
	_, err := j.client.DoJSON(ctx, http.MethodGet, j.siteURL()+"/rest/api/3/myself", nil)
	if err != nil {
		if credentialRejected(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (j *Jira) createIssue(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	issueType := withDefault(stringInput(inputs, "issue_type"), "Task")
	fields := map[string]interface{}{
		"project":   map[string]interface{}{"key": inputs["project_key"]},
		"summary":   inputs["summary"],
		"issuetype": map[string]interface{}{"name": issueType},
	}
	if desc := stringInput(inputs, "description"); desc != "" {
		fields["description"] = adfText(desc)
	}

	result, err := j.client.DoJSON(ctx, http.MethodPost, j.siteURL()+"/rest/api/3/issue", map[string]interface{}{
		"fields": fields,
	})
	if err != nil {
		return nil, err
	}

	key, _ := result["key"].(string)
	return map[string]interface{}{
		"issue_key": key,
		"issue_id":  result["id"],
		"url":       j.siteURL() + "/browse/" + key,
	}, nil
}

func (j *Jira) addComment(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s/comment", j.siteURL(), url.PathEscape(stringInput(inputs, "issue_key")))
	result, err := j.client.DoJSON(ctx, http.MethodPost, endpoint, map[string]interface{}{
		"body": adfText(stringInput(inputs, "body")),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"comment_id": result["id"]}, nil
}

func (j *Jira) transitionIssue(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s/transitions", j.siteURL(), url.PathEscape(stringInput(inputs, "issue_key")))
	_, err := j.client.DoJSON(ctx, http.MethodPost, endpoint, map[string]interface{}{
		"transition": map[string]interface{}{"id": inputs["transition_id"]},
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"transitioned": true}, nil
}

func (j *Jira) getIssue(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s", j.siteURL(), url.PathEscape(stringInput(inputs, "issue_key")))
	result, err := j.client.DoJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	fields, _ := result["fields"].(map[string]interface{})
	status, _ := fields["status"].(map[string]interface{})
	assignee, _ := fields["assignee"].(map[string]interface{})
	return map[string]interface{}{
		"issue_key": result["key"],
		"summary":   fields["summary"],
		"status":    status["name"],
		"assignee":  assignee["displayName"],
	}, nil
}

func (j *Jira) searchIssues(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"jql":    inputs["jql"],
		"fields": []interface{}{"summary", "status", "assignee"},
	}
	if n, ok := integration.NumberInput(inputs["max_results"]); ok && n > 0 {
		payload["maxResults"] = n
	}

	result, err := j.client.DoJSON(ctx, http.MethodPost, j.siteURL()+"/rest/api/3/search", payload)
	if err != nil {
		return nil, err
	}

	items, _ := result["issues"].([]interface{})
	issues := make([]interface{}, 0, len(items))
	for _, item := range items {
		issue, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		fields, _ := issue["fields"].(map[string]interface{})
		status, _ := fields["status"].(map[string]interface{})
		issues = append(issues, map[string]interface{}{
			"issue_key": issue["key"],
			"summary":   fields["summary"],
			"status":    status["name"],
		})
	}

	return map[string]interface{}{
		"issues": issues,
		"total":  result["total"],
	}, nil
}

// siteURL resolves the Jira site, preferring the per-credential site over
// the catalog default.
func (j *Jira) siteURL() string {
	if cred := j.Credentials(); cred != nil && cred.Extra["site_url"] != "" {
		return cred.Extra["site_url"]
	}
	return strings.TrimRight(j.Descriptor().BaseURL, "/")
}

// adfText wraps plain text in the document structure Jira's v3 API requires
// for rich-text fields.
func adfText(text string) map[string]interface{} {
	return map[string]interface{}{
		"type":    "doc",
		"version": 1,
		"content": []interface{}{
			map[string]interface{}{
				"type": "paragraph",
				"content": []interface{}{
					map[string]interface{}{"type": "text", "text": text},
				},
			},
		},
	}
}
