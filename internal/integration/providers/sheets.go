package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
)

// GoogleSheets appends, reads and clears spreadsheet ranges through the
// Sheets v4 REST API.
type GoogleSheets struct {
	*integration.BaseIntegration
	client *integration.Client
}

// NewGoogleSheets builds the Google Sheets adapter.
func NewGoogleSheets(cfg integration.ProviderConfig) (integration.Integration, error) {
	g := &GoogleSheets{}
	g.BaseIntegration = integration.NewBaseIntegration(integration.Descriptor{
		ID:          "google-sheets",
		DisplayName: "Google Sheets",
		Description: "Append rows to and read ranges from Google Sheets spreadsheets.",
		AuthType:    integration.AuthOAuth2,
		Scopes:      []string{"https://www.googleapis.com/auth/spreadsheets"},
		BaseURL:     withDefault(cfg.BaseURL, "https://sheets.googleapis.com/v4/spreadsheets"),
		AuthURL:     googleAuthURL,
		TokenURL:    googleTokenURL,
		// Google only hands out a refresh token when offline access is
		// requested at consent time.
		OfflineAccess: true,
		RateLimit:     integration.RateLimit{Requests: 60, Per: "minute"},
	})
	g.client = integration.NewClient(g.BaseIntegration, 0)
	g.registerActions()
	return g, nil
}

func (g *GoogleSheets) registerActions() {
	g.RegisterAction(integration.ActionDefinition{
		ID:          "append_row",
		Name:        "Append Row",
		Description: "Append one row of values after the last row of a range.",
		Inputs: []integration.Field{
			{Name: "spreadsheet_id", Type: integration.FieldString, Required: true},
			{Name: "range", Type: integration.FieldString, Required: true, Description: "A1 notation, e.g. Sheet1!A:C"},
			{Name: "values", Type: integration.FieldArray, Required: true, Description: "Cell values for the new row"},
		},
		Outputs: []integration.Field{
			{Name: "updated_range", Type: integration.FieldString},
			{Name: "updated_rows", Type: integration.FieldNumber},
		},
	}, g.appendRow)

	g.RegisterAction(integration.ActionDefinition{
		ID:          "read_range",
		Name:        "Read Range",
		Description: "Read the values in a range.",
		Inputs: []integration.Field{
			{Name: "spreadsheet_id", Type: integration.FieldString, Required: true},
			{Name: "range", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "range", Type: integration.FieldString},
			{Name: "values", Type: integration.FieldArray, Description: "Rows of cell values"},
		},
	}, g.readRange)

	g.RegisterAction(integration.ActionDefinition{
		ID:          "clear_range",
		Name:        "Clear Range",
		Description: "Clear all values in a range, keeping formatting.",
		Inputs: []integration.Field{
			{Name: "spreadsheet_id", Type: integration.FieldString, Required: true},
			{Name: "range", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "cleared_range", Type: integration.FieldString},
		},
	}, g.clearRange)
}

// Authenticate accepts token material from the consent flow and confirms it
// against the tokeninfo endpoint.
func (g *GoogleSheets) Authenticate(ctx context.Context, params map[string]interface{}) (*integration.Credential, error) {
	cred, err := googleCredentialFromParams(params)
	if err != nil {
		return nil, err
	}
	g.SetCredentials(cred)

	ok, err := g.ValidateCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, integrationRejectedToken("google-sheets")
	}
	return cred, nil
}

// ValidateCredentials reports whether the held token is still live.
func (g *GoogleSheets) ValidateCredentials(ctx context.Context) (bool, error) {
	return validateGoogleToken(ctx, g.client, g.Credentials())
}

func (g *GoogleSheets) appendRow(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		g.Descriptor().BaseURL,
		url.PathEscape(stringInput(inputs, "spreadsheet_id")),
		url.PathEscape(stringInput(inputs, "range")))

	result, err := g.client.DoJSON(ctx, http.MethodPost, endpoint, map[string]interface{}{
		"values": []interface{}{inputs["values"]},
	})
	if err != nil {
		return nil, err
	}

	updates, _ := result["updates"].(map[string]interface{})
	return map[string]interface{}{
		"updated_range": updates["updatedRange"],
		"updated_rows":  updates["updatedRows"],
	}, nil
}

func (g *GoogleSheets) readRange(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s",
		g.Descriptor().BaseURL,
		url.PathEscape(stringInput(inputs, "spreadsheet_id")),
		url.PathEscape(stringInput(inputs, "range")))

	result, err := g.client.DoJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	values, _ := result["values"].([]interface{})
	return map[string]interface{}{
		"range":  result["range"],
		"values": values,
	}, nil
}

func (g *GoogleSheets) clearRange(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s:clear",
		g.Descriptor().BaseURL,
		url.PathEscape(stringInput(inputs, "spreadsheet_id")),
		url.PathEscape(stringInput(inputs, "range")))

	result, err := g.client.DoJSON(ctx, http.MethodPost, endpoint, map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"cleared_range": result["clearedRange"],
	}, nil
}
