package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
)

// GoogleCalendar manages events through the Calendar v3 REST API.
type GoogleCalendar struct {
	*integration.BaseIntegration
	client *integration.Client
}

// NewGoogleCalendar builds the Google Calendar adapter.
func NewGoogleCalendar(cfg integration.ProviderConfig) (integration.Integration, error) {
	g := &GoogleCalendar{}
	g.BaseIntegration = integration.NewBaseIntegration(integration.Descriptor{
		ID:            "google-calendar",
		DisplayName:   "Google Calendar",
		Description:   "Create, list and delete events on Google Calendar.",
		AuthType:      integration.AuthOAuth2,
		Scopes:        []string{"https://www.googleapis.com/auth/calendar"},
		BaseURL:       withDefault(cfg.BaseURL, "https://www.googleapis.com/calendar/v3"),
		AuthURL:       googleAuthURL,
		TokenURL:      googleTokenURL,
		OfflineAccess: true,
		RateLimit:     integration.RateLimit{Requests: 60, Per: "minute"},
	})
	g.client = integration.NewClient(g.BaseIntegration, 0)
	g.registerActions()
	g.registerTriggers()
	return g, nil
}

func (g *GoogleCalendar) registerActions() {
	g.RegisterAction(integration.ActionDefinition{
		ID:          "create_event",
		Name:        "Create Event",
		Description: "Create an event on a calendar.",
		Inputs: []integration.Field{
			{Name: "calendar_id", Type: integration.FieldString, Description: "Defaults to the primary calendar"},
			{Name: "summary", Type: integration.FieldString, Required: true},
			{Name: "description", Type: integration.FieldString},
			{Name: "start_time", Type: integration.FieldString, Required: true, Description: "RFC 3339 timestamp"},
			{Name: "end_time", Type: integration.FieldString, Required: true, Description: "RFC 3339 timestamp"},
			{Name: "attendees", Type: integration.FieldArray, Description: "Attendee email addresses"},
		},
		Outputs: []integration.Field{
			{Name: "event_id", Type: integration.FieldString},
			{Name: "html_link", Type: integration.FieldString},
		},
	}, g.createEvent)

	g.RegisterAction(integration.ActionDefinition{
		ID:          "list_events",
		Name:        "List Events",
		Description: "List upcoming events in a time window.",
		Inputs: []integration.Field{
			{Name: "calendar_id", Type: integration.FieldString},
			{Name: "time_min", Type: integration.FieldString, Description: "RFC 3339 lower bound"},
			{Name: "time_max", Type: integration.FieldString, Description: "RFC 3339 upper bound"},
			{Name: "max_results", Type: integration.FieldNumber},
		},
		Outputs: []integration.Field{
			{Name: "events", Type: integration.FieldArray},
			{Name: "count", Type: integration.FieldNumber},
		},
	}, g.listEvents)

	g.RegisterAction(integration.ActionDefinition{
		ID:          "delete_event",
		Name:        "Delete Event",
		Description: "Delete an event from a calendar.",
		Inputs: []integration.Field{
			{Name: "calendar_id", Type: integration.FieldString},
			{Name: "event_id", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "deleted", Type: integration.FieldBoolean},
		},
	}, g.deleteEvent)
}

func (g *GoogleCalendar) registerTriggers() {
	g.RegisterTrigger(integration.TriggerDefinition{
		ID:          "event_starting",
		Name:        "Event Starting",
		Description: "Fires shortly before an event's start time.",
		Kind:        integration.TriggerPolling,
		Outputs: []integration.Field{
			{Name: "event_id", Type: integration.FieldString},
			{Name: "summary", Type: integration.FieldString},
			{Name: "start_time", Type: integration.FieldString},
		},
	})
}

// Authenticate accepts token material from the consent flow and confirms it
// against the tokeninfo endpoint.
func (g *GoogleCalendar) Authenticate(ctx context.Context, params map[string]interface{}) (*integration.Credential, error) {
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
		return nil, integrationRejectedToken("google-calendar")
	}
	return cred, nil
}

// ValidateCredentials reports whether the held token is still live.
func (g *GoogleCalendar) ValidateCredentials(ctx context.Context) (bool, error) {
	return validateGoogleToken(ctx, g.client, g.Credentials())
}

func (g *GoogleCalendar) createEvent(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"summary": inputs["summary"],
		"start":   map[string]interface{}{"dateTime": inputs["start_time"]},
		"end":     map[string]interface{}{"dateTime": inputs["end_time"]},
	}
	if desc := stringInput(inputs, "description"); desc != "" {
		payload["description"] = desc
	}
	if emails := stringSliceInput(inputs, "attendees"); len(emails) > 0 {
		attendees := make([]interface{}, 0, len(emails))
		for _, email := range emails {
			attendees = append(attendees, map[string]interface{}{"email": email})
		}
		payload["attendees"] = attendees
	}

	result, err := g.client.DoJSON(ctx, http.MethodPost, g.eventsURL(inputs), payload)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"event_id":  result["id"],
		"html_link": result["htmlLink"],
	}, nil
}

func (g *GoogleCalendar) listEvents(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	query := url.Values{
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
	}
	if v := stringInput(inputs, "time_min"); v != "" {
		query.Set("timeMin", v)
	}
	if v := stringInput(inputs, "time_max"); v != "" {
		query.Set("timeMax", v)
	}
	if n, ok := integration.NumberInput(inputs["max_results"]); ok && n > 0 {
		query.Set("maxResults", fmt.Sprintf("%d", n))
	}

	result, err := g.client.DoJSON(ctx, http.MethodGet, g.eventsURL(inputs)+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	items, _ := result["items"].([]interface{})
	events := make([]interface{}, 0, len(items))
	for _, item := range items {
		event, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		start, _ := event["start"].(map[string]interface{})
		end, _ := event["end"].(map[string]interface{})
		events = append(events, map[string]interface{}{
			"event_id":   event["id"],
			"summary":    event["summary"],
			"start_time": start["dateTime"],
			"end_time":   end["dateTime"],
			"html_link":  event["htmlLink"],
		})
	}

	return map[string]interface{}{
		"events": events,
		"count":  len(events),
	}, nil
}

func (g *GoogleCalendar) deleteEvent(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	endpoint := g.eventsURL(inputs) + "/" + url.PathEscape(stringInput(inputs, "event_id"))
	if _, err := g.client.DoJSON(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": true}, nil
}

// eventsURL builds the events collection URL for the requested calendar,
// defaulting to the authenticated user's primary calendar.
func (g *GoogleCalendar) eventsURL(inputs map[string]interface{}) string {
	calendarID := withDefault(stringInput(inputs, "calendar_id"), "primary")
	return fmt.Sprintf("%s/calendars/%s/events", g.Descriptor().BaseURL, url.PathEscape(calendarID))
}
