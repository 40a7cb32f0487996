package integration

import (
	"fmt"
	"math"
	"reflect"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// FieldType enumerates the types an action or trigger field can declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// Field describes one named, typed input or output of an action or trigger.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// ActionDefinition describes a unit of work an integration can perform.
// Definitions are immutable metadata; other layers introspect them to render
// forms and validate calls.
type ActionDefinition struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Inputs      []Field `json:"inputs"`
	Outputs     []Field `json:"outputs,omitempty"`
}

// TriggerKind identifies how a trigger delivers events.
type TriggerKind string

const (
	TriggerWebhook  TriggerKind = "webhook"
	TriggerPolling  TriggerKind = "polling"
	TriggerRealtime TriggerKind = "realtime"
)

// TriggerDefinition describes an event source an integration can emit.
type TriggerDefinition struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Kind        TriggerKind `json:"kind"`
	Outputs     []Field     `json:"outputs,omitempty"`
}

// RateLimit declares a provider's request budget. Per is one of "second",
// "minute", "hour", "day".
type RateLimit struct {
	Requests int    `json:"requests" yaml:"requests"`
	Per      string `json:"per" yaml:"per"`
}

// Zero reports whether no limit is declared.
func (r RateLimit) Zero() bool {
	return r.Requests <= 0
}

// Descriptor is the static, per-provider metadata: identity, auth shape,
// endpoints, declared rate limit, and the action/trigger schemas.
type Descriptor struct {
	ID          string              `json:"id"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description,omitempty"`
	AuthType    AuthType            `json:"auth_type"`
	Scopes      []string            `json:"scopes,omitempty"`
	BaseURL     string              `json:"base_url,omitempty"`
	AuthURL     string              `json:"auth_url,omitempty"`
	TokenURL    string              `json:"token_url,omitempty"`
	// OfflineAccess asks the authorization flow to request a refresh token
	// during consent. Google endpoints require it; most others do not.
	OfflineAccess bool                `json:"offline_access,omitempty"`
	RateLimit     RateLimit           `json:"rate_limit"`
	Actions       []ActionDefinition  `json:"actions"`
	Triggers      []TriggerDefinition `json:"triggers"`
}

// Action looks up a declared action by id.
func (d Descriptor) Action(actionID string) (ActionDefinition, bool) {
	for _, a := range d.Actions {
		if a.ID == actionID {
			return a, true
		}
	}
	return ActionDefinition{}, false
}

// ValidateInputs checks caller-provided inputs against the declared schema:
// required fields must be present and every present field must match its
// declared type. Unknown keys pass through untouched.
func ValidateInputs(def ActionDefinition, inputs map[string]interface{}) error {
	for _, field := range def.Inputs {
		value, ok := inputs[field.Name]
		if !ok || value == nil {
			if field.Required {
				return errors.Validation(fmt.Sprintf("missing required input %q for action %q", field.Name, def.ID))
			}
			continue
		}
		if !matchesFieldType(value, field.Type) {
			return errors.Validation(fmt.Sprintf("input %q for action %q must be of type %s", field.Name, def.ID, field.Type))
		}
	}
	return nil
}

// matchesFieldType accepts both JSON-decoded values (float64, []interface{},
// map[string]interface{}) and directly constructed Go values.
func matchesFieldType(value interface{}, t FieldType) bool {
	switch t {
	case FieldString:
		_, ok := value.(string)
		return ok
	case FieldNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case FieldBoolean:
		_, ok := value.(bool)
		return ok
	case FieldObject:
		return reflect.ValueOf(value).Kind() == reflect.Map
	case FieldArray:
		return reflect.ValueOf(value).Kind() == reflect.Slice
	default:
		return true
	}
}

// NumberInput coerces a numeric input to int, tolerating the float64 that
// JSON decoding produces.
func NumberInput(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		if math.Trunc(v) != v {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}
