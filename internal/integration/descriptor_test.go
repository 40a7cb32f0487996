package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

func sendDef() ActionDefinition {
	return ActionDefinition{
		ID:   "send_message",
		Name: "Send Message",
		Inputs: []Field{
			{Name: "channel", Type: FieldString, Required: true},
			{Name: "text", Type: FieldString, Required: true},
			{Name: "count", Type: FieldNumber},
			{Name: "urgent", Type: FieldBoolean},
			{Name: "blocks", Type: FieldArray},
			{Name: "metadata", Type: FieldObject},
		},
	}
}

// TestValidateInputs tests schema checking of caller-provided inputs.
func TestValidateInputs(t *testing.T) {
	t.Run("accepts a complete call", func(t *testing.T) {
		err := ValidateInputs(sendDef(), map[string]interface{}{
			"channel": "#ops",
			"text":    "deploy finished",
		})
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateInputs(sendDef(), map[string]interface{}{
			"channel": "#ops",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.CodeValidation))
		assert.Contains(t, err.Error(), "text")
	})

	t.Run("nil value counts as missing", func(t *testing.T) {
		err := ValidateInputs(sendDef(), map[string]interface{}{
			"channel": "#ops",
			"text":    nil,
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.CodeValidation))
	})

	t.Run("nil optional field passes", func(t *testing.T) {
		err := ValidateInputs(sendDef(), map[string]interface{}{
			"channel": "#ops",
			"text":    "hi",
			"count":   nil,
		})
		assert.NoError(t, err)
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		err := ValidateInputs(sendDef(), map[string]interface{}{
			"channel": 42,
			"text":    "hi",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.CodeValidation))
		assert.Contains(t, err.Error(), "channel")
	})

	t.Run("json-decoded values pass", func(t *testing.T) {
		// What encoding/json hands a handler: float64 numbers,
		// []interface{} arrays, map[string]interface{} objects.
		err := ValidateInputs(sendDef(), map[string]interface{}{
			"channel":  "#ops",
			"text":     "hi",
			"count":    float64(3),
			"urgent":   true,
			"blocks":   []interface{}{"a", "b"},
			"metadata": map[string]interface{}{"k": "v"},
		})
		assert.NoError(t, err)
	})

	t.Run("typed go values pass", func(t *testing.T) {
		err := ValidateInputs(sendDef(), map[string]interface{}{
			"channel":  "#ops",
			"text":     "hi",
			"count":    3,
			"blocks":   []string{"a"},
			"metadata": map[string]string{"k": "v"},
		})
		assert.NoError(t, err)
	})

	t.Run("unknown keys pass through", func(t *testing.T) {
		err := ValidateInputs(sendDef(), map[string]interface{}{
			"channel":     "#ops",
			"text":        "hi",
			"thread_hint": "anything",
		})
		assert.NoError(t, err)
	})
}

// TestNumberInput tests numeric coercion of JSON-decoded inputs.
func TestNumberInput(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  int
		ok    bool
	}{
		{"int", 5, 5, true},
		{"int64", int64(7), 7, true},
		{"whole float64", float64(5), 5, true},
		{"fractional float64", 5.5, 0, false},
		{"string", "5", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NumberInput(tc.value)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

// TestDescriptorAction tests action lookup by id.
func TestDescriptorAction(t *testing.T) {
	d := Descriptor{
		ID:      "slack",
		Actions: []ActionDefinition{sendDef()},
	}

	def, ok := d.Action("send_message")
	require.True(t, ok)
	assert.Equal(t, "send_message", def.ID)

	_, ok = d.Action("delete_channel")
	assert.False(t, ok)
}

// TestRateLimitZero tests the declared-limit sentinel.
func TestRateLimitZero(t *testing.T) {
	assert.True(t, RateLimit{}.Zero())
	assert.True(t, RateLimit{Requests: 0, Per: "minute"}.Zero())
	assert.False(t, RateLimit{Requests: 1, Per: "minute"}.Zero())
}

// TestCredentialState tests lifecycle derivation from token material.
func TestCredentialState(t *testing.T) {
	now := mustParseTime(t, "2025-06-02T12:00:00Z")

	t.Run("nil and empty are unauthenticated", func(t *testing.T) {
		var c *Credential
		assert.Equal(t, StateUnauthenticated, c.State(now))
		assert.Equal(t, StateUnauthenticated, (&Credential{}).State(now))
	})

	t.Run("live token is authenticated", func(t *testing.T) {
		c := &Credential{AccessToken: "tok", ExpiresAt: now.Add(time.Hour)}
		assert.Equal(t, StateAuthenticated, c.State(now))
		assert.False(t, c.Expired(now))
	})

	t.Run("zero expiry never expires", func(t *testing.T) {
		c := &Credential{AccessToken: "tok"}
		assert.False(t, c.Expired(now.Add(100*365*24*time.Hour)))
		assert.Equal(t, StateAuthenticated, c.State(now))
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		c := &Credential{AccessToken: "tok", ExpiresAt: now.Add(-time.Minute)}
		assert.True(t, c.Expired(now))
		assert.Equal(t, StateExpired, c.State(now))
	})

	t.Run("revoked wins over expiry", func(t *testing.T) {
		c := &Credential{AccessToken: "tok", Revoked: true, ExpiresAt: now.Add(-time.Minute)}
		assert.Equal(t, StateRevoked, c.State(now))
	})

	t.Run("clone is independent", func(t *testing.T) {
		c := &Credential{AccessToken: "tok", Extra: map[string]string{"site": "a"}}
		cp := c.Clone()
		cp.AccessToken = "other"
		cp.Extra["site"] = "b"
		assert.Equal(t, "tok", c.AccessToken)
		assert.Equal(t, "a", c.Extra["site"])
	})
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}
