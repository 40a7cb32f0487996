package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidate tests cron expression validation and the occurrence preview.
func TestValidate(t *testing.T) {
	t.Run("valid five-field expression", func(t *testing.T) {
		vr := Validate("*/5 * * * *", "UTC")

		assert.True(t, vr.Valid)
		assert.Empty(t, vr.Error)
		require.Len(t, vr.NextRuns, 5)
		for i := 1; i < len(vr.NextRuns); i++ {
			assert.True(t, vr.NextRuns[i].After(vr.NextRuns[i-1]),
				"preview times must be strictly increasing")
		}
	})

	t.Run("descriptor expression", func(t *testing.T) {
		vr := Validate("@hourly", "")

		assert.True(t, vr.Valid)
		assert.Len(t, vr.NextRuns, 5)
	})

	t.Run("optional seconds field", func(t *testing.T) {
		vr := Validate("*/30 * * * * *", "")

		assert.True(t, vr.Valid)
		assert.Len(t, vr.NextRuns, 5)
	})

	t.Run("invalid expression reported not raised", func(t *testing.T) {
		vr := Validate("not a cron", "")

		assert.False(t, vr.Valid)
		assert.NotEmpty(t, vr.Error)
		assert.Empty(t, vr.NextRuns)
	})

	t.Run("empty expression", func(t *testing.T) {
		vr := Validate("", "")

		assert.False(t, vr.Valid)
		assert.NotEmpty(t, vr.Error)
	})

	t.Run("too many fields", func(t *testing.T) {
		vr := Validate("* * * * * * *", "")

		assert.False(t, vr.Valid)
	})

	t.Run("unknown timezone keeps expression valid", func(t *testing.T) {
		vr := Validate("0 9 * * *", "Mars/Olympus")

		assert.True(t, vr.Valid)
		assert.Contains(t, vr.Error, "timezone")
		assert.Empty(t, vr.NextRuns, "no preview when the timezone cannot be loaded")
	})

	t.Run("timezone applied to preview", func(t *testing.T) {
		vr := Validate("0 9 * * *", "America/New_York")

		assert.True(t, vr.Valid)
		require.Len(t, vr.NextRuns, 5)
		for _, at := range vr.NextRuns {
			assert.Equal(t, 9, at.Hour())
		}
	})
}

// TestNextRunTime tests the nil-not-error occurrence lookup.
func TestNextRunTime(t *testing.T) {
	after := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)

	t.Run("strictly after the given instant", func(t *testing.T) {
		next := NextRunTime("0 * * * *", "UTC", after)

		require.NotNil(t, next)
		assert.Equal(t, time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("exact boundary excluded", func(t *testing.T) {
		boundary := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
		next := NextRunTime("0 * * * *", "UTC", boundary)

		require.NotNil(t, next)
		assert.Equal(t, time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("nil on unparseable expression", func(t *testing.T) {
		assert.Nil(t, NextRunTime("bogus", "UTC", after))
	})

	t.Run("nil on unknown timezone", func(t *testing.T) {
		assert.Nil(t, NextRunTime("0 * * * *", "Not/AZone", after))
	})
}

// TestNextAfter tests the erroring form used by the dispatcher.
func TestNextAfter(t *testing.T) {
	after := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)

	next, err := NextAfter("*/15 * * * *", "", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 12, 45, 0, 0, time.UTC), next.UTC())

	_, err = NextAfter("61 * * * *", "", after)
	assert.Error(t, err)

	_, err = NextAfter("0 * * * *", "Bad/Zone", after)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}
