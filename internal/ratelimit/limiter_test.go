package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCheckLimit tests window counting and denial at capacity.
func TestCheckLimit(t *testing.T) {
	limit := Limit{Requests: 3, Per: PerMinute}

	t.Run("allows up to the budget then denies", func(t *testing.T) {
		l := New()

		assert.True(t, l.CheckLimit("slack:org-1", limit))
		assert.True(t, l.CheckLimit("slack:org-1", limit))
		assert.True(t, l.CheckLimit("slack:org-1", limit))
		assert.False(t, l.CheckLimit("slack:org-1", limit))
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := New()

		for i := 0; i < 3; i++ {
			require.True(t, l.CheckLimit("slack:org-1", limit))
		}
		assert.False(t, l.CheckLimit("slack:org-1", limit))
		assert.True(t, l.CheckLimit("slack:org-2", limit))
		assert.True(t, l.CheckLimit("jira:org-1", limit))
	})

	t.Run("window elapse starts a fresh count", func(t *testing.T) {
		now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
		l := NewWithClock(func() time.Time { return now })

		for i := 0; i < 3; i++ {
			require.True(t, l.CheckLimit("slack:org-1", limit))
		}
		require.False(t, l.CheckLimit("slack:org-1", limit))

		now = now.Add(61 * time.Second)
		assert.True(t, l.CheckLimit("slack:org-1", limit))
		assert.Equal(t, 2, l.GetRemainingRequests("slack:org-1", limit))
	})

	t.Run("denied calls do not consume budget", func(t *testing.T) {
		l := New()

		for i := 0; i < 3; i++ {
			require.True(t, l.CheckLimit("slack:org-1", limit))
		}
		for i := 0; i < 5; i++ {
			require.False(t, l.CheckLimit("slack:org-1", limit))
		}
		assert.Equal(t, 0, l.GetRemainingRequests("slack:org-1", limit))
	})
}

// TestGetRemainingRequests tests the non-consuming budget read.
func TestGetRemainingRequests(t *testing.T) {
	limit := Limit{Requests: 5, Per: PerMinute}
	l := New()

	assert.Equal(t, 5, l.GetRemainingRequests("k", limit))

	l.CheckLimit("k", limit)
	l.CheckLimit("k", limit)
	assert.Equal(t, 3, l.GetRemainingRequests("k", limit))
	assert.Equal(t, 3, l.GetRemainingRequests("k", limit), "reads must not consume")
}

// TestGetResetTime tests window boundary reporting.
func TestGetResetTime(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	assert.True(t, l.GetResetTime("k").IsZero(), "no window yet")

	l.CheckLimit("k", Limit{Requests: 10, Per: PerHour})
	assert.Equal(t, now.Add(time.Hour), l.GetResetTime("k"))
}

// TestSweep tests that elapsed windows are dropped and live ones kept.
func TestSweep(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	l.CheckLimit("stale", Limit{Requests: 10, Per: PerSecond})
	l.CheckLimit("live", Limit{Requests: 10, Per: PerHour})
	require.Equal(t, 2, l.Size())

	now = now.Add(2 * time.Second)
	l.sweep()

	assert.Equal(t, 1, l.Size())
	assert.False(t, l.GetResetTime("live").IsZero())
	assert.True(t, l.GetResetTime("stale").IsZero())
}

// TestClearLimits tests the reset used between test cases.
func TestClearLimits(t *testing.T) {
	l := New()
	l.CheckLimit("a", Limit{Requests: 1, Per: PerMinute})
	l.CheckLimit("b", Limit{Requests: 1, Per: PerMinute})

	l.ClearLimits()
	assert.Equal(t, 0, l.Size())
	assert.True(t, l.CheckLimit("a", Limit{Requests: 1, Per: PerMinute}))
}

// TestParseWindow tests string conversion for catalog-supplied windows.
func TestParseWindow(t *testing.T) {
	cases := []struct {
		in      string
		want    Window
		wantErr bool
	}{
		{"second", PerSecond, false},
		{"minute", PerMinute, false},
		{"hour", PerHour, false},
		{"day", PerDay, false},
		{"fortnight", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := ParseWindow(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

// TestWindowDuration tests window lengths, including the fallback.
func TestWindowDuration(t *testing.T) {
	assert.Equal(t, time.Second, PerSecond.Duration())
	assert.Equal(t, time.Minute, PerMinute.Duration())
	assert.Equal(t, time.Hour, PerHour.Duration())
	assert.Equal(t, 24*time.Hour, PerDay.Duration())
	assert.Equal(t, time.Minute, Window("bogus").Duration())
}
