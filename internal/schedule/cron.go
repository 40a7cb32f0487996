// Package schedule turns cron expressions into workflow trigger
// registrations and keeps the stored next-run bookkeeping honest.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// previewCount is how many upcoming occurrences validation returns.
const previewCount = 5

// parser accepts five-field crontab syntax, an optional leading seconds
// field, and @-descriptors like @hourly.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidationResult reports whether an expression parses, with a preview of
// upcoming fire times when it does.
type ValidationResult struct {
	Valid    bool        `json:"valid"`
	Error    string      `json:"error,omitempty"`
	NextRuns []time.Time `json:"next_runs,omitempty"`
}

// Validate checks a cron expression and previews its next occurrences. It
// reports problems in the result rather than returning an error: a bad
// expression is a normal outcome of user input, not a failure. A valid
// expression whose timezone cannot be loaded keeps Valid true with the
// problem noted and no preview.
func Validate(expression, timezone string) ValidationResult {
	sched, err := parser.Parse(expression)
	if err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}

	loc, err := loadLocation(timezone)
	if err != nil {
		return ValidationResult{Valid: true, Error: err.Error()}
	}

	result := ValidationResult{Valid: true}
	at := time.Now().In(loc)
	for i := 0; i < previewCount; i++ {
		at = sched.Next(at)
		if at.IsZero() {
			break
		}
		result.NextRuns = append(result.NextRuns, at)
	}
	return result
}

// NextRunTime returns the first occurrence strictly after the given instant,
// or nil when the expression does not parse, the timezone cannot be loaded,
// or no future occurrence exists. It never returns an error; callers treat
// nil as "not evaluable".
func NextRunTime(expression, timezone string, after time.Time) *time.Time {
	next, err := NextAfter(expression, timezone, after)
	if err != nil {
		return nil
	}
	return &next
}

// NextAfter is the erroring form of NextRunTime, for callers that need to
// know why a schedule stopped evaluating.
func NextAfter(expression, timezone string, after time.Time) (time.Time, error) {
	sched, err := parser.Parse(expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	loc, err := loadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	next := sched.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q has no future occurrences", expression)
	}
	return next, nil
}

// loadLocation resolves a timezone name, defaulting empty to UTC.
func loadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}
	return loc, nil
}
