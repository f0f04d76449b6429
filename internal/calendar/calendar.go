// Package calendar wraps a cron schedule as a value type that can travel
// inside task arguments. Subscription requests carry their billing cadence
// this way, so the type has to round-trip through the argument codec.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// descriptors we can render without parsing the field list.
var descriptorText = map[string]string{
	"@yearly":   "once a year",
	"@annually": "once a year",
	"@monthly":  "once a month",
	"@weekly":   "once a week",
	"@daily":    "once a day",
	"@midnight": "once a day",
	"@hourly":   "once an hour",
}

// Calendar is an immutable recurrence schedule.
type Calendar struct {
	spec  string
	sched cron.Schedule
}

// Parse builds a Calendar from a standard cron expression or descriptor
// (e.g. "0 9 1 * *", "@monthly", "@every 720h").
func Parse(spec string) (*Calendar, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty calendar spec")
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse calendar %q: %w", spec, err)
	}
	return &Calendar{spec: spec, sched: sched}, nil
}

// MustParse is Parse for compile-time-constant specs.
func MustParse(spec string) *Calendar {
	c, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the original spec. This is the canonical serialized form.
func (c *Calendar) String() string {
	return c.spec
}

// NextOccurrence returns the first activation strictly after t.
func (c *Calendar) NextOccurrence(t time.Time) time.Time {
	return c.sched.Next(t)
}

// HumanReadable renders the schedule for activity rows and approval cards.
func (c *Calendar) HumanReadable() string {
	if text, ok := descriptorText[c.spec]; ok {
		return text
	}
	if strings.HasPrefix(c.spec, "@every ") {
		return "every " + strings.TrimPrefix(c.spec, "@every ")
	}
	return "on schedule " + c.spec
}

// Equal reports whether both calendars have the same spec.
func (c *Calendar) Equal(other *Calendar) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.spec == other.spec
}
