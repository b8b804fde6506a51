package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidTimer is returned when a timer definition cannot be evaluated
	ErrInvalidTimer = errors.New("invalid timer definition")
)

// TimerDefinition declares when a timer event fires. Exactly one of the fields
// is expected to be set.
type TimerDefinition struct {
	// Date is an absolute RFC 3339 timestamp, e.g. 2016-02-11T12:13:14Z
	Date string `json:"date,omitempty"     yaml:"date,omitempty"`

	// Duration is relative to the evaluation time, e.g. 10m or 72h
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Cycle uses the standard 5-field cron format (minute hour day month weekday)
	Cycle string `json:"cycle,omitempty"    yaml:"cycle,omitempty"`
}

// NextDue computes the due time of the timer relative to referenceTime.
func (t TimerDefinition) NextDue(referenceTime time.Time) (time.Time, error) {
	switch {
	case t.Date != "":
		due, err := time.Parse(time.RFC3339, t.Date)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date %q: %w", ErrInvalidTimer, t.Date, err)
		}

		return due.UTC(), nil
	case t.Duration != "":
		d, err := time.ParseDuration(t.Duration)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: duration %q: %w", ErrInvalidTimer, t.Duration, err)
		}

		return referenceTime.Add(d).UTC(), nil
	case t.Cycle != "":
		schedule, err := parseCycle(t.Cycle)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cycle %q: %w", ErrInvalidTimer, t.Cycle, err)
		}

		return schedule.Next(referenceTime).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: no date, duration or cycle", ErrInvalidTimer)
	}
}

// Validate checks that exactly one timer field is set and that it parses.
func (t TimerDefinition) Validate() error {
	set := 0
	for _, v := range []string{t.Date, t.Duration, t.Cycle} {
		if v != "" {
			set++
		}
	}

	if set != 1 {
		return fmt.Errorf("%w: exactly one of date, duration or cycle must be set", ErrInvalidTimer)
	}

	_, err := t.NextDue(time.Unix(0, 0).UTC())

	return err
}

// IsCycle reports whether the timer repeats.
func (t TimerDefinition) IsCycle() bool {
	return t.Cycle != ""
}

func parseCycle(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	return parser.Parse(expr)
}
