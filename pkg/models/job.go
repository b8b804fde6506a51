package models

import "time"

// JobKind identifies the deferred work a job performs.
type JobKind string

const (
	JobKindTimer             JobKind = "timer"
	JobKindAsyncContinuation JobKind = "async_continuation"
)

// DefaultJobRetries is the retry budget of newly created jobs.
const DefaultJobRetries = 3

// Job is a persisted unit of deferred work, including timers.
type Job struct {
	ID                string    `json:"id"                  validate:"required"`
	Kind              JobKind   `json:"kind"                validate:"required"`
	DueTime           time.Time `json:"due_time"`
	ActivityID        string    `json:"activity_id"         validate:"required"`
	ExecutionID       string    `json:"execution_id"        validate:"required"`
	ProcessInstanceID string    `json:"process_instance_id" validate:"required"`
	Retries           int       `json:"retries"`
}

// IsDue checks if the job can be executed at the given time.
func (j Job) IsDue(now time.Time) bool {
	return !j.DueTime.After(now)
}

// Equal compares two jobs field by field.
func (j Job) Equal(o Job) bool {
	return j.ID == o.ID &&
		j.Kind == o.Kind &&
		j.DueTime.Equal(o.DueTime) &&
		j.ActivityID == o.ActivityID &&
		j.ExecutionID == o.ExecutionID &&
		j.ProcessInstanceID == o.ProcessInstanceID &&
		j.Retries == o.Retries
}
