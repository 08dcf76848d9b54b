package domain

import "time"

// JobState is a position in the onboarding state machine.
type JobState string

const (
	StatePending     JobState = "pending"
	StateConnecting  JobState = "connecting"
	StateNormalizing JobState = "normalizing"
	StateReconciling JobState = "reconciling"
	StateSucceeded   JobState = "succeeded"
	StateFailed      JobState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ChangeAction says what the reconciler did to an entity.
type ChangeAction string

const (
	ActionCreated ChangeAction = "created"
	ActionUpdated ChangeAction = "updated"
)

// EntityChange records one created or updated inventory record.
type EntityChange struct {
	Kind    EntityKind   `json:"kind" yaml:"kind"`
	ID      string       `json:"id" yaml:"id"`
	Name    string       `json:"name" yaml:"name"`
	Action  ChangeAction `json:"action" yaml:"action"`
	Changed []string     `json:"changed,omitempty" yaml:"changed,omitempty"`
}

// Transition is one state change of a job.
type Transition struct {
	State   JobState  `json:"state" yaml:"state"`
	Attempt int       `json:"attempt" yaml:"attempt"`
	At      time.Time `json:"at" yaml:"at"`
}

// OnboardingResult is the immutable outcome of a job.
type OnboardingResult struct {
	RequestID   string         `json:"request_id" yaml:"request_id"`
	Address     string         `json:"address" yaml:"address"`
	Status      JobState       `json:"status" yaml:"status"`
	DeviceID    string         `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	Hostname    string         `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Driver      string         `json:"driver,omitempty" yaml:"driver,omitempty"`
	Changes     []EntityChange `json:"changes" yaml:"changes"`
	ErrorKind   ErrorKind      `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Attempts    int            `json:"attempts" yaml:"attempts"`
	Transitions []Transition   `json:"transitions" yaml:"transitions"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time      `json:"finished_at" yaml:"finished_at"`
}

// Succeeded reports whether the job completed without error.
func (r *OnboardingResult) Succeeded() bool {
	return r != nil && r.Status == StateSucceeded
}

// Count returns how many changes match kind and action.
func (r *OnboardingResult) Count(kind EntityKind, action ChangeAction) int {
	n := 0
	for _, c := range r.Changes {
		if c.Kind == kind && c.Action == action {
			n++
		}
	}
	return n
}

// JobStatus is what a caller sees while polling a job.
type JobStatus struct {
	ID      string            `json:"id" yaml:"id"`
	Request OnboardingRequest `json:"request" yaml:"request"`
	State   JobState          `json:"state" yaml:"state"`
	Attempt int               `json:"attempt" yaml:"attempt"`
	Result  *OnboardingResult `json:"result,omitempty" yaml:"result,omitempty"`
}
