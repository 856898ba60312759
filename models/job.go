package models

import (
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobPending  JobState = "PENDING"
	JobAcquired JobState = "ACQUIRED"
	JobChecking JobState = "CHECKING"
	JobDone     JobState = "DONE"
)

// CheckJobPayload describes one accommodation to check within a cycle.
// It lives only for the duration of the run and is never persisted.
type CheckJobPayload struct {
	AccommodationID uuid.UUID `json:"accommodation_id"`
	Platform        Platform  `json:"platform"`
	URL             string    `json:"url"`
	State           JobState  `json:"state"`
	StartedAt       time.Time `json:"started_at"`
}

// CycleSnapshot is the operator-facing view of the current/last cycle,
// served by the control API.
type CycleSnapshot struct {
	Running      bool              `json:"running"`
	Paused       bool              `json:"paused"`
	CycleStarted *time.Time        `json:"cycle_started,omitempty"`
	InFlight     []CheckJobPayload `json:"in_flight"`
	LastRun      *CheckRun         `json:"last_run,omitempty"`
}
