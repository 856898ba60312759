package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CheckRun records one scheduled pass over all due accommodations.
type CheckRun struct {
	ID            int64      `json:"id" db:"id"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	Checked       int        `json:"checked" db:"checked"`
	Available     int        `json:"available" db:"available"`
	Unavailable   int        `json:"unavailable" db:"unavailable"`
	Errors        int        `json:"errors" db:"errors"`
	Notifications int        `json:"notifications" db:"notifications"`
}
