package models

import (
	"time"

	"github.com/google/uuid"
)

type Platform string

const (
	PlatformAirbnb Platform = "AIRBNB"
	PlatformAgoda  Platform = "AGODA"
)

func (p Platform) Valid() bool {
	return p == PlatformAirbnb || p == PlatformAgoda
}

type CheckStatus string

const (
	StatusAvailable   CheckStatus = "AVAILABLE"
	StatusUnavailable CheckStatus = "UNAVAILABLE"
	StatusError       CheckStatus = "ERROR"
	StatusUnknown     CheckStatus = "UNKNOWN"
)

// Accommodation is one monitored listing. Mutated by every check cycle;
// soft-disabled via Active rather than deleted.
type Accommodation struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	UserID     uuid.UUID   `json:"user_id" db:"user_id"`
	Platform   Platform    `json:"platform" db:"platform"`
	URL        string      `json:"url" db:"url"`
	CheckIn    time.Time   `json:"check_in" db:"check_in"`
	CheckOut   time.Time   `json:"check_out" db:"check_out"`
	Guests     int         `json:"guests" db:"guests"`
	Active     bool        `json:"active" db:"active"`
	LastStatus CheckStatus `json:"last_status" db:"last_status"`
	LastPrice  *string     `json:"last_price" db:"last_price"`
	CheckedAt  *time.Time  `json:"checked_at" db:"checked_at"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// Nights returns the length of stay in whole nights.
func (a *Accommodation) Nights() int {
	n := int(a.CheckOut.Sub(a.CheckIn).Hours() / 24)
	if n < 1 {
		n = 1
	}
	return n
}
