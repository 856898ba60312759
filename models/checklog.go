package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckLog is the immutable record of one check attempt. Rows are append
// only and never updated after creation, except for NotificationSent which
// is flipped once a notification actually goes out.
type CheckLog struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	AccommodationID  uuid.UUID   `json:"accommodation_id" db:"accommodation_id"`
	Status           CheckStatus `json:"status" db:"status"`
	Price            *string     `json:"price" db:"price"`
	ErrorMessage     *string     `json:"error_message" db:"error_message"`
	NotificationSent bool        `json:"notification_sent" db:"notification_sent"`
	CheckedAt        time.Time   `json:"checked_at" db:"checked_at"`
}
