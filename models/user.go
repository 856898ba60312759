package models

import (
	"time"

	"github.com/google/uuid"
)

// User carries just what the checker core needs: identity and the linked
// messaging-platform credential for availability notifications.
type User struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Credential *MessagingCredential
}

type MessagingCredential struct {
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	ProviderID   string     `json:"provider_id" db:"provider_id"`
	AccessToken  string     `json:"access_token" db:"access_token"`
	RefreshToken string     `json:"refresh_token" db:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at" db:"expires_at"`
}

// Valid reports whether the credential can be used to push a message.
func (c *MessagingCredential) Valid() bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt) {
		return false
	}
	return true
}
