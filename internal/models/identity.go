package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity represents an authenticated account as seen by this service. The
// credentials themselves live with the external OIDC provider; we keep one row
// per provider subject plus the free-form metadata the provider handed us.
type Identity struct {
	ID            uuid.UUID         `json:"id"`
	Subject       string            `json:"subject"`
	Email         string            `json:"email"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	EmailVerified bool              `json:"email_verified"`
	CreatedAt     time.Time         `json:"created_at"`
	ConfirmedAt   *time.Time        `json:"confirmed_at,omitempty"`
}

// Metadata keys mirrored from OIDC claims or written back by profile updates.
const (
	MetaHandle     = "handle"
	MetaGivenName  = "given_name"
	MetaFamilyName = "family_name"
	MetaAvatarURL  = "avatar_url"
)
