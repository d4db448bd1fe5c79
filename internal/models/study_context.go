package models

import (
	"time"

	"github.com/google/uuid"
)

// StudyContext is the per-student memory the AI tutor carries between chat
// sessions: a rolling summary of past conversations plus tutor preferences.
type StudyContext struct {
	ID         uuid.UUID      `json:"id"`
	IdentityID uuid.UUID      `json:"identity_id"`
	Summary    string         `json:"summary,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
