package models

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Profile is the application-owned row of user-facing attributes, one-to-one
// with an Identity. The primary key equals the identity id.
type Profile struct {
	ID           uuid.UUID    `json:"id"`
	Handle       *string      `json:"handle,omitempty"`
	GivenName    string       `json:"given_name"`
	FamilyName   string       `json:"family_name"`
	Bio          *string      `json:"bio,omitempty"`
	BirthDate    *time.Time   `json:"birth_date,omitempty"`
	Phone        *string      `json:"phone,omitempty"`
	Location     *string      `json:"location,omitempty"`
	AvatarURL    *string      `json:"avatar_url,omitempty"`
	AcademicInfo AcademicInfo `json:"academic_info"`
	Preferences  Preferences  `json:"preferences"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// AcademicInfo holds the student-record blob stored as JSONB.
type AcademicInfo struct {
	StudentID          string      `json:"student_id,omitempty"`
	Major              string      `json:"major,omitempty"`
	Year               int         `json:"year,omitempty"`
	GPA                float64     `json:"gpa,omitempty"`
	EnrolledSubjectIDs []uuid.UUID `json:"enrolled_subject_ids,omitempty"`
}

// NotificationPrefs holds per-channel notification toggles.
type NotificationPrefs struct {
	Email         bool `json:"email"`
	Push          bool `json:"push"`
	QuizReminders bool `json:"quiz_reminders"`
	ChatMessages  bool `json:"chat_messages"`
	Announcements bool `json:"announcements"`
}

// Preferences holds the display and notification preferences blob.
type Preferences struct {
	Notifications NotificationPrefs `json:"notifications"`
	Theme         string            `json:"theme"`
	Language      string            `json:"language"`
}

const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	DefaultLanguage = "en"
)

// ProfileUpdate is a partial update. Nil fields are left untouched; the store
// must never overwrite a column the caller did not mention.
type ProfileUpdate struct {
	Handle       *string       `json:"handle,omitempty"`
	GivenName    *string       `json:"given_name,omitempty"`
	FamilyName   *string       `json:"family_name,omitempty"`
	Bio          *string       `json:"bio,omitempty"`
	BirthDate    *time.Time    `json:"birth_date,omitempty"`
	Phone        *string       `json:"phone,omitempty"`
	Location     *string       `json:"location,omitempty"`
	AvatarURL    *string       `json:"avatar_url,omitempty"`
	AcademicInfo *AcademicInfo `json:"academic_info,omitempty"`
	Preferences  *Preferences  `json:"preferences,omitempty"`
}

// IsEmpty reports whether the update names no fields at all.
func (u *ProfileUpdate) IsEmpty() bool {
	return u.Handle == nil && u.GivenName == nil && u.FamilyName == nil &&
		u.Bio == nil && u.BirthDate == nil && u.Phone == nil &&
		u.Location == nil && u.AvatarURL == nil &&
		u.AcademicInfo == nil && u.Preferences == nil
}

// DefaultPreferences returns the preferences every new profile starts with:
// all notification channels on except announcements, light theme, English.
// The client-side fetch-or-create path must produce the identical block.
func DefaultPreferences() Preferences {
	return Preferences{
		Notifications: NotificationPrefs{
			Email:         true,
			Push:          true,
			QuizReminders: true,
			ChatMessages:  true,
			Announcements: false,
		},
		Theme:    ThemeLight,
		Language: DefaultLanguage,
	}
}

// DefaultAvatarURL returns the deterministic avatar fallback for an email.
// Both the server-side provisioner and the client reconciler use this template
// so a profile created on either side looks the same.
func DefaultAvatarURL(email string) string {
	return "https://api.dicebear.com/7.x/initials/svg?seed=" + url.QueryEscape(email)
}
