package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/profile"
)

// ViewModel is the merged, denormalized user record the UI renders. Field
// precedence: profile column, then identity metadata, then a literal default.
type ViewModel struct {
	ID            uuid.UUID           `json:"id"`
	Email         string              `json:"email"`
	EmailVerified bool                `json:"email_verified"`
	Handle        string              `json:"handle"`
	GivenName     string              `json:"given_name"`
	FamilyName    string              `json:"family_name"`
	Bio           string              `json:"bio,omitempty"`
	BirthDate     *time.Time          `json:"birth_date,omitempty"`
	Phone         string              `json:"phone,omitempty"`
	Location      string              `json:"location,omitempty"`
	AvatarURL     string              `json:"avatar_url"`
	AcademicInfo  models.AcademicInfo `json:"academic_info"`
	Preferences   models.Preferences  `json:"preferences"`
}

// BuildViewModel merges an identity and its (possibly nil) profile.
func BuildViewModel(identity *models.Identity, prof *models.Profile) ViewModel {
	md := identity.Metadata

	vm := ViewModel{
		ID:            identity.ID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Preferences:   models.DefaultPreferences(),
	}

	if prof != nil {
		if prof.Handle != nil {
			vm.Handle = *prof.Handle
		}
		vm.GivenName = prof.GivenName
		vm.FamilyName = prof.FamilyName
		if prof.Bio != nil {
			vm.Bio = *prof.Bio
		}
		vm.BirthDate = prof.BirthDate
		if prof.Phone != nil {
			vm.Phone = *prof.Phone
		}
		if prof.Location != nil {
			vm.Location = *prof.Location
		}
		if prof.AvatarURL != nil {
			vm.AvatarURL = *prof.AvatarURL
		}
		vm.AcademicInfo = prof.AcademicInfo
		vm.Preferences = prof.Preferences
	}

	if vm.Handle == "" {
		vm.Handle = md[models.MetaHandle]
	}
	if vm.Handle == "" {
		vm.Handle = profile.EmailLocalPart(identity.Email)
	}
	if vm.GivenName == "" {
		vm.GivenName = md[models.MetaGivenName]
	}
	if vm.FamilyName == "" {
		vm.FamilyName = md[models.MetaFamilyName]
	}
	if vm.AvatarURL == "" {
		vm.AvatarURL = md[models.MetaAvatarURL]
	}
	if vm.AvatarURL == "" {
		vm.AvatarURL = models.DefaultAvatarURL(identity.Email)
	}

	return vm
}
