package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/studyhall-app/studyhall/internal/database"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/request"
	"github.com/studyhall-app/studyhall/internal/validation"
)

// ProfileStore is the subset of profile persistence the handler needs.
type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, update *models.ProfileUpdate) (*models.Profile, error)
}

// ProfileHandler serves the authenticated user's profile.
type ProfileHandler struct {
	profiles ProfileStore
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles ProfileStore) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// RegisterRoutes registers profile routes on the given router
// The router should already have the /profiles prefix
func (h *ProfileHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMyProfile).Methods("GET")
	r.HandleFunc("/me", h.UpdateMyProfile).Methods("PATCH")
}

// handlePattern matches the handles the provisioner generates plus anything a
// user may reasonably pick by hand.
var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,62}$`)

// GetMyProfile returns the authenticated user's profile row
func (h *ProfileHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	profile, err := h.profiles.Get(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Provisioning was abandoned; a repair job will backfill the row.
			respondJSONError(w, http.StatusNotFound, "Not Found", "Profile not provisioned yet")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load profile")
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// UpdateMyProfile applies a partial update to the authenticated user's
// profile. Fields absent from the request body are left untouched.
func (h *ProfileHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	var update models.ProfileUpdate
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&update); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if update.IsEmpty() {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Update names no fields")
		return
	}

	if err := validateProfileUpdate(&update); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	sanitizeProfileUpdate(&update)

	profile, err := h.profiles.Update(r.Context(), identity.ID, &update)
	if err != nil {
		if database.IsUniqueViolation(err, database.ProfileHandleConstraint) {
			respondJSONError(w, http.StatusConflict, "Conflict", "Handle is already taken")
			return
		}
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Profile not provisioned yet")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update profile")
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

func validateProfileUpdate(update *models.ProfileUpdate) error {
	if update.Handle != nil && !handlePattern.MatchString(*update.Handle) {
		return errors.New("invalid handle: must be 2-63 lowercase letters, digits, '.', '_' or '-'")
	}
	if update.Preferences != nil {
		if err := validation.ValidateTheme(update.Preferences.Theme); err != nil {
			return err
		}
	}
	return nil
}

func sanitizeProfileUpdate(update *models.ProfileUpdate) {
	if update.GivenName != nil {
		clean := validation.SanitizeText(*update.GivenName)
		update.GivenName = &clean
	}
	if update.FamilyName != nil {
		clean := validation.SanitizeText(*update.FamilyName)
		update.FamilyName = &clean
	}
	if update.Bio != nil {
		clean := validation.SanitizeText(*update.Bio)
		update.Bio = &clean
	}
	if update.Location != nil {
		clean := validation.SanitizeText(*update.Location)
		update.Location = &clean
	}
}
