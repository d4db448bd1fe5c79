package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/request"
)

// SubjectStore is the subset of subject persistence the handler needs.
type SubjectStore interface {
	List(ctx context.Context) ([]*models.Subject, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subject, error)
}

// QuizLister lists the quizzes attached to a subject.
type QuizLister interface {
	ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*models.Quiz, error)
}

// SubjectHandler serves the subject catalog and enrollment.
type SubjectHandler struct {
	subjects SubjectStore
	quizzes  QuizLister
	profiles ProfileStore
}

// NewSubjectHandler creates a new subject handler
func NewSubjectHandler(subjects SubjectStore, quizzes QuizLister, profiles ProfileStore) *SubjectHandler {
	return &SubjectHandler{subjects: subjects, quizzes: quizzes, profiles: profiles}
}

// RegisterRoutes registers subject routes on the given router
// The router should already have the /subjects prefix
func (h *SubjectHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListSubjects).Methods("GET")
	r.HandleFunc("/{id}", h.GetSubject).Methods("GET")
	r.HandleFunc("/{id}/quizzes", h.ListSubjectQuizzes).Methods("GET")
	r.HandleFunc("/{id}/enroll", h.Enroll).Methods("POST")
}

// ListSubjects lists all subjects in the catalog
func (h *SubjectHandler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.subjects.List(r.Context())
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list subjects")
		return
	}

	respondJSON(w, http.StatusOK, subjects)
}

// GetSubject returns one subject by id
func (h *SubjectHandler) GetSubject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid subject ID")
		return
	}

	subject, err := h.subjects.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Subject not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load subject")
		return
	}

	respondJSON(w, http.StatusOK, subject)
}

// ListSubjectQuizzes lists the quizzes attached to a subject, answer keys
// stripped.
func (h *SubjectHandler) ListSubjectQuizzes(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid subject ID")
		return
	}

	quizzes, err := h.quizzes.ListBySubject(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list quizzes")
		return
	}

	out := make([]map[string]any, 0, len(quizzes))
	for _, quiz := range quizzes {
		out = append(out, publicQuiz(quiz))
	}

	respondJSON(w, http.StatusOK, out)
}

// Enroll adds the subject to the authenticated user's enrolled subjects.
// Enrolling twice is a no-op.
func (h *SubjectHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	subjectID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid subject ID")
		return
	}

	ctx := r.Context()
	if _, err := h.subjects.GetByID(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Subject not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load subject")
		return
	}

	profile, err := h.profiles.Get(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Profile not provisioned yet")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load profile")
		return
	}

	for _, enrolled := range profile.AcademicInfo.EnrolledSubjectIDs {
		if enrolled == subjectID {
			respondJSON(w, http.StatusOK, profile)
			return
		}
	}

	info := profile.AcademicInfo
	info.EnrolledSubjectIDs = append(info.EnrolledSubjectIDs, subjectID)

	updated, err := h.profiles.Update(ctx, identity.ID, &models.ProfileUpdate{AcademicInfo: &info})
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to enroll")
		return
	}

	respondJSON(w, http.StatusOK, updated)
}
