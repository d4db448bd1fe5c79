package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/request"
)

// QuizStore is the subset of quiz persistence the handler needs.
type QuizStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	ListAttempts(ctx context.Context, quizID, identityID uuid.UUID) ([]*models.QuizAttempt, error)
}

// QuizHandler serves quizzes and graded attempts.
type QuizHandler struct {
	quizzes QuizStore
}

// NewQuizHandler creates a new quiz handler
func NewQuizHandler(quizzes QuizStore) *QuizHandler {
	return &QuizHandler{quizzes: quizzes}
}

// RegisterRoutes registers quiz routes on the given router
// The router should already have the /quizzes prefix
func (h *QuizHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{id}", h.GetQuiz).Methods("GET")
	r.HandleFunc("/{id}/attempts", h.SubmitAttempt).Methods("POST")
	r.HandleFunc("/{id}/attempts", h.ListAttempts).Methods("GET")
}

// SubmitAttemptRequest carries a student's answers, one index per question.
type SubmitAttemptRequest struct {
	Answers []int `json:"answers"`
}

// publicQuiz renders a quiz without its answer key.
func publicQuiz(quiz *models.Quiz) map[string]any {
	return map[string]any{
		"id":          quiz.ID,
		"subject_id":  quiz.SubjectID,
		"title":       quiz.Title,
		"description": quiz.Description,
		"questions":   quiz.PublicQuestions(),
		"created_at":  quiz.CreatedAt,
		"updated_at":  quiz.UpdatedAt,
	}
}

// GetQuiz returns one quiz by id with the answer key stripped
func (h *QuizHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid quiz ID")
		return
	}

	quiz, err := h.quizzes.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Quiz not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load quiz")
		return
	}

	respondJSON(w, http.StatusOK, publicQuiz(quiz))
}

// SubmitAttempt grades a submission and records the attempt
func (h *QuizHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid quiz ID")
		return
	}

	var req SubmitAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	ctx := r.Context()
	quiz, err := h.quizzes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Quiz not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load quiz")
		return
	}

	if len(req.Answers) > len(quiz.Questions) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "More answers than questions")
		return
	}

	attempt := &models.QuizAttempt{
		ID:         uuid.New(),
		QuizID:     quiz.ID,
		IdentityID: identity.ID,
		Answers:    req.Answers,
		Correct:    quiz.Grade(req.Answers),
		Total:      len(quiz.Questions),
	}

	if err := h.quizzes.CreateAttempt(ctx, attempt); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to record attempt")
		return
	}

	respondJSON(w, http.StatusCreated, attempt)
}

// ListAttempts lists the authenticated user's attempts on a quiz
func (h *QuizHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid quiz ID")
		return
	}

	attempts, err := h.quizzes.ListAttempts(r.Context(), id, identity.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list attempts")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}
