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
	"github.com/studyhall-app/studyhall/internal/validation"
)

// BookmarkStore is the subset of bookmark persistence the handler needs.
type BookmarkStore interface {
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*models.Bookmark, error)
	Create(ctx context.Context, bookmark *models.Bookmark) error
	Delete(ctx context.Context, id, identityID uuid.UUID) error
}

// BookmarkHandler serves per-user bookmarks.
type BookmarkHandler struct {
	bookmarks BookmarkStore
}

// NewBookmarkHandler creates a new bookmark handler
func NewBookmarkHandler(bookmarks BookmarkStore) *BookmarkHandler {
	return &BookmarkHandler{bookmarks: bookmarks}
}

// RegisterRoutes registers bookmark routes on the given router
// The router should already have the /bookmarks prefix
func (h *BookmarkHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListBookmarks).Methods("GET")
	r.HandleFunc("", h.CreateBookmark).Methods("POST")
	r.HandleFunc("/{id}", h.DeleteBookmark).Methods("DELETE")
}

// CreateBookmarkRequest represents a create bookmark request
type CreateBookmarkRequest struct {
	Kind     string  `json:"kind"`
	TargetID string  `json:"target_id"`
	Note     *string `json:"note,omitempty"`
}

// ListBookmarks lists the authenticated user's bookmarks
func (h *BookmarkHandler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	bookmarks, err := h.bookmarks.ListByIdentity(r.Context(), identity.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list bookmarks")
		return
	}

	respondJSON(w, http.StatusOK, bookmarks)
}

// CreateBookmark saves a bookmark for the authenticated user
func (h *BookmarkHandler) CreateBookmark(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	var req CreateBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if err := validation.ValidateBookmarkKind(req.Kind); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid target ID")
		return
	}

	if req.Note != nil {
		clean := validation.SanitizeText(*req.Note)
		req.Note = &clean
	}

	bookmark := &models.Bookmark{
		ID:         uuid.New(),
		IdentityID: identity.ID,
		Kind:       models.BookmarkKind(req.Kind),
		TargetID:   targetID,
		Note:       req.Note,
	}

	if err := h.bookmarks.Create(r.Context(), bookmark); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create bookmark")
		return
	}

	respondJSON(w, http.StatusCreated, bookmark)
}

// DeleteBookmark removes one of the authenticated user's bookmarks
func (h *BookmarkHandler) DeleteBookmark(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid bookmark ID")
		return
	}

	if err := h.bookmarks.Delete(r.Context(), id, identity.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Bookmark not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete bookmark")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
