package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/studyhall-app/studyhall/internal/database"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/request"
)

// fakeProfileStore backs the profile handler with an in-memory map.
type fakeProfileStore struct {
	rows      map[uuid.UUID]*models.Profile
	updateErr error
	updates   []*models.ProfileUpdate
}

func (f *fakeProfileStore) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("profile not found: %w", sql.ErrNoRows)
	}
	return p, nil
}

func (f *fakeProfileStore) Update(ctx context.Context, id uuid.UUID, update *models.ProfileUpdate) (*models.Profile, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	f.updates = append(f.updates, update)
	if update.Handle != nil {
		p.Handle = update.Handle
	}
	if update.Bio != nil {
		p.Bio = update.Bio
	}
	if update.Location != nil {
		p.Location = update.Location
	}
	if update.AcademicInfo != nil {
		p.AcademicInfo = *update.AcademicInfo
	}
	return p, nil
}

func authedRequest(method, target string, body []byte, identity *models.Identity) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(request.WithIdentity(req.Context(), identity))
}

func profileRouter(store ProfileStore) *mux.Router {
	r := mux.NewRouter()
	NewProfileHandler(store).RegisterRoutes(r.PathPrefix("/profiles").Subrouter())
	return r
}

func TestGetMyProfile(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{ID: uuid.New(), Email: "alice@example.com"}
	handle := "alice"
	store := &fakeProfileStore{rows: map[uuid.UUID]*models.Profile{
		identity.ID: {ID: identity.ID, Handle: &handle},
	}}

	w := httptest.NewRecorder()
	profileRouter(store).ServeHTTP(w, authedRequest("GET", "/profiles/me", nil, identity))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var envelope struct {
		Success bool           `json:"success"`
		Data    models.Profile `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if !envelope.Success {
		t.Error("expected success envelope")
	}
	if envelope.Data.Handle == nil || *envelope.Data.Handle != "alice" {
		t.Errorf("handle = %v, want alice", envelope.Data.Handle)
	}
}

func TestGetMyProfileNotProvisioned(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{ID: uuid.New()}
	store := &fakeProfileStore{rows: map[uuid.UUID]*models.Profile{}}

	w := httptest.NewRecorder()
	profileRouter(store).ServeHTTP(w, authedRequest("GET", "/profiles/me", nil, identity))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestGetMyProfileUnauthenticated(t *testing.T) {
	t.Parallel()

	store := &fakeProfileStore{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/profiles/me", nil)
	profileRouter(store).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestUpdateMyProfilePartialUpdate(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{ID: uuid.New()}
	location := "Lisbon"
	store := &fakeProfileStore{rows: map[uuid.UUID]*models.Profile{
		identity.ID: {ID: identity.ID, Location: &location},
	}}

	body := []byte(`{"bio":"studying physics"}`)
	w := httptest.NewRecorder()
	profileRouter(store).ServeHTTP(w, authedRequest("PATCH", "/profiles/me", body, identity))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	if len(store.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(store.updates))
	}
	update := store.updates[0]
	if update.Bio == nil || *update.Bio != "studying physics" {
		t.Errorf("bio = %v, want 'studying physics'", update.Bio)
	}
	if update.Location != nil {
		t.Error("update must not touch fields the caller did not mention")
	}

	row := store.rows[identity.ID]
	if row.Location == nil || *row.Location != "Lisbon" {
		t.Error("unmentioned column must survive the update")
	}
}

func TestUpdateMyProfileEmptyBody(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{ID: uuid.New()}
	store := &fakeProfileStore{rows: map[uuid.UUID]*models.Profile{identity.ID: {ID: identity.ID}}}

	w := httptest.NewRecorder()
	profileRouter(store).ServeHTTP(w, authedRequest("PATCH", "/profiles/me", []byte(`{}`), identity))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateMyProfileRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{ID: uuid.New()}
	store := &fakeProfileStore{rows: map[uuid.UUID]*models.Profile{identity.ID: {ID: identity.ID}}}

	w := httptest.NewRecorder()
	profileRouter(store).ServeHTTP(w, authedRequest("PATCH", "/profiles/me", []byte(`{"email":"x@y.z"}`), identity))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateMyProfileRejectsBadHandle(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{ID: uuid.New()}
	store := &fakeProfileStore{rows: map[uuid.UUID]*models.Profile{identity.ID: {ID: identity.ID}}}

	for _, handle := range []string{"A", "has space", ".leading", "UPPER"} {
		body := []byte(fmt.Sprintf(`{"handle":%q}`, handle))
		w := httptest.NewRecorder()
		profileRouter(store).ServeHTTP(w, authedRequest("PATCH", "/profiles/me", body, identity))

		if w.Code != http.StatusBadRequest {
			t.Errorf("handle %q: status = %d, want 400", handle, w.Code)
		}
	}
	if len(store.updates) != 0 {
		t.Error("invalid handles must never reach the store")
	}
}

func TestUpdateMyProfileHandleConflict(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{ID: uuid.New()}
	store := &fakeProfileStore{
		rows:      map[uuid.UUID]*models.Profile{identity.ID: {ID: identity.ID}},
		updateErr: &pq.Error{Code: "23505", Constraint: database.ProfileHandleConstraint},
	}

	w := httptest.NewRecorder()
	profileRouter(store).ServeHTTP(w, authedRequest("PATCH", "/profiles/me", []byte(`{"handle":"taken"}`), identity))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestUpdateMyProfileRejectsBadTheme(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{ID: uuid.New()}
	store := &fakeProfileStore{rows: map[uuid.UUID]*models.Profile{identity.ID: {ID: identity.ID}}}

	body := []byte(`{"preferences":{"theme":"neon","language":"en","notifications":{}}}`)
	w := httptest.NewRecorder()
	profileRouter(store).ServeHTTP(w, authedRequest("PATCH", "/profiles/me", body, identity))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
