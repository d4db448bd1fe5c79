package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/queue"
	"github.com/studyhall-app/studyhall/internal/services/ai"
)

// fakeTutorProvider echoes a canned reply.
type fakeTutorProvider struct {
	reply string
}

func (f *fakeTutorProvider) Chat(ctx context.Context, messages []ai.ChatMessage, studyContext *models.StudyContext) (*ai.ChatResponse, error) {
	return &ai.ChatResponse{Message: f.reply}, nil
}

func (f *fakeTutorProvider) SummarizeContext(ctx context.Context, history []ai.ChatMessage) (string, error) {
	return "summary", nil
}

// fakeContextRepo is an in-memory study context store.
type fakeContextRepo struct {
	contexts map[uuid.UUID]*models.StudyContext
}

func (f *fakeContextRepo) GetByIdentityID(ctx context.Context, identityID uuid.UUID) (*models.StudyContext, error) {
	sc, ok := f.contexts[identityID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return sc, nil
}

func (f *fakeContextRepo) Create(ctx context.Context, sc *models.StudyContext) error {
	if f.contexts == nil {
		f.contexts = map[uuid.UUID]*models.StudyContext{}
	}
	f.contexts[sc.IdentityID] = sc
	return nil
}

func (f *fakeContextRepo) Update(ctx context.Context, sc *models.StudyContext) error {
	f.contexts[sc.IdentityID] = sc
	return nil
}

// fakeSummaryQueue records enqueued jobs.
type fakeSummaryQueue struct {
	jobs []*queue.Job
}

func (q *fakeSummaryQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeSummaryQueue) Dequeue(ctx context.Context) (*queue.Message, error) { return nil, nil }
func (q *fakeSummaryQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, nil
}
func (q *fakeSummaryQueue) Close() error                          { return nil }
func (q *fakeSummaryQueue) HealthCheck(ctx context.Context) error { return nil }

func tutorRouter(jq queue.JobQueue) (*mux.Router, *ai.TutorService) {
	provider := &fakeTutorProvider{reply: "a newton is the SI unit of force"}
	tutorService := ai.NewTutorService(provider)
	contextService := ai.NewStudyContextService(provider, &fakeContextRepo{})

	r := mux.NewRouter()
	NewTutorHandler(tutorService, contextService, jq).RegisterRoutes(r.PathPrefix("/tutor").Subrouter())
	return r, tutorService
}

func TestSendMessageRepliesAndRecords(t *testing.T) {
	t.Parallel()

	router, tutorService := tutorRouter(&fakeSummaryQueue{})
	identity := &models.Identity{ID: uuid.New()}

	body := []byte(`{"message":"what is a newton?"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest("POST", "/tutor/chat/message", body, identity))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Data["message"] != "a newton is the SI unit of force" {
		t.Errorf("reply = %v", envelope.Data["message"])
	}

	session := tutorService.GetOrCreateSession(identity.ID)
	if len(session.Messages) != 2 {
		t.Fatalf("session messages = %d, want user + assistant", len(session.Messages))
	}
	if session.Messages[0].Role != "user" || session.Messages[1].Role != "assistant" {
		t.Errorf("roles = %q %q", session.Messages[0].Role, session.Messages[1].Role)
	}
}

func TestSendMessageEnqueuesSummaryEveryTenMessages(t *testing.T) {
	t.Parallel()

	jq := &fakeSummaryQueue{}
	router, _ := tutorRouter(jq)
	identity := &models.Identity{ID: uuid.New()}

	// Each request adds two messages, so the fifth crosses the interval.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/tutor/chat/message", []byte(`{"message":"again"}`), identity))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}

	if len(jq.jobs) != 1 {
		t.Fatalf("summary jobs = %d, want 1", len(jq.jobs))
	}
	job := jq.jobs[0]
	if job.Type != queue.JobTypeChatSummary {
		t.Errorf("job type = %s, want chat_summary", job.Type)
	}
	if job.IdentityID != identity.ID {
		t.Errorf("job identity = %s, want %s", job.IdentityID, identity.ID)
	}
	messages, ok := job.Metadata[queue.MetadataKeyMessages].([]ai.ChatMessage)
	if !ok || len(messages) != 10 {
		t.Fatalf("job metadata messages = %v", job.Metadata[queue.MetadataKeyMessages])
	}
}

func TestSendMessageRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	router, _ := tutorRouter(&fakeSummaryQueue{})
	identity := &models.Identity{ID: uuid.New()}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest("POST", "/tutor/chat/message", []byte(`{}`), identity))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSendMessageUnauthenticated(t *testing.T) {
	t.Parallel()

	router, _ := tutorRouter(&fakeSummaryQueue{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/tutor/chat/message", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
