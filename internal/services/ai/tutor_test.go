package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
)

// fakeProvider is a scripted TutorProvider for tests.
type fakeProvider struct {
	reply      string
	summary    string
	chatErr    error
	summaryErr error
	lastChat   []ChatMessage
	lastCtx    *models.StudyContext
}

func (f *fakeProvider) Chat(ctx context.Context, messages []ChatMessage, studyContext *models.StudyContext) (*ChatResponse, error) {
	f.lastChat = messages
	f.lastCtx = studyContext
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &ChatResponse{Message: f.reply, NeedsUpdate: true}, nil
}

func (f *fakeProvider) SummarizeContext(ctx context.Context, history []ChatMessage) (string, error) {
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	return f.summary, nil
}

func TestGetOrCreateSessionReusesSession(t *testing.T) {
	t.Parallel()

	svc := NewTutorService(&fakeProvider{})
	id := uuid.New()

	first := svc.GetOrCreateSession(id)
	svc.AddMessage(first, "user", "what is a derivative?")

	second := svc.GetOrCreateSession(id)
	if second != first {
		t.Error("expected the same session for the same student")
	}
	if len(second.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(second.Messages))
	}
}

func TestGetResponseAppendsAssistantMessage(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{reply: "think about the slope"}
	svc := NewTutorService(provider)
	session := svc.GetOrCreateSession(uuid.New())
	svc.AddMessage(session, "user", "what is a derivative?")

	sc := &models.StudyContext{Summary: "studying calculus"}
	resp, err := svc.GetResponse(context.Background(), session, sc)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != "think about the slope" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(session.Messages) != 2 || session.Messages[1].Role != "assistant" {
		t.Errorf("session messages = %+v, want user then assistant", session.Messages)
	}
	if provider.lastCtx != sc {
		t.Error("study context should be forwarded to the provider")
	}
}

func TestGetResponsePropagatesProviderError(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{chatErr: errors.New("upstream down")}
	svc := NewTutorService(provider)
	session := svc.GetOrCreateSession(uuid.New())
	svc.AddMessage(session, "user", "hello")

	if _, err := svc.GetResponse(context.Background(), session, nil); err == nil {
		t.Fatal("expected error")
	}
	if len(session.Messages) != 1 {
		t.Errorf("messages = %d, want no assistant message on failure", len(session.Messages))
	}
}

func TestCloseSessionDropsState(t *testing.T) {
	t.Parallel()

	svc := NewTutorService(&fakeProvider{})
	id := uuid.New()
	session := svc.GetOrCreateSession(id)
	svc.AddMessage(session, "user", "hi")

	svc.CloseSession(id)

	fresh := svc.GetOrCreateSession(id)
	if len(fresh.Messages) != 0 {
		t.Error("expected a fresh session after close")
	}
}
