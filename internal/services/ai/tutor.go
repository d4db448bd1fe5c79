package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
)

// TutorService manages in-memory tutoring sessions, one per student.
type TutorService struct {
	provider TutorProvider
	sessions map[uuid.UUID]*TutorSession
	mu       sync.RWMutex
}

// TutorSession is an active tutoring conversation
type TutorSession struct {
	IdentityID         uuid.UUID
	Messages           []ChatMessage
	CreatedAt          time.Time
	LastActivity       time.Time
	NeedsSummaryUpdate bool
}

// NewTutorService creates a new tutor service
func NewTutorService(provider TutorProvider) *TutorService {
	return &TutorService{
		provider: provider,
		sessions: make(map[uuid.UUID]*TutorSession),
	}
}

// GetOrCreateSession gets or creates a tutoring session for a student
func (s *TutorService) GetOrCreateSession(identityID uuid.UUID) *TutorSession {
	s.mu.RLock()
	if session, exists := s.sessions[identityID]; exists {
		s.mu.RUnlock()
		session.LastActivity = time.Now()
		return session
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock
	if session, exists := s.sessions[identityID]; exists {
		session.LastActivity = time.Now()
		return session
	}

	session := &TutorSession{
		IdentityID:   identityID,
		Messages:     make([]ChatMessage, 0),
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}

	s.sessions[identityID] = session
	return session
}

// AddMessage appends a message to the session
func (s *TutorService) AddMessage(session *TutorSession, role string, content string) {
	session.Messages = append(session.Messages, ChatMessage{
		Role:    role,
		Content: content,
	})
	session.LastActivity = time.Now()
	session.NeedsSummaryUpdate = true
}

// GetResponse asks the provider for the tutor's next reply and records it.
func (s *TutorService) GetResponse(ctx context.Context, session *TutorSession, studyContext *models.StudyContext) (*ChatResponse, error) {
	response, err := s.provider.Chat(ctx, session.Messages, studyContext)
	if err != nil {
		return nil, fmt.Errorf("failed to get tutor response: %w", err)
	}

	s.AddMessage(session, "assistant", response.Message)

	return response, nil
}

// CloseSession drops a session from memory
func (s *TutorService) CloseSession(identityID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identityID)
}
