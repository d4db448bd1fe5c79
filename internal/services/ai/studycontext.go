package ai

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/database"
	"github.com/studyhall-app/studyhall/internal/models"
)

// StudyContextService manages the per-student memory the tutor carries
// between sessions.
type StudyContextService struct {
	provider    TutorProvider
	contextRepo database.StudyContextRepositoryInterface
}

// NewStudyContextService creates a new study context service
func NewStudyContextService(provider TutorProvider, contextRepo database.StudyContextRepositoryInterface) *StudyContextService {
	return &StudyContextService{
		provider:    provider,
		contextRepo: contextRepo,
	}
}

// GetOrCreateContext gets or creates a student's study context
func (s *StudyContextService) GetOrCreateContext(ctx context.Context, identityID uuid.UUID) (*models.StudyContext, error) {
	studyContext, err := s.contextRepo.GetByIdentityID(ctx, identityID)
	if err == nil {
		return studyContext, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get study context: %w", err)
	}

	studyContext = &models.StudyContext{
		IdentityID: identityID,
		Settings:   make(map[string]any),
	}

	if err := s.contextRepo.Create(ctx, studyContext); err != nil {
		return nil, fmt.Errorf("failed to create study context: %w", err)
	}

	return studyContext, nil
}

// UpdateContextSummary re-summarizes a conversation and persists the result
func (s *StudyContextService) UpdateContextSummary(ctx context.Context, identityID uuid.UUID, conversationHistory []ChatMessage) error {
	summary, err := s.provider.SummarizeContext(ctx, conversationHistory)
	if err != nil {
		return fmt.Errorf("failed to summarize context: %w", err)
	}

	studyContext, err := s.GetOrCreateContext(ctx, identityID)
	if err != nil {
		return err
	}

	studyContext.Summary = summary

	if err := s.contextRepo.Update(ctx, studyContext); err != nil {
		return fmt.Errorf("failed to update study context: %w", err)
	}

	return nil
}

// LoadContextForChat loads a student's context ahead of a tutoring exchange
func (s *StudyContextService) LoadContextForChat(ctx context.Context, identityID uuid.UUID) (*models.StudyContext, error) {
	return s.GetOrCreateContext(ctx, identityID)
}
