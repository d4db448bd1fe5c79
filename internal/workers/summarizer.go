package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/queue"
	"github.com/studyhall-app/studyhall/internal/services/ai"
)

// SummaryUpdater persists a fresh study-context summary for a student.
type SummaryUpdater interface {
	UpdateContextSummary(ctx context.Context, identityID uuid.UUID, conversationHistory []ai.ChatMessage) error
}

// ChatSummarizer processes chat summary jobs: it re-summarizes a tutoring
// conversation into the student's study context. The conversation travels in
// the job metadata because tutor sessions live in the API server's memory,
// not in the worker's.
type ChatSummarizer struct {
	contexts SummaryUpdater
}

// NewChatSummarizer creates a new chat summarizer
func NewChatSummarizer(contexts SummaryUpdater) *ChatSummarizer {
	return &ChatSummarizer{contexts: contexts}
}

// ProcessChatSummaryJob processes a chat summary job
func (s *ChatSummarizer) ProcessChatSummaryJob(ctx context.Context, job *queue.Job) error {
	history, err := decodeMessages(job.Metadata[queue.MetadataKeyMessages])
	if err != nil {
		return fmt.Errorf("failed to decode conversation: %w", err)
	}
	if len(history) == 0 {
		log.Printf("Skipping summary job %s (empty conversation)", job.ID)
		return nil
	}

	if err := s.contexts.UpdateContextSummary(ctx, job.IdentityID, history); err != nil {
		return fmt.Errorf("failed to update study context: %w", err)
	}

	log.Printf("Summarized %d message(s) into study context for %s", len(history), job.IdentityID)
	return nil
}

// decodeMessages recovers the typed conversation from the metadata value,
// which arrives as generic JSON after the queue round trip.
func decodeMessages(raw any) ([]ai.ChatMessage, error) {
	if raw == nil {
		return nil, nil
	}

	// Round-trip through JSON to coerce []any / map[string]any into the
	// typed slice.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode messages: %w", err)
	}

	var messages []ai.ChatMessage
	if err := json.Unmarshal(encoded, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}
