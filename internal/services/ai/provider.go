package ai

import (
	"context"

	"github.com/studyhall-app/studyhall/internal/models"
)

// TutorProvider is the interface tutoring backends implement.
type TutorProvider interface {
	// Chat handles a tutoring exchange and returns the tutor's reply.
	Chat(ctx context.Context, messages []ChatMessage, studyContext *models.StudyContext) (*ChatResponse, error)

	// SummarizeContext condenses a conversation into a study-context summary.
	SummarizeContext(ctx context.Context, conversationHistory []ChatMessage) (string, error)
}

// ChatMessage represents a message in a tutoring conversation
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatResponse represents a reply from the tutor
type ChatResponse struct {
	Message     string `json:"message"`
	NeedsUpdate bool   `json:"needs_update,omitempty"` // Whether the study context should be re-summarized
}

// ProviderFactory creates a tutor provider from configuration
type ProviderFactory func(config map[string]string) (TutorProvider, error)

// ProviderRegistry stores available tutor providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, config map[string]string) (TutorProvider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(config)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "tutor provider not found: " + e.Name
}
