package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSanitizeAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"empty", "", ""},
		{"short key fully redacted", "sk-12345", RedactedValue},
		{"long key keeps edges", "sk-abcdefghijklmnop", "sk-a" + RedactedValue + "mnop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeAPIKey(tt.key); got != tt.want {
				t.Errorf("SanitizeAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizePromptStripsControlCharacters(t *testing.T) {
	t.Parallel()

	got := SanitizePrompt("hello\x00world\nnext", false)
	if strings.Contains(got, "\x00") {
		t.Error("control characters must be removed")
	}
	if !strings.Contains(got, "\n") {
		t.Error("newlines should survive")
	}
}

func TestSanitizePromptTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", MaxPreviewLength+50)
	got := SanitizePrompt(long, false)
	if len(got) != MaxPreviewLength+3 {
		t.Errorf("len = %d, want truncated to %d plus ellipsis", len(got), MaxPreviewLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated preview should end with ellipsis")
	}
}

func TestExtractIdentityID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	ctx := context.WithValue(context.Background(), IdentityIDContextKey(), id)
	if got := ExtractIdentityID(ctx); got != id.String() {
		t.Errorf("ExtractIdentityID() = %q, want %q", got, id)
	}
	if got := ExtractIdentityID(context.Background()); got != "" {
		t.Errorf("ExtractIdentityID() on empty context = %q, want empty", got)
	}
}

func TestExtractRequestID(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), RequestIDContextKey(), "req-123")
	if got := ExtractRequestID(ctx); got != "req-123" {
		t.Errorf("ExtractRequestID() = %q, want req-123", got)
	}
}
