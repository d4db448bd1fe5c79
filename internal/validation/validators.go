package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/studyhall-app/studyhall/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but log if they do
	if err := Validate.RegisterValidation("theme", validateTheme); err != nil {
		panic(fmt.Sprintf("failed to register theme validator: %v", err))
	}
	if err := Validate.RegisterValidation("bookmark_kind", validateBookmarkKind); err != nil {
		panic(fmt.Sprintf("failed to register bookmark_kind validator: %v", err))
	}
}

// validateTheme validates that a string is a valid display theme
func validateTheme(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case models.ThemeLight, models.ThemeDark:
		return true
	default:
		return false
	}
}

// validateBookmarkKind validates that a string is a valid BookmarkKind enum value
func validateBookmarkKind(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	switch models.BookmarkKind(value) {
	case models.BookmarkKindSubject, models.BookmarkKindQuiz, models.BookmarkKindChat:
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateTheme validates a display theme string value
func ValidateTheme(value string) error {
	switch value {
	case models.ThemeLight, models.ThemeDark:
		return nil
	default:
		return fmt.Errorf("invalid theme: %s (must be 'light' or 'dark')", value)
	}
}

// ValidateBookmarkKind validates a BookmarkKind string value
func ValidateBookmarkKind(value string) error {
	switch models.BookmarkKind(value) {
	case models.BookmarkKindSubject, models.BookmarkKindQuiz, models.BookmarkKindChat:
		return nil
	default:
		return fmt.Errorf("invalid kind: %s (must be 'subject', 'quiz', or 'chat')", value)
	}
}
