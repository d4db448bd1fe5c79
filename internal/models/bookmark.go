package models

import (
	"time"

	"github.com/google/uuid"
)

// BookmarkKind says what a bookmark points at.
type BookmarkKind string

const (
	BookmarkKindSubject BookmarkKind = "subject"
	BookmarkKindQuiz    BookmarkKind = "quiz"
	BookmarkKindChat    BookmarkKind = "chat"
)

// Bookmark is a per-user saved reference to a subject, quiz or chat thread.
// Bookmarks are last-write-wins; there is no coordination between clients.
type Bookmark struct {
	ID         uuid.UUID    `json:"id"`
	IdentityID uuid.UUID    `json:"identity_id"`
	Kind       BookmarkKind `json:"kind"`
	TargetID   uuid.UUID    `json:"target_id"`
	Note       *string      `json:"note,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}
