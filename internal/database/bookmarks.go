package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
)

// BookmarkRepository handles bookmark database operations.
type BookmarkRepository struct {
	db *DB
}

// NewBookmarkRepository creates a new bookmark repository.
func NewBookmarkRepository(db *DB) *BookmarkRepository {
	return &BookmarkRepository{db: db}
}

// ListByIdentity returns all bookmarks for a user, newest first.
func (r *BookmarkRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*models.Bookmark, error) {
	query := `
		SELECT id, identity_id, kind, target_id, note, created_at
		FROM bookmarks
		WHERE identity_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []*models.Bookmark
	for rows.Next() {
		bookmark := &models.Bookmark{}
		err := rows.Scan(
			&bookmark.ID,
			&bookmark.IdentityID,
			&bookmark.Kind,
			&bookmark.TargetID,
			&bookmark.Note,
			&bookmark.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, bookmark)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookmarks: %w", err)
	}

	return bookmarks, nil
}

// Create inserts a bookmark. A duplicate (identity, kind, target) upserts the
// note instead of failing; bookmarks are last-write-wins.
func (r *BookmarkRepository) Create(ctx context.Context, bookmark *models.Bookmark) error {
	query := `
		INSERT INTO bookmarks (id, identity_id, kind, target_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity_id, kind, target_id) DO UPDATE SET note = EXCLUDED.note
		RETURNING id, created_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		bookmark.ID,
		bookmark.IdentityID,
		bookmark.Kind,
		bookmark.TargetID,
		bookmark.Note,
		now,
	).Scan(&bookmark.ID, &bookmark.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create bookmark: %w", err)
	}

	return nil
}

// Delete removes a bookmark owned by the given identity.
func (r *BookmarkRepository) Delete(ctx context.Context, id, identityID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = $1 AND identity_id = $2`, id, identityID)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}
