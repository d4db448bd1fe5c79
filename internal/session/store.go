package session

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/database"
	"github.com/studyhall-app/studyhall/internal/models"
)

// RepositoryStore adapts the profile repository to the ProfileStore interface,
// translating database errors into the sentinels the reconciler branches on.
type RepositoryStore struct {
	repo database.ProfileRepositoryInterface
}

// NewRepositoryStore wraps a profile repository.
func NewRepositoryStore(repo database.ProfileRepositoryInterface) *RepositoryStore {
	return &RepositoryStore{repo: repo}
}

var _ ProfileStore = (*RepositoryStore)(nil)

// Get fetches a profile, mapping a missing row to ErrProfileNotFound.
func (s *RepositoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

// Create inserts a profile, mapping a primary-key conflict to
// ErrProfileExists so the reconciler re-fetches the winner's row.
func (s *RepositoryStore) Create(ctx context.Context, profile *models.Profile) error {
	if err := s.repo.Create(ctx, profile); err != nil {
		if database.IsUniqueViolation(err, database.ProfilePKeyConstraint) {
			return ErrProfileExists
		}
		return err
	}
	return nil
}

// Update applies a partial update and returns the stored row.
func (s *RepositoryStore) Update(ctx context.Context, id uuid.UUID, update *models.ProfileUpdate) (*models.Profile, error) {
	return s.repo.Update(ctx, id, update)
}
