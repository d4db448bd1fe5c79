package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
)

// StudyContextRepository handles the tutor's per-student memory rows.
type StudyContextRepository struct {
	db *DB
}

// NewStudyContextRepository creates a new study context repository.
func NewStudyContextRepository(db *DB) *StudyContextRepository {
	return &StudyContextRepository{db: db}
}

// GetByIdentityID retrieves the study context for a user.
func (r *StudyContextRepository) GetByIdentityID(ctx context.Context, identityID uuid.UUID) (*models.StudyContext, error) {
	sc := &models.StudyContext{}
	var settingsJSON []byte

	query := `
		SELECT id, identity_id, summary, settings, created_at, updated_at
		FROM study_contexts
		WHERE identity_id = $1
	`

	err := r.db.QueryRowContext(ctx, query, identityID).Scan(
		&sc.ID,
		&sc.IdentityID,
		&sc.Summary,
		&settingsJSON,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("study context not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study context: %w", err)
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &sc.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}

	return sc, nil
}

// Create inserts a study context for a user.
func (r *StudyContextRepository) Create(ctx context.Context, sc *models.StudyContext) error {
	query := `
		INSERT INTO study_contexts (id, identity_id, summary, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	settingsJSON, err := json.Marshal(sc.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	now := time.Now()
	err = r.db.QueryRowContext(ctx, query,
		sc.ID,
		sc.IdentityID,
		sc.Summary,
		settingsJSON,
		now,
		now,
	).Scan(&sc.ID, &sc.CreatedAt, &sc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create study context: %w", err)
	}

	return nil
}

// Update rewrites the summary and settings for a user's study context.
func (r *StudyContextRepository) Update(ctx context.Context, sc *models.StudyContext) error {
	query := `
		UPDATE study_contexts
		SET summary = $2, settings = $3, updated_at = $4
		WHERE identity_id = $1
		RETURNING updated_at
	`

	settingsJSON, err := json.Marshal(sc.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query, sc.IdentityID, sc.Summary, settingsJSON, time.Now()).Scan(&sc.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("study context not found")
	}
	if err != nil {
		return fmt.Errorf("failed to update study context: %w", err)
	}

	return nil
}
