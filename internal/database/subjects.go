package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
)

// SubjectRepository handles subject database operations.
type SubjectRepository struct {
	db *DB
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns all subjects ordered by code.
func (r *SubjectRepository) List(ctx context.Context) ([]*models.Subject, error) {
	query := `
		SELECT id, code, title, description, credits, created_at, updated_at
		FROM subjects
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []*models.Subject
	for rows.Next() {
		subject := &models.Subject{}
		err := rows.Scan(
			&subject.ID,
			&subject.Code,
			&subject.Title,
			&subject.Description,
			&subject.Credits,
			&subject.CreatedAt,
			&subject.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subjects: %w", err)
	}

	return subjects, nil
}

// GetByID retrieves a subject by id.
func (r *SubjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	subject := &models.Subject{}
	query := `
		SELECT id, code, title, description, credits, created_at, updated_at
		FROM subjects
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&subject.ID,
		&subject.Code,
		&subject.Title,
		&subject.Description,
		&subject.Credits,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subject not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	return subject, nil
}

// Create inserts a subject. Used by the seed command.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	query := `
		INSERT INTO subjects (id, code, title, description, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		subject.ID,
		subject.Code,
		subject.Title,
		subject.Description,
		subject.Credits,
	).Scan(&subject.CreatedAt, &subject.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create subject: %w", err)
	}

	return nil
}
