package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/studyhall-app/studyhall/internal/models"
)

// QuizRepository handles quiz and attempt database operations.
type QuizRepository struct {
	db *DB
}

// NewQuizRepository creates a new quiz repository.
func NewQuizRepository(db *DB) *QuizRepository {
	return &QuizRepository{db: db}
}

// ListBySubject returns all quizzes for a subject, newest first.
func (r *QuizRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*models.Quiz, error) {
	query := `
		SELECT id, subject_id, title, description, questions, created_at, updated_at
		FROM quizzes
		WHERE subject_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []*models.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}

	return quizzes, nil
}

// GetByID retrieves a quiz by id, including its answer key.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	query := `
		SELECT id, subject_id, title, description, questions, created_at, updated_at
		FROM quizzes
		WHERE id = $1
	`
	quiz, err := scanQuiz(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("quiz not found: %w", err)
	}
	return quiz, err
}

func scanQuiz(row rowScanner) (*models.Quiz, error) {
	quiz := &models.Quiz{}
	var questionsJSON []byte

	err := row.Scan(
		&quiz.ID,
		&quiz.SubjectID,
		&quiz.Title,
		&quiz.Description,
		&questionsJSON,
		&quiz.CreatedAt,
		&quiz.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("quiz not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan quiz: %w", err)
	}

	if err := json.Unmarshal(questionsJSON, &quiz.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}

	return quiz, nil
}

// Create inserts a quiz. Used by the seed command.
func (r *QuizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	query := `
		INSERT INTO quizzes (id, subject_id, title, description, questions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING created_at, updated_at
	`

	questionsJSON, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query,
		quiz.ID,
		quiz.SubjectID,
		quiz.Title,
		quiz.Description,
		questionsJSON,
	).Scan(&quiz.CreatedAt, &quiz.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}

	return nil
}

// CreateAttempt records a graded quiz attempt.
func (r *QuizRepository) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	query := `
		INSERT INTO quiz_attempts (id, quiz_id, identity_id, answers, correct, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		attempt.ID,
		attempt.QuizID,
		attempt.IdentityID,
		pq.Array(attempt.Answers),
		attempt.Correct,
		attempt.Total,
		now,
	).Scan(&attempt.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create quiz attempt: %w", err)
	}

	return nil
}

// ListAttempts returns a user's attempts for a quiz, newest first.
func (r *QuizRepository) ListAttempts(ctx context.Context, quizID, identityID uuid.UUID) ([]*models.QuizAttempt, error) {
	query := `
		SELECT id, quiz_id, identity_id, answers, correct, total, created_at
		FROM quiz_attempts
		WHERE quiz_id = $1 AND identity_id = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, quizID, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.QuizAttempt
	for rows.Next() {
		attempt := &models.QuizAttempt{}
		var answers pq.Int64Array
		err := rows.Scan(
			&attempt.ID,
			&attempt.QuizID,
			&attempt.IdentityID,
			&answers,
			&attempt.Correct,
			&attempt.Total,
			&attempt.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz attempt: %w", err)
		}
		attempt.Answers = make([]int, len(answers))
		for i, a := range answers {
			attempt.Answers[i] = int(a)
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quiz attempts: %w", err)
	}

	return attempts, nil
}
