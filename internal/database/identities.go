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

// IdentityRepository handles identity database operations.
type IdentityRepository struct {
	db *DB
}

// NewIdentityRepository creates a new identity repository.
func NewIdentityRepository(db *DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// BeginTx starts a transaction on the underlying pool. Identity creation and
// profile provisioning share one transaction so the profile row lands
// atomically with the identity row.
func (r *IdentityRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateTx inserts an identity inside the given transaction.
func (r *IdentityRepository) CreateTx(ctx context.Context, tx *sql.Tx, identity *models.Identity) error {
	query := `
		INSERT INTO identities (id, subject, email, metadata, email_verified, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	metadataJSON, err := json.Marshal(identity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal identity metadata: %w", err)
	}

	now := time.Now()
	err = tx.QueryRowContext(ctx, query,
		identity.ID,
		identity.Subject,
		identity.Email,
		metadataJSON,
		identity.EmailVerified,
		now,
		identity.ConfirmedAt,
	).Scan(&identity.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity by its id.
func (r *IdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return r.getByField(ctx, "id", id)
}

// GetBySubject retrieves an identity by the OIDC provider subject.
func (r *IdentityRepository) GetBySubject(ctx context.Context, subject string) (*models.Identity, error) {
	return r.getByField(ctx, "subject", subject)
}

func (r *IdentityRepository) getByField(ctx context.Context, field string, value any) (*models.Identity, error) {
	identity := &models.Identity{}
	var metadataJSON []byte
	var confirmedAt sql.NullTime

	query := fmt.Sprintf(`
		SELECT id, subject, email, metadata, email_verified, created_at, confirmed_at
		FROM identities
		WHERE %s = $1
	`, field)

	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&identity.ID,
		&identity.Subject,
		&identity.Email,
		&metadataJSON,
		&identity.EmailVerified,
		&identity.CreatedAt,
		&confirmedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("identity not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &identity.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal identity metadata: %w", err)
		}
	}
	if confirmedAt.Valid {
		identity.ConfirmedAt = &confirmedAt.Time
	}

	return identity, nil
}

// UpdateMetadata rewrites an identity's email and metadata blob. Used both for
// claim drift on login and for the best-effort metadata mirror during profile
// updates.
func (r *IdentityRepository) UpdateMetadata(ctx context.Context, identity *models.Identity) error {
	query := `
		UPDATE identities
		SET email = $2, metadata = $3, email_verified = $4
		WHERE id = $1
	`

	metadataJSON, err := json.Marshal(identity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal identity metadata: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, identity.ID, identity.Email, metadataJSON, identity.EmailVerified)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("identity not found")
	}

	return nil
}

// ListMissingProfiles returns ids of identities that have no profile row.
// The repair worker uses this to heal identities whose provisioning failed.
func (r *IdentityRepository) ListMissingProfiles(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT i.id
		FROM identities i
		LEFT JOIN profiles p ON p.id = i.id
		WHERE p.id IS NULL
		ORDER BY i.created_at
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities missing profiles: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan identity id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identities: %w", err)
	}

	return ids, nil
}
