package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/studyhall-app/studyhall/internal/models"
)

// Constraint names from the migrations, checked on unique violations.
const (
	ProfileHandleConstraint = "profiles_handle_key"
	ProfilePKeyConstraint   = "profiles_pkey"
)

// Querier is the subset of sql.DB/sql.Tx the profile repository needs, so
// provisioning can run inside the identity-creation transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ProfileRepository handles profile database operations.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, handle, given_name, family_name, bio, birth_date, phone, location, avatar_url, academic_info, preferences, created_at, updated_at`

// Get retrieves a profile by identity id.
func (r *ProfileRepository) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM profiles WHERE id = $1`, profileColumns)
	return scanProfile(r.db.QueryRowContext(ctx, query, id))
}

// HandleExists reports whether any profile already uses the given handle.
// Runs against q so the provisioner can check inside its transaction.
func (r *ProfileRepository) HandleExists(ctx context.Context, q Querier, handle string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE handle = $1)`, handle).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check handle: %w", err)
	}
	return exists, nil
}

// Create inserts a profile using the pool. Used by the client-side
// fetch-or-create path.
func (r *ProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	return r.CreateIn(ctx, r.db, profile)
}

// CreateIn inserts a profile through q, which may be a transaction.
func (r *ProfileRepository) CreateIn(ctx context.Context, q Querier, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (id, handle, given_name, family_name, bio, birth_date, phone, location, avatar_url, academic_info, preferences, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	academicJSON, err := json.Marshal(profile.AcademicInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal academic info: %w", err)
	}
	prefsJSON, err := json.Marshal(profile.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	now := time.Now()
	err = q.QueryRowContext(ctx, query,
		profile.ID,
		profile.Handle,
		profile.GivenName,
		profile.FamilyName,
		profile.Bio,
		profile.BirthDate,
		profile.Phone,
		profile.Location,
		profile.AvatarURL,
		academicJSON,
		prefsJSON,
		now,
		now,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// Update applies a partial update, touching only the fields the caller named.
// Returns the updated row.
func (r *ProfileRepository) Update(ctx context.Context, id uuid.UUID, update *models.ProfileUpdate) (*models.Profile, error) {
	if update.IsEmpty() {
		return r.Get(ctx, id)
	}

	query, args, err := buildProfileUpdate(id, update)
	if err != nil {
		return nil, err
	}

	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// buildProfileUpdate assembles the dynamic SET clause for a partial update.
func buildProfileUpdate(id uuid.UUID, update *models.ProfileUpdate) (string, []any, error) {
	set := make([]string, 0, 10)
	args := []any{id}
	next := 2

	add := func(column string, value any) {
		set = append(set, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if update.Handle != nil {
		add("handle", *update.Handle)
	}
	if update.GivenName != nil {
		add("given_name", *update.GivenName)
	}
	if update.FamilyName != nil {
		add("family_name", *update.FamilyName)
	}
	if update.Bio != nil {
		add("bio", *update.Bio)
	}
	if update.BirthDate != nil {
		add("birth_date", *update.BirthDate)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.Location != nil {
		add("location", *update.Location)
	}
	if update.AvatarURL != nil {
		add("avatar_url", *update.AvatarURL)
	}
	if update.AcademicInfo != nil {
		academicJSON, err := json.Marshal(update.AcademicInfo)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal academic info: %w", err)
		}
		add("academic_info", academicJSON)
	}
	if update.Preferences != nil {
		prefsJSON, err := json.Marshal(update.Preferences)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal preferences: %w", err)
		}
		add("preferences", prefsJSON)
	}

	query := "UPDATE profiles SET " + joinSet(set) +
		fmt.Sprintf(", updated_at = now() WHERE id = $1 RETURNING %s", profileColumns)
	return query, args, nil
}

func joinSet(set []string) string {
	out := ""
	for i, s := range set {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	profile := &models.Profile{}
	var academicJSON, prefsJSON []byte
	var birthDate sql.NullTime

	err := row.Scan(
		&profile.ID,
		&profile.Handle,
		&profile.GivenName,
		&profile.FamilyName,
		&profile.Bio,
		&birthDate,
		&profile.Phone,
		&profile.Location,
		&profile.AvatarURL,
		&academicJSON,
		&prefsJSON,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if birthDate.Valid {
		profile.BirthDate = &birthDate.Time
	}
	if len(academicJSON) > 0 {
		if err := json.Unmarshal(academicJSON, &profile.AcademicInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal academic info: %w", err)
		}
	}
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &profile.Preferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
		}
	}

	return profile, nil
}

// IsUniqueViolation reports whether err is a Postgres unique violation on the
// named constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
