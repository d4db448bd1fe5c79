package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
)

// ProfileRepositoryInterface defines the profile operations used by the
// provisioner, handlers and session reconciler. Mocked in tests.
type ProfileRepositoryInterface interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	HandleExists(ctx context.Context, q Querier, handle string) (bool, error)
	Create(ctx context.Context, profile *models.Profile) error
	CreateIn(ctx context.Context, q Querier, profile *models.Profile) error
	Update(ctx context.Context, id uuid.UUID, update *models.ProfileUpdate) (*models.Profile, error)
}

// IdentityRepositoryInterface defines the identity operations used by the
// auth middleware and the repair worker.
type IdentityRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetBySubject(ctx context.Context, subject string) (*models.Identity, error)
	UpdateMetadata(ctx context.Context, identity *models.Identity) error
	ListMissingProfiles(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// StudyContextRepositoryInterface defines the study context operations used
// by the tutor service and summary worker.
type StudyContextRepositoryInterface interface {
	GetByIdentityID(ctx context.Context, identityID uuid.UUID) (*models.StudyContext, error)
	Create(ctx context.Context, sc *models.StudyContext) error
	Update(ctx context.Context, sc *models.StudyContext) error
}

// Ensure concrete types implement the interfaces
var (
	_ ProfileRepositoryInterface      = (*ProfileRepository)(nil)
	_ IdentityRepositoryInterface     = (*IdentityRepository)(nil)
	_ StudyContextRepositoryInterface = (*StudyContextRepository)(nil)
)
