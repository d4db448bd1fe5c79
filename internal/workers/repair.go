package workers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/database"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/profile"
	"github.com/studyhall-app/studyhall/internal/queue"
)

// TxBeginner starts database transactions for repair provisioning.
type TxBeginner interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
}

// ProfileGetter is the single profile lookup the repairer needs.
type ProfileGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// ProvisionRunner runs profile provisioning inside a transaction.
type ProvisionRunner interface {
	Provision(ctx context.Context, q database.Querier, identity *models.Identity, reg profile.Registration) (*models.Profile, bool)
}

// ProfileRepairer heals identities whose profile provisioning was abandoned:
// it re-runs the provisioning protocol for identities missing a profile row.
type ProfileRepairer struct {
	identities  database.IdentityRepositoryInterface
	profiles    ProfileGetter
	txs         TxBeginner
	provisioner ProvisionRunner
}

// NewProfileRepairer creates a new profile repairer
func NewProfileRepairer(
	identities database.IdentityRepositoryInterface,
	profiles ProfileGetter,
	txs TxBeginner,
	provisioner ProvisionRunner,
) *ProfileRepairer {
	return &ProfileRepairer{
		identities:  identities,
		profiles:    profiles,
		txs:         txs,
		provisioner: provisioner,
	}
}

// ProcessProfileRepairJob processes a profile repair job
func (r *ProfileRepairer) ProcessProfileRepairJob(ctx context.Context, job *queue.Job) error {
	identity, err := r.identities.GetByID(ctx, job.IdentityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Identity is gone; nothing to heal.
			log.Printf("Skipping repair for %s (identity no longer exists)", job.IdentityID)
			return nil
		}
		return fmt.Errorf("failed to load identity: %w", err)
	}

	// Another path may have provisioned the profile already.
	if _, err := r.profiles.Get(ctx, identity.ID); err == nil {
		log.Printf("Skipping repair for %s (profile already exists)", identity.ID)
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check profile: %w", err)
	}

	reg := profile.Registration{
		Handle:     identity.Metadata[models.MetaHandle],
		GivenName:  identity.Metadata[models.MetaGivenName],
		FamilyName: identity.Metadata[models.MetaFamilyName],
		AvatarURL:  identity.Metadata[models.MetaAvatarURL],
	}

	tx, err := r.txs.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin repair transaction: %w", err)
	}

	prof, ok := r.provisioner.Provision(ctx, tx, identity, reg)
	if !ok {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("Failed to roll back repair transaction: %v", rbErr)
		}
		return fmt.Errorf("provisioning abandoned again for identity %s", identity.ID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit repair transaction: %w", err)
	}

	log.Printf("Repaired profile for identity %s (handle=%v)", identity.ID, derefHandle(prof))
	return nil
}

// SweepMissingProfiles enqueues repair jobs for identities that have no
// profile row. Run periodically by the worker process.
func (r *ProfileRepairer) SweepMissingProfiles(ctx context.Context, jobQueue queue.JobQueue, batchSize int) (int, error) {
	ids, err := r.identities.ListMissingProfiles(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list identities missing profiles: %w", err)
	}

	enqueued := 0
	for _, id := range ids {
		job := queue.NewJob(queue.JobTypeProfileRepair, id)
		if err := jobQueue.Enqueue(ctx, job); err != nil {
			log.Printf("Failed to enqueue repair job for %s: %v", id, err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		log.Printf("Enqueued %d profile repair job(s)", enqueued)
	}
	return enqueued, nil
}

func derefHandle(prof *models.Profile) string {
	if prof == nil || prof.Handle == nil {
		return ""
	}
	return *prof.Handle
}
