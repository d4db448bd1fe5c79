package profile

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/studyhall-app/studyhall/internal/database"
	"github.com/studyhall-app/studyhall/internal/models"
	"go.uber.org/zap"
)

const (
	handlePrefix = "user"
	// maxHandleAttempts bounds the suffix loop. Past it we stop being
	// deterministic and take a random handle from a much larger range.
	maxHandleAttempts = 1000
	smallRandRange    = 10000
	largeRandRange    = 1000000

	savepointName = "provision_profile"
)

// Registration carries the metadata supplied at account creation time that
// seeds the new profile.
type Registration struct {
	Handle     string
	GivenName  string
	FamilyName string
	AvatarURL  string
}

// RegistrationFromClaims builds a Registration from verified OIDC claims.
func RegistrationFromClaims(claims *models.JWTClaims) Registration {
	return Registration{
		Handle:     claims.PreferredUsername,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		AvatarURL:  claims.Picture,
	}
}

// ProfileStore is the subset of the profile repository the provisioner needs.
type ProfileStore interface {
	HandleExists(ctx context.Context, q database.Querier, handle string) (bool, error)
	CreateIn(ctx context.Context, q database.Querier, profile *models.Profile) error
}

// Provisioner creates exactly one profile row for a freshly inserted
// identity, inside the same transaction. It must never cause identity
// creation to fail: every error is contained behind a savepoint, logged, and
// reported through the ok result so the caller can schedule a repair.
type Provisioner struct {
	profiles ProfileStore
	logger   *zap.Logger
	randInt  func(n int) int
}

// NewProvisioner creates a provisioner.
func NewProvisioner(profiles ProfileStore, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		profiles: profiles,
		logger:   logger,
		randInt:  rand.Intn,
	}
}

// Provision resolves a unique handle and inserts the profile row through q,
// which should be the transaction that inserted the identity. Returns the
// created profile and true on success; nil and false when provisioning was
// abandoned (the identity still commits).
func (p *Provisioner) Provision(ctx context.Context, q database.Querier, identity *models.Identity, reg Registration) (*models.Profile, bool) {
	if _, err := q.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		p.logger.Warn("profile_provisioning_savepoint_failed",
			zap.String("identity_id", identity.ID.String()),
			zap.Error(err),
		)
		return nil, false
	}

	handle, err := p.resolveHandle(ctx, q, reg, identity.Email)
	if err != nil {
		p.abandon(ctx, q, identity, err)
		return nil, false
	}

	prof := p.buildProfile(identity, reg, handle)
	if err := p.profiles.CreateIn(ctx, q, prof); err != nil {
		if !database.IsUniqueViolation(err, database.ProfileHandleConstraint) {
			p.abandon(ctx, q, identity, err)
			return nil, false
		}
		// Lost a race against a concurrent registration that picked the
		// same computed handle. Regenerate randomly and retry exactly once.
		retry := p.randomHandle(largeRandRange)
		prof.Handle = &retry
		if err := p.profiles.CreateIn(ctx, q, prof); err != nil {
			p.abandon(ctx, q, identity, err)
			return nil, false
		}
	}

	if _, err := q.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		p.logger.Warn("profile_provisioning_release_failed",
			zap.String("identity_id", identity.ID.String()),
			zap.Error(err),
		)
	}

	return prof, true
}

// abandon rolls back to the savepoint and logs. The enclosing identity
// transaction stays healthy and commits without a profile row.
func (p *Provisioner) abandon(ctx context.Context, q database.Querier, identity *models.Identity, cause error) {
	if _, err := q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); err != nil {
		p.logger.Warn("profile_provisioning_rollback_failed",
			zap.String("identity_id", identity.ID.String()),
			zap.Error(err),
		)
	}
	p.logger.Warn("profile_provisioning_abandoned",
		zap.String("identity_id", identity.ID.String()),
		zap.Error(cause),
	)
}

// resolveHandle finds a handle no existing profile uses. The suffix loop is
// bounded; past the bound we take a random handle and exit unconditionally,
// accepting the residual collision risk (the insert retry covers it).
func (p *Provisioner) resolveHandle(ctx context.Context, q database.Querier, reg Registration, email string) (string, error) {
	base := CandidateHandle(reg, email)
	if base == "" {
		base = p.randomHandle(smallRandRange)
	}

	candidate := base
	for i := 0; i < maxHandleAttempts; i++ {
		exists, err := p.profiles.HandleExists(ctx, q, candidate)
		if err != nil {
			return "", fmt.Errorf("handle lookup: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i+1)
	}

	return p.randomHandle(largeRandRange), nil
}

func (p *Provisioner) randomHandle(max int) string {
	return handlePrefix + strconv.Itoa(p.randInt(max))
}

func (p *Provisioner) buildProfile(identity *models.Identity, reg Registration, handle string) *models.Profile {
	avatar := reg.AvatarURL
	if avatar == "" {
		avatar = identity.Metadata[models.MetaAvatarURL]
	}
	if avatar == "" {
		avatar = models.DefaultAvatarURL(identity.Email)
	}

	given := reg.GivenName
	if given == "" {
		given = identity.Metadata[models.MetaGivenName]
	}
	family := reg.FamilyName
	if family == "" {
		family = identity.Metadata[models.MetaFamilyName]
	}

	return &models.Profile{
		ID:          identity.ID,
		Handle:      &handle,
		GivenName:   given,
		FamilyName:  family,
		AvatarURL:   &avatar,
		Preferences: models.DefaultPreferences(),
	}
}

// CandidateHandle computes the first handle to try: explicit handle, then
// given name, then the local part of the email. Empty means no usable source.
func CandidateHandle(reg Registration, email string) string {
	if h := NormalizeHandle(reg.Handle); h != "" {
		return h
	}
	if h := NormalizeHandle(reg.GivenName); h != "" {
		return h
	}
	return NormalizeHandle(EmailLocalPart(email))
}

// EmailLocalPart returns the part of an email address before the '@'.
func EmailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return ""
}

// NormalizeHandle lowercases and strips whitespace from a handle source.
func NormalizeHandle(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.ReplaceAll(s, " ", "")
}
