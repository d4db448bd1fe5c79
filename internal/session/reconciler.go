package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/profile"
	"go.uber.org/zap"
)

// Reconciler unifies auth events and profile data into one state machine.
// It is constructed explicitly and torn down with its context; there are no
// package-level singletons. All shared state lives behind one mutex, and the
// event channel has exactly one consumer goroutine, so an async sign-out
// racing an in-flight update resolves to a consistent state either way.
type Reconciler struct {
	auth     Authenticator
	profiles ProfileStore
	logger   *zap.Logger

	mu       sync.RWMutex
	state    State
	identity *models.Identity
	profile  *models.Profile
	lastErr  string

	wg sync.WaitGroup
}

// Snapshot is a point-in-time copy of the reconciler's state for the UI.
type Snapshot struct {
	State State      `json:"state"`
	User  *ViewModel `json:"user,omitempty"`
	Error string     `json:"error,omitempty"`
}

// NewReconciler creates a reconciler in the loading state.
func NewReconciler(auth Authenticator, profiles ProfileStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		auth:     auth,
		profiles: profiles,
		logger:   logger,
		state:    StateLoading,
	}
}

// Start checks for an existing session and begins draining auth events.
// It returns once the initial session check completed; the event loop runs
// until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	identity, err := r.auth.Session(ctx)
	if err != nil {
		r.logger.Warn("session_check_failed", zap.Error(err))
		r.setIdle("")
	} else if identity == nil {
		r.setIdle("")
	} else {
		r.completeSignIn(ctx, identity)
	}

	r.wg.Add(1)
	go r.drainEvents(ctx)
	return nil
}

// Wait blocks until the event loop has exited.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// drainEvents is the single consumer of the auth event channel. Every
// mutation it makes goes through the same mutex the action handlers use.
func (r *Reconciler) drainEvents(ctx context.Context) {
	defer r.wg.Done()
	events := r.auth.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case EventSignedIn:
				if ev.Identity != nil {
					r.completeSignIn(ctx, ev.Identity)
				}
			case EventSignedOut:
				r.setIdle("")
			}
		}
	}
}

// Snapshot returns the current state and merged view model.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{State: r.state, Error: r.lastErr}
	if r.identity != nil {
		vm := BuildViewModel(r.identity, r.profile)
		snap.User = &vm
	}
	return snap
}

// Login signs in with credentials. On failure the reconciler returns to idle
// carrying a human-readable error.
func (r *Reconciler) Login(ctx context.Context, creds Credentials) error {
	r.setState(StateAuthenticating)

	identity, err := r.auth.SignIn(ctx, creds)
	if err != nil {
		r.setIdle(err.Error())
		return fmt.Errorf("login failed: %w", err)
	}

	r.completeSignIn(ctx, identity)
	return nil
}

// Register creates an account and follows the login success path.
func (r *Reconciler) Register(ctx context.Context, reg Registration) error {
	r.setState(StateAuthenticating)

	identity, err := r.auth.SignUp(ctx, reg)
	if err != nil {
		r.setIdle(err.Error())
		return fmt.Errorf("registration failed: %w", err)
	}

	r.completeSignIn(ctx, identity)
	return nil
}

// Logout signs out and clears all cached profile data.
func (r *Reconciler) Logout(ctx context.Context) error {
	err := r.auth.SignOut(ctx)
	r.setIdle("")
	if err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// ResetPassword asks the auth service to start a password reset.
func (r *Reconciler) ResetPassword(ctx context.Context, email string) error {
	if err := r.auth.ResetPassword(ctx, email); err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	return nil
}

// completeSignIn is the shared tail of every path that reaches the
// authenticated state: fetch or create the profile, then publish. The user
// counts as logged in even when the profile could not be loaded.
func (r *Reconciler) completeSignIn(ctx context.Context, identity *models.Identity) {
	prof := r.fetchOrCreate(ctx, identity)

	r.mu.Lock()
	r.state = StateAuthenticated
	r.identity = identity
	r.profile = prof
	r.lastErr = ""
	r.mu.Unlock()
}

// fetchOrCreate reads the profile by identity id, lazily creating it with the
// same defaults the server-side provisioner uses when the row is missing.
// Returns nil on transient fetch errors; authentication proceeds regardless.
func (r *Reconciler) fetchOrCreate(ctx context.Context, identity *models.Identity) *models.Profile {
	prof, err := r.profiles.Get(ctx, identity.ID)
	if err == nil {
		return prof
	}
	if !errors.Is(err, ErrProfileNotFound) {
		r.logger.Warn("profile_fetch_failed",
			zap.String("identity_id", identity.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	prof = minimalProfile(identity)
	if err := r.profiles.Create(ctx, prof); err != nil {
		if errors.Is(err, ErrProfileExists) {
			// Another tab created it first; theirs wins.
			existing, fetchErr := r.profiles.Get(ctx, identity.ID)
			if fetchErr == nil {
				return existing
			}
			r.logger.Warn("profile_refetch_failed",
				zap.String("identity_id", identity.ID.String()),
				zap.Error(fetchErr),
			)
			return nil
		}
		r.logger.Warn("profile_create_failed",
			zap.String("identity_id", identity.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	return prof
}

// minimalProfile mirrors the server-side provisioning defaults so a row
// created from either side is indistinguishable.
func minimalProfile(identity *models.Identity) *models.Profile {
	md := identity.Metadata
	reg := profile.Registration{
		Handle:     md[models.MetaHandle],
		GivenName:  md[models.MetaGivenName],
		FamilyName: md[models.MetaFamilyName],
	}

	prof := &models.Profile{
		ID:          identity.ID,
		GivenName:   reg.GivenName,
		FamilyName:  reg.FamilyName,
		Preferences: models.DefaultPreferences(),
	}
	if handle := profile.CandidateHandle(reg, identity.Email); handle != "" {
		prof.Handle = &handle
	}
	avatar := md[models.MetaAvatarURL]
	if avatar == "" {
		avatar = models.DefaultAvatarURL(identity.Email)
	}
	prof.AvatarURL = &avatar
	return prof
}

// ProfileChanges is a partial update as the UI supplies it. Nil fields are
// not written. BirthDate is an ISO date string and is translated to the
// store's representation here.
type ProfileChanges struct {
	Handle       *string              `json:"handle,omitempty"`
	GivenName    *string              `json:"given_name,omitempty"`
	FamilyName   *string              `json:"family_name,omitempty"`
	Bio          *string              `json:"bio,omitempty"`
	BirthDate    *string              `json:"birth_date,omitempty"`
	Phone        *string              `json:"phone,omitempty"`
	Location     *string              `json:"location,omitempty"`
	AvatarURL    *string              `json:"avatar_url,omitempty"`
	AcademicInfo *models.AcademicInfo `json:"academic_info,omitempty"`
	Preferences  *models.Preferences  `json:"preferences,omitempty"`
}

// ToUpdate converts the changes to a store update, parsing date fields.
func (c *ProfileChanges) ToUpdate() (*models.ProfileUpdate, error) {
	update := &models.ProfileUpdate{
		Handle:       c.Handle,
		GivenName:    c.GivenName,
		FamilyName:   c.FamilyName,
		Bio:          c.Bio,
		Phone:        c.Phone,
		Location:     c.Location,
		AvatarURL:    c.AvatarURL,
		AcademicInfo: c.AcademicInfo,
		Preferences:  c.Preferences,
	}
	if c.BirthDate != nil {
		parsed, err := time.Parse("2006-01-02", *c.BirthDate)
		if err != nil {
			return nil, fmt.Errorf("invalid birth_date: %w", err)
		}
		update.BirthDate = &parsed
	}
	return update, nil
}

// UpdateProfile writes a partial update. The in-memory view model changes
// only after the remote write acknowledges, and then with exactly the fields
// the caller supplied; on failure nothing local moves. The identity-metadata
// mirror of name and avatar is best effort and never fails the operation.
func (r *Reconciler) UpdateProfile(ctx context.Context, changes *ProfileChanges) error {
	r.mu.RLock()
	identity := r.identity
	state := r.state
	r.mu.RUnlock()

	if state != StateAuthenticated || identity == nil {
		return errors.New("not authenticated")
	}

	update, err := changes.ToUpdate()
	if err != nil {
		return err
	}

	if _, err := r.profiles.Update(ctx, identity.ID, update); err != nil {
		r.mu.Lock()
		r.lastErr = err.Error()
		r.mu.Unlock()
		return fmt.Errorf("profile update failed: %w", err)
	}

	r.mirrorMetadata(ctx, identity, update)

	r.mu.Lock()
	// A sign-out may have landed while the write was in flight; in that
	// case there is nothing to merge into and idle state stands.
	if r.state == StateAuthenticated && r.identity != nil && r.identity.ID == identity.ID {
		if r.profile == nil {
			r.profile = &models.Profile{ID: identity.ID, Preferences: models.DefaultPreferences()}
		}
		applyUpdate(r.profile, update)
		r.lastErr = ""
	}
	r.mu.Unlock()

	return nil
}

// mirrorMetadata copies name and avatar into identity metadata, logging but
// never surfacing failures.
func (r *Reconciler) mirrorMetadata(ctx context.Context, identity *models.Identity, update *models.ProfileUpdate) {
	if update.GivenName == nil && update.FamilyName == nil && update.AvatarURL == nil {
		return
	}

	r.mu.Lock()
	if identity.Metadata == nil {
		identity.Metadata = make(map[string]string)
	}
	if update.GivenName != nil {
		identity.Metadata[models.MetaGivenName] = *update.GivenName
	}
	if update.FamilyName != nil {
		identity.Metadata[models.MetaFamilyName] = *update.FamilyName
	}
	if update.AvatarURL != nil {
		identity.Metadata[models.MetaAvatarURL] = *update.AvatarURL
	}
	r.mu.Unlock()

	if err := r.auth.UpdateMetadata(ctx, identity); err != nil {
		r.logger.Warn("identity_metadata_mirror_failed",
			zap.String("identity_id", identity.ID.String()),
			zap.Error(err),
		)
	}
}

// applyUpdate merges exactly the supplied fields into the cached profile.
func applyUpdate(prof *models.Profile, update *models.ProfileUpdate) {
	if update.Handle != nil {
		prof.Handle = update.Handle
	}
	if update.GivenName != nil {
		prof.GivenName = *update.GivenName
	}
	if update.FamilyName != nil {
		prof.FamilyName = *update.FamilyName
	}
	if update.Bio != nil {
		prof.Bio = update.Bio
	}
	if update.BirthDate != nil {
		prof.BirthDate = update.BirthDate
	}
	if update.Phone != nil {
		prof.Phone = update.Phone
	}
	if update.Location != nil {
		prof.Location = update.Location
	}
	if update.AvatarURL != nil {
		prof.AvatarURL = update.AvatarURL
	}
	if update.AcademicInfo != nil {
		prof.AcademicInfo = *update.AcademicInfo
	}
	if update.Preferences != nil {
		prof.Preferences = *update.Preferences
	}
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// setIdle drops to the unauthenticated idle state, clearing cached data.
func (r *Reconciler) setIdle(errMsg string) {
	r.mu.Lock()
	r.state = StateIdle
	r.identity = nil
	r.profile = nil
	r.lastErr = errMsg
	r.mu.Unlock()
}
