package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
	"go.uber.org/zap"
)

// fakeAuth implements Authenticator in memory.
type fakeAuth struct {
	mu       sync.Mutex
	identity *models.Identity
	signInErr error
	signUpErr error
	events    chan AuthEvent
	metadata  []*models.Identity
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{events: make(chan AuthEvent, 8)}
}

func (f *fakeAuth) SignUp(ctx context.Context, reg Registration) (*models.Identity, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	id := &models.Identity{ID: uuid.New(), Email: reg.Email, Metadata: map[string]string{}}
	f.mu.Lock()
	f.identity = id
	f.mu.Unlock()
	return id, nil
}

func (f *fakeAuth) SignIn(ctx context.Context, creds Credentials) (*models.Identity, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	id := &models.Identity{ID: uuid.New(), Email: creds.Email, Metadata: map[string]string{}}
	f.mu.Lock()
	f.identity = id
	f.mu.Unlock()
	return id, nil
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.identity = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeAuth) Session(ctx context.Context) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, nil
}

func (f *fakeAuth) UpdateMetadata(ctx context.Context, identity *models.Identity) error {
	f.mu.Lock()
	f.metadata = append(f.metadata, identity)
	f.mu.Unlock()
	return nil
}

func (f *fakeAuth) ResetPassword(ctx context.Context, email string) error { return nil }

func (f *fakeAuth) Events() <-chan AuthEvent { return f.events }

// fakeProfiles implements ProfileStore in memory with injectable failures.
type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*models.Profile
	getErr    error
	createErr error
	updateErr error
	creates   int
	updates   int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: map[uuid.UUID]*models.Profile{}}
}

func (f *fakeProfiles) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.rows[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Create(ctx context.Context, profile *models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.rows[profile.ID]; ok {
		return ErrProfileExists
	}
	cp := *profile
	f.rows[profile.ID] = &cp
	return nil
}

func (f *fakeProfiles) Update(ctx context.Context, id uuid.UUID, update *models.ProfileUpdate) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.rows[id]
	if !ok {
		return nil, errors.New("no row")
	}
	if update.Bio != nil {
		p.Bio = update.Bio
	}
	if update.Location != nil {
		p.Location = update.Location
	}
	cp := *p
	return &cp, nil
}

func newTestReconciler(auth *fakeAuth, profiles *fakeProfiles) *Reconciler {
	return NewReconciler(auth, profiles, zap.NewNop())
}

func waitForState(t *testing.T, r *Reconciler, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Snapshot().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", r.Snapshot().State, want)
}

func TestStartWithoutSessionGoesIdle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newTestReconciler(newFakeAuth(), newFakeProfiles())
	if r.Snapshot().State != StateLoading {
		t.Fatalf("initial state = %q, want loading", r.Snapshot().State)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.Snapshot().State; got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
}

func TestStartResumesExistingSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	auth.identity = &models.Identity{ID: uuid.New(), Email: "alice@example.com"}
	profiles := newFakeProfiles()

	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if snap.State != StateAuthenticated {
		t.Fatalf("state = %q, want authenticated", snap.State)
	}
	if snap.User == nil || snap.User.Handle != "alice" {
		t.Errorf("user = %+v, want handle alice", snap.User)
	}
}

func TestLoginCreatesMissingProfile(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()
	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if snap.State != StateAuthenticated {
		t.Fatalf("state = %q, want authenticated", snap.State)
	}
	if profiles.creates != 1 {
		t.Errorf("creates = %d, want 1", profiles.creates)
	}
	if snap.User.Handle != "alice" {
		t.Errorf("handle = %q, want alice", snap.User.Handle)
	}
	if snap.User.AvatarURL == "" {
		t.Error("avatar url should be defaulted")
	}
	if snap.User.Preferences != models.DefaultPreferences() {
		t.Errorf("preferences = %+v, want defaults", snap.User.Preferences)
	}
}

func TestFetchOrCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()
	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	id := auth.identity.ID

	// Same identity signs in again, e.g. from another tab.
	auth.events <- AuthEvent{Type: EventSignedIn, Identity: &models.Identity{ID: id, Email: "alice@example.com"}}
	waitForState(t, r, StateAuthenticated)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		profiles.mu.Lock()
		n := len(profiles.rows)
		profiles.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	profiles.mu.Lock()
	defer profiles.mu.Unlock()
	if len(profiles.rows) != 1 {
		t.Errorf("profiles = %d, want exactly one row", len(profiles.rows))
	}
}

func TestCreateConflictRefetchesWinner(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()

	// Simulate a concurrent winner: the first create conflicts, and the row
	// it left behind is what must be surfaced.
	id := uuid.New()
	winnerHandle := "theirs"
	profiles.createErr = ErrProfileExists
	profiles.rows[id] = &models.Profile{ID: id, Handle: &winnerHandle}
	// Get must miss first so the create path runs, then hit on re-fetch.
	miss := true
	auth.identity = &models.Identity{ID: id, Email: "alice@example.com"}

	r := NewReconciler(auth, &conflictStore{inner: profiles, missFirst: &miss}, zap.NewNop())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if snap.State != StateAuthenticated {
		t.Fatalf("state = %q, want authenticated", snap.State)
	}
	if snap.User.Handle != "theirs" {
		t.Errorf("handle = %q, want the winner's row to stand", snap.User.Handle)
	}
}

// conflictStore makes the first Get miss so fetch-or-create takes the create
// branch, then delegates.
type conflictStore struct {
	inner     *fakeProfiles
	missFirst *bool
}

func (c *conflictStore) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if *c.missFirst {
		*c.missFirst = false
		return nil, ErrProfileNotFound
	}
	return c.inner.Get(ctx, id)
}

func (c *conflictStore) Create(ctx context.Context, p *models.Profile) error {
	return c.inner.Create(ctx, p)
}

func (c *conflictStore) Update(ctx context.Context, id uuid.UUID, u *models.ProfileUpdate) (*models.Profile, error) {
	return c.inner.Update(ctx, id, u)
}

func TestProfileTroubleDoesNotBlockAuth(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()
	profiles.getErr = errors.New("store offline")

	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if snap.State != StateAuthenticated {
		t.Fatalf("state = %q, want authenticated despite profile failure", snap.State)
	}
	// The view model still renders from identity metadata and defaults.
	if snap.User == nil || snap.User.Handle != "alice" {
		t.Errorf("user = %+v, want metadata-derived view model", snap.User)
	}
}

func TestLoginFailureReturnsToIdleWithError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	auth.signInErr = errors.New("bad credentials")
	r := newTestReconciler(auth, newFakeProfiles())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "nope"}); err == nil {
		t.Fatal("expected login error")
	}

	snap := r.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("state = %q, want idle", snap.State)
	}
	if snap.Error == "" {
		t.Error("expected error message to be surfaced")
	}
	if snap.User != nil {
		t.Error("no user should be exposed after failed login")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	r := newTestReconciler(auth, newFakeProfiles())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	if err := r.Logout(ctx); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if snap.State != StateIdle || snap.User != nil || snap.Error != "" {
		t.Errorf("snapshot after logout = %+v, want empty idle", snap)
	}
}

func TestSignedOutEventDropsState(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	r := newTestReconciler(auth, newFakeProfiles())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	auth.events <- AuthEvent{Type: EventSignedOut}
	waitForState(t, r, StateIdle)

	if r.Snapshot().User != nil {
		t.Error("user should be cleared after async sign-out")
	}
}

func TestUpdateProfileMergesOnlySuppliedFields(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()
	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	loc := "Lisbon"
	if err := r.UpdateProfile(ctx, &ProfileChanges{Location: &loc}); err != nil {
		t.Fatal(err)
	}

	bio := "night owl"
	if err := r.UpdateProfile(ctx, &ProfileChanges{Bio: &bio}); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if snap.User.Bio != "night owl" {
		t.Errorf("bio = %q, want night owl", snap.User.Bio)
	}
	if snap.User.Location != "Lisbon" {
		t.Errorf("location = %q, want Lisbon to survive the bio-only update", snap.User.Location)
	}
	if snap.User.Handle != "alice" {
		t.Errorf("handle = %q, want untouched", snap.User.Handle)
	}
}

func TestUpdateProfileFailureLeavesViewUnchanged(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()
	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	before := r.Snapshot()

	profiles.updateErr = errors.New("write refused")
	bio := "should not land"
	if err := r.UpdateProfile(ctx, &ProfileChanges{Bio: &bio}); err == nil {
		t.Fatal("expected update error")
	}

	after := r.Snapshot()
	if after.State != StateAuthenticated {
		t.Errorf("state = %q, want still authenticated", after.State)
	}
	if after.User.Bio != before.User.Bio {
		t.Error("failed update must not change the local view")
	}
	if after.Error == "" {
		t.Error("expected error message to be surfaced")
	}
}

func TestUpdateProfileRejectsBadBirthDate(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()
	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	bad := "31-12-1999"
	if err := r.UpdateProfile(ctx, &ProfileChanges{BirthDate: &bad}); err == nil {
		t.Fatal("expected birth_date parse error")
	}
	if profiles.updates != 0 {
		t.Errorf("updates = %d, want no remote write for invalid input", profiles.updates)
	}
}

func TestUpdateProfileWhileSignedOut(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newTestReconciler(newFakeAuth(), newFakeProfiles())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	bio := "x"
	if err := r.UpdateProfile(ctx, &ProfileChanges{Bio: &bio}); err == nil {
		t.Fatal("expected error when not authenticated")
	}
}

func TestSignOutDuringInFlightUpdateStaysIdle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()
	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	// Sign out lands between the remote ack and the local merge. The merge
	// must notice and leave the idle state standing.
	auth.events <- AuthEvent{Type: EventSignedOut}
	waitForState(t, r, StateIdle)

	bio := "stale"
	if err := r.UpdateProfile(ctx, &ProfileChanges{Bio: &bio}); err == nil {
		t.Fatal("expected error once signed out")
	}
	if snap := r.Snapshot(); snap.State != StateIdle || snap.User != nil {
		t.Errorf("snapshot = %+v, want clean idle", snap)
	}
}

func TestMetadataMirrorIsBestEffort(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := newFakeAuth()
	profiles := newFakeProfiles()
	r := newTestReconciler(auth, profiles)
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Login(ctx, Credentials{Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	name := "Alice"
	if err := r.UpdateProfile(ctx, &ProfileChanges{GivenName: &name}); err != nil {
		t.Fatal(err)
	}

	auth.mu.Lock()
	defer auth.mu.Unlock()
	if len(auth.metadata) != 1 {
		t.Fatalf("metadata mirror calls = %d, want 1", len(auth.metadata))
	}
	if auth.metadata[0].Metadata[models.MetaGivenName] != "Alice" {
		t.Errorf("mirrored given_name = %q, want Alice", auth.metadata[0].Metadata[models.MetaGivenName])
	}
}
