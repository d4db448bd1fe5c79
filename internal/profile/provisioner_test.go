package profile

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/studyhall-app/studyhall/internal/database"
	"github.com/studyhall-app/studyhall/internal/models"
	"go.uber.org/zap"
)

// fakeQuerier satisfies database.Querier for savepoint commands. The fake
// store never touches it.
type fakeQuerier struct {
	execs []string
}

func (f *fakeQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, query)
	return nil, nil
}

func (f *fakeQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (f *fakeQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}

// fakeStore tracks taken handles and can inject insert failures.
type fakeStore struct {
	taken      map[string]bool
	allTaken   bool
	createErrs []error
	created    []*models.Profile
}

func (f *fakeStore) HandleExists(ctx context.Context, q database.Querier, handle string) (bool, error) {
	if f.allTaken {
		return true, nil
	}
	return f.taken[handle], nil
}

func (f *fakeStore) CreateIn(ctx context.Context, q database.Querier, p *models.Profile) error {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	f.created = append(f.created, p)
	if p.Handle != nil {
		if f.taken == nil {
			f.taken = map[string]bool{}
		}
		f.taken[*p.Handle] = true
	}
	return nil
}

func newTestProvisioner(store *fakeStore, randSeq ...int) *Provisioner {
	p := NewProvisioner(store, zap.NewNop())
	i := 0
	p.randInt = func(n int) int {
		if i < len(randSeq) {
			v := randSeq[i]
			i++
			return v
		}
		return 42
	}
	return p
}

func identityWithEmail(email string) *models.Identity {
	return &models.Identity{ID: uuid.New(), Email: email}
}

func handleUniqueViolation() error {
	return &pq.Error{Code: "23505", Constraint: database.ProfileHandleConstraint}
}

func TestProvisionUsesEmailLocalPart(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	p := newTestProvisioner(store)

	prof, ok := p.Provision(context.Background(), &fakeQuerier{}, identityWithEmail("alice@example.com"), Registration{})
	if !ok {
		t.Fatal("expected provisioning to succeed")
	}
	if prof.Handle == nil || *prof.Handle != "alice" {
		t.Errorf("handle = %v, want alice", prof.Handle)
	}
}

func TestProvisionCandidatePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		reg  Registration
		want string
	}{
		{"explicit handle wins", Registration{Handle: "CoolCat", GivenName: "Bob"}, "coolcat"},
		{"given name over email", Registration{GivenName: "Bob Jones"}, "bobjones"},
		{"email local part last", Registration{}, "bob.j"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &fakeStore{}
			p := newTestProvisioner(store)
			prof, ok := p.Provision(context.Background(), &fakeQuerier{}, identityWithEmail("bob.j@example.com"), tt.reg)
			if !ok {
				t.Fatal("expected provisioning to succeed")
			}
			if *prof.Handle != tt.want {
				t.Errorf("handle = %q, want %q", *prof.Handle, tt.want)
			}
		})
	}
}

func TestProvisionSynthesizesHandleWhenNoSource(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	p := newTestProvisioner(store, 7)

	prof, ok := p.Provision(context.Background(), &fakeQuerier{}, &models.Identity{ID: uuid.New()}, Registration{})
	if !ok {
		t.Fatal("expected provisioning to succeed")
	}
	if *prof.Handle != "user7" {
		t.Errorf("handle = %q, want user7", *prof.Handle)
	}
}

func TestProvisionAppendsSuffixOnCollision(t *testing.T) {
	t.Parallel()

	store := &fakeStore{taken: map[string]bool{"alice": true, "alice1": true}}
	p := newTestProvisioner(store)

	prof, ok := p.Provision(context.Background(), &fakeQuerier{}, identityWithEmail("alice@example.com"), Registration{})
	if !ok {
		t.Fatal("expected provisioning to succeed")
	}
	if *prof.Handle != "alice2" {
		t.Errorf("handle = %q, want alice2", *prof.Handle)
	}
}

func TestProvisionEscapesBoundedLoop(t *testing.T) {
	t.Parallel()

	// Every handle reads as taken; the loop must still terminate and fall
	// back to a random handle.
	store := &fakeStore{allTaken: true}
	p := newTestProvisioner(store, 123456)

	prof, ok := p.Provision(context.Background(), &fakeQuerier{}, identityWithEmail("alice@example.com"), Registration{})
	if !ok {
		t.Fatal("expected provisioning to succeed")
	}
	if *prof.Handle != "user123456" {
		t.Errorf("handle = %q, want user123456", *prof.Handle)
	}
}

func TestProvisionRetriesOnceOnInsertRace(t *testing.T) {
	t.Parallel()

	store := &fakeStore{createErrs: []error{handleUniqueViolation()}}
	p := newTestProvisioner(store, 99)

	prof, ok := p.Provision(context.Background(), &fakeQuerier{}, identityWithEmail("alice@example.com"), Registration{})
	if !ok {
		t.Fatal("expected provisioning to succeed after retry")
	}
	if *prof.Handle != "user99" {
		t.Errorf("handle = %q, want user99 after regeneration", *prof.Handle)
	}
	if len(store.created) != 1 {
		t.Errorf("created %d profiles, want 1", len(store.created))
	}
}

func TestProvisionAbandonsAfterSecondFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{createErrs: []error{handleUniqueViolation(), handleUniqueViolation()}}
	p := newTestProvisioner(store)
	q := &fakeQuerier{}

	prof, ok := p.Provision(context.Background(), q, identityWithEmail("alice@example.com"), Registration{})
	if ok || prof != nil {
		t.Fatal("expected provisioning to be abandoned")
	}

	rolledBack := false
	for _, e := range q.execs {
		if strings.HasPrefix(e, "ROLLBACK TO SAVEPOINT") {
			rolledBack = true
		}
	}
	if !rolledBack {
		t.Error("expected rollback to savepoint on abandonment")
	}
}

func TestProvisionSwallowsArbitraryInsertErrors(t *testing.T) {
	t.Parallel()

	store := &fakeStore{createErrs: []error{errors.New("disk on fire")}}
	p := newTestProvisioner(store)

	_, ok := p.Provision(context.Background(), &fakeQuerier{}, identityWithEmail("alice@example.com"), Registration{})
	if ok {
		t.Fatal("expected provisioning to be abandoned, not to error out of the transaction")
	}
}

func TestProvisionDefaults(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	p := newTestProvisioner(store)

	prof, ok := p.Provision(context.Background(), &fakeQuerier{}, identityWithEmail("alice@example.com"), Registration{})
	if !ok {
		t.Fatal("expected provisioning to succeed")
	}

	if prof.Preferences != models.DefaultPreferences() {
		t.Errorf("preferences = %+v, want defaults", prof.Preferences)
	}
	if prof.AvatarURL == nil || !strings.Contains(*prof.AvatarURL, "alice%40example.com") {
		t.Errorf("avatar = %v, want templated default containing the email", prof.AvatarURL)
	}
	if prof.Preferences.Notifications.Announcements {
		t.Error("announcements should default to off")
	}
}

func TestCandidateHandle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reg   Registration
		email string
		want  string
	}{
		{"normalizes case and spaces", Registration{Handle: " Jo Anne "}, "", "joanne"},
		{"empty everything", Registration{}, "", ""},
		{"malformed email", Registration{}, "@example.com", ""},
		{"plain email", Registration{}, "sam@x.io", "sam"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CandidateHandle(tt.reg, tt.email); got != tt.want {
				t.Errorf("CandidateHandle() = %q, want %q", got, tt.want)
			}
		})
	}
}
