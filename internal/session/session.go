// Package session implements the client-side view of authentication: it
// subscribes to auth-state events from the hosted identity provider, keeps a
// single merged view of the current user and their profile, and exposes the
// imperative operations (login, register, logout, update, reset-password)
// the UI drives.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
)

// State is the reconciler's authentication state.
type State string

const (
	// StateLoading is the initial state while the existing session is checked.
	StateLoading State = "loading"
	// StateIdle means no authenticated user.
	StateIdle State = "idle"
	// StateAuthenticating means a login or registration is in flight.
	StateAuthenticating State = "authenticating"
	// StateAuthenticated means an identity is confirmed. The profile may
	// still be missing; profile trouble never blocks authentication.
	StateAuthenticated State = "authenticated"
)

// EventType identifies an asynchronous auth notification.
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
)

// AuthEvent is delivered by the Authenticator when the session changes
// underneath us, e.g. sign-in from another tab or an email-link completion.
type AuthEvent struct {
	Type     EventType
	Identity *models.Identity
}

// Credentials are what a login needs.
type Credentials struct {
	Email    string
	Password string
}

// Registration is what a sign-up carries.
type Registration struct {
	Email      string
	Password   string
	Handle     string
	GivenName  string
	FamilyName string
}

// Authenticator is the hosted auth service as the client sees it. The real
// implementation speaks to the identity provider; tests use a fake.
type Authenticator interface {
	SignUp(ctx context.Context, reg Registration) (*models.Identity, error)
	SignIn(ctx context.Context, creds Credentials) (*models.Identity, error)
	SignOut(ctx context.Context) error
	// Session returns the current identity, or nil when no session exists.
	Session(ctx context.Context) (*models.Identity, error)
	UpdateMetadata(ctx context.Context, identity *models.Identity) error
	ResetPassword(ctx context.Context, email string) error
	// Events delivers auth-state changes into one ordered channel. The
	// reconciler is the single consumer.
	Events() <-chan AuthEvent
}

// Store errors the reconciler distinguishes. A conflict on create means
// another client already provisioned the row; never fatal.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
)

// ProfileStore is remote profile access as the client sees it.
type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, id uuid.UUID, update *models.ProfileUpdate) (*models.Profile, error)
}
