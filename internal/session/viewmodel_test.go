package session

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/models"
)

func TestBuildViewModelWithoutProfile(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{
		ID:       uuid.New(),
		Email:    "alice@example.com",
		Metadata: map[string]string{},
	}

	vm := BuildViewModel(identity, nil)

	if vm.Handle != "alice" {
		t.Errorf("handle = %q, want alice", vm.Handle)
	}
	if !strings.Contains(vm.AvatarURL, "alice%40example.com") {
		t.Errorf("avatar = %q, want templated default containing the email", vm.AvatarURL)
	}
	if vm.Preferences != models.DefaultPreferences() {
		t.Errorf("preferences = %+v, want defaults", vm.Preferences)
	}
}

func TestBuildViewModelMetadataBeatsDefaults(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{
		ID:    uuid.New(),
		Email: "alice@example.com",
		Metadata: map[string]string{
			models.MetaHandle:     "wonderland",
			models.MetaGivenName:  "Alice",
			models.MetaFamilyName: "Liddell",
			models.MetaAvatarURL:  "https://cdn.example.com/alice.png",
		},
	}

	vm := BuildViewModel(identity, nil)

	if vm.Handle != "wonderland" {
		t.Errorf("handle = %q, want metadata value", vm.Handle)
	}
	if vm.GivenName != "Alice" || vm.FamilyName != "Liddell" {
		t.Errorf("name = %q %q, want metadata values", vm.GivenName, vm.FamilyName)
	}
	if vm.AvatarURL != "https://cdn.example.com/alice.png" {
		t.Errorf("avatar = %q, want metadata value", vm.AvatarURL)
	}
}

func TestBuildViewModelProfileBeatsMetadata(t *testing.T) {
	t.Parallel()

	identity := &models.Identity{
		ID:    uuid.New(),
		Email: "alice@example.com",
		Metadata: map[string]string{
			models.MetaHandle:    "wonderland",
			models.MetaAvatarURL: "https://cdn.example.com/old.png",
		},
	}
	handle := "alice_l"
	avatar := "https://cdn.example.com/new.png"
	bio := "curiouser"
	prefs := models.DefaultPreferences()
	prefs.Theme = models.ThemeDark
	prof := &models.Profile{
		ID:          identity.ID,
		Handle:      &handle,
		GivenName:   "Alice",
		Bio:         &bio,
		AvatarURL:   &avatar,
		Preferences: prefs,
	}

	vm := BuildViewModel(identity, prof)

	if vm.Handle != "alice_l" {
		t.Errorf("handle = %q, want the profile column to win", vm.Handle)
	}
	if vm.AvatarURL != avatar {
		t.Errorf("avatar = %q, want the profile column to win", vm.AvatarURL)
	}
	if vm.Bio != "curiouser" {
		t.Errorf("bio = %q, want curiouser", vm.Bio)
	}
	if vm.Preferences.Theme != models.ThemeDark {
		t.Errorf("theme = %q, want dark", vm.Preferences.Theme)
	}
}

func TestBuildViewModelFillsGapsFromMetadata(t *testing.T) {
	t.Parallel()

	// A profile row with empty name columns falls through to metadata.
	identity := &models.Identity{
		ID:    uuid.New(),
		Email: "bob@example.com",
		Metadata: map[string]string{
			models.MetaGivenName: "Bob",
		},
	}
	prof := &models.Profile{ID: identity.ID, Preferences: models.DefaultPreferences()}

	vm := BuildViewModel(identity, prof)

	if vm.GivenName != "Bob" {
		t.Errorf("given name = %q, want metadata fallback", vm.GivenName)
	}
	if vm.Handle != "bob" {
		t.Errorf("handle = %q, want email local part fallback", vm.Handle)
	}
}
