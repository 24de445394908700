package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/myunifiles/unifiles/internal/identity"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	fixed := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	signer := testSigner(t, func() time.Time { return fixed })
	s, err := NewStore(filepath.Join(t.TempDir(), "session"), signer)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestLoginSetsCurrent(t *testing.T) {
	s := testStore(t)

	sess, err := s.Login(studentIdentity())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Role != identity.RoleStudent {
		t.Fatalf("expected Student role, got %v", sess.Role)
	}

	current := s.Current()
	if current == nil {
		t.Fatal("expected active session")
	}
	if *current != sess {
		t.Fatalf("expected current to equal login result")
	}
}

func TestLoginThenRestoreRoundTrips(t *testing.T) {
	s := testStore(t)

	sess, err := s.Login(studentIdentity())
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Simulate a process restart: a fresh store over the same path.
	restoredStore, err := NewStore(s.path, s.signer)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	restored := restoredStore.Restore()
	if restored == nil {
		t.Fatal("expected restored session")
	}
	if *restored != sess {
		t.Fatalf("expected structural equality, got %+v vs %+v", *restored, sess)
	}
}

func TestLoginReplacesWholesale(t *testing.T) {
	s := testStore(t)

	if _, err := s.Login(studentIdentity()); err != nil {
		t.Fatalf("login student: %v", err)
	}
	admin := identity.Identity{Role: identity.RoleAdmin, ExternalID: "AD-1", DisplayName: "ada admin"}
	if _, err := s.Login(admin); err != nil {
		t.Fatalf("login admin: %v", err)
	}

	current := s.Current()
	if current == nil || current.Role != identity.RoleAdmin {
		t.Fatalf("expected admin session, got %+v", current)
	}
	if current.Identity.Course != "" {
		t.Fatalf("expected no student fields to leak across logins")
	}
}

func TestLogoutClearsBothStates(t *testing.T) {
	s := testStore(t)

	if _, err := s.Login(studentIdentity()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if s.Current() != nil {
		t.Fatal("expected anonymous after logout")
	}
	if s.Restore() != nil {
		t.Fatal("expected no persisted snapshot after logout")
	}
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	s := testStore(t)
	if err := s.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
}

func TestRestoreMissingSnapshot(t *testing.T) {
	s := testStore(t)
	if s.Restore() != nil {
		t.Fatal("expected nil for missing snapshot")
	}
}

func TestRestoreCorruptSnapshot(t *testing.T) {
	s := testStore(t)
	if err := os.WriteFile(s.path, []byte("corrupt snapshot"), 0o600); err != nil {
		t.Fatalf("write corrupt snapshot: %v", err)
	}
	if s.Restore() != nil {
		t.Fatal("expected nil for corrupt snapshot")
	}
	if s.Current() != nil {
		t.Fatal("expected anonymous after failed restore")
	}
}

func TestLoginRejectsInvalidIdentity(t *testing.T) {
	s := testStore(t)
	if _, err := s.Login(identity.Identity{Role: identity.RoleStudent}); err == nil {
		t.Fatal("expected error for identity without credentials")
	}
	if s.Current() != nil {
		t.Fatal("expected no session after failed login")
	}
}
