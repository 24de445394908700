package session

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/myunifiles/unifiles/internal/identity"
)

// Store holds the active session for one client context and mirrors it to a
// signed snapshot file under a well-known path. The persisted snapshot and
// the in-memory session stay consistent: a login or logout either completes
// both or neither.
type Store struct {
	path   string
	signer Signer

	mu      sync.Mutex
	current *Session
}

// NewStore creates a session store persisting to the given path.
func NewStore(path string, signer Signer) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session path is required")
	}
	return &Store{path: filepath.Clean(path), signer: signer}, nil
}

// Login replaces any existing session with one for the resolved identity.
// The snapshot is persisted before the in-memory session is swapped, so a
// persistence failure leaves the previous session fully intact.
func (s *Store) Login(resolved identity.Identity) (Session, error) {
	if err := resolved.Validate(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := New(resolved, s.signer.now())
	token, err := s.signer.Sign(sess)
	if err != nil {
		return Session{}, err
	}
	if err := s.writeSnapshot(token); err != nil {
		return Session{}, err
	}

	s.current = &sess
	return sess, nil
}

// Logout destroys the active session and its persisted snapshot. Logging
// out with no session is a no-op.
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session snapshot: %w", err)
	}
	s.current = nil
	return nil
}

// Current returns the active session, or nil when anonymous.
func (s *Store) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	sess := *s.current
	return &sess
}

// Restore loads the persisted snapshot at process start. A missing,
// corrupt, expired, or schema-mismatched snapshot restores to anonymous
// rather than failing.
func (s *Store) Restore() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("session: read snapshot: %v", err)
		}
		s.current = nil
		return nil
	}

	sess, err := s.signer.Verify(strings.TrimSpace(string(raw)))
	if err != nil {
		log.Printf("session: discard snapshot: %v", err)
		s.current = nil
		return nil
	}

	s.current = &sess
	restored := sess
	return &restored
}

// writeSnapshot persists the token atomically via a temp file rename so a
// crash mid-write never leaves a torn snapshot.
func (s *Store) writeSnapshot(token string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create session temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(token); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write session snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close session snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace session snapshot: %w", err)
	}
	return nil
}
