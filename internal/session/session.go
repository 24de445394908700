// Package session holds the authenticated identity for a client context and
// persists it across process restarts as a signed token.
package session

import (
	"time"

	"github.com/myunifiles/unifiles/internal/identity"
)

// Session is the currently authenticated identity plus its role tag.
// Sessions are never mutated in place; login replaces them wholesale.
type Session struct {
	Identity  identity.Identity
	Role      identity.Role
	CreatedAt time.Time
}

// New creates a session for a resolved identity. CreatedAt is truncated to
// second precision so a session survives a token round trip structurally
// intact.
func New(resolved identity.Identity, now time.Time) Session {
	return Session{
		Identity:  resolved,
		Role:      resolved.Role,
		CreatedAt: now.UTC().Truncate(time.Second),
	}
}
