// Package gate decides allow/deny/redirect for navigation targets based on
// the active session's role. Denials are fail-closed: a role-mismatched
// session is destroyed, not merely blocked.
package gate

import (
	"log"

	"github.com/myunifiles/unifiles/internal/identity"
	"github.com/myunifiles/unifiles/internal/session"
)

// AnonymousEntry is the navigation target for unauthenticated principals.
const AnonymousEntry = "/"

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

// Allow is the decision for a permitted navigation.
var Allow = Decision{Allowed: true}

// DenyRedirect is the decision sending the principal back to the anonymous
// entry point.
var DenyRedirect = Decision{RedirectTo: AnonymousEntry}

// Evaluate is the pure authorization rule. A nil session is denied; a
// session whose role is outside the non-empty required set is denied; an
// empty required set admits any session.
func Evaluate(sess *session.Session, required []identity.Role) Decision {
	if sess == nil {
		return DenyRedirect
	}
	if len(required) == 0 {
		return Allow
	}
	for _, role := range required {
		if sess.Role == role {
			return Allow
		}
	}
	return DenyRedirect
}

// Notifier surfaces a permission-denied message to the principal. The
// presentation layer is out of scope; the gate only emits the event.
type Notifier func(message string)

// Gate evaluates navigation against the session store, applying the
// fail-closed logout side effect on role mismatches.
type Gate struct {
	sessions *session.Store
	notify   Notifier
}

// Option configures a Gate.
type Option func(*Gate)

// WithNotifier sets the permission-denied notifier.
func WithNotifier(notify Notifier) Option {
	return func(g *Gate) { g.notify = notify }
}

// New creates a Gate over a session store.
func New(sessions *session.Store, opts ...Option) *Gate {
	g := &Gate{sessions: sessions}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize re-evaluates the current session against the required roles.
// It is never cached: the session can change between navigations. A
// role-mismatched session is logged out before the denial is returned.
func (g *Gate) Authorize(required ...identity.Role) Decision {
	sess := g.sessions.Current()
	decision := Evaluate(sess, required)
	if decision.Allowed {
		return decision
	}
	if sess != nil {
		// An authenticated principal reached a target outside its role:
		// destroy the session rather than leaving it usable.
		if err := g.sessions.Logout(); err != nil {
			log.Printf("gate: forced logout: %v", err)
		}
		if g.notify != nil {
			g.notify("You do not have permission to access this page.")
		}
	}
	return decision
}

// CheckRoute authorizes navigation to a path using the route table. Unknown
// paths deny to the anonymous entry point with no side effects.
func (g *Gate) CheckRoute(path string) Decision {
	required, known := RequiredRoles(path)
	if !known {
		return DenyRedirect
	}
	if required == nil && path == AnonymousEntry {
		return Allow
	}
	return g.Authorize(required...)
}
