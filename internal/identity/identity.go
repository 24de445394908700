// Package identity resolves credential pairs against role-partitioned
// record stores and records login events.
package identity

import (
	"strings"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
)

// Role identifies one of the three principal classes.
type Role string

const (
	// RoleStudent is a student principal, sourced from the Registration partition.
	RoleStudent Role = "Student"
	// RoleAdmin is an admin principal, sourced from the AdminUser partition.
	RoleAdmin Role = "Admin"
	// RoleCEO is a CEO principal, sourced from the Ceo partition.
	RoleCEO Role = "CEO"
)

// Valid reports whether the role is one of the known principal classes.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleCEO:
		return true
	}
	return false
}

// ErrInvalidCredential indicates a malformed credential pair, caught before
// any store call.
var ErrInvalidCredential = apperrors.New(apperrors.CodeInvalidCredential, "external id and display name are required")

// ErrNotFound indicates no partition matched the credential pair. Callers
// surface a generic message and never reveal which partitions were checked.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "no identity matched the credential pair")

// Credential is the pair a principal presents at login. DisplayName is
// normalized before comparison; ExternalID is compared verbatim.
type Credential struct {
	ExternalID  string
	DisplayName string
}

// Normalize case-folds and trims the display name the same way records are
// stored, leaving the external ID untouched.
func (c Credential) Normalize() Credential {
	c.DisplayName = strings.ToLower(strings.TrimSpace(c.DisplayName))
	return c
}

// Validate rejects credential pairs with a missing half so no partition
// round-trips happen for obviously malformed input.
func (c Credential) Validate() error {
	if c.ExternalID == "" || strings.TrimSpace(c.DisplayName) == "" {
		return ErrInvalidCredential
	}
	return nil
}

// Identity is the resolved principal: a role tag plus the partition record
// fields that matter to the core. Institution, Course, and PhotoRef are only
// populated for the Student variant; callers switch on Role to handle every
// case.
type Identity struct {
	Role        Role
	ExternalID  string
	DisplayName string

	// Student variant fields.
	Institution string
	Course      string
	PhotoRef    string
}

// Validate reports whether the identity carries a known role and a complete
// credential pair.
func (i Identity) Validate() error {
	if !i.Role.Valid() {
		return apperrors.New(apperrors.CodeInvalidCredential, "unknown role")
	}
	if i.ExternalID == "" || i.DisplayName == "" {
		return ErrInvalidCredential
	}
	return nil
}
