package session

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"github.com/myunifiles/unifiles/internal/identity"
	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
)

const tokenIssuer = "unifiles"

// DefaultTokenTTL bounds how long a persisted session survives restarts.
const DefaultTokenTTL = 30 * 24 * time.Hour

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Institution string `json:"institution,omitempty"`
	Course      string `json:"course,omitempty"`
	PhotoRef    string `json:"photo_ref,omitempty"`
}

// Signer signs and verifies persisted session snapshots.
type Signer struct {
	key ed25519.PrivateKey
	ttl time.Duration
	now func() time.Time
}

// signerEnv holds raw env values before post-parse validation.
type signerEnv struct {
	Seed string `env:"UNIFILES_SESSION_KEY"`
}

// NewSigner creates a Signer from an ed25519 private key.
func NewSigner(key ed25519.PrivateKey, ttl time.Duration, now func() time.Time) Signer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return Signer{key: key, ttl: ttl, now: now}
}

// LoadSignerFromEnv reads the session signing key from the environment. The
// key is a base64-encoded 32-byte ed25519 seed.
func LoadSignerFromEnv(now func() time.Time) (Signer, error) {
	var raw signerEnv
	if err := env.Parse(&raw); err != nil {
		return Signer{}, fmt.Errorf("parse session env: %w", err)
	}
	seed := strings.TrimSpace(raw.Seed)
	if seed == "" {
		return Signer{}, fmt.Errorf("UNIFILES_SESSION_KEY is required")
	}
	seedBytes, err := base64.StdEncoding.DecodeString(seed)
	if err != nil {
		return Signer{}, fmt.Errorf("decode session key: %w", err)
	}
	if len(seedBytes) != ed25519.SeedSize {
		return Signer{}, fmt.Errorf("session key must be %d bytes", ed25519.SeedSize)
	}
	return NewSigner(ed25519.NewKeyFromSeed(seedBytes), 0, now), nil
}

// Sign serializes a session into a signed token.
func (s Signer) Sign(sess Session) (string, error) {
	if len(s.key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("session signer is not configured")
	}
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sess.Identity.ExternalID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.CreatedAt.Add(s.ttl)),
		},
		Role:        string(sess.Role),
		DisplayName: sess.Identity.DisplayName,
		Institution: sess.Identity.Institution,
		Course:      sess.Identity.Course,
		PhotoRef:    sess.Identity.PhotoRef,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses a signed token back into a session. Any failure, from a
// bad signature to an expired or schema-mismatched token, returns a
// SESSION_TOKEN_INVALID error.
func (s Signer) Verify(token string) (Session, error) {
	if len(s.key) != ed25519.PrivateKeySize {
		return Session{}, fmt.Errorf("session signer is not configured")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return s.key.Public(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeSessionTokenInvalid, "verify session token", err)
	}

	role := identity.Role(parsed.Role)
	restored := Session{
		Identity: identity.Identity{
			Role:        role,
			ExternalID:  parsed.Subject,
			DisplayName: parsed.DisplayName,
			Institution: parsed.Institution,
			Course:      parsed.Course,
			PhotoRef:    parsed.PhotoRef,
		},
		Role: role,
	}
	if parsed.IssuedAt != nil {
		restored.CreatedAt = parsed.IssuedAt.Time.UTC()
	}
	if err := restored.Identity.Validate(); err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeSessionTokenInvalid, "session token claims are malformed", err)
	}
	return restored, nil
}
