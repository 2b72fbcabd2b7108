// Package token issues and verifies visitor session tokens. Tokens are
// self-verifying (HMAC-signed, no server-side session row), which is the
// opposite trust model from admin sessions: a visitor token cannot be revoked
// individually, only by rotating the signing secret, and it never expires so
// a returning visitor keeps their identity without re-identifying.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fortuna/pkg/domain"
	domainerrors "fortuna/pkg/domain-errors"
)

// Codec signs and verifies visitor session tokens with a process-wide secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec builds a codec around the signing secret fixed at startup.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

type sessionClaims struct {
	IdentityID string `json:"identity_id"`
	jwt.RegisteredClaims
}

// Issue mints a token binding the identity id and the issuance time. No exp
// claim on purpose; see the package comment.
func (c *Codec) Issue(id domain.IdentityID) (string, error) {
	claims := sessionClaims{
		IdentityID: id.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify recomputes the signature over the embedded payload and returns the
// identity id. Parse failures, algorithm confusion, signature mismatch, and
// malformed ids all collapse to an unauthorized error; the caller learns
// nothing about which check failed.
func (c *Codec) Verify(raw string) (domain.IdentityID, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return domain.IdentityID{}, domainerrors.New(domainerrors.CodeUnauthorized, "invalid session token")
	}

	id, err := domain.ParseIdentityID(claims.IdentityID)
	if err != nil {
		return domain.IdentityID{}, domainerrors.New(domainerrors.CodeUnauthorized, "invalid session token")
	}
	return id, nil
}
