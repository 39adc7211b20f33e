package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. The gateway maps all of these to 401; they are kept
// distinct so logs and tests can tell why a token was refused.
var (
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
)

// Identity is what a verified token proves about the caller. It is attached
// to the request context by the gateway middleware; downstream services trust
// it and do not re-verify.
type Identity struct {
	Subject string
	Role    string
}

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Signer mints signed, time-bound access tokens. Used by the login endpoint
// only; the gateway never signs.
type Signer struct {
	key []byte
	ttl time.Duration
}

func NewSigner(key []byte, ttl time.Duration) *Signer {
	return &Signer{key: key, ttl: ttl}
}

// Sign issues an HS256 token for the given subject and role.
func (s *Signer) Sign(subject, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verifier validates tokens against the process-wide signing key. It is a
// pure function of the token string and the key: no I/O, no mutable state.
// The key is loaded once at startup and never rotated mid-process.
type Verifier struct {
	key    []byte
	leeway time.Duration
}

// NewVerifier creates a verifier with the given clock-skew leeway. Expiry is
// checked against wall-clock time at verification.
func NewVerifier(key []byte, leeway time.Duration) *Verifier {
	return &Verifier{key: key, leeway: leeway}
}

// Verify checks signature and expiry and extracts the caller identity.
// Signature comparison is constant-time (crypto/hmac inside jwt's HMAC
// method), so verification leaks no timing information about the key.
func (v *Verifier) Verify(tokenStr string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Identity{}, ErrSignatureInvalid
		default:
			return Identity{}, ErrMalformed
		}
	}
	if !token.Valid {
		return Identity{}, ErrMalformed
	}
	return Identity{Subject: claims.Subject, Role: claims.Role}, nil
}
