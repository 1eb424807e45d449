// Package security provides the signed bearer token and the identity-key
// hash used to key the credential store.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	memberdomain "member-portal/internal/member/domain"
)

// Sentinel errors for token validation; the HTTP layer maps them to status codes.
var (
	// ErrMalformedToken is returned when a token is not three segments of
	// valid base64/JSON.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature is returned when the signature does not verify
	// against the configured secret.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when the token's exp is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the full claim set of a self-service bearer token. The token
// is stateless: there is no revocation list, so the short lifetime is the
// only mitigation for a leaked token.
type Claims struct {
	jwt.RegisteredClaims
	Role   memberdomain.Role     `json:"role"`
	Member memberdomain.Snapshot `json:"member"`
}

// TokenProvider mints and validates HS256-signed bearer tokens. The secret
// is process-wide configuration and must stay stable across restarts:
// regenerating it invalidates every outstanding token.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
	nowF   func() time.Time
}

// NewTokenProvider returns a provider signing with secret, issuing tokens
// valid for ttl.
func NewTokenProvider(secret []byte, ttl time.Duration) *TokenProvider {
	return &TokenProvider{secret: secret, ttl: ttl, nowF: time.Now}
}

// Mint issues a token for a verified identity. Returns the signed token
// and its expiry time.
func (p *TokenProvider) Mint(snapshot memberdomain.Snapshot, role memberdomain.Role) (string, time.Time, error) {
	now := p.nowF().UTC()
	expiresAt := now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   snapshot.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:   role,
		Member: snapshot,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses raw, verifies the signature and expiry, and returns the
// claims. Signature verification happens before any claim is trusted.
func (p *TokenProvider) Validate(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrInvalidSignature
		}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}
