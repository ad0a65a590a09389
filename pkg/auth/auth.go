// Package auth mints and verifies bearer tokens of ripen API.
//
// Tokens are JWS signed with HS256. A token carries scopes which endpoints require.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")
var ErrInsufficientScope = errors.New("insufficient scope")

type Scope string

const (
	// operate the loop: ingest online telemetry, report outcomes, train, rollback.
	ScopeOperator Scope = "operator"

	// ingest simulated telemetry with trusted labels, in addition to operator.
	ScopeAdmin Scope = "admin"
)

func AsScope(s string) (Scope, error) {
	switch sc := Scope(s); sc {
	case ScopeOperator, ScopeAdmin:
		return sc, nil
	default:
		return "", fmt.Errorf("unknown scope: %s", s)
	}
}

type Claims struct {
	jwt.RegisteredClaims

	// private claims
	Scopes []Scope `json:"ripen/scopes"`
}

// Has reports whether the claims grant the scope.
//
// Admin implies operator.
func (c *Claims) Has(s Scope) bool {
	if slices.Contains(c.Scopes, s) {
		return true
	}
	return s == ScopeOperator && slices.Contains(c.Scopes, ScopeAdmin)
}

// Authority signs and verifies tokens with a shared key.
type Authority struct {
	key    []byte
	issuer string
	clock  func() time.Time
}

type Option func(*Authority) *Authority

func WithClock(clock func() time.Time) Option {
	return func(a *Authority) *Authority {
		a.clock = clock
		return a
	}
}

func New(key []byte, issuer string, options ...Option) *Authority {
	a := &Authority{key: key, issuer: issuer, clock: time.Now}
	for _, opt := range options {
		a = opt(a)
	}
	return a
}

// Mint a new token for subject.
//
// # Args
//
// - subject: "sub" claim. Who uses the token.
//
// - ttl: the token expires after this. Never expires if it is zero.
//
// - scopes: granted scopes.
func (a *Authority) Mint(subject string, ttl time.Duration, scopes ...Scope) (string, error) {
	now := a.clock()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   a.issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Scopes: scopes,
	}
	if 0 < ttl {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}

// Verify a token and returns its claims.
//
// # Returns
//
// - error: [ErrInvalidToken] when the token is malformed, expired, not signed by the key
// or issued by other issuer.
func (a *Authority) Verify(token string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(t *jwt.Token) (interface{}, error) { return a.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.clock),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claims, nil
}

// BearerToken extracts token from the value of an Authorization header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
