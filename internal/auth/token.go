// Package auth verifies bearer tokens minted by the external identity
// provider and maps their roles to capabilities.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("token secret is not configured")
)

// Claims carried by identity provider tokens
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller
type Principal struct {
	UserID       string
	Email        string
	Roles        []string
	Capabilities CapabilitySet
}

// Can reports whether the principal holds c
func (p *Principal) Can(c Capability) bool {
	return p != nil && p.Capabilities.Has(c)
}

// Verifier validates HS256 tokens against a shared secret
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier; issuer is checked only when non-empty
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses tokenString and returns the principal it names
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrNoSecret)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{
		UserID:       claims.Subject,
		Email:        claims.Email,
		Roles:        claims.Roles,
		Capabilities: CapabilitiesFor(claims.Roles...),
	}, nil
}

// Sign mints a token for subject; used by tests and local tooling
func (v *Verifier) Sign(claims Claims) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
