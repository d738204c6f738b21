package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilities(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		cap   Capability
		want  bool
	}{
		{"buyer pays", []string{RoleBuyer}, CapPay, true},
		{"buyer cannot read ledger", []string{RoleBuyer}, CapViewPaymentLedger, false},
		{"admin reads ledger", []string{RoleAdmin}, CapViewPaymentLedger, true},
		{"union of roles", []string{RoleSeller, RoleAdmin}, CapViewAnyPayment, true},
		{"unknown role", []string{"GUEST"}, CapPay, false},
		{"no roles", nil, CapPay, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.cap, tt.roles...))
		})
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("s3cret", "https://id.enkaji.co.ke")

	token, err := v.Sign(Claims{
		Email: "buyer@example.com",
		Roles: []string{RoleBuyer},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.UserID)
	assert.True(t, p.Can(CapPay))
	assert.False(t, p.Can(CapViewPaymentLedger))
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("s3cret", "issuer-a")

	expired, err := v.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)

	otherIssuer, err := NewVerifier("s3cret", "issuer-b").Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})
	require.NoError(t, err)

	wrongKey, err := NewVerifier("other", "issuer-a").Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})
	require.NoError(t, err)

	noSubject, err := v.Sign(Claims{})
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":      expired,
		"other issuer": otherIssuer,
		"wrong key":    wrongKey,
		"no subject":   noSubject,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestVerifyWithoutSecretRejectsEverything(t *testing.T) {
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Roles:            []string{RoleAdmin},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "attacker"},
	}).SignedString([]byte(""))
	require.NoError(t, err)

	v := NewVerifier("", "")
	p, err := v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrNoSecret)
	assert.Nil(t, p)

	_, err = v.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})
	assert.ErrorIs(t, err, ErrNoSecret)
}
