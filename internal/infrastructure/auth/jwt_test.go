package auth

import (
	"testing"
	"time"

	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() *TokenService {
	return NewTokenService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "settlement-test",
	})
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := newTestTokenService()

	token, err := svc.Issue("user-42", "alice", time.Hour)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "alice", claims.Actor())
	assert.Equal(t, "settlement-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestClaims_ActorFallsBackToSubject(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7"}}
	assert.Equal(t, "user-7", claims.Actor())
}

func TestTokenService_Validate(t *testing.T) {
	svc := newTestTokenService()
	valid, err := svc.Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	expired, err := svc.Issue("user-1", "", -time.Minute)
	require.NoError(t, err)

	future := newTestTokenService()
	future.now = func() time.Time { return time.Now().Add(time.Hour) }
	notYet, err := future.Issue("user-1", "", 2*time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewTokenService(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "elsewhere"}).
		Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	otherSecret, err := NewTokenService(config.JWTConfig{Secret: "another-secret-key-of-32-chars!!", Issuer: "settlement-test"}).
		Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid", valid, nil},
		{"expired", expired, ErrExpiredToken},
		{"not yet valid", notYet, ErrTokenNotYetValid},
		{"wrong issuer", otherIssuer, ErrInvalidToken},
		{"wrong secret", otherSecret, ErrInvalidToken},
		{"unsigned", unsigned, ErrInvalidToken},
		{"garbage", "not.a.token", ErrInvalidToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Validate(tc.token)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestTokenService_RequiresSecretAndSubject(t *testing.T) {
	empty := NewTokenService(config.JWTConfig{})
	_, err := empty.Issue("user-1", "", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = empty.Validate("anything")
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = newTestTokenService().Issue("", "alice", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSubject)
}
