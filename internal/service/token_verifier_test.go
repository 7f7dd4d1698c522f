package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

func signClaims(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestTokenVerifierResolvesIdentity(t *testing.T) {
	verifier := NewTokenVerifier(TokenVerifierConfig{Secret: "secret", Issuer: "idp"})
	token := signClaims(t, "secret", &models.JWTClaims{
		UserID:     "lec-1",
		Roles:      []models.ActorRole{models.RoleLecturer, models.RoleDivisionHead, "JANITOR"},
		DivisionID: "div-1",
		FacultyID:  "fac-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := verifier.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "lec-1", identity.UserID)
	assert.Equal(t, models.UserKindFaculty, identity.Kind)
	assert.Equal(t, []models.ActorRole{models.RoleLecturer, models.RoleDivisionHead}, identity.Roles)
	assert.Equal(t, "div-1", identity.DivisionID)
}

func TestTokenVerifierFallsBackToSubject(t *testing.T) {
	verifier := NewTokenVerifier(TokenVerifierConfig{Secret: "secret"})
	token := signClaims(t, "secret", &models.JWTClaims{
		Roles: []models.ActorRole{models.RoleStudent},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "stu-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := verifier.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", identity.UserID)
	assert.Equal(t, models.UserKindStudent, identity.Kind)
}

func TestTokenVerifierRejectsBadTokens(t *testing.T) {
	verifier := NewTokenVerifier(TokenVerifierConfig{Secret: "secret", Issuer: "idp"})
	expired := signClaims(t, "secret", &models.JWTClaims{
		UserID: "stu-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	wrongIssuer := signClaims(t, "secret", &models.JWTClaims{
		UserID: "stu-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "elsewhere",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	wrongSecret := signClaims(t, "other", &models.JWTClaims{
		UserID: "stu-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	for _, token := range []string{expired, wrongIssuer, wrongSecret, "garbage"} {
		_, err := verifier.Resolve(token)
		require.Error(t, err)
		assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	}
}
