package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/service"
)

func newProtectedRouter(roles ...models.ActorRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	verifier := service.NewTokenVerifier(service.TokenVerifierConfig{Secret: "secret"})
	router := gin.New()
	router.GET("/private", JWT(verifier), RequireRoles(roles...), func(c *gin.Context) {
		identity := IdentityFromContext(c)
		c.String(http.StatusOK, identity.UserID)
	})
	return router
}

func signedToken(t *testing.T, userID string, roles ...models.ActorRole) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func serve(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAttachesIdentity(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin, models.RoleLecturer)
	w := serve(router, "Bearer "+signedToken(t, "lec-1", models.RoleLecturer))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lec-1", w.Body.String())
}

func TestJWTRejectsMissingOrInvalidToken(t *testing.T) {
	router := newProtectedRouter()
	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer not-a-jwt").Code)
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin)
	w := serve(router, "Bearer "+signedToken(t, "stu-1", models.RoleStudent))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
