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

	"github.com/Soln1shko/AI-HR/internal/models"
)

func newEngine(secret string, seen *models.Operator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/who", JWTAuth(secret), func(c *gin.Context) {
		op, _ := CurrentOperator(c)
		*seen = op
		c.Status(http.StatusNoContent)
	})
	r.GET("/admin", JWTAuth(secret), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func token(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth_NoSecretActsAsLocalAdmin(t *testing.T) {
	var op models.Operator
	r := newEngine("", &op)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.Operator{ID: LocalOperator, Role: models.RoleAdmin}, op)
}

func TestJWTAuth_QueryTokenAndDefaultRole(t *testing.T) {
	var op models.Operator
	r := newEngine("k", &op)

	tok := token(t, "k", jwt.MapClaims{"sub": "op-9"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who?access_token="+tok, nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "op-9", op.ID)
	assert.Equal(t, models.RoleOperator, op.Role)
	assert.False(t, op.IsAdmin())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestJWTAuth_RoleIsCaseInsensitive(t *testing.T) {
	var op models.Operator
	r := newEngine("k", &op)

	tok := token(t, "k", jwt.MapClaims{"sub": "root", "role": " Admin "})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
