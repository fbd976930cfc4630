package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// LocalOperator is the identity used when the control API runs without a
// signing secret.
const LocalOperator = "local"

const operatorKey = "operator"

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type controlClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTAuth verifies HS256 bearer tokens signed with secret. An empty secret
// disables verification and every request acts as the local operator.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			setOperator(c, models.Operator{ID: LocalOperator, Role: models.RoleAdmin})
			c.Next()
			return
		}

		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: "missing bearer token",
			})
			return
		}

		claims := &controlClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || tok == nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: "invalid token",
			})
			return
		}

		if claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: "missing subject",
			})
			return
		}

		role := normalizeRole(models.Role(claims.Role))
		if role == "" {
			role = models.RoleOperator
		}

		setOperator(c, models.Operator{ID: claims.Subject, Role: role})
		c.Next()
	}
}

func setOperator(c *gin.Context, op models.Operator) {
	c.Set(operatorKey, op)
}

// CurrentOperator returns the caller set by JWTAuth.
func CurrentOperator(c *gin.Context) (models.Operator, bool) {
	v, ok := c.Get(operatorKey)
	if !ok {
		return models.Operator{}, false
	}
	op, ok := v.(models.Operator)
	return op, ok
}

// bearerToken reads the Authorization header, or the access_token query
// parameter for websocket clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.Query("access_token"))
}
