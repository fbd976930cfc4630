package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// RequireRole admits operators (set by JWTAuth) holding one of allowed.
func RequireRole(allowed ...models.Role) gin.HandlerFunc {
	allow := make(map[models.Role]struct{}, len(allowed))
	for _, a := range allowed {
		allow[normalizeRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		op, ok := CurrentOperator(c)
		if ok {
			if _, ok = allow[normalizeRole(op.Role)]; ok {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, apiError{
			Code:    utils.CodeForbidden,
			Message: "forbidden",
		})
	}
}

func RequireAdmin() gin.HandlerFunc { return RequireRole(models.RoleAdmin) }

func normalizeRole(r models.Role) models.Role {
	return models.Role(strings.ToLower(strings.TrimSpace(string(r))))
}
