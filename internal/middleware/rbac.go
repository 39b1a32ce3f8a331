package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-adp/records-api/internal/models"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
	"github.com/campus-adp/records-api/pkg/response"
)

// RequireRoles rejects the request unless the authenticated user holds one
// of the given roles. It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := roleSet(roles)
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRolesOrSelf additionally lets a user through when the route's :id
// parameter is their own user ID, regardless of role.
func RequireRolesOrSelf(roles ...models.UserRole) gin.HandlerFunc {
	allowed := roleSet(roles)
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}
		if id := c.Param("id"); id != "" && id == claims.UserID {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

func roleSet(roles []models.UserRole) map[models.UserRole]struct{} {
	set := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func claimsFrom(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
