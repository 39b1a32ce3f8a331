package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-adp/records-api/internal/middleware"
	"github.com/campus-adp/records-api/internal/models"
)

// claimsFromContext returns the authenticated user's claims, or nil on
// routes that run without the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
