package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/uniplan/uniplan-api/internal/middleware"
	"github.com/uniplan/uniplan-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// averageSubject resolves which user an average request is scoped to. The
// caller's own ID is the default; staff may ask for another user through the
// user_id query parameter.
func averageSubject(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil {
		return ""
	}
	if target := c.Query("user_id"); target != "" && claims.Role != models.RoleStudent {
		return target
	}
	return claims.UserID
}
