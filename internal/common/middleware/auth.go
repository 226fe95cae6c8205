package middleware

import (
	"github.com/gin-gonic/gin"

	"raffle-backend/internal/common/errors"
)

// AdminChecker reports whether a user belongs to the admin set.
type AdminChecker interface {
	IsAdmin(userID int64) bool
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if getUserID(c) == 0 {
			AbortWithError(c, errors.NewUnauthorizedError("Telegram init data required"))
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects non-admins before the handler runs. The services check
// the approver again on every admin operation.
func RequireAdmin(admins AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := getUserID(c)
		if userID == 0 {
			AbortWithError(c, errors.NewUnauthorizedError("Telegram init data required"))
			return
		}
		if !admins.IsAdmin(userID) {
			AbortWithError(c, errors.NewUnauthorizedError("admin access required").WithUserID(userID))
			return
		}
		c.Next()
	}
}
