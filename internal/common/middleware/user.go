package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/service"
)

// AccountCreator is satisfied by service.AccountService.
type AccountCreator interface {
	GetOrCreate(ctx context.Context, profile service.Profile, referrerCode string) (*models.Account, bool, error)
}

// AutoCreateAccount creates the raffle account on the user's first request. The
// mini app start_param carries the referral code of whoever invited the user.
func AutoCreateAccount(accounts AccountCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := TelegramUser(c)
		if !ok {
			c.Next()
			return
		}

		_, created, err := accounts.GetOrCreate(c.Request.Context(), service.Profile{
			ID:        user.ID,
			Username:  user.Username,
			FirstName: user.FirstName,
		}, StartParam(c))
		if err != nil {
			appErr, ok := errors.AsAppError(err)
			if !ok {
				appErr = errors.Wrap(err, errors.ErrCodeInternal, "Failed to create account")
			}
			AbortWithError(c, appErr)
			return
		}
		if created {
			logger.Debug().Int64("user_id", user.ID).Str("start_param", StartParam(c)).Msg("Account auto-created")
		}
		c.Next()
	}
}
