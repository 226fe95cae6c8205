package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
)

const (
	InitDataHeader = "init_data"

	ctxUser       = "user"
	ctxStartParam = "start_param"
)

// TelegramInitData проверяет подпись init data мини-приложения и кладёт пользователя в контекст.
// ttl 0 отключает проверку срока действия.
func TelegramInitData(botToken string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(InitDataHeader)
		if raw == "" {
			AbortWithError(c, errors.NewUnauthorizedError("Telegram init data required"))
			return
		}

		if err := initdata.Validate(raw, botToken, ttl); err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Init data validation failed")
			AbortWithError(c, errors.NewUnauthorizedError("invalid init data"))
			return
		}

		parsed, err := initdata.Parse(raw)
		if err != nil {
			AbortWithError(c, errors.New(errors.ErrCodeBadRequest, "Failed to parse init data"))
			return
		}
		if parsed.User.ID == 0 {
			AbortWithError(c, errors.NewUnauthorizedError("init data has no user"))
			return
		}

		c.Set(ctxUser, parsed.User)
		c.Set(ctxUserID, parsed.User.ID)
		c.Set(ctxStartParam, parsed.StartParam)
		c.Next()
	}
}

// TelegramUser возвращает пользователя, сохранённого TelegramInitData.
func TelegramUser(c *gin.Context) (initdata.User, bool) {
	v, ok := c.Get(ctxUser)
	if !ok {
		return initdata.User{}, false
	}
	user, ok := v.(initdata.User)
	return user, ok
}

// UserID возвращает ID аутентифицированного пользователя или 0.
func UserID(c *gin.Context) int64 {
	return getUserID(c)
}

// StartParam возвращает start_param мини-приложения (реферальный код при первом входе).
func StartParam(c *gin.Context) string {
	return c.GetString(ctxStartParam)
}

// SetUser кладёт пользователя в контекст без проверки подписи; используется в тестах обработчиков.
func SetUser(user initdata.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxUser, user)
		c.Set(ctxUserID, user.ID)
		c.Next()
	}
}
