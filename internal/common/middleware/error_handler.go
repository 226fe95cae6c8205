package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
)

const (
	ctxRequestID = "request_id"
	ctxUserID    = "user_id"
)

// ErrorHandler middleware для восстановления после паники
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := getRequestID(c)

		logger.Error().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Str("stack", string(debug.Stack())).
			Msg("Panic recovered")

		appErr := errors.New(errors.ErrCodeInternal, "Internal server error").
			WithDetail("panic", fmt.Sprintf("%v", recovered))

		sendErrorResponse(c, appErr)
	})
}

// RequestID middleware для добавления ID запроса
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(ctxRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// HandleErrors отправляет последнюю ошибку, добавленную обработчиком через c.Error
func HandleErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := errors.AsAppError(err)
		if !ok {
			appErr = errors.Wrap(err, errors.ErrCodeInternal, "Handler error occurred").
				WithUserID(getUserID(c))
		}
		sendErrorResponse(c, appErr)
	}
}

// AbortWithError прерывает цепочку и сразу отправляет ошибку
func AbortWithError(c *gin.Context, appErr *errors.AppError) {
	sendErrorResponse(c, appErr)
	c.Abort()
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success   bool             `json:"success"`
	Error     *errors.AppError `json:"error"`
	Timestamp time.Time        `json:"timestamp"`
	RequestID string           `json:"request_id"`
	Path      string           `json:"path,omitempty"`
	Method    string           `json:"method,omitempty"`
}

func sendErrorResponse(c *gin.Context, appErr *errors.AppError) {
	requestID := getRequestID(c)

	appErr.WithRequestID(requestID).
		WithContext("path", c.Request.URL.Path).
		WithContext("method", c.Request.Method)

	logError(appErr, c)

	c.JSON(HTTPStatus(appErr.Code), ErrorResponse{
		Success:   false,
		Error:     appErr,
		Timestamp: time.Now(),
		RequestID: requestID,
		Path:      c.Request.URL.Path,
		Method:    c.Request.Method,
	})
}

// HTTPStatus возвращает HTTP статус для кода ошибки
func HTTPStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidation, errors.ErrCodeBadRequest, errors.ErrCodeInvalidDenomination:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodePaymentNotFound:
		return http.StatusNotFound
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden, errors.ErrCodeNotEligible:
		return http.StatusForbidden
	case errors.ErrCodeConflict, errors.ErrCodeAlreadyClaimed, errors.ErrCodePaymentNotPending,
		errors.ErrCodeTicketNoLongerAvailable, errors.ErrCodeNotAvailable:
		return http.StatusConflict
	case errors.ErrCodeInsufficientEntries:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeTelegramAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func logError(appErr *errors.AppError, c *gin.Context) {
	var evt *zerolog.Event
	switch {
	case appErr.IsInternal():
		evt = logger.Error()
	case appErr.IsUnauthorized():
		evt = logger.Warn()
	default:
		evt = logger.Info()
	}

	evt = evt.
		Str("request_id", getRequestID(c)).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("error_code", string(appErr.Code)).
		Str("error_message", appErr.Message)

	if userID := getUserID(c); userID != 0 {
		evt = evt.Int64("user_id", userID)
	}
	if len(appErr.Details) > 0 {
		detailsJSON, _ := json.Marshal(appErr.Details)
		evt = evt.RawJSON("details", detailsJSON)
	}
	if appErr.Cause != nil {
		evt = evt.Err(appErr.Cause)
	}
	evt.Msg("Request failed")
}

func getRequestID(c *gin.Context) string {
	if id := c.GetString(ctxRequestID); id != "" {
		return id
	}
	return "unknown"
}

func getUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
