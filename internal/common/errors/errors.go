package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"

	// Ошибки пула билетов
	ErrCodeInvalidDenomination     ErrorCode = "INVALID_DENOMINATION"
	ErrCodeNotAvailable            ErrorCode = "NOT_AVAILABLE"
	ErrCodeTicketNoLongerAvailable ErrorCode = "TICKET_NO_LONGER_AVAILABLE"

	// Ошибки бонусов
	ErrCodeNotEligible    ErrorCode = "NOT_ELIGIBLE"
	ErrCodeAlreadyClaimed ErrorCode = "ALREADY_CLAIMED"

	// Ошибки розыгрыша
	ErrCodeInsufficientEntries ErrorCode = "INSUFFICIENT_ENTRIES"

	// Ошибки оплаты
	ErrCodePaymentNotFound   ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePaymentNotPending ErrorCode = "PAYMENT_NOT_PENDING"

	// Ошибки хранилища
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"

	// Ошибки внешних API
	ErrCodeTelegramAPI ErrorCode = "TELEGRAM_API_ERROR"
)

// AppError представляет типизированную ошибку приложения
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Context   map[string]string      `json:"context,omitempty"`
	Stack     []string               `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	UserID    int64                  `json:"user_id,omitempty"`
	Cause     error                  `json:"-"`
}

// Error возвращает строковое представление ошибки
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsNotFound проверяет, является ли ошибка ошибкой "не найдено"
func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeNotFound || e.Code == ErrCodePaymentNotFound
}

// IsValidation проверяет, является ли ошибка ошибкой валидации
func (e *AppError) IsValidation() bool {
	return e.Code == ErrCodeValidation ||
		e.Code == ErrCodeBadRequest ||
		e.Code == ErrCodeInvalidDenomination
}

// IsUnauthorized проверяет, является ли ошибка ошибкой авторизации
func (e *AppError) IsUnauthorized() bool {
	return e.Code == ErrCodeUnauthorized || e.Code == ErrCodeForbidden
}

// IsRecoverable сообщает, что вызывающая сторона может повторить операцию с другим билетом
func (e *AppError) IsRecoverable() bool {
	return e.Code == ErrCodeConflict || e.Code == ErrCodeNotAvailable
}

// IsInternal проверяет, является ли ошибка внутренней ошибкой
func (e *AppError) IsInternal() bool {
	return e.Code == ErrCodeInternal ||
		e.Code == ErrCodeDatabaseError ||
		e.Code == ErrCodeStoreUnavailable ||
		e.Code == ErrCodeTelegramAPI
}

// WithContext добавляет контекст к ошибке
func (e *AppError) WithContext(key, value string) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail добавляет детальную информацию к ошибке
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID добавляет ID запроса к ошибке
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithUserID добавляет ID пользователя к ошибке
func (e *AppError) WithUserID(userID int64) *AppError {
	e.UserID = userID
	return e
}

// New создает новую ошибку приложения
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Stack:     getStackTrace(),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf оборачивает существующую ошибку с форматированием
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// getStackTrace возвращает стек вызовов
func getStackTrace() []string {
	var stack []string
	for i := 2; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		if strings.Contains(fn.Name(), "internal/common/errors") {
			continue
		}
		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		if len(stack) >= 10 {
			break
		}
	}
	return stack
}

// Конструкторы для часто используемых ошибок

// NewValidationError создает ошибку валидации
func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// NewNotFoundError создает ошибку "не найдено"
func NewNotFoundError(resource, id interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewUnauthorizedError создает ошибку авторизации
func NewUnauthorizedError(reason string) *AppError {
	return New(ErrCodeUnauthorized, fmt.Sprintf("Unauthorized: %s", reason)).
		WithDetail("reason", reason)
}

// NewConflictError создает ошибку конфликта
func NewConflictError(resource, reason string) *AppError {
	return New(ErrCodeConflict, fmt.Sprintf("Conflict with %s: %s", resource, reason)).
		WithDetail("resource", resource).
		WithDetail("reason", reason)
}

// NewInvalidDenominationError создает ошибку неизвестного номинала
func NewInvalidDenominationError(denomination int) *AppError {
	return New(ErrCodeInvalidDenomination, fmt.Sprintf("Unknown ticket denomination: %d", denomination)).
		WithDetail("denomination", denomination)
}

// NewNotAvailableError создает ошибку отсутствия свободных билетов
func NewNotAvailableError(denomination int) *AppError {
	return New(ErrCodeNotAvailable, fmt.Sprintf("No tickets available for denomination %d", denomination)).
		WithDetail("denomination", denomination)
}

// NewTicketNoLongerAvailableError создает ошибку для билета, проданного до подтверждения оплаты
func NewTicketNoLongerAvailableError(denomination, number int) *AppError {
	return New(ErrCodeTicketNoLongerAvailable, fmt.Sprintf("Ticket %d/%d is no longer available", denomination, number)).
		WithDetail("denomination", denomination).
		WithDetail("ticket_number", number)
}

// NewNotEligibleError создает ошибку недостаточного количества рефералов
func NewNotEligibleError(have, need int64) *AppError {
	return New(ErrCodeNotEligible, fmt.Sprintf("Referral bonus requires %d referrals, have %d", need, have)).
		WithDetail("referral_count", have).
		WithDetail("required", need)
}

// NewAlreadyClaimedError создает ошибку повторного получения бонуса
func NewAlreadyClaimedError(userID int64) *AppError {
	return New(ErrCodeAlreadyClaimed, "Referral bonus already claimed").
		WithUserID(userID)
}

// NewInsufficientEntriesError создает ошибку недостаточного количества участников розыгрыша
func NewInsufficientEntriesError(denomination int, have, need int) *AppError {
	return New(ErrCodeInsufficientEntries, fmt.Sprintf("Draw for denomination %d needs %d entries, have %d", denomination, need, have)).
		WithDetail("denomination", denomination).
		WithDetail("entries", have).
		WithDetail("required", need)
}

// NewPaymentNotFoundError создает ошибку "платеж не найден"
func NewPaymentNotFoundError(id string) *AppError {
	return New(ErrCodePaymentNotFound, fmt.Sprintf("Pending payment not found: %s", id)).
		WithDetail("payment_id", id)
}

// NewPaymentNotPendingError создает ошибку для уже обработанного платежа
func NewPaymentNotPendingError(id, status string) *AppError {
	return New(ErrCodePaymentNotPending, fmt.Sprintf("Payment %s is %s", id, status)).
		WithDetail("payment_id", id).
		WithDetail("status", status)
}

// NewStoreUnavailableError создает ошибку недоступности хранилища
func NewStoreUnavailableError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeStoreUnavailable, fmt.Sprintf("Store operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewDatabaseError создает ошибку базы данных
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, fmt.Sprintf("Database operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewTelegramAPIError создает ошибку Telegram API
func NewTelegramAPIError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeTelegramAPI, fmt.Sprintf("Telegram API operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// IsAppError проверяет, является ли ошибка AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError приводит ошибку к AppError, в том числе обернутую через fmt.Errorf
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err == nil || !stderrors.As(err, &appErr) {
		return nil, false
	}
	return appErr, true
}

// Is проверяет код ошибки в цепочке
func Is(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// CodeOf возвращает код ошибки или ErrCodeInternal для неизвестных ошибок
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
