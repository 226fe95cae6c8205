package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// Максимальные длины для различных полей
	MaxProofRefLength     = 512
	MaxRejectReasonLength = 200
	MaxUsernameLength     = 32
	MaxFirstNameLength    = 64
)

// Telegram username regex (допускает буквы, цифры, подчеркивания, 5-32 символа)
var telegramUsernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{5,32}$`)

// Реферальный код: префикс ref_ и id пользователя в base36
var referralCodeRegex = regexp.MustCompile(`^ref_[0-9a-z]{1,13}$`)

// ProofRef проверяет ссылку на подтверждение оплаты и возвращает её без пробелов по краям
func ProofRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("required")
	}
	if len(ref) > MaxProofRefLength {
		return "", fmt.Errorf("cannot exceed %d characters", MaxProofRefLength)
	}
	return ref, nil
}

// RejectReason проверяет причину отклонения платежа
func RejectReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", fmt.Errorf("required")
	}
	if len(reason) > MaxRejectReasonLength {
		return "", fmt.Errorf("cannot exceed %d characters", MaxRejectReasonLength)
	}
	return reason, nil
}

// IsReferralCode reports whether code has the shape of a generated referral code.
func IsReferralCode(code string) bool {
	return referralCodeRegex.MatchString(code)
}

// Username нормализует Telegram username; невалидный превращается в пустую строку
func Username(username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !telegramUsernameRegex.MatchString(username) {
		return ""
	}
	return username
}

// FirstName обрезает имя до допустимой длины
func FirstName(name string) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > MaxFirstNameLength {
		name = string(r[:MaxFirstNameLength])
	}
	return name
}
