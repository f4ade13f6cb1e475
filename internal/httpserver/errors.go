package httpserver

import (
	"net/http"
)

type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeNoSessionID         ErrorCode = "NO_SESSION_ID"
	ErrCodeInvalidSession      ErrorCode = "INVALID_SESSION"
	ErrCodeSessionExpired      ErrorCode = "SESSION_EXPIRED"
	ErrCodeInvalidCredentials  ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUsernameExists      ErrorCode = "USERNAME_EXISTS"
	ErrCodeUserNotFound        ErrorCode = "USER_NOT_FOUND"
	ErrCodeInvalidChatID       ErrorCode = "INVALID_CHAT_ID"
	ErrCodeChatNotFound        ErrorCode = "CHAT_NOT_FOUND"
	ErrCodeUserNotInChat       ErrorCode = "USER_NOT_IN_CHAT"
	ErrCodeInvalidCallerID     ErrorCode = "INVALID_CALLER_ID"
	ErrCodeNoActiveCall        ErrorCode = "NO_ACTIVE_CALL"
	ErrCodeNoRecipientsFound   ErrorCode = "NO_RECIPIENTS_FOUND"
	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeConflict            ErrorCode = "CONFLICT" // reserved
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
	ErrCodeMethodNotAllowed    ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
)

var errorHTTPStatus = map[ErrorCode]int{
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeNoSessionID:         http.StatusUnauthorized,
	ErrCodeInvalidSession:      http.StatusUnauthorized,
	ErrCodeSessionExpired:      http.StatusUnauthorized,
	ErrCodeInvalidCredentials:  http.StatusUnauthorized,
	ErrCodeUsernameExists:      http.StatusConflict,
	ErrCodeUserNotFound:        http.StatusNotFound,
	ErrCodeInvalidChatID:       http.StatusBadRequest,
	ErrCodeChatNotFound:        http.StatusNotFound,
	ErrCodeUserNotInChat:       http.StatusForbidden,
	ErrCodeInvalidCallerID:     http.StatusForbidden,
	ErrCodeNoActiveCall:        http.StatusNotFound,
	ErrCodeNoRecipientsFound:   http.StatusNotFound,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeProviderUnavailable: http.StatusBadGateway,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeMethodNotAllowed:    http.StatusMethodNotAllowed,
	ErrCodeNotFound:            http.StatusNotFound,
}

func httpStatusForCode(code ErrorCode) int {
	if status, ok := errorHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
