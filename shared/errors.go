package shared

import (
	"errors"
	"net/http"
)

// AppError carries an HTTP status alongside a user-facing message and an
// optional structured payload. Services return these; the HTTP layer renders
// them verbatim.
type AppError struct {
	StatusCode int         `json:"code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Err        error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func newAppError(status int, err error, message string) *AppError {
	return &AppError{StatusCode: status, Message: message, Err: err}
}

func NewBadRequestError(err error, message string) *AppError {
	return newAppError(http.StatusBadRequest, err, message)
}

func NewUnauthorizedError(err error, message string) *AppError {
	return newAppError(http.StatusUnauthorized, err, message)
}

func NewForbiddenError(err error, message string) *AppError {
	return newAppError(http.StatusForbidden, err, message)
}

func NewNotFoundError(err error, message string) *AppError {
	return newAppError(http.StatusNotFound, err, message)
}

func NewConflictError(err error, message string) *AppError {
	return newAppError(http.StatusConflict, err, message)
}

func NewGoneError(err error, message string) *AppError {
	return newAppError(http.StatusGone, err, message)
}

func NewInternalError(err error, message string) *AppError {
	return newAppError(http.StatusInternalServerError, err, message)
}

// LimitExceededData is attached to limit errors so clients can render
// usage against the ceiling instead of a bare rejection.
type LimitExceededData struct {
	Kind    string `json:"kind"`
	Current int64  `json:"current"`
	Ceiling int64  `json:"ceiling"`
}

func NewLimitExceededError(kind string, current, ceiling int64) *AppError {
	return &AppError{
		StatusCode: http.StatusForbidden,
		Message:    "Plan limit reached",
		Data:       LimitExceededData{Kind: kind, Current: current, Ceiling: ceiling},
	}
}

// RateLimitData carries retry guidance for anonymous-window rejections.
type RateLimitData struct {
	Window     string `json:"window"`
	HourlyUsed int64  `json:"hourly_used"`
	DailyUsed  int64  `json:"daily_used"`
	RetryAfter int64  `json:"retry_after_seconds,omitempty"`
	Guidance   string `json:"guidance,omitempty"`
}

func NewRateLimitError(data RateLimitData, message string) *AppError {
	return &AppError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Data:       data,
	}
}
