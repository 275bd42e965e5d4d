package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes shared by the server and the chat client.
const (
	CodeNotAuthenticated   = "NOT_AUTHENTICATED"
	CodeChatNotFound       = "CHAT_NOT_FOUND"
	CodeCompletionFailed   = "COMPLETION_FAILED"
	CodePersistenceFailed  = "PERSISTENCE_FAILED"
	CodeSubmissionInFlight = "SUBMISSION_IN_FLIGHT"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeEmptyPrompt        = "EMPTY_PROMPT"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	// Err is the underlying cause, never serialized
	Err error `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so sentinel AppErrors work with errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Wrap attaches a cause to the error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(code string, message string) *AppError {
	return NewError(http.StatusUnauthorized, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(code string, message string) *AppError {
	return NewError(http.StatusConflict, code, message)
}

// NewTooManyRequestsError creates a 429 Too Many Requests error
func NewTooManyRequestsError(code string, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// NewBadGatewayError creates a 502 Bad Gateway error
func NewBadGatewayError(code string, message string) *AppError {
	return NewError(http.StatusBadGateway, code, message)
}

// NotAuthenticated is returned when no valid user session is present.
func NotAuthenticated() *AppError {
	return NewUnauthorizedError(CodeNotAuthenticated, "User not authenticated")
}

// ChatNotFound covers both a missing chat and a chat owned by someone else.
func ChatNotFound() *AppError {
	return NewNotFoundError(CodeChatNotFound, "Chat not found or not authorized")
}

// CompletionFailed is the single user-facing failure for any gateway error.
func CompletionFailed(cause error) *AppError {
	return NewBadGatewayError(CodeCompletionFailed, "Failed to get a reply, please try again").Wrap(cause)
}

// PersistenceFailed reports a store write error.
func PersistenceFailed(cause error) *AppError {
	return NewInternalServerError(CodePersistenceFailed, "Failed to save the conversation").Wrap(cause)
}

// SubmissionInFlight rejects a second prompt while one is pending on the same chat.
func SubmissionInFlight() *AppError {
	return NewConflictError(CodeSubmissionInFlight, "Wait for the previous prompt response")
}

// AsAppError unwraps err looking for an *AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code anywhere in its chain
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
