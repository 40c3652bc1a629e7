package models

import "fmt"

// AppError is a structured application error with HTTP status code.
// Two AppErrors match under errors.Is when their codes are equal, so the
// kind sentinels below can be used to classify any wrapped AppError.
type AppError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

const (
	CodeValidation  = "VALIDATION"
	CodePersistence = "PERSISTENCE"
	CodeCacheBusy   = "CACHE_BUSY"
	CodeNetworkPush = "NETWORK_PUSH"
)

// Error kinds, for use with errors.Is.
var (
	ErrValidation  = &AppError{Code: CodeValidation, Message: "invalid value", Status: 400}
	ErrPersistence = &AppError{Code: CodePersistence, Message: "settings could not be saved", Status: 500}
	ErrCacheBusy   = &AppError{Code: CodeCacheBusy, Message: "cache is busy", Status: 409}
	ErrNetworkPush = &AppError{Code: CodeNetworkPush, Message: "push to server failed", Status: 502}
)

// Error constructors.
var (
	ErrNotFound = func(msg string) *AppError {
		return &AppError{Code: "NOT_FOUND", Message: msg, Status: 404}
	}
	ErrBadRequest = func(msg string) *AppError {
		return &AppError{Code: "BAD_REQUEST", Message: msg, Status: 400}
	}
	ErrInternal = func(msg string) *AppError {
		return &AppError{Code: "INTERNAL", Message: msg, Status: 500}
	}
	ErrUnauthorized = func(msg string) *AppError {
		return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
	}
)

// NewValidationError reports an input that could not be corrected silently.
func NewValidationError(field, msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Field: field, Status: 400}
}

// NewPersistenceError wraps a failed settings write.
func NewPersistenceError(path string, err error) *AppError {
	return &AppError{
		Code:    CodePersistence,
		Message: fmt.Sprintf("saving settings to %s", path),
		Status:  500,
		Err:     err,
	}
}

// NewCacheBusyError reports a cache mutation rejected because another
// mutation or a read is in progress.
func NewCacheBusyError(msg string) *AppError {
	return &AppError{Code: CodeCacheBusy, Message: msg, Status: 409}
}

// NewNetworkPushError wraps a failed propagation to the server.
func NewNetworkPushError(err error) *AppError {
	return &AppError{Code: CodeNetworkPush, Message: "push to server failed", Status: 502, Err: err}
}
