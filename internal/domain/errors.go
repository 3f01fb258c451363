package domain

import (
	"errors"
	"fmt"
	"strings"
)

// AppError is the base domain error type.
type AppError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Redirect Route  `json:"redirect,omitempty"`
	Status   int    `json:"-"`
	Cause    error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Error codes.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeAlreadyAuthenticated  = "ALREADY_AUTHENTICATED"
	CodeNotFound              = "NOT_FOUND"
	CodeProfileNotFound       = "PROFILE_NOT_FOUND"
	CodeConflict              = "CONFLICT"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeBackend               = "BACKEND_ERROR"
	CodeServer                = "SERVER_ERROR"
	CodeNetwork               = "NETWORK_ERROR"
	CodeStore                 = "STORE_ERROR"
	CodeSubmissionNotRecorded = "SUBMISSION_NOT_RECORDED"
	CodeRateLimited           = "RATE_LIMITED"
	CodeAccountLocked         = "ACCOUNT_LOCKED"
	CodeInternal              = "INTERNAL_ERROR"
)

// Standard domain error constructors.

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthenticated(msg string) *AppError {
	return &AppError{Code: CodeUnauthenticated, Message: msg, Status: 401, Redirect: RouteSignIn}
}

// ErrUnauthorized is returned when a session exists but its role is insufficient.
func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 403, Redirect: RouteHome}
}

func ErrAlreadyAuthenticated() *AppError {
	return &AppError{Code: CodeAlreadyAuthenticated, Message: "already signed in", Status: 409, Redirect: RouteHome}
}

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

// ErrProfileNotFound reports an authenticated uid without a profile document.
// It is never treated as role user.
func ErrProfileNotFound(uid string) *AppError {
	return &AppError{
		Code:     CodeProfileNotFound,
		Message:  "User profile not found.",
		Status:   401,
		Redirect: RouteSignIn,
		Cause:    fmt.Errorf("no profile for uid %s", uid),
	}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrInvalidTransition(activityID string, from, to ActivityStatus) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("activity %s is %s, cannot become %s", activityID, from, to),
		Status:  409,
	}
}

// ErrBackend wraps a 4xx answer from the processing backend; msg is passed through.
func ErrBackend(msg string) *AppError {
	if msg == "" {
		msg = "Invalid request. Please check your inputs."
	}
	return &AppError{Code: CodeBackend, Message: msg, Status: 422}
}

// ErrServer wraps a 5xx answer from the processing backend.
func ErrServer(msg string) *AppError {
	if msg == "" {
		msg = "Server error. Please try again later."
	}
	return &AppError{Code: CodeServer, Message: msg, Status: 502}
}

// ErrNetwork is returned when the processing backend gave no response.
func ErrNetwork(cause error) *AppError {
	msg := "Network error"
	if cause != nil {
		msg = "Network error: " + cause.Error()
	}
	return &AppError{Code: CodeNetwork, Message: msg, Status: 504, Cause: cause}
}

func ErrStore(op string, cause error) *AppError {
	return &AppError{Code: CodeStore, Message: op + " failed", Status: 500, Cause: cause}
}

// ErrSubmissionNotRecorded reports that the backend processed the bundle but
// the activity could not be persisted.
func ErrSubmissionNotRecorded(activityID string, cause error) *AppError {
	return &AppError{
		Code:    CodeSubmissionNotRecorded,
		Message: fmt.Sprintf("videos were processed but activity %s could not be saved; please resubmit", activityID),
		Status:  500,
		Cause:   cause,
	}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrAccountLocked(msg string) *AppError {
	return &AppError{Code: CodeAccountLocked, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// ErrValidationFields builds a validation error naming every offending field.
func ErrValidationFields(problems map[string]string) *AppError {
	keys := sortedKeys(problems)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+problems[k])
	}
	return ErrValidation(strings.Join(parts, "; "))
}

// CodeOf returns the AppError code carried by err, or "" when err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
