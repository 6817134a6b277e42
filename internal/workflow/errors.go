package workflow

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies a workflow failure. The HTTP layer maps codes to status codes.
type Code string

const (
	CodeValidation              Code = "VALIDATION_ERROR"
	CodeNotEligible             Code = "NOT_ELIGIBLE"
	CodeAlreadyPending          Code = "ALREADY_PENDING"
	CodeTokenInvalid            Code = "TOKEN_INVALID"
	CodeTokenExpired            Code = "TOKEN_EXPIRED"
	CodeAlreadyVerified         Code = "ALREADY_VERIFIED"
	CodeOTPExpired              Code = "OTP_EXPIRED"
	CodeOTPMismatch             Code = "OTP_MISMATCH"
	CodeOTPAttemptsExceeded     Code = "OTP_ATTEMPTS_EXCEEDED"
	CodeAlertNotFound           Code = "ALERT_NOT_FOUND"
	CodeAlertAlreadyResolved    Code = "ALERT_ALREADY_RESOLVED"
	CodeAlertAlreadyClaimed     Code = "ALERT_ALREADY_CLAIMED"
	CodeSubjectNotFound         Code = "SUBJECT_NOT_FOUND"
	CodeRequestNotFound         Code = "REQUEST_NOT_FOUND"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeNotificationUnavailable Code = "NOTIFICATION_UNAVAILABLE"
	CodePersistence             Code = "PERSISTENCE_ERROR"
)

// Error is a typed workflow failure. NextEligibleAt and RemainingAttempts are set when they help
// the caller decide whether to retry or wait.
type Error struct {
	Code              Code
	Message           string
	NextEligibleAt    *time.Time
	RemainingAttempts *int
	Err               error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrNotEligible) works regardless of context fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrValidation              = &Error{Code: CodeValidation}
	ErrNotEligible             = &Error{Code: CodeNotEligible}
	ErrAlreadyPending          = &Error{Code: CodeAlreadyPending}
	ErrTokenInvalid            = &Error{Code: CodeTokenInvalid}
	ErrTokenExpired            = &Error{Code: CodeTokenExpired}
	ErrAlreadyVerified         = &Error{Code: CodeAlreadyVerified}
	ErrOTPExpired              = &Error{Code: CodeOTPExpired}
	ErrOTPMismatch             = &Error{Code: CodeOTPMismatch}
	ErrOTPAttemptsExceeded     = &Error{Code: CodeOTPAttemptsExceeded}
	ErrAlertNotFound           = &Error{Code: CodeAlertNotFound}
	ErrAlertAlreadyResolved    = &Error{Code: CodeAlertAlreadyResolved}
	ErrAlertAlreadyClaimed     = &Error{Code: CodeAlertAlreadyClaimed}
	ErrSubjectNotFound         = &Error{Code: CodeSubjectNotFound}
	ErrRequestNotFound         = &Error{Code: CodeRequestNotFound}
	ErrRateLimited             = &Error{Code: CodeRateLimited}
	ErrNotificationUnavailable = &Error{Code: CodeNotificationUnavailable}
)

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func validation(msg string) *Error {
	return newError(CodeValidation, msg)
}

func notEligible(msg string, next *time.Time) *Error {
	return &Error{Code: CodeNotEligible, Message: msg, NextEligibleAt: next}
}

// CodeOf returns the workflow code of err. Any error that is not a workflow error is a persistence failure.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return CodePersistence
}

// AsError returns err as *Error, or nil if it is not a workflow error.
func AsError(err error) *Error {
	var we *Error
	if errors.As(err, &we) {
		return we
	}
	return nil
}
