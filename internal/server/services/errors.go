package services

import (
	"errors"
	"net/http"
)

// Kind classifies an engine failure.
type Kind int

const (
	KindInternal Kind = iota
	KindMissingData
	KindPolicyViolation
	KindUnauthorized
	KindBadRequest
	KindConflict
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindMissingData:
		return "missing_data"
	case KindPolicyViolation:
		return "policy_violation"
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is the only error type returned by AuthService. Message is safe to
// show to clients; the cause is kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// Status is the HTTP status for the kind. Missing data, policy violations
// and unknown users answer 417 for compatibility with existing clients.
func (e *Error) Status() int {
	switch e.Kind {
	case KindMissingData, KindPolicyViolation, KindNotFound:
		return http.StatusExpectationFailed
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

const internalMessage = "unexpected error"

// Messages shared by several operations.
const (
	msgMissingData        = "missing data"
	msgInvalidCredentials = "invalid credentials"
	msgUserNotActive      = "user is not active"
	msgUserExists         = "user already exists"
	msgUserNotFound       = "user not found"
	msgTokenExpired       = "token expired"
	msgInvalidSignature   = "invalid signature"
	msgMalformedToken     = "malformed token"
	msgInvalidPurpose     = "invalid token purpose"
	msgTokenAlreadyUsed   = "token already used"
	msgTooManyRequests    = "too many requests"
	msgPasswordTooLong    = "password too long"
	msgEmailTooLong       = "email too long"
)

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func internalError(cause error) *Error {
	return &Error{Kind: KindInternal, Message: internalMessage, cause: cause}
}

// AsError returns err as *Error, wrapping anything else as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(err)
}
