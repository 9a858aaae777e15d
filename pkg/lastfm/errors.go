package lastfm

import (
	"errors"
	"fmt"
)

// Result is the outcome of an operation that talks to the remote service.
//
// Every error returned by this package wraps exactly one of ErrAuth or
// ErrOther, so a caller can always collapse it to a Result with ResultOf.
type Result int

const (
	// ResultOK means the service accepted the call.
	ResultOK Result = iota
	// ResultAuthError means there is no valid or obtainable session. The
	// user should be asked to authorize the application again.
	ResultAuthError
	// ResultOtherError covers transport failures and non-ok responses.
	// These are transient from the caller's point of view.
	ResultOtherError
)

// String returns a human-readable representation of the Result
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultAuthError:
		return "auth error"
	case ResultOtherError:
		return "other error"
	default:
		return "unknown"
	}
}

var (
	// ErrAuth is wrapped by every error that should trigger re-authorization.
	ErrAuth = errors.New("lastfm: authentication required")

	// ErrOther is wrapped by every transport or application-level failure.
	ErrOther = errors.New("lastfm: request failed")

	// ErrTimeout is wrapped (together with ErrOther) when the token request
	// does not complete within Config.TokenTimeout.
	ErrTimeout = errors.New("token request timed out")

	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("lastfm: invalid configuration")
)

// ResultOf maps an error returned by this package to its Result.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrAuth):
		return ResultAuthError
	default:
		return ResultOtherError
	}
}

func authError(err error) error {
	return fmt.Errorf("%w: %w", ErrAuth, cause(err))
}

func otherError(err error) error {
	return fmt.Errorf("%w: %w", ErrOther, cause(err))
}

// cause strips a marker added by authError or otherError so that an error
// never carries both sentinels.
func cause(err error) error {
	multi, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err
	}
	errs := multi.Unwrap()
	if len(errs) == 2 && (errs[0] == ErrAuth || errs[0] == ErrOther) {
		return errs[1]
	}
	return err
}

// Error represents a failed response envelope.
//
// It is always wrapped in ErrOther or ErrAuth and can be extracted with
// errors.As to inspect the service error code.
type Error struct {
	Code    int    // Service error code
	Message string // Error message from the service
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("error %d: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Temporary reports whether the service asked the caller to come back later.
// This package never retries on its own; the flag is a hint for callers that
// keep their own retry queue.
func (e *Error) Temporary() bool {
	switch e.Code {
	case ErrCodeServiceOffline, ErrCodeTempUnavailable, ErrCodeRateLimitExceeded:
		return true
	default:
		return false
	}
}

// Service error codes shared by Last.fm and Libre.fm.
const (
	ErrCodeInvalidService       = 2
	ErrCodeInvalidMethod        = 3
	ErrCodeAuthenticationFailed = 4
	ErrCodeInvalidFormat        = 5
	ErrCodeInvalidParameters    = 6
	ErrCodeInvalidResourceSpec  = 7
	ErrCodeOperationFailed      = 8
	ErrCodeInvalidSessionKey    = 9
	ErrCodeInvalidAPIKey        = 10
	ErrCodeServiceOffline       = 11
	ErrCodeSubscribersOnly      = 12
	ErrCodeInvalidSignature     = 13
	ErrCodeUnauthorizedToken    = 14
	ErrCodeExpiredToken         = 15
	ErrCodeTempUnavailable      = 16
	ErrCodeRateLimitExceeded    = 29
)
