package errors

import "fmt"

// ErrorType classifies failures across the proxy and platform layers.
type ErrorType string

const (
	// ErrorTypeConfig is a construction-time configuration problem
	// (missing credentials, empty proxy universe). Never retried.
	ErrorTypeConfig ErrorType = "config"

	// ErrorTypeNetwork covers timeouts, connection resets and other
	// transient transport faults on a proxy or platform probe.
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypePoolExhausted means the proxy pool ran out of candidates
	// for the current acquisition attempt. Temporary, not permanent.
	ErrorTypePoolExhausted ErrorType = "pool_exhausted"

	// ErrorTypeGeoMismatch means the active proxy egresses from the
	// wrong country. Triggers rotation, like a transient fault.
	ErrorTypeGeoMismatch ErrorType = "geo_mismatch"

	// ErrorTypeLoginRequired is the platform's session-expired signal.
	// Recoverable via a single full re-login.
	ErrorTypeLoginRequired ErrorType = "login_required"

	// ErrorTypeChallenge is an automation/challenge/feedback signal from
	// the platform. Fatal for the session; retrying makes it worse.
	ErrorTypeChallenge ErrorType = "challenge"

	// ErrorTypeRateLimit is the platform telling us to back off hard.
	// Treated as fatal for the session, same as a challenge.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeServer covers 5xx responses from the platform.
	ErrorTypeServer ErrorType = "server_error"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Error carries the classified type alongside the message so callers can
// branch on category without string matching.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a classified error.
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether an error of this type is worth retrying,
// possibly after rotating the proxy.
func IsRetryable(t ErrorType) bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeGeoMismatch, ErrorTypeServer, ErrorTypePoolExhausted:
		return true
	default:
		return false
	}
}

// IsFatal reports whether an error of this type indicates a platform-side
// flag that must halt the session rather than be retried.
func IsFatal(t ErrorType) bool {
	switch t {
	case ErrorTypeChallenge, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// ClassifyStatusCode maps an HTTP status from the platform onto the taxonomy.
func ClassifyStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == 0:
		return ErrorTypeNetwork
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeLoginRequired
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeUnknown
	}
}
