package pvoutput

import "strings"

// PostError is the closed taxonomy of remote error modes.
type PostError int

const (
	ErrNone PostError = iota
	ErrDateTooOld
	ErrDateInFuture
	ErrRateLimit
	ErrMoonPowered
	ErrNoStatus
	ErrUnmapped
)

func (e PostError) String() string {
	switch e {
	case ErrNone:
		return "NONE"
	case ErrDateTooOld:
		return "DATE_TOO_OLD"
	case ErrDateInFuture:
		return "DATE_IN_FUTURE"
	case ErrRateLimit:
		return "RATE_LIMIT"
	case ErrMoonPowered:
		return "MOON_POWERED"
	case ErrNoStatus:
		return "NO_STATUS"
	default:
		return "UNMAPPED_ERROR"
	}
}

// Classify maps an HTTP status and response body to a remote error mode by
// substring match on the remote's documented phrases.
func Classify(status int, body string) PostError {
	switch {
	case status >= 200 && status < 300:
		return ErrNone
	case status == 400 && strings.Contains(body, "Date is older than"):
		return ErrDateTooOld
	case status == 400 && (strings.Contains(body, "Date is in the future") ||
		strings.Contains(body, "Invalid future date")):
		return ErrDateInFuture
	case status == 400 && strings.Contains(body, "Moon powered"):
		return ErrMoonPowered
	case status == 400 && strings.Contains(body, "No status found"):
		return ErrNoStatus
	case status == 403 && strings.Contains(body, "Exceeded 60 requests per hour"):
		return ErrRateLimit
	default:
		return ErrUnmapped
	}
}

// Skippable reports whether a post that failed with this error should be
// treated as if it succeeded (the data can never be accepted).
func (e PostError) Skippable() bool {
	return e == ErrDateTooOld || e == ErrMoonPowered
}

// UnlimitedRetry reports whether this error class ignores the configured
// retry budget.
func (e PostError) UnlimitedRetry() bool {
	return e == ErrDateInFuture || e == ErrRateLimit
}
