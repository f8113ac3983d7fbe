package vizql

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownDataSource reports a data source LUID the upstream does not
// recognize. Never retried.
var ErrUnknownDataSource = errors.New("unknown data source")

// ErrUpstreamUnavailable reports that the upstream could not be reached at
// all (network failure or failed credential exchange).
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// UpstreamError carries the last raw upstream failure for diagnosis.
// Transient failures (timeouts, rate limiting, 5xx) are retried up to the
// configured attempt count before one of these is surfaced; permanent
// failures surface immediately.
type UpstreamError struct {
	Status    int
	Body      string
	Transient bool
}

func (e *UpstreamError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("upstream error (%s, status %d): %s", kind, e.Status, e.Body)
}

// MalformedResponseError reports an upstream response that could not be
// mapped onto the requested fields. Fatal for the execution, not retried.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed upstream response: " + e.Reason
}

// isTransient reports whether err is worth retrying: upstream errors
// flagged transient, plus raw transport errors (connection resets,
// timeouts). Cancellation, malformed responses and permanent upstream
// errors are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	var me *MalformedResponseError
	if errors.As(err, &me) {
		return false
	}
	if errors.Is(err, ErrUnknownDataSource) {
		return false
	}
	if errors.Is(err, errAuth) {
		return false
	}
	return true
}

// errAuth marks credential-exchange failures so the retry policy does not
// hammer the sign-in endpoint with a broken secret.
var errAuth = errors.New("authentication failed")
