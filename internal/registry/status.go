package registry

import (
	"fmt"
	"net/http"
)

// StatusDecisionError wraps a non-OK HTTP response with the Decision
// decideStatus classified it as, so a caller several layers up (multi-index
// search) can distinguish "this index doesn't have the project" from "this
// index is broken in a way no other index's response can paper over"
// instead of pattern-matching an opaque error string. errors.As unwraps
// through both the retry loop's retryableError and get()'s final %w wrap to
// reach this.
type StatusDecisionError struct {
	Decision   Decision
	StatusCode int
	URL        string
}

func (e *StatusDecisionError) Error() string {
	return fmt.Sprintf("status %d from %s (%s)", e.StatusCode, e.URL, e.Decision)
}

// String names a Decision for error messages and logging.
func (d Decision) String() string {
	switch d {
	case DecisionOK:
		return "ok"
	case DecisionNotFound:
		return "not found"
	case DecisionRetryable:
		return "retryable"
	case DecisionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// decideStatus maps an HTTP status code to a Decision, given the
// originating index's capabilities. Grounded on uv's
// SimpleMetadataSearchOutcome/IndexStatusCodeDecision: most indexes follow
// the letter of the Simple API (200 ok, 404 not found, everything else an
// error), but some private indexes answer with 403 when a project simply
// doesn't exist rather than leaking its absence via 404.
func decideStatus(status int, caps IndexCapabilities) Decision {
	switch {
	case status == http.StatusOK:
		return DecisionOK
	case status == http.StatusNotFound:
		return DecisionNotFound
	case status == http.StatusForbidden && caps.TreatForbiddenAsNotFound:
		return DecisionNotFound
	case status == http.StatusTooManyRequests:
		return DecisionRetryable
	case status >= http.StatusInternalServerError:
		return DecisionRetryable
	default:
		return DecisionFatal
	}
}
