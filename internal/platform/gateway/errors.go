package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"portal/internal/platform/metrics"
)

// StatusConnectionFailed is the sentinel status for "the gateway host is
// unreachable" (dial failure, timeout). It is never a real HTTP status.
const StatusConnectionFailed = 0

// APIError is the classified failure every gateway call produces on a
// non-success outcome. StatusCode is the upstream HTTP status, or
// StatusConnectionFailed when no response was received. Fields carries
// per-field validation details when the gateway supplies them.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]interface{}
}

func (e *APIError) Error() string {
	if e.StatusCode == StatusConnectionFailed {
		return fmt.Sprintf("gateway unreachable: %s", e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

func connectionError(err error) *APIError {
	metrics.GatewayConnectionFailures.Inc()
	return &APIError{StatusCode: StatusConnectionFailed, Message: err.Error()}
}

func IsConnectionError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == StatusConnectionFailed
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// StatusOf returns the classified status of err, or 500 when err is not a
// gateway error.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return http.StatusInternalServerError
}
