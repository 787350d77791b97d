package model

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Code classifies a failure. Every error leaving the prober or the
// dispatcher is mapped into this closed taxonomy.
type Code string

const (
	// CodeUnavailableModel means the model does not exist at the backend.
	CodeUnavailableModel Code = "unavailable_model"
	// CodePermissionDenied means credentials are missing or rejected.
	CodePermissionDenied Code = "permission_denied"
	// CodeRateLimited means the backend throttled the call.
	CodeRateLimited Code = "rate_limited"
	// CodeTimeout means the call exceeded its deadline.
	CodeTimeout Code = "timeout"
	// CodeNetworkError means the backend could not be reached.
	CodeNetworkError Code = "network_error"
	// CodeParseError means the backend answered but the response body was
	// malformed (e.g. judge output that is not valid JSON).
	CodeParseError Code = "parse_error"
	// CodeInternalError is the unclassified remainder.
	CodeInternalError Code = "internal_error"
)

// ShouldRetry reports whether a failure with this code may succeed on retry.
// It is a pure function of the code.
func ShouldRetry(c Code) bool {
	switch c {
	case CodeRateLimited, CodeTimeout, CodeNetworkError, CodeParseError:
		return true
	default:
		return false
	}
}

// ClassifyStatus maps an HTTP status code into the taxonomy.
func ClassifyStatus(status int) Code {
	switch {
	case status == http.StatusNotFound:
		return CodeUnavailableModel
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return CodePermissionDenied
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return CodeNetworkError
	default:
		return CodeInternalError
	}
}

// ClassifyErr maps a transport-level error into the taxonomy. Adapters that
// can extract an HTTP status use ClassifyStatus instead.
func ClassifyErr(err error) Code {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetworkError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CodeNetworkError
	}
	return CodeInternalError
}
