package model

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeUnavailableModel, false},
		{CodePermissionDenied, false},
		{CodeRateLimited, true},
		{CodeTimeout, true},
		{CodeNetworkError, true},
		{CodeParseError, true},
		{CodeInternalError, false},
	}

	for _, tt := range tests {
		if got := ShouldRetry(tt.code); got != tt.want {
			t.Errorf("ShouldRetry(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

// ShouldRetry must be a pure function of the code: the same input always
// yields the same answer.
func TestShouldRetry_Deterministic(t *testing.T) {
	for _, c := range []Code{CodeRateLimited, CodeInternalError, CodeTimeout} {
		first := ShouldRetry(c)
		for i := 0; i < 10; i++ {
			if ShouldRetry(c) != first {
				t.Fatalf("ShouldRetry(%s) changed between calls", c)
			}
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Code
	}{
		{http.StatusNotFound, CodeUnavailableModel},
		{http.StatusUnauthorized, CodePermissionDenied},
		{http.StatusForbidden, CodePermissionDenied},
		{http.StatusTooManyRequests, CodeRateLimited},
		{http.StatusGatewayTimeout, CodeTimeout},
		{http.StatusServiceUnavailable, CodeNetworkError},
		{http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestClassifyErr(t *testing.T) {
	if got := ClassifyErr(context.DeadlineExceeded); got != CodeTimeout {
		t.Errorf("deadline exceeded: got %s, want %s", got, CodeTimeout)
	}
	if got := ClassifyErr(errors.New("boom")); got != CodeInternalError {
		t.Errorf("plain error: got %s, want %s", got, CodeInternalError)
	}
	if got := ClassifyErr(nil); got != "" {
		t.Errorf("nil error: got %s, want empty code", got)
	}
}
