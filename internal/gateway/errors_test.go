// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package gateway

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
		code   string
	}{
		{"validation", NewValidationError("query.limit", "limit must be at most 100"), 400, CodeValidationFailed},
		{"authentication", NewAuthenticationError([]string{"bearer"}), 401, CodeUnauthorized},
		{"authorization", NewAuthorizationError("denied", []string{"admin"}, nil), 403, CodeForbidden},
		{"not found", NewNotFoundError("GET", "/x"), 404, CodeNotFound},
		{"rate limit", NewRateLimitError(10, time.Minute, time.Second), 429, CodeTooManyRequests},
		{"timeout", NewTimeoutError(time.Second), 504, CodeTimeout},
		{"internal", NewInternalError(errors.New("db down")), 500, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Status(); got != tt.status {
				t.Errorf("Status = %d, want %d", got, tt.status)
			}
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
		})
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused to 10.1.2.3")
	err := NewInternalError(cause).WithRequestID("req-1")

	data, merr := json.Marshal(err)
	if merr != nil {
		t.Fatal(merr)
	}
	if strings.Contains(string(data), "10.1.2.3") {
		t.Errorf("serialized error leaks cause: %s", data)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should unwrap for server-side inspection")
	}
}

func TestRateLimitErrorRetryAfter(t *testing.T) {
	err := NewRateLimitError(5, time.Minute, 1500*time.Millisecond)
	if got := err.RetryAfter(); got != 1500*time.Millisecond {
		t.Errorf("RetryAfter = %v", got)
	}
	if err.WindowMs != 60000 {
		t.Errorf("WindowMs = %d", err.WindowMs)
	}
}
