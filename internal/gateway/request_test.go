// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package gateway

import "testing"

func TestRequestContextGeneratesIdentifiers(t *testing.T) {
	rc := newRequestContext(&RawRequest{Method: "GET", Path: "/x"})
	if rc.RequestID == "" || rc.TraceID == "" || rc.SpanID == "" {
		t.Errorf("missing identifiers: %+v", rc)
	}
	if rc.ParentSpanID != "" {
		t.Errorf("ParentSpanID = %q, want empty at trace root", rc.ParentSpanID)
	}
	if rc.RequestID == rc.SpanID {
		t.Error("request and span ids should be distinct")
	}
}

func TestRequestContextHonorsCallerHeaders(t *testing.T) {
	rc := newRequestContext(&RawRequest{
		Method: "GET",
		Path:   "/x",
		Headers: map[string]string{
			"x-request-id": "req-123",
			"X-Trace-ID":   "trace-456",
			"X-Span-Id":    "span-789",
		},
	})
	if rc.RequestID != "req-123" {
		t.Errorf("RequestID = %q", rc.RequestID)
	}
	if rc.TraceID != "trace-456" {
		t.Errorf("TraceID = %q", rc.TraceID)
	}
	if rc.ParentSpanID != "span-789" {
		t.Errorf("ParentSpanID = %q", rc.ParentSpanID)
	}
	if rc.SpanID == "" || rc.SpanID == "span-789" {
		t.Errorf("SpanID = %q, want fresh span", rc.SpanID)
	}
}
