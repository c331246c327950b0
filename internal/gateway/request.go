// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package gateway

import (
	"strings"
	"time"

	"github.com/tomtom215/portcullis/internal/auth"
	"github.com/tomtom215/portcullis/internal/logging"
)

// RawRequest is the transport-neutral request handed to the gateway.
// The HTTP layer builds one from each incoming http.Request; tests build
// them directly.
type RawRequest struct {
	// Method is the HTTP verb; matched case-insensitively.
	Method string

	// Path is the request path, already stripped of query string.
	Path string

	Query   map[string]string
	Headers map[string]string

	// Body is the raw payload; parsed only when the matched endpoint
	// declares a body schema.
	Body []byte

	// ClientAddr is the caller's network address, used for rate-limit
	// key derivation.
	ClientAddr string

	UserAgent string
}

// RequestContext carries per-request tracking data assigned at intake.
type RequestContext struct {
	// RequestID uniquely identifies the request; generated at intake
	// unless the caller supplied one.
	RequestID string `json:"request_id"`

	// Timestamp is when the gateway accepted the request.
	Timestamp time.Time `json:"timestamp"`

	ClientAddr string `json:"client_addr,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`

	// TraceID correlates this request across services; honored from the
	// X-Trace-ID header, generated otherwise.
	TraceID string `json:"trace_id"`

	// SpanID identifies this gateway's unit of work within the trace.
	SpanID string `json:"span_id"`

	// ParentSpanID is the caller's span, empty at the trace root.
	ParentSpanID string `json:"parent_span_id,omitempty"`
}

// newRequestContext assigns tracking data for one raw request.
// X-Request-ID and X-Trace-ID headers provided by the caller are honored
// for cross-system correlation; the caller's X-Span-ID becomes this
// request's parent span.
func newRequestContext(raw *RawRequest) RequestContext {
	id := headerLookup(raw.Headers, "X-Request-ID")
	if id == "" {
		id = logging.GenerateRequestID()
	}
	traceID := headerLookup(raw.Headers, "X-Trace-ID")
	if traceID == "" {
		traceID = logging.GenerateRequestID()
	}
	return RequestContext{
		RequestID:    id,
		Timestamp:    time.Now(),
		ClientAddr:   raw.ClientAddr,
		UserAgent:    raw.UserAgent,
		TraceID:      traceID,
		SpanID:       logging.GenerateRequestID(),
		ParentSpanID: headerLookup(raw.Headers, "X-Span-ID"),
	}
}

// headerLookup finds a header value case-insensitively; raw request
// header maps are not canonicalized.
func headerLookup(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Request is the validated, authenticated request a handler receives.
type Request struct {
	// Context is the tracking data assigned at intake.
	Context RequestContext

	// Endpoint is the canonical key of the matched endpoint.
	Endpoint string

	Method string
	Path   string

	// Params are the path parameters bound by route matching.
	Params map[string]string

	Query   map[string]string
	Headers map[string]string

	// Body is the parsed JSON payload, nil when the endpoint declares
	// no body schema.
	Body map[string]interface{}

	// RawBody is the unparsed payload.
	RawBody []byte

	// Principal is the authenticated caller; the anonymous principal
	// for endpoints without credential requirements.
	Principal *auth.Principal

	// Session is non-nil only for session-authenticated requests.
	Session *auth.Session

	// AuthMethod is the credential method that authenticated the
	// request, empty for anonymous.
	AuthMethod auth.Method
}
