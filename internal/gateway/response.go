// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package gateway

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Metadata is attached to every response for client-side observability.
type Metadata struct {
	RequestID        string `json:"requestId"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	Cached           bool   `json:"cached"`
}

// Response is the gateway's uniform reply: status, headers, the handler
// (or error) body, and metadata. Body is pre-marshaled JSON so cached
// responses are served without re-encoding.
type Response struct {
	Status   int
	Headers  map[string]string
	Body     json.RawMessage
	Metadata Metadata
}

// Envelope is the wire shape of a response body: exactly one of Data or
// Error is set.
type Envelope struct {
	Data     json.RawMessage `json:"data,omitempty"`
	Error    *Error          `json:"error,omitempty"`
	Metadata Metadata        `json:"metadata"`
}

// Envelope returns the response wrapped in the wire envelope.
func (r *Response) Envelope() Envelope {
	env := Envelope{Metadata: r.Metadata}
	if r.Status >= 400 {
		var gwErr Error
		if err := json.Unmarshal(r.Body, &gwErr); err == nil && gwErr.Code != "" {
			env.Error = &gwErr
			return env
		}
	}
	env.Data = r.Body
	return env
}

// successResponse builds a Response from a handler result.
func successResponse(ctx RequestContext, result *HandlerResult, start time.Time) (*Response, error) {
	status := result.Status
	if status == 0 {
		status = 200
	}

	body, err := json.Marshal(result.Body)
	if err != nil {
		return nil, NewInternalError(err)
	}

	return &Response{
		Status:  status,
		Headers: cloneHeaders(result.Headers),
		Body:    body,
		Metadata: Metadata{
			RequestID:        ctx.RequestID,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}, nil
}

// errorResponse builds a Response from a pipeline error. Non-gateway
// errors are wrapped as internal so no raw error text leaks to clients.
func errorResponse(ctx RequestContext, err error, start time.Time) *Response {
	gwErr, ok := err.(*Error)
	if !ok {
		gwErr = NewInternalError(err)
	}
	gwErr = gwErr.WithRequestID(ctx.RequestID)

	body, merr := json.Marshal(gwErr)
	if merr != nil {
		body = []byte(`{"code":"INTERNAL_ERROR","message":"request processing failed"}`)
	}

	headers := map[string]string{}
	if retry := gwErr.RetryAfter(); retry > 0 {
		secs := int64(retry.Seconds())
		if secs < 1 {
			secs = 1
		}
		headers["Retry-After"] = strconv.FormatInt(secs, 10)
	}

	return &Response{
		Status:  gwErr.Status(),
		Headers: headers,
		Body:    body,
		Metadata: Metadata{
			RequestID:        ctx.RequestID,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
