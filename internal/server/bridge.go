// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package server

import (
	"io"
	"net"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/portcullis/internal/gateway"
	"github.com/tomtom215/portcullis/internal/logging"
)

// maxBodyBytes caps request payloads the bridge will read.
const maxBodyBytes = 4 << 20

// toRawRequest translates an http.Request into the gateway's
// transport-neutral form. Multi-valued query params and headers collapse
// to their first value.
func toRawRequest(r *http.Request) (*gateway.RawRequest, error) {
	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	headers := make(map[string]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	if cookie := r.Header.Get("Cookie"); cookie != "" {
		headers["Cookie"] = cookie
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return nil, err
		}
		if len(body) > maxBodyBytes {
			return nil, errBodyTooLarge
		}
	}

	clientAddr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(clientAddr); err == nil {
		clientAddr = host
	}

	return &gateway.RawRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      query,
		Headers:    headers,
		Body:       body,
		ClientAddr: clientAddr,
		UserAgent:  r.UserAgent(),
	}, nil
}

var errBodyTooLarge = &gateway.Error{
	Kind:    gateway.KindValidation,
	Code:    gateway.CodeValidationFailed,
	Message: "request body exceeds the maximum allowed size",
	Field:   "body",
}

// writeResponse serializes a gateway response onto the wire in the
// envelope format.
func writeResponse(w http.ResponseWriter, resp *gateway.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", resp.Metadata.RequestID)
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.Status)

	if err := json.NewEncoder(w).Encode(resp.Envelope()); err != nil {
		logging.Error().Err(err).
			Str("request_id", resp.Metadata.RequestID).
			Msg("Failed to write response body")
	}
}

// writeErrorDirect writes a typed error that arose before the pipeline
// could run (e.g. an unreadable body).
func writeErrorDirect(w http.ResponseWriter, gwErr *gateway.Error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(gateway.Envelope{Error: gwErr}); err != nil {
		logging.Error().Err(err).Msg("Failed to write error body")
	}
}

// writeJSON writes an operational-endpoint payload.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to write response body")
	}
}
