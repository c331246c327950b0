// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package auth

import "strings"

// Method identifies a supported credential form.
type Method string

const (
	// MethodBearer is a bearer token in the Authorization header.
	MethodBearer Method = "bearer"

	// MethodSession is a session identifier in a cookie or header.
	MethodSession Method = "session"

	// MethodAPIKey is an API key in the X-API-Key header.
	MethodAPIKey Method = "api_key"
)

// Credential is a raw credential lifted from a request, before validation.
type Credential struct {
	Method Method
	Value  string
}

// Extractor lifts one credential form out of request headers.
// Extractors report presence only; validation is the identity
// collaborator's job.
type Extractor interface {
	// Method returns the credential method this extractor handles.
	Method() Method

	// Extract returns the raw credential value and whether it was present.
	Extract(headers map[string]string) (string, bool)
}

// headerValue performs a case-insensitive header lookup.
func headerValue(headers map[string]string, name string) string {
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

// BearerExtractor lifts a token from "Authorization: Bearer <token>".
type BearerExtractor struct{}

// Method implements Extractor.
func (BearerExtractor) Method() Method { return MethodBearer }

// Extract implements Extractor.
func (BearerExtractor) Extract(headers map[string]string) (string, bool) {
	authHeader := headerValue(headers, "Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// SessionExtractor lifts a session id from the session_id cookie or the
// X-Session-ID header. The cookie wins when both are present.
type SessionExtractor struct {
	// CookieName overrides the default "session_id" cookie name.
	CookieName string
}

// Method implements Extractor.
func (SessionExtractor) Method() Method { return MethodSession }

// Extract implements Extractor.
func (e SessionExtractor) Extract(headers map[string]string) (string, bool) {
	name := e.CookieName
	if name == "" {
		name = "session_id"
	}

	if cookie := headerValue(headers, "Cookie"); cookie != "" {
		for _, part := range strings.Split(cookie, ";") {
			kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
			if len(kv) == 2 && kv[0] == name && kv[1] != "" {
				return kv[1], true
			}
		}
	}

	if v := headerValue(headers, "X-Session-ID"); v != "" {
		return v, true
	}
	return "", false
}

// APIKeyExtractor lifts an API key from the X-API-Key header.
type APIKeyExtractor struct{}

// Method implements Extractor.
func (APIKeyExtractor) Method() Method { return MethodAPIKey }

// Extract implements Extractor.
func (APIKeyExtractor) Extract(headers map[string]string) (string, bool) {
	if v := headerValue(headers, "X-API-Key"); v != "" {
		return v, true
	}
	return "", false
}

// defaultExtractors returns the standard extractor per credential method.
func defaultExtractors() map[Method]Extractor {
	return map[Method]Extractor{
		MethodBearer:  BearerExtractor{},
		MethodSession: SessionExtractor{},
		MethodAPIKey:  APIKeyExtractor{},
	}
}
