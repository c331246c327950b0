// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/portcullis/internal/auth"
	"github.com/tomtom215/portcullis/internal/authz"
	"github.com/tomtom215/portcullis/internal/cache"
	"github.com/tomtom215/portcullis/internal/ratelimit"
	"github.com/tomtom215/portcullis/internal/validation"
)

// Handler is the business logic invoked once a request clears the
// pipeline. The context carries the request id and is cancelled at the
// endpoint's timeout.
type Handler func(ctx context.Context, req *Request) (*HandlerResult, error)

// HandlerResult is what a handler produces: a status, a JSON-marshalable
// body, and optional extra headers.
type HandlerResult struct {
	// Status is the response status code; 0 means 200.
	Status int

	// Body is marshaled to JSON for the response envelope.
	Body interface{}

	// Headers are merged into the response headers.
	Headers map[string]string
}

// EndpointDefinition declares one endpoint: its route, its per-stage
// pipeline policies, and its handler. Nil policy sections disable the
// corresponding stage for the endpoint (except Auth, where nil means
// anonymous access).
type EndpointDefinition struct {
	// Method is the uppercase HTTP verb.
	Method string

	// Path is the route pattern. Segments starting with ':' match any
	// single segment and bind the remainder as a path parameter, e.g.
	// "/api/users/:id".
	Path string

	// Description is free-form documentation surfaced by List.
	Description string

	Validation *validation.Config
	RateLimit  *ratelimit.Config
	Auth       *auth.Config
	Authz      *authz.Config
	Cache      cache.Config
	Monitoring MonitoringConfig

	// Timeout bounds handler execution; non-positive means the gateway
	// default applies.
	Timeout time.Duration

	Handler Handler
}

// MonitoringConfig controls per-endpoint statistics collection.
type MonitoringConfig struct {
	// Disabled excludes the endpoint from the collector's per-endpoint
	// snapshots. Prometheus request counters still apply.
	Disabled bool
}

// Key returns the canonical endpoint identity "METHOD:path".
func (d *EndpointDefinition) Key() string {
	return d.Method + ":" + d.Path
}

// normalize uppercases the method and validates the definition shape.
func (d *EndpointDefinition) normalize() error {
	if d == nil {
		return fmt.Errorf("endpoint definition is nil")
	}
	d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
	if d.Method == "" {
		return fmt.Errorf("endpoint method is required")
	}
	if d.Path == "" || !strings.HasPrefix(d.Path, "/") {
		return fmt.Errorf("endpoint path must start with '/': %q", d.Path)
	}
	if d.Handler == nil {
		return fmt.Errorf("endpoint %s has no handler", d.Key())
	}
	return nil
}

// isPattern reports whether the path contains parameter segments.
func (d *EndpointDefinition) isPattern() bool {
	return strings.Contains(d.Path, ":")
}
