// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package gateway orchestrates the request pipeline: route resolution,
// schema validation, rate limiting, authentication, authorization,
// response caching, and handler execution with timeout, panic recovery,
// and circuit breaking.
//
// Stages run in a fixed order and fail fast: the first failing stage
// short-circuits the rest and its typed error becomes the response.
// Cheap checks run before expensive ones, so malformed requests never
// consume rate-limit quota lookups against identity backends.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/portcullis/internal/auth"
	"github.com/tomtom215/portcullis/internal/authz"
	"github.com/tomtom215/portcullis/internal/cache"
	"github.com/tomtom215/portcullis/internal/logging"
	"github.com/tomtom215/portcullis/internal/metrics"
	"github.com/tomtom215/portcullis/internal/ratelimit"
	"github.com/tomtom215/portcullis/internal/validation"
)

// DefaultTimeout bounds handler execution for endpoints that do not set
// their own.
const DefaultTimeout = 30 * time.Second

// unmatchedEndpoint is the metrics label for requests that resolve to no
// endpoint, keeping label cardinality bounded.
const unmatchedEndpoint = "unmatched"

// Options configures a Gateway. Zero-value fields get working defaults.
type Options struct {
	// Validator checks request sections; defaults to a fresh one.
	Validator *validation.Validator

	// Limiter tracks rate-limit counters; defaults to a fresh one.
	Limiter *ratelimit.Limiter

	// Authenticator resolves identities. Nil disables credential
	// validation: endpoints declaring auth requirements then reject.
	Authenticator *auth.Authenticator

	// Authorizer evaluates authorization configs; defaults to one with
	// no resolvers.
	Authorizer *authz.Authorizer

	// Cache is the response store; defaults to an in-memory LRU.
	Cache cache.Store

	// Collector accumulates statistics; defaults to a fresh one.
	Collector *metrics.Collector

	// DefaultTimeout overrides the package default handler bound.
	DefaultTimeout time.Duration

	// BreakerThreshold is the consecutive-failure count that opens an
	// endpoint's circuit breaker. Non-positive disables breakers.
	BreakerThreshold uint32

	// BreakerCooldown is how long an open breaker stays open before
	// probing; defaults to 30 seconds.
	BreakerCooldown time.Duration
}

// Gateway routes raw requests through the pipeline to endpoint handlers.
type Gateway struct {
	registry  *Registry
	validator *validation.Validator
	limiter   *ratelimit.Limiter
	auth      *auth.Authenticator
	authz     *authz.Authorizer
	cache     cache.Store
	collector *metrics.Collector

	defaultTimeout   time.Duration
	breakerThreshold uint32
	breakerCooldown  time.Duration

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker[*HandlerResult]
}

// New creates a Gateway with the given options.
func New(opts Options) *Gateway {
	g := &Gateway{
		registry:         NewRegistry(),
		validator:        opts.Validator,
		limiter:          opts.Limiter,
		auth:             opts.Authenticator,
		authz:            opts.Authorizer,
		cache:            opts.Cache,
		collector:        opts.Collector,
		defaultTimeout:   opts.DefaultTimeout,
		breakerThreshold: opts.BreakerThreshold,
		breakerCooldown:  opts.BreakerCooldown,
		breakers:         make(map[string]*gobreaker.CircuitBreaker[*HandlerResult]),
	}
	if g.validator == nil {
		g.validator = validation.New()
	}
	if g.limiter == nil {
		g.limiter = ratelimit.NewLimiter()
	}
	if g.authz == nil {
		g.authz = authz.NewAuthorizer(nil, nil)
	}
	if g.cache == nil {
		g.cache = cache.NewMemoryStore(0)
	}
	if g.collector == nil {
		g.collector = metrics.NewCollector()
	}
	if g.defaultTimeout <= 0 {
		g.defaultTimeout = DefaultTimeout
	}
	if g.breakerCooldown <= 0 {
		g.breakerCooldown = 30 * time.Second
	}
	return g
}

// Register adds an endpoint to the gateway.
func (g *Gateway) Register(def *EndpointDefinition) error {
	return g.registry.Register(def)
}

// Registry exposes the endpoint registry for listing and removal.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Collector exposes the statistics collector for snapshots.
func (g *Gateway) Collector() *metrics.Collector {
	return g.collector
}

// Cache exposes the response store for invalidation.
func (g *Gateway) Cache() cache.Store {
	return g.cache
}

// Process runs one raw request through the full pipeline and always
// returns a response; pipeline failures become typed error responses.
func (g *Gateway) Process(ctx context.Context, raw *RawRequest) *Response {
	start := time.Now()
	reqCtx := newRequestContext(raw)
	ctx = logging.ContextWithRequestID(ctx, reqCtx.RequestID)

	metrics.TrackActiveRequest(true)
	defer metrics.TrackActiveRequest(false)

	def, params := g.registry.Resolve(raw.Method, raw.Path)
	if def == nil {
		metrics.RecordRejection(unmatchedEndpoint, "not_found")
		return g.finish(reqCtx, nil, raw.Method,
			errorResponse(reqCtx, NewNotFoundError(raw.Method, raw.Path), start), start)
	}
	endpoint := def.Key()

	logger := logging.Ctx(ctx)
	logger.Debug().
		Str("endpoint", endpoint).
		Str("client_addr", raw.ClientAddr).
		Msg("Request accepted")

	// Validation runs first so malformed requests are rejected before
	// any quota or identity work.
	body, err := g.validate(def, params, raw)
	if err != nil {
		metrics.RecordRejection(endpoint, "validation")
		return g.finish(reqCtx, def, def.Method, errorResponse(reqCtx, err, start), start)
	}

	if err := g.checkRateLimit(def, raw); err != nil {
		metrics.RecordRejection(endpoint, "rate_limit")
		g.collector.RecordRateLimited(endpoint)
		return g.finish(reqCtx, def, def.Method, errorResponse(reqCtx, err, start), start)
	}

	identity, err := g.authenticate(ctx, def, raw)
	if err != nil {
		if gwErr, ok := err.(*Error); ok && gwErr.Kind == KindAuthentication {
			metrics.RecordRejection(endpoint, "authentication")
		}
		return g.finish(reqCtx, def, def.Method, errorResponse(reqCtx, err, start), start)
	}

	if err := g.authorize(ctx, def, identity.Principal, params); err != nil {
		if gwErr, ok := err.(*Error); ok && gwErr.Kind == KindAuthorization {
			metrics.RecordRejection(endpoint, "authorization")
		}
		return g.finish(reqCtx, def, def.Method, errorResponse(reqCtx, err, start), start)
	}

	// Cache lookup runs after authorization so a cached response is
	// never served to a caller who could not have produced it.
	var cacheKey string
	if def.Cache.Enabled {
		cacheKey = def.Cache.Key(cache.KeyInput{
			Endpoint:    endpoint,
			Query:       raw.Query,
			Params:      params,
			PrincipalID: identity.Principal.ID,
		})
		if entry, ok := g.cache.Get(cacheKey); ok {
			metrics.RecordCache(endpoint, true)
			g.collector.RecordCache(endpoint, true)
			resp := &Response{
				Status:  entry.Status,
				Headers: cloneHeaders(entry.Headers),
				Body:    entry.Body,
				Metadata: Metadata{
					RequestID:        reqCtx.RequestID,
					ProcessingTimeMs: time.Since(start).Milliseconds(),
					Cached:           true,
				},
			}
			return g.finish(reqCtx, def, def.Method, resp, start)
		}
		metrics.RecordCache(endpoint, false)
		g.collector.RecordCache(endpoint, false)
	}

	req := &Request{
		Context:    reqCtx,
		Endpoint:   endpoint,
		Method:     def.Method,
		Path:       raw.Path,
		Params:     params,
		Query:      raw.Query,
		Headers:    raw.Headers,
		Body:       body,
		RawBody:    raw.Body,
		Principal:  identity.Principal,
		Session:    identity.Session,
		AuthMethod: identity.Method,
	}

	result, err := g.execute(ctx, def, req)
	if err != nil {
		return g.finish(reqCtx, def, def.Method, errorResponse(reqCtx, err, start), start)
	}

	resp, err := successResponse(reqCtx, result, start)
	if err != nil {
		return g.finish(reqCtx, def, def.Method, errorResponse(reqCtx, err, start), start)
	}

	if def.Cache.Enabled && resp.Status >= 200 && resp.Status < 300 {
		g.cache.Set(cacheKey, &cache.Entry{
			Status:  resp.Status,
			Body:    resp.Body,
			Headers: resp.Headers,
		}, def.Cache.TTL)
	}

	return g.finish(reqCtx, def, def.Method, resp, start)
}

// validate runs the endpoint's declared schemas and maps the first
// violation to a typed error.
func (g *Gateway) validate(def *EndpointDefinition, params map[string]string, raw *RawRequest) (map[string]interface{}, error) {
	if def.Validation.Empty() {
		return nil, nil
	}
	body, verr := g.validator.Validate(def.Validation, params, raw.Query, raw.Headers, raw.Body)
	if verr != nil {
		return nil, NewValidationError(verr.FieldPath(), verr.Message)
	}
	return body, nil
}

// checkRateLimit runs the endpoint's quota check.
func (g *Gateway) checkRateLimit(def *EndpointDefinition, raw *RawRequest) error {
	if def.RateLimit == nil {
		return nil
	}
	cfg := *def.RateLimit
	key := cfg.Key(ratelimit.KeyInput{ClientAddr: raw.ClientAddr, Headers: raw.Headers})
	decision := g.limiter.Allow(def.Key(), key, cfg)
	if decision.Allowed {
		return nil
	}
	return NewRateLimitError(decision.Limit, decision.Window, decision.RetryAfter)
}

// authenticate resolves the caller's identity per the endpoint's config.
// Endpoints without auth requirements get the anonymous principal.
func (g *Gateway) authenticate(ctx context.Context, def *EndpointDefinition, raw *RawRequest) (*auth.Identity, error) {
	if def.Auth == nil || len(def.Auth.Methods) == 0 {
		return &auth.Identity{Principal: auth.Anonymous()}, nil
	}
	if g.auth == nil {
		return nil, NewInternalError(fmt.Errorf("endpoint %s requires authentication but no authenticator is configured", def.Key()))
	}

	identity, err := g.auth.Authenticate(ctx, raw.Headers, *def.Auth)
	if err != nil {
		var failed *auth.FailedError
		if errors.As(err, &failed) {
			return nil, NewAuthenticationError(failed.MethodNames())
		}
		return nil, NewInternalError(err)
	}
	return identity, nil
}

// authorize evaluates the endpoint's authorization config.
func (g *Gateway) authorize(ctx context.Context, def *EndpointDefinition, principal *auth.Principal, params map[string]string) error {
	if def.Authz.Empty() {
		return nil
	}
	resource := authz.Resource{Endpoint: def.Key(), Params: params}
	err := g.authz.Authorize(ctx, principal, def.Authz, resource)
	if err == nil {
		return nil
	}

	var denied *authz.DeniedError
	if errors.As(err, &denied) {
		msg := fmt.Sprintf("access denied: %s check failed", denied.Check)
		return NewAuthorizationError(msg, denied.Required, denied.Actual)
	}
	return NewInternalError(err)
}

// execute invokes the handler under the endpoint's timeout, with panic
// recovery, optionally behind the endpoint's circuit breaker.
func (g *Gateway) execute(ctx context.Context, def *EndpointDefinition, req *Request) (*HandlerResult, error) {
	run := func() (*HandlerResult, error) {
		return g.invokeWithTimeout(ctx, def, req)
	}

	breaker := g.breaker(def.Key())
	if breaker == nil {
		return run()
	}

	result, err := breaker.Execute(run)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerRejections.WithLabelValues(def.Key()).Inc()
		return nil, NewInternalError(fmt.Errorf("endpoint %s circuit breaker open: %w", def.Key(), err))
	}
	return result, err
}

// invokeWithTimeout runs the handler in its own goroutine and abandons
// it at the deadline. The handler's context is cancelled so cooperative
// handlers stop doing work; the goroutine itself is left to drain.
func (g *Gateway) invokeWithTimeout(ctx context.Context, def *EndpointDefinition, req *Request) (*HandlerResult, error) {
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *HandlerResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.HandlerPanics.WithLabelValues(def.Key()).Inc()
				logger := logging.Ctx(ctx)
				logger.Error().
					Str("endpoint", def.Key()).
					Interface("panic", r).
					Msg("Handler panicked")
				done <- outcome{err: NewInternalError(fmt.Errorf("handler panic: %v", r))}
			}
		}()
		result, err := def.Handler(hctx, req)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if gwErr, ok := out.err.(*Error); ok {
				return nil, gwErr
			}
			return nil, NewInternalError(out.err)
		}
		if out.result == nil {
			return nil, NewInternalError(fmt.Errorf("handler for %s returned no result", def.Key()))
		}
		return out.result, nil
	case <-hctx.Done():
		metrics.HandlerTimeouts.WithLabelValues(def.Key()).Inc()
		return nil, NewTimeoutError(timeout)
	}
}

// breaker lazily creates the per-endpoint circuit breaker, or returns
// nil when breakers are disabled.
func (g *Gateway) breaker(endpoint string) *gobreaker.CircuitBreaker[*HandlerResult] {
	if g.breakerThreshold == 0 {
		return nil
	}

	g.breakerMu.Lock()
	defer g.breakerMu.Unlock()

	if cb, ok := g.breakers[endpoint]; ok {
		return cb
	}

	threshold := g.breakerThreshold
	settings := gobreaker.Settings{
		Name:    endpoint,
		Timeout: g.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logging.Warn().
				Str("endpoint", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}
	cb := gobreaker.NewCircuitBreaker[*HandlerResult](settings)
	g.breakers[endpoint] = cb
	return cb
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// finish records metrics and the access log entry, then returns the
// response unchanged. Every pipeline exit funnels through here so no
// path escapes measurement.
func (g *Gateway) finish(reqCtx RequestContext, def *EndpointDefinition, method string, resp *Response, start time.Time) *Response {
	endpoint := unmatchedEndpoint
	if def != nil {
		endpoint = def.Key()
	}
	duration := time.Since(start)
	if def == nil || !def.Monitoring.Disabled {
		g.collector.Record(endpoint, resp.Status, duration)
	}
	metrics.RecordRequest(method, endpoint, resp.Status, duration)

	evt := logging.Info()
	if resp.Status >= 500 {
		evt = logging.Error()
	} else if resp.Status >= 400 {
		evt = logging.Warn()
	}
	evt.
		Str("request_id", reqCtx.RequestID).
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.Status).
		Dur("duration", duration).
		Bool("cached", resp.Metadata.Cached).
		Msg("Request completed")

	return resp
}
