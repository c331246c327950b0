// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package server exposes the gateway over HTTP using chi.
//
// The chi layer stays thin: a transport-level rate limit and CORS guard
// the listener, the /metrics and /portcullis/* operational endpoints are
// served directly, and every other request is handed to the gateway
// pipeline, which owns routing, validation, and policy.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/portcullis/internal/gateway"
	"github.com/tomtom215/portcullis/internal/logging"
)

// Config declares the HTTP listener settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// AllowedOrigins configures CORS; empty disables cross-origin access.
	AllowedOrigins []string

	// TransportRateLimit caps requests per client IP per minute at the
	// listener, before the gateway's per-endpoint policies. Non-positive
	// disables it.
	TransportRateLimit int

	// ShutdownTimeout bounds graceful shutdown; defaults to 10 seconds.
	ShutdownTimeout time.Duration
}

// Server serves the gateway over HTTP. It implements suture.Service via
// Serve and runs under the application supervisor.
type Server struct {
	cfg     Config
	gw      *gateway.Gateway
	httpSrv *http.Server
}

// New creates a Server for the given gateway.
func New(cfg Config, gw *gateway.Gateway) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{cfg: cfg, gw: gw}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the HTTP handler: operational endpoints plus the
// gateway bridge.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "X-Session-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.cfg.TransportRateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.TransportRateLimit, time.Minute))
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/portcullis/endpoints", s.handleEndpoints)
	r.Get("/portcullis/stats", s.handleStats)

	// Everything else belongs to the gateway pipeline.
	r.NotFound(s.handleGateway)
	r.MethodNotAllowed(s.handleGateway)

	return r
}

// handleGateway bridges an HTTP request into the pipeline.
func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	raw, err := toRawRequest(r)
	if err != nil {
		var gwErr *gateway.Error
		if !errors.As(err, &gwErr) {
			gwErr = gateway.NewInternalError(err)
		}
		resp := &gateway.Response{Status: gwErr.Status()}
		writeErrorDirect(w, gwErr, resp.Status)
		return
	}

	writeResponse(w, s.gw.Process(r.Context(), raw))
}

// handleEndpoints lists the registered endpoint definitions.
func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	type endpointInfo struct {
		Method      string `json:"method"`
		Path        string `json:"path"`
		Description string `json:"description,omitempty"`
		Cached      bool   `json:"cached"`
		RateLimited bool   `json:"rate_limited"`
		AuthRequired bool  `json:"auth_required"`
	}

	defs := s.gw.Registry().List()
	out := make([]endpointInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, endpointInfo{
			Method:       def.Method,
			Path:         def.Path,
			Description:  def.Description,
			Cached:       def.Cache.Enabled,
			RateLimited:  def.RateLimit != nil,
			AuthRequired: def.Auth != nil && len(def.Auth.Methods) > 0,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStats returns the collector's per-endpoint snapshots.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gw.Collector().SnapshotAll())
}

// Serve implements suture.Service: it runs the listener until the
// context is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String names the service for supervisor logs.
func (s *Server) String() string {
	return "http-server"
}
