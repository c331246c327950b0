// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package main is the entry point for the Portcullis gateway server.
//
// Portcullis is a request-processing gateway: registered endpoints are
// served through a fixed pipeline of validation, rate limiting,
// authentication, authorization, response caching, and metrics
// collection, with per-endpoint circuit breakers around the handlers.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layers (defaults, YAML file, environment)
//  2. Logging: zerolog, json or console per config
//  3. Response cache: in-memory LRU or BadgerDB per config
//  4. Identity: JWT, session, and API-key validators
//  5. Authorization: Casbin RBAC with permission expansion
//  6. Gateway: pipeline assembly and endpoint registration
//  7. Supervisor: cache janitor, limiter sweeper, metrics emitter, and
//     the HTTP server under a suture root
//
// # Configuration
//
// Environment variables use the PORTCULLIS_ prefix and override the
// optional config file (PORTCULLIS_CONFIG or ./config.yaml):
//   - PORTCULLIS_SERVER_PORT: listen port (default 8080)
//   - PORTCULLIS_AUTH_JWT_SECRET: 32+ byte secret enabling bearer auth
//   - PORTCULLIS_CACHE_BACKEND: "memory" or "badger"
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: in-flight
// requests get the server's shutdown timeout to complete.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/portcullis/internal/auth"
	"github.com/tomtom215/portcullis/internal/authz"
	"github.com/tomtom215/portcullis/internal/cache"
	"github.com/tomtom215/portcullis/internal/config"
	"github.com/tomtom215/portcullis/internal/gateway"
	"github.com/tomtom215/portcullis/internal/logging"
	"github.com/tomtom215/portcullis/internal/metrics"
	"github.com/tomtom215/portcullis/internal/ratelimit"
	"github.com/tomtom215/portcullis/internal/server"
	"github.com/tomtom215/portcullis/internal/validation"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("cache_backend", cfg.Cache.Backend).
		Msg("Starting Portcullis")

	store, closeStore, err := buildCacheStore(cfg.Cache)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache store")
	}
	defer closeStore()

	authenticator, sessions := buildAuthenticator(cfg.Auth)

	authorizer, err := buildAuthorizer()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}

	limiter := ratelimit.NewLimiter()
	collector := metrics.NewCollector()

	gw := gateway.New(gateway.Options{
		Validator:        validation.New(),
		Limiter:          limiter,
		Authenticator:    authenticator,
		Authorizer:       authorizer,
		Cache:            store,
		Collector:        collector,
		DefaultTimeout:   cfg.Gateway.DefaultTimeout,
		BreakerThreshold: cfg.Gateway.BreakerThreshold,
		BreakerCooldown:  cfg.Gateway.BreakerCooldown,
	})

	if err := registerBuiltinEndpoints(gw); err != nil {
		logging.Fatal().Err(err).Msg("Failed to register built-in endpoints")
	}

	srv := server.New(server.Config{
		Addr:               cfg.Server.Addr(),
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		TransportRateLimit: cfg.Server.TransportRateLimit,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
	}, gw)

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	root := suture.New("portcullis", suture.Spec{
		EventHook: handler.MustHook(),
		Timeout:   cfg.Server.ShutdownTimeout,
	})

	if memStore, ok := store.(*cache.MemoryStore); ok {
		root.Add(cache.NewJanitor(memStore, cfg.Cache.SweepInterval))
	}
	root.Add(ratelimit.NewSweeper(limiter, cfg.RateLimit.SweepInterval, cfg.RateLimit.MaxIdle))
	root.Add(sessionSweeper{sessions: sessions, interval: cfg.RateLimit.SweepInterval})
	root.Add(metrics.NewEmitter(collector, metrics.LogSink{}, cfg.Metrics.EmitInterval))
	root.Add(srv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := root.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received")
		if err := <-errCh; err != nil && err != context.Canceled {
			logging.Error().Err(err).Msg("Supervisor exited with error")
		}
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logging.Error().Err(err).Msg("Supervisor exited with error")
			closeStore()
			os.Exit(1)
		}
	}

	logging.Info().Msg("Portcullis stopped")
}

// buildCacheStore returns the configured response store and a cleanup
// function. The cleanup is a no-op for the memory backend.
func buildCacheStore(cfg config.CacheConfig) (cache.Store, func(), error) {
	if cfg.Backend == "badger" {
		store, err := cache.OpenBadgerStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logging.Warn().Err(err).Msg("Failed to close cache store")
			}
		}, nil
	}
	return cache.NewMemoryStore(cfg.Capacity), func() {}, nil
}

// buildAuthenticator wires the credential validators. Bearer tokens are
// only accepted when a JWT secret is configured; sessions and API keys
// are always available for programmatic registration.
func buildAuthenticator(cfg config.AuthConfig) (*auth.Authenticator, *auth.SessionStore) {
	multi := auth.NewMultiValidator()

	if cfg.JWTSecret != "" {
		jwtValidator, err := auth.NewJWTValidator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT validation")
		}
		multi.Register(auth.MethodBearer, jwtValidator)
	} else {
		logging.Warn().Msg("No JWT secret configured; bearer authentication disabled")
	}

	sessions := auth.NewSessionStore(cfg.SessionTTL)
	multi.Register(auth.MethodSession, sessions)
	multi.Register(auth.MethodAPIKey, auth.NewAPIKeyStore())

	return auth.NewAuthenticator(multi), sessions
}

// buildAuthorizer wires the Casbin-backed permission resolver.
func buildAuthorizer() (*authz.Authorizer, error) {
	resolver, err := authz.NewCasbinResolver()
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(nil, resolver), nil
}

// registerBuiltinEndpoints adds the endpoints every deployment carries.
func registerBuiltinEndpoints(gw *gateway.Gateway) error {
	return gw.Register(&gateway.EndpointDefinition{
		Method:      "GET",
		Path:        "/healthz",
		Description: "Liveness probe",
		Handler: func(ctx context.Context, req *gateway.Request) (*gateway.HandlerResult, error) {
			return &gateway.HandlerResult{
				Status: 200,
				Body: map[string]interface{}{
					"status":        "ok",
					"uptimeSeconds": int64(time.Since(startTime).Seconds()),
				},
			}, nil
		},
	})
}

// sessionSweeper periodically drops expired sessions. It implements
// suture.Service.
type sessionSweeper struct {
	sessions *auth.SessionStore
	interval time.Duration
}

func (s sessionSweeper) Serve(ctx context.Context) error {
	interval := s.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.sessions.Sweep(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Swept expired sessions")
			}
		}
	}
}

func (s sessionSweeper) String() string { return "session-sweeper" }
