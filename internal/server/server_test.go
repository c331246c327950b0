// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/portcullis/internal/gateway"
	"github.com/tomtom215/portcullis/internal/ratelimit"
	"github.com/tomtom215/portcullis/internal/validation"
)

func testServer(t *testing.T) (*Server, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(gateway.Options{})

	err := gw.Register(&gateway.EndpointDefinition{
		Method:      "GET",
		Path:        "/api/products",
		Description: "List products",
		Validation: &validation.Config{
			Query: validation.SectionSchema{
				"limit": {Type: validation.TypeInt, Rules: "min=1,max=100"},
			},
		},
		Handler: func(ctx context.Context, req *gateway.Request) (*gateway.HandlerResult, error) {
			return &gateway.HandlerResult{Status: 200, Body: map[string]interface{}{
				"items": []string{"widget"},
				"limit": req.Query["limit"],
			}}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	return New(Config{Addr: ":0"}, gw), gw
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServerSuccessEnvelope(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s.Router(), "GET", "/api/products?limit=10", "")

	if rec.Code != 200 {
		t.Fatalf("Code = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var env gateway.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error != nil {
		t.Errorf("unexpected error: %+v", env.Error)
	}
	if len(env.Data) == 0 {
		t.Error("missing data payload")
	}
	if env.Metadata.RequestID == "" {
		t.Error("missing metadata request id")
	}
}

func TestServerValidationError(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s.Router(), "GET", "/api/products?limit=9999", "")

	if rec.Code != 400 {
		t.Fatalf("Code = %d", rec.Code)
	}

	var env gateway.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error == nil || env.Error.Code != gateway.CodeValidationFailed {
		t.Errorf("error = %+v", env.Error)
	}
	if env.Error.Field != "query.limit" {
		t.Errorf("Field = %q", env.Error.Field)
	}
}

func TestServerNotFound(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s.Router(), "GET", "/nope", "")
	if rec.Code != 404 {
		t.Fatalf("Code = %d", rec.Code)
	}
}

func TestServerRetryAfterHeader(t *testing.T) {
	s, gw := testServer(t)
	err := gw.Register(&gateway.EndpointDefinition{
		Method:    "GET",
		Path:      "/api/limited",
		RateLimit: &ratelimit.Config{Window: time.Minute, Max: 1},
		Handler: func(ctx context.Context, req *gateway.Request) (*gateway.HandlerResult, error) {
			return &gateway.HandlerResult{Status: 200, Body: "ok"}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	router := s.Router()
	if rec := doRequest(t, router, "GET", "/api/limited", ""); rec.Code != 200 {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := doRequest(t, router, "GET", "/api/limited", "")
	if rec.Code != 429 {
		t.Fatalf("Code = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestServerEndpointsListing(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s.Router(), "GET", "/portcullis/endpoints", "")
	if rec.Code != 200 {
		t.Fatalf("Code = %d", rec.Code)
	}

	var endpoints []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &endpoints); err != nil {
		t.Fatal(err)
	}
	if len(endpoints) != 1 {
		t.Fatalf("endpoints = %v", endpoints)
	}
	if endpoints[0]["path"] != "/api/products" {
		t.Errorf("path = %v", endpoints[0]["path"])
	}
}

func TestServerStatsEndpoint(t *testing.T) {
	s, _ := testServer(t)
	router := s.Router()

	doRequest(t, router, "GET", "/api/products", "")
	rec := doRequest(t, router, "GET", "/portcullis/stats", "")
	if rec.Code != 200 {
		t.Fatalf("Code = %d", rec.Code)
	}

	var snaps []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &snaps); err != nil {
		t.Fatal(err)
	}
	if len(snaps) == 0 {
		t.Fatal("no snapshots")
	}
	if snaps[0]["endpoint"] != "GET:/api/products" {
		t.Errorf("endpoint = %v", snaps[0]["endpoint"])
	}
}

func TestServerMetricsExposed(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s.Router(), "GET", "/metrics", "")
	if rec.Code != 200 {
		t.Fatalf("Code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("prometheus exposition missing standard collectors")
	}
}

func TestServerTransportRateLimit(t *testing.T) {
	gw := gateway.New(gateway.Options{})
	_ = gw.Register(&gateway.EndpointDefinition{
		Method: "GET",
		Path:   "/ping",
		Handler: func(ctx context.Context, req *gateway.Request) (*gateway.HandlerResult, error) {
			return &gateway.HandlerResult{Status: 200, Body: "pong"}, nil
		},
	})
	s := New(Config{Addr: ":0", TransportRateLimit: 2}, gw)
	router := s.Router()

	var last int
	for i := 0; i < 3; i++ {
		last = doRequest(t, router, "GET", "/ping", "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request Code = %d, want 429 from transport limiter", last)
	}
}

func TestServerPostBody(t *testing.T) {
	s, gw := testServer(t)
	err := gw.Register(&gateway.EndpointDefinition{
		Method: "POST",
		Path:   "/api/echo",
		Validation: &validation.Config{
			Body: validation.SectionSchema{
				"name": {Required: true, Type: validation.TypeString},
			},
		},
		Handler: func(ctx context.Context, req *gateway.Request) (*gateway.HandlerResult, error) {
			return &gateway.HandlerResult{Status: 201, Body: req.Body}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, s.Router(), "POST", "/api/echo", `{"name":"widget"}`)
	if rec.Code != 201 {
		t.Fatalf("Code = %d, body %s", rec.Code, rec.Body)
	}

	var env gateway.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["name"] != "widget" {
		t.Errorf("data = %v", data)
	}
}
