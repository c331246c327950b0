// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/portcullis/internal/auth"
)

type fixedOwnership struct {
	owns bool
	err  error
}

func (f fixedOwnership) Owns(_ context.Context, _ *auth.Principal, _ Resource) (bool, error) {
	return f.owns, f.err
}

func denied(t *testing.T, err error) *DeniedError {
	t.Helper()
	var d *DeniedError
	if !errors.As(err, &d) {
		t.Fatalf("err = %v, want *DeniedError", err)
	}
	return d
}

func TestAuthorizeEmptyConfig(t *testing.T) {
	a := NewAuthorizer(nil, nil)

	if err := a.Authorize(context.Background(), nil, nil, Resource{}); err != nil {
		t.Errorf("nil config should authorize anyone: %v", err)
	}
	if err := a.Authorize(context.Background(), nil, &Config{}, Resource{}); err != nil {
		t.Errorf("empty config should authorize anyone: %v", err)
	}
}

func TestAuthorizeRoles(t *testing.T) {
	a := NewAuthorizer(nil, nil)
	cfg := &Config{Roles: []string{"admin", "moderator"}}

	// Any one role suffices.
	p := &auth.Principal{ID: "u", Roles: []string{"moderator"}}
	if err := a.Authorize(context.Background(), p, cfg, Resource{}); err != nil {
		t.Errorf("Authorize: %v", err)
	}

	p = &auth.Principal{ID: "u", Roles: []string{"user"}}
	d := denied(t, a.Authorize(context.Background(), p, cfg, Resource{}))
	if d.Check != "role" {
		t.Errorf("Check = %q", d.Check)
	}
	if len(d.Required) != 2 || d.Required[0] != "admin" {
		t.Errorf("Required = %v", d.Required)
	}
	if len(d.Actual) != 1 || d.Actual[0] != "user" {
		t.Errorf("Actual = %v", d.Actual)
	}
}

func TestAuthorizePermissions(t *testing.T) {
	a := NewAuthorizer(nil, nil)
	cfg := &Config{Permissions: []string{"orders:delete"}}

	p := &auth.Principal{ID: "u", Permissions: []string{"orders:delete"}}
	if err := a.Authorize(context.Background(), p, cfg, Resource{}); err != nil {
		t.Errorf("Authorize: %v", err)
	}

	p = &auth.Principal{ID: "u", Permissions: []string{"orders:read"}}
	d := denied(t, a.Authorize(context.Background(), p, cfg, Resource{}))
	if d.Check != "permission" {
		t.Errorf("Check = %q", d.Check)
	}
}

func TestAuthorizeRolesBeforePermissions(t *testing.T) {
	a := NewAuthorizer(nil, nil)
	cfg := &Config{Roles: []string{"admin"}, Permissions: []string{"x"}}

	// Principal fails both; the role check must be the one reported.
	p := &auth.Principal{ID: "u"}
	d := denied(t, a.Authorize(context.Background(), p, cfg, Resource{}))
	if d.Check != "role" {
		t.Errorf("Check = %q, want role reported first", d.Check)
	}
}

func TestAuthorizeOwnership(t *testing.T) {
	cfg := &Config{RequireOwnership: true}
	p := &auth.Principal{ID: "user-1"}
	res := Resource{Endpoint: "DELETE:/api/orders/:id", Params: map[string]string{"id": "42"}}

	a := NewAuthorizer(fixedOwnership{owns: true}, nil)
	if err := a.Authorize(context.Background(), p, cfg, res); err != nil {
		t.Errorf("owner denied: %v", err)
	}

	a = NewAuthorizer(fixedOwnership{owns: false}, nil)
	d := denied(t, a.Authorize(context.Background(), p, cfg, res))
	if d.Check != "ownership" {
		t.Errorf("Check = %q", d.Check)
	}

	// Resolver failure is an infrastructure error, not a denial.
	a = NewAuthorizer(fixedOwnership{err: errors.New("lookup failed")}, nil)
	err := a.Authorize(context.Background(), p, cfg, res)
	var dd *DeniedError
	if err == nil || errors.As(err, &dd) {
		t.Errorf("err = %v, want non-denial error", err)
	}

	// No resolver configured means ownership can never be proven.
	a = NewAuthorizer(nil, nil)
	d = denied(t, a.Authorize(context.Background(), p, cfg, res))
	if d.Check != "ownership" {
		t.Errorf("Check = %q", d.Check)
	}
}

func TestAuthorizePredicate(t *testing.T) {
	a := NewAuthorizer(nil, nil)
	p := &auth.Principal{ID: "u", Roles: []string{"user"}}

	calls := 0
	cfg := &Config{
		Roles: []string{"user"},
		Predicate: func(_ context.Context, principal *auth.Principal, res Resource) (bool, error) {
			calls++
			return res.Params["id"] == principal.ID, nil
		},
	}

	res := Resource{Params: map[string]string{"id": "u"}}
	if err := a.Authorize(context.Background(), p, cfg, res); err != nil {
		t.Errorf("Authorize: %v", err)
	}

	res = Resource{Params: map[string]string{"id": "other"}}
	d := denied(t, a.Authorize(context.Background(), p, cfg, res))
	if d.Check != "predicate" {
		t.Errorf("Check = %q", d.Check)
	}
	if calls != 2 {
		t.Errorf("predicate calls = %d, want 2", calls)
	}
}

func TestAuthorizeNilPrincipal(t *testing.T) {
	a := NewAuthorizer(nil, nil)
	cfg := &Config{Roles: []string{"admin"}}

	d := denied(t, a.Authorize(context.Background(), nil, cfg, Resource{}))
	if d.Check != "principal" {
		t.Errorf("Check = %q", d.Check)
	}
	if len(d.Required) == 0 {
		t.Error("Required should summarize the endpoint's demands")
	}
}

func TestAuthorizeWithCasbinExpansion(t *testing.T) {
	resolver, err := NewCasbinResolver()
	if err != nil {
		t.Fatalf("NewCasbinResolver: %v", err)
	}
	if err := resolver.GrantPermission("editor", "products:update"); err != nil {
		t.Fatal(err)
	}
	if err := resolver.InheritRole("admin", "editor"); err != nil {
		t.Fatal(err)
	}

	a := NewAuthorizer(nil, resolver)
	cfg := &Config{Permissions: []string{"products:update"}}

	// The principal carries no permissions directly; the role grant
	// satisfies the check through expansion.
	p := &auth.Principal{ID: "u1", Roles: []string{"editor"}}
	if err := a.Authorize(context.Background(), p, cfg, Resource{}); err != nil {
		t.Errorf("editor denied: %v", err)
	}

	// Inherited through admin -> editor.
	p = &auth.Principal{ID: "u2", Roles: []string{"admin"}}
	if err := a.Authorize(context.Background(), p, cfg, Resource{}); err != nil {
		t.Errorf("admin denied: %v", err)
	}

	p = &auth.Principal{ID: "u3", Roles: []string{"viewer"}}
	d := denied(t, a.Authorize(context.Background(), p, cfg, Resource{}))
	if d.Check != "permission" {
		t.Errorf("Check = %q", d.Check)
	}
}

func TestCasbinExpandDirectGrant(t *testing.T) {
	resolver, err := NewCasbinResolver()
	if err != nil {
		t.Fatal(err)
	}
	if err := resolver.GrantPermission("user-7", "reports:export"); err != nil {
		t.Fatal(err)
	}

	perms, err := resolver.Expand(context.Background(), &auth.Principal{ID: "user-7"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(perms) != 1 || perms[0] != "reports:export" {
		t.Errorf("perms = %v", perms)
	}

	perms, err = resolver.Expand(context.Background(), &auth.Principal{ID: "user-8"})
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != 0 {
		t.Errorf("perms = %v, want none", perms)
	}
}
