// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package authz checks a resolved principal against an endpoint's
// declared requirements: roles, permissions, resource ownership, and an
// optional custom predicate, evaluated in that order with fail-fast
// semantics.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/portcullis/internal/auth"
)

// Resource describes what a request is acting on, for ownership checks
// and custom predicates.
type Resource struct {
	// Endpoint is the canonical endpoint key (METHOD:path).
	Endpoint string

	// Params are the resolved path parameters.
	Params map[string]string
}

// OwnershipResolver decides whether a principal owns the resource a
// request targets. It is an external collaborator.
type OwnershipResolver interface {
	Owns(ctx context.Context, principal *auth.Principal, resource Resource) (bool, error)
}

// PermissionResolver expands a principal's effective permissions from
// policy (e.g. role-to-permission grants) before the any-of check.
// Optional; when nil, only the permissions carried on the principal
// itself are considered.
type PermissionResolver interface {
	Expand(ctx context.Context, principal *auth.Principal) ([]string, error)
}

// Predicate is a custom authorization check evaluated after the built-in
// checks pass.
type Predicate func(ctx context.Context, principal *auth.Principal, resource Resource) (bool, error)

// Config declares an endpoint's authorization requirements.
// Zero-value Config requires nothing.
type Config struct {
	// Roles is satisfied by holding any one of the listed roles.
	Roles []string

	// Permissions is satisfied by holding any one of the listed
	// permissions.
	Permissions []string

	// RequireOwnership delegates an ownership check to the resolver.
	RequireOwnership bool

	// Predicate is an optional custom check.
	Predicate Predicate
}

// Empty reports whether the config imposes no requirements.
func (c *Config) Empty() bool {
	return c == nil ||
		(len(c.Roles) == 0 && len(c.Permissions) == 0 && !c.RequireOwnership && c.Predicate == nil)
}

// DeniedError describes an authorization failure: which check failed,
// what was required, and what the principal actually had.
type DeniedError struct {
	// Check names the failing check: role, permission, ownership, predicate.
	Check string

	// Required lists what the endpoint demanded.
	Required []string

	// Actual lists what the principal held.
	Actual []string
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	if len(e.Required) > 0 {
		return fmt.Sprintf("%s check failed: required any of [%s]", e.Check, strings.Join(e.Required, ", "))
	}
	return fmt.Sprintf("%s check failed", e.Check)
}

// Authorizer evaluates authorization configs against principals.
type Authorizer struct {
	ownership   OwnershipResolver
	permissions PermissionResolver
}

// NewAuthorizer creates an Authorizer. Both collaborators may be nil:
// a nil ownership resolver denies all ownership-requiring endpoints, and
// a nil permission resolver skips policy expansion.
func NewAuthorizer(ownership OwnershipResolver, permissions PermissionResolver) *Authorizer {
	return &Authorizer{ownership: ownership, permissions: permissions}
}

// Authorize evaluates the checks in fixed order: roles, permissions,
// ownership, predicate. The first failing check returns a *DeniedError;
// all checks must pass for a nil return. A nil principal fails any
// non-empty requirement immediately.
func (a *Authorizer) Authorize(ctx context.Context, principal *auth.Principal, cfg *Config, resource Resource) error {
	if cfg.Empty() {
		return nil
	}
	if principal == nil {
		return &DeniedError{Check: "principal", Required: requirementSummary(cfg)}
	}

	if len(cfg.Roles) > 0 && !principal.HasAnyRole(cfg.Roles) {
		return &DeniedError{Check: "role", Required: cfg.Roles, Actual: principal.Roles}
	}

	if len(cfg.Permissions) > 0 {
		held := principal.Permissions
		if a.permissions != nil {
			expanded, err := a.permissions.Expand(ctx, principal)
			if err != nil {
				return fmt.Errorf("permission expansion: %w", err)
			}
			held = mergePermissions(held, expanded)
		}
		if !hasAny(held, cfg.Permissions) {
			return &DeniedError{Check: "permission", Required: cfg.Permissions, Actual: held}
		}
	}

	if cfg.RequireOwnership {
		if a.ownership == nil {
			return &DeniedError{Check: "ownership", Required: []string{"resource ownership"}}
		}
		owns, err := a.ownership.Owns(ctx, principal, resource)
		if err != nil {
			return fmt.Errorf("ownership check: %w", err)
		}
		if !owns {
			return &DeniedError{
				Check:    "ownership",
				Required: []string{"resource ownership"},
				Actual:   []string{principal.ID},
			}
		}
	}

	if cfg.Predicate != nil {
		ok, err := cfg.Predicate(ctx, principal, resource)
		if err != nil {
			return fmt.Errorf("authorization predicate: %w", err)
		}
		if !ok {
			return &DeniedError{Check: "predicate"}
		}
	}

	return nil
}

// requirementSummary flattens a config into a required list for the
// no-principal denial.
func requirementSummary(cfg *Config) []string {
	var required []string
	required = append(required, cfg.Roles...)
	required = append(required, cfg.Permissions...)
	if cfg.RequireOwnership {
		required = append(required, "resource ownership")
	}
	return required
}

// mergePermissions unions two permission sets preserving order.
func mergePermissions(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, set := range [][]string{a, b} {
		for _, p := range set {
			if !seen[p] {
				seen[p] = true
				merged = append(merged, p)
			}
		}
	}
	return merged
}

// hasAny reports whether held contains at least one of wanted.
func hasAny(held, wanted []string) bool {
	for _, w := range wanted {
		for _, h := range held {
			if h == w {
				return true
			}
		}
	}
	return false
}
