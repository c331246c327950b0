// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package authz

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/tomtom215/portcullis/internal/auth"
)

//go:embed model.conf
var embeddedModel string

// CasbinResolver expands a principal's effective permissions from a
// casbin RBAC policy: policy rules grant permissions to roles (or
// directly to principal ids), and grouping rules express role
// inheritance.
//
// Policy shape:
//
//	p, editor, update:products      permission grant
//	g, admin, editor                role inheritance
type CasbinResolver struct {
	enforcer *casbin.SyncedEnforcer
}

// NewCasbinResolver creates a resolver from the embedded RBAC model with
// an empty in-memory policy. Grants are added via GrantPermission and
// InheritRole.
func NewCasbinResolver() (*CasbinResolver, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	return &CasbinResolver{enforcer: enforcer}, nil
}

// GrantPermission grants a permission to a role or principal id.
func (r *CasbinResolver) GrantPermission(subject, permission string) error {
	if _, err := r.enforcer.AddPolicy(subject, permission); err != nil {
		return fmt.Errorf("failed to add policy: %w", err)
	}
	return nil
}

// InheritRole makes child inherit all grants of parent.
func (r *CasbinResolver) InheritRole(child, parent string) error {
	if _, err := r.enforcer.AddGroupingPolicy(child, parent); err != nil {
		return fmt.Errorf("failed to add grouping policy: %w", err)
	}
	return nil
}

// Expand implements PermissionResolver: it returns every permission the
// principal's id or roles are granted through policy.
func (r *CasbinResolver) Expand(_ context.Context, principal *auth.Principal) ([]string, error) {
	if principal == nil {
		return nil, nil
	}

	subjects := make([]string, 0, len(principal.Roles)+1)
	if principal.ID != "" {
		subjects = append(subjects, principal.ID)
	}
	subjects = append(subjects, principal.Roles...)

	seen := make(map[string]bool)
	var permissions []string
	for _, subject := range subjects {
		grants, err := r.enforcer.GetImplicitPermissionsForUser(subject)
		if err != nil {
			return nil, fmt.Errorf("failed to expand permissions for %s: %w", subject, err)
		}
		for _, grant := range grants {
			// Rule shape is [subject, permission].
			if len(grant) < 2 {
				continue
			}
			perm := grant[1]
			if !seen[perm] {
				seen[perm] = true
				permissions = append(permissions, perm)
			}
		}
	}

	return permissions, nil
}
