// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package auth

import "time"

// AnonymousID is the sentinel principal id for unauthenticated callers.
const AnonymousID = "anonymous"

// RoleAnonymous is the sole role carried by the anonymous principal.
const RoleAnonymous = "anonymous"

// Principal is the authenticated (or anonymous) identity associated with
// a request. Read-only once attached to a request.
type Principal struct {
	// ID is the unique identifier from the identity system.
	ID string `json:"id"`

	// Email is the principal's email address, if known.
	Email string `json:"email,omitempty"`

	// Roles is the set of roles granted to the principal.
	Roles []string `json:"roles"`

	// Permissions is the set of fine-grained permissions granted.
	Permissions []string `json:"permissions"`
}

// Anonymous returns the sentinel principal for unauthenticated access:
// role "anonymous", no permissions.
func Anonymous() *Principal {
	return &Principal{
		ID:          AnonymousID,
		Roles:       []string{RoleAnonymous},
		Permissions: []string{},
	}
}

// IsAnonymous reports whether the principal is the anonymous sentinel.
func (p *Principal) IsAnonymous() bool {
	return p != nil && p.ID == AnonymousID
}

// HasRole reports whether the principal holds the given role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of the roles.
func (p *Principal) HasAnyRole(roles []string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the principal holds the given permission.
func (p *Principal) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	for _, pm := range p.Permissions {
		if pm == perm {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the principal holds at least one of
// the permissions.
func (p *Principal) HasAnyPermission(perms []string) bool {
	for _, perm := range perms {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

// Session represents an authenticated server-side session.
type Session struct {
	// ID is the opaque session identifier presented by the client.
	ID string `json:"id"`

	// PrincipalID is the id of the principal the session belongs to.
	PrincipalID string `json:"principal_id"`

	// CreatedAt is when the session was established.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the session stops validating.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Identity is the result of a successful credential validation: the
// resolved principal plus the session it rode in on, if any.
type Identity struct {
	Principal *Principal
	Session   *Session

	// Method is the credential method that validated.
	Method Method
}
