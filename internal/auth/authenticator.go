// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package auth resolves a caller's identity from one of several supported
// credential forms.
//
// The credential methods are a capability set, not a type hierarchy: each
// method has an Extractor that lifts the raw credential out of the request
// headers, and validation is delegated to an IdentityValidator collaborator.
// The Authenticator itself only orchestrates method order and fallback.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/portcullis/internal/logging"
)

// ErrCredentialInvalid is returned (possibly wrapped) by identity
// validators when a presented credential does not validate. Any other
// error class is treated as an infrastructure failure.
var ErrCredentialInvalid = errors.New("credential invalid")

// IdentityValidator validates a raw credential and resolves the principal
// behind it. Implementations are external collaborators (token service,
// session store, key registry).
type IdentityValidator interface {
	Validate(ctx context.Context, cred Credential) (*Identity, error)
}

// Config declares an endpoint's authentication requirements.
type Config struct {
	// Methods lists the allowed credential methods in priority order.
	Methods []Method

	// AllowAnonymous permits the request through with the synthesized
	// anonymous principal when no credential validates.
	AllowAnonymous bool
}

// FailedError is raised when no configured method validates and anonymous
// access is not permitted. MethodsAttempted lists the methods for which a
// credential was actually present, falling back to all configured methods
// when the request carried none.
type FailedError struct {
	MethodsAttempted []Method
}

// Error implements the error interface.
func (e *FailedError) Error() string {
	return fmt.Sprintf("authentication failed (methods attempted: %v)", e.MethodsAttempted)
}

// MethodNames returns the attempted methods as strings.
func (e *FailedError) MethodNames() []string {
	names := make([]string, len(e.MethodsAttempted))
	for i, m := range e.MethodsAttempted {
		names[i] = string(m)
	}
	return names
}

// Authenticator orchestrates credential extraction and validation across
// the configured methods.
type Authenticator struct {
	validator  IdentityValidator
	extractors map[Method]Extractor
}

// NewAuthenticator creates an Authenticator delegating validation to the
// given identity collaborator, with the standard extractors per method.
func NewAuthenticator(validator IdentityValidator) *Authenticator {
	return &Authenticator{
		validator:  validator,
		extractors: defaultExtractors(),
	}
}

// SetExtractor replaces the extractor for a method. Useful for custom
// header conventions.
func (a *Authenticator) SetExtractor(e Extractor) {
	a.extractors[e.Method()] = e
}

// Authenticate inspects the request headers for each configured method in
// turn and returns the identity associated with the first credential that
// validates. If none validate and anonymous access is permitted, the
// anonymous principal is returned. Otherwise a *FailedError is returned.
func (a *Authenticator) Authenticate(ctx context.Context, headers map[string]string, cfg Config) (*Identity, error) {
	var attempted []Method

	for _, method := range cfg.Methods {
		extractor, ok := a.extractors[method]
		if !ok {
			logger := logging.Ctx(ctx)
			logger.Warn().Str("method", string(method)).Msg("No extractor for credential method")
			continue
		}

		value, present := extractor.Extract(headers)
		if !present {
			continue
		}
		attempted = append(attempted, method)

		identity, err := a.validator.Validate(ctx, Credential{Method: method, Value: value})
		if err != nil {
			if errors.Is(err, ErrCredentialInvalid) {
				logger := logging.Ctx(ctx)
				logger.Debug().
					Str("method", string(method)).
					Msg("Credential did not validate, trying next method")
				continue
			}
			// Infrastructure failure, not a bad credential.
			return nil, fmt.Errorf("identity validation for method %s: %w", method, err)
		}
		if identity == nil || identity.Principal == nil {
			continue
		}

		identity.Method = method
		return identity, nil
	}

	if cfg.AllowAnonymous {
		return &Identity{Principal: Anonymous()}, nil
	}

	if len(attempted) == 0 {
		attempted = cfg.Methods
	}
	return nil, &FailedError{MethodsAttempted: attempted}
}

// MultiValidator routes credentials to a per-method IdentityValidator,
// so bearer tokens, sessions, and API keys can each have their own
// backing collaborator.
type MultiValidator struct {
	validators map[Method]IdentityValidator
}

// NewMultiValidator creates an empty MultiValidator.
func NewMultiValidator() *MultiValidator {
	return &MultiValidator{validators: make(map[Method]IdentityValidator)}
}

// Register binds a validator to a credential method, replacing any
// previous binding.
func (m *MultiValidator) Register(method Method, v IdentityValidator) *MultiValidator {
	m.validators[method] = v
	return m
}

// Validate implements IdentityValidator.
func (m *MultiValidator) Validate(ctx context.Context, cred Credential) (*Identity, error) {
	v, ok := m.validators[cred.Method]
	if !ok {
		return nil, fmt.Errorf("no validator for method %s: %w", cred.Method, ErrCredentialInvalid)
	}
	return v.Validate(ctx, cred)
}
