// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims Portcullis issues and validates.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator validates HMAC-signed bearer tokens and resolves the
// embedded principal. It implements IdentityValidator for MethodBearer.
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator creates a JWT validator with the given signing secret.
// If issuer is non-empty, tokens must carry a matching iss claim.
func NewJWTValidator(secret []byte, issuer string) (*JWTValidator, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	return &JWTValidator{secret: secret, issuer: issuer}, nil
}

// Validate implements IdentityValidator.
func (v *JWTValidator) Validate(_ context.Context, cred Credential) (*Identity, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(cred.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCredentialInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrCredentialInvalid)
	}

	return &Identity{
		Principal: &Principal{
			ID:          claims.Subject,
			Email:       claims.Email,
			Roles:       claims.Roles,
			Permissions: claims.Permissions,
		},
	}, nil
}

// IssueToken signs a token for the given principal, valid for ttl.
// Primarily used by tests and the reference server's token minting.
func (v *JWTValidator) IssueToken(p *Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email:       p.Email,
		Roles:       p.Roles,
		Permissions: p.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
