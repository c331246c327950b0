// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyStore validates API keys of the form "<keyID>.<secret>".
// Secrets are stored bcrypt-hashed; plaintext secrets exist only at
// registration time. It implements IdentityValidator for MethodAPIKey.
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*apiKeyRecord
	cost int
}

type apiKeyRecord struct {
	hash      []byte
	principal *Principal
}

// NewAPIKeyStore creates an empty API key store using bcrypt.DefaultCost.
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{
		keys: make(map[string]*apiKeyRecord),
		cost: bcrypt.DefaultCost,
	}
}

// RegisterKey hashes the secret and associates the key id with the
// principal. Re-registering a key id replaces the previous record.
func (s *APIKeyStore) RegisterKey(keyID, secret string, principal *Principal) error {
	if keyID == "" || secret == "" {
		return fmt.Errorf("key id and secret are required")
	}
	if principal == nil {
		return fmt.Errorf("principal is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash api key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyID] = &apiKeyRecord{hash: hash, principal: principal}
	return nil
}

// RevokeKey removes a key id. Revoking an unknown id is a no-op.
func (s *APIKeyStore) RevokeKey(keyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, keyID)
}

// Validate implements IdentityValidator.
func (s *APIKeyStore) Validate(_ context.Context, cred Credential) (*Identity, error) {
	keyID, secret, ok := splitAPIKey(cred.Value)
	if !ok {
		return nil, fmt.Errorf("%w: malformed api key", ErrCredentialInvalid)
	}

	s.mu.RLock()
	record, exists := s.keys[keyID]
	s.mu.RUnlock()

	if !exists {
		// Burn comparable time so unknown ids are indistinguishable
		// from bad secrets.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret)) //nolint:errcheck
		return nil, fmt.Errorf("%w: unknown api key", ErrCredentialInvalid)
	}

	if err := bcrypt.CompareHashAndPassword(record.hash, []byte(secret)); err != nil {
		return nil, fmt.Errorf("%w: api key mismatch", ErrCredentialInvalid)
	}

	return &Identity{Principal: record.principal}, nil
}

// splitAPIKey splits "<keyID>.<secret>" at the first dot.
func splitAPIKey(value string) (keyID, secret string, ok bool) {
	idx := strings.Index(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", "", false
	}
	return value[:idx], value[idx+1:], true
}

// dummyHash is a bcrypt hash of an unguessable value, used for constant
// work on unknown key ids.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("portcullis-dummy-key-material"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()
