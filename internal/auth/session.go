// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// SessionStore is an in-memory session registry. It implements
// IdentityValidator for MethodSession: the credential value is the opaque
// session id handed out by Create.
//
// Expired sessions are rejected on lookup and removed lazily.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
	ttl      time.Duration
}

type sessionRecord struct {
	session   *Session
	principal *Principal
}

// NewSessionStore creates a session store with the given session TTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{
		sessions: make(map[string]*sessionRecord),
		ttl:      ttl,
	}
}

// Create establishes a new session for the principal and returns it.
// The session id is 256 bits of URL-safe randomness.
func (s *SessionStore) Create(principal *Principal) (*Session, error) {
	if principal == nil {
		return nil, fmt.Errorf("principal is required")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now()
	session := &Session{
		ID:          base64.RawURLEncoding.EncodeToString(raw),
		PrincipalID: principal.ID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &sessionRecord{session: session, principal: principal}
	return session, nil
}

// Revoke removes a session. Revoking an unknown id is a no-op.
func (s *SessionStore) Revoke(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Validate implements IdentityValidator.
func (s *SessionStore) Validate(_ context.Context, cred Credential) (*Identity, error) {
	s.mu.RLock()
	record, exists := s.sessions[cred.Value]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: unknown session", ErrCredentialInvalid)
	}
	if record.session.IsExpired() {
		s.mu.Lock()
		delete(s.sessions, cred.Value)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session expired", ErrCredentialInvalid)
	}

	return &Identity{Principal: record.principal, Session: record.session}, nil
}

// Len returns the number of live sessions, counting expired ones not yet
// swept.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, record := range s.sessions {
		if now.After(record.session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Clear removes all sessions. Intended for tests.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*sessionRecord)
}
