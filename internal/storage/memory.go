package storage

import (
	"context"
	"sync"
	"time"

	"github.com/SrujanaJ313/claimant-gateway/internal/pkce"
	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)
var _ AttemptSweeper = (*MemoryStore)(nil)

type memoryAttempt struct {
	material  pkce.Material
	createdAt time.Time
}

// MemoryStore keeps sessions in process memory. Tokens do not outlive the
// gateway process, which matches the session-scoped default.
type MemoryStore struct {
	mu       sync.RWMutex
	tokens   map[string]tokens.TokenSet
	attempts map[string]memoryAttempt
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string]tokens.TokenSet),
		attempts: make(map[string]memoryAttempt),
		now:      time.Now,
	}
}

// SaveTokens stores a copy of the token set, replacing any previous one.
func (s *MemoryStore) SaveTokens(_ context.Context, sessionID string, set *tokens.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[sessionID] = *set
	return nil
}

// LoadTokens returns a copy of the stored token set or ErrNoTokens.
func (s *MemoryStore) LoadTokens(_ context.Context, sessionID string) (*tokens.TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.tokens[sessionID]
	if !ok {
		return nil, ErrNoTokens
	}
	out := set
	return &out, nil
}

// ClearTokens removes the session's token set. Clearing an absent session is
// not an error.
func (s *MemoryStore) ClearTokens(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, sessionID)
	return nil
}

// SavePKCE stores the login attempt's PKCE material, replacing any previous
// attempt for the session.
func (s *MemoryStore) SavePKCE(_ context.Context, sessionID string, material *pkce.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[sessionID] = memoryAttempt{material: *material, createdAt: s.now()}
	return nil
}

// TakePKCE returns and deletes the stored material in one critical section,
// enforcing single use.
func (s *MemoryStore) TakePKCE(_ context.Context, sessionID string) (*pkce.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[sessionID]
	if !ok {
		return nil, ErrNoPKCEMaterial
	}
	delete(s.attempts, sessionID)
	out := attempt.material
	return &out, nil
}

// ClearPKCE removes any pending login attempt for the session.
func (s *MemoryStore) ClearPKCE(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, sessionID)
	return nil
}

// CleanupAbandonedAttempts drops attempts older than pkceTTL. Without it a
// stream of cookie-less requests grows the attempts map without bound.
func (s *MemoryStore) CleanupAbandonedAttempts(_ context.Context) (int, error) {
	cutoff := s.now().Add(-pkceTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for sessionID, attempt := range s.attempts {
		if attempt.createdAt.Before(cutoff) {
			delete(s.attempts, sessionID)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
