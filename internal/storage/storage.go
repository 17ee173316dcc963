// Package storage persists per-browsing-session token sets and transient
// PKCE material. Storage failures are surfaced as errors but callers treat
// them as "no session": the gateway degrades to a fresh login, never a crash.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/SrujanaJ313/claimant-gateway/internal/pkce"
	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

// ErrNoTokens is returned when a session has no stored token set.
var ErrNoTokens = errors.New("no token set stored")

// ErrNoPKCEMaterial is returned when a session has no pending login attempt,
// e.g. storage was cleared between the redirect and the callback.
var ErrNoPKCEMaterial = errors.New("no pkce material stored")

// pkceTTL is how long a pending login attempt may sit between the redirect
// and the callback before a sweep collects it.
const pkceTTL = 15 * time.Minute

// AttemptSweeper prunes login state abandoned between the redirect and the
// callback. Every browser that never comes back leaves an attempt behind, so
// a sweeper must run periodically against any store.
type AttemptSweeper interface {
	CleanupAbandonedAttempts(ctx context.Context) (int, error)
}

// Store holds token sets and PKCE material keyed by session ID.
//
// Writes replace the whole value in one operation so concurrent readers never
// observe a partial token set. TakePKCE is single-use: it deletes the
// material as it loads it.
type Store interface {
	SaveTokens(ctx context.Context, sessionID string, set *tokens.TokenSet) error
	LoadTokens(ctx context.Context, sessionID string) (*tokens.TokenSet, error)
	ClearTokens(ctx context.Context, sessionID string) error

	SavePKCE(ctx context.Context, sessionID string, material *pkce.Material) error
	TakePKCE(ctx context.Context, sessionID string) (*pkce.Material, error)
	ClearPKCE(ctx context.Context, sessionID string) error

	Close() error
}
