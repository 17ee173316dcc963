// Package flow orchestrates the OIDC authorization-code-with-PKCE login:
// building the authorization redirect and exchanging the returned code for
// tokens.
package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/crypto"
	"github.com/SrujanaJ313/claimant-gateway/internal/discovery"
	"github.com/SrujanaJ313/claimant-gateway/internal/log"
	"github.com/SrujanaJ313/claimant-gateway/internal/pkce"
	"github.com/SrujanaJ313/claimant-gateway/internal/provider"
	"github.com/SrujanaJ313/claimant-gateway/internal/storage"
	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

// State is the per-session position in the login flow.
type State string

const (
	StateIdle               State = "idle"
	StateRedirecting        State = "redirecting"
	StateCallbackProcessing State = "callback_processing"
	StateAuthenticated      State = "authenticated"
	StateFailed             State = "failed"
)

// staleAttemptTTL bounds how long an in-flight entry may outlive its last
// transition. Browsers that never return from the redirect would otherwise
// pin their entries forever.
const staleAttemptTTL = 15 * time.Minute

type attempt struct {
	state     State
	updatedAt time.Time
}

// Controller drives the login flow for every browsing session. It is the
// single writer of PKCE material and the single caller of the token
// endpoint; overlapping invocations for one session are dropped, never run
// concurrently.
type Controller struct {
	cfg      config.Provider
	resolver *discovery.Resolver
	store    storage.Store
	now      func() time.Time

	mu       sync.Mutex
	client   *provider.Client
	inFlight map[string]attempt
}

// NewController creates a flow controller.
func NewController(cfg config.Provider, resolver *discovery.Resolver, store storage.Store) *Controller {
	return &Controller{
		cfg:      cfg,
		resolver: resolver,
		store:    store,
		now:      time.Now,
		inFlight: make(map[string]attempt),
	}
}

// Provider returns the provider client, resolving discovery on first use.
// A discovery failure is fatal to the attempt and propagates unchanged.
func (c *Controller) Provider(ctx context.Context) (*provider.Client, error) {
	c.mu.Lock()
	if c.client != nil {
		defer c.mu.Unlock()
		return c.client, nil
	}
	c.mu.Unlock()

	doc, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = provider.New(c.cfg, doc)
	}
	return c.client, nil
}

// SessionState reports where the session currently is in the flow. In-flight
// attempts take precedence; otherwise the stored token set decides between
// authenticated and idle.
func (c *Controller) SessionState(ctx context.Context, sessionID string) State {
	c.mu.Lock()
	if a, ok := c.inFlight[sessionID]; ok {
		c.mu.Unlock()
		return a.state
	}
	c.mu.Unlock()

	set, err := c.store.LoadTokens(ctx, sessionID)
	if err != nil || !set.Valid(c.now()) {
		return StateIdle
	}
	return StateAuthenticated
}

// Begin starts a login attempt: resolves provider metadata, generates fresh
// PKCE material, persists it, and returns the authorization URL for the
// redirect. The material is stored before this returns; nothing runs after
// the browser leaves. A session whose callback is mid-exchange cannot start
// another attempt.
func (c *Controller) Begin(ctx context.Context, sessionID string) (string, error) {
	c.mu.Lock()
	if c.inFlight[sessionID].state == StateCallbackProcessing {
		c.mu.Unlock()
		return "", ErrCallbackInFlight
	}
	c.mu.Unlock()

	client, err := c.Provider(ctx)
	if err != nil {
		return "", err
	}

	// Fresh material on every attempt; stale challenges must never be reused.
	material, err := pkce.Generate()
	if err != nil {
		return "", err
	}
	if err := c.store.SavePKCE(ctx, sessionID, material); err != nil {
		return "", fmt.Errorf("persisting login attempt: %w", err)
	}

	c.mu.Lock()
	c.inFlight[sessionID] = attempt{state: StateRedirecting, updatedAt: c.now()}
	c.mu.Unlock()

	authURL := client.AuthorizationURL(material.State, material.CodeChallenge)
	log.LogInfoWithFields("flow", "Login redirect prepared", map[string]any{
		"session": sessionID,
	})
	return authURL, nil
}

// HandleCallback validates the returned state, exchanges the code, and
// persists the resulting token set under a freshly minted session ID, which
// it returns. A cookie value that predates authentication never becomes an
// authenticated key, so a fixed identifier planted before login is useless
// afterward. An existing valid token set is never cleared until the new one
// is confirmed, so a replayed code fails cleanly while the first session
// stays intact.
func (c *Controller) HandleCallback(ctx context.Context, sessionID, code, state string) (string, *tokens.TokenSet, error) {
	c.mu.Lock()
	if c.inFlight[sessionID].state == StateCallbackProcessing {
		c.mu.Unlock()
		return "", nil, ErrCallbackInFlight
	}
	c.inFlight[sessionID] = attempt{state: StateCallbackProcessing, updatedAt: c.now()}
	c.mu.Unlock()

	newID, set, err := c.processCallback(ctx, sessionID, code, state)

	c.mu.Lock()
	if err != nil {
		// Failed stays visible until the session starts a new attempt.
		c.inFlight[sessionID] = attempt{state: StateFailed, updatedAt: c.now()}
	} else {
		delete(c.inFlight, sessionID)
	}
	c.mu.Unlock()

	return newID, set, err
}

func (c *Controller) processCallback(ctx context.Context, sessionID, code, state string) (string, *tokens.TokenSet, error) {
	material, err := c.store.TakePKCE(ctx, sessionID)
	if err != nil {
		return "", nil, &MissingVerifierError{Err: err}
	}

	if material.State != state {
		log.LogWarnWithFields("flow", "State mismatch on callback", map[string]any{
			"session": sessionID,
		})
		return "", nil, &CsrfMismatchError{Expected: material.State, Got: state}
	}

	client, err := c.Provider(ctx)
	if err != nil {
		return "", nil, err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout.Std())
	defer cancel()

	set, err := client.Exchange(exchangeCtx, code, material.CodeVerifier)
	if err != nil {
		return "", nil, err
	}

	newID, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", nil, fmt.Errorf("minting session id: %w", err)
	}
	if err := c.store.SaveTokens(ctx, newID, set); err != nil {
		return "", nil, fmt.Errorf("persisting token set: %w", err)
	}
	if err := c.store.ClearTokens(ctx, sessionID); err != nil {
		log.LogWarnWithFields("flow", "Failed to clear pre-login session", map[string]any{
			"session": sessionID,
			"error":   err.Error(),
		})
	}

	log.LogInfoWithFields("flow", "Authorization code exchanged", map[string]any{
		"session":           newID,
		"has_refresh_token": set.RefreshToken != "",
	})
	return newID, set, nil
}

// CleanupAbandonedAttempts drops in-flight entries whose last transition is
// older than staleAttemptTTL. Redirecting and failed entries for browsers
// that never came back are reclaimed here; a callback that arrives later
// still works, its PKCE material has its own lifetime in storage.
func (c *Controller) CleanupAbandonedAttempts(_ context.Context) (int, error) {
	cutoff := c.now().Add(-staleAttemptTTL)

	c.mu.Lock()
	defer c.mu.Unlock()
	deleted := 0
	for sessionID, a := range c.inFlight {
		if a.state != StateCallbackProcessing && a.updatedAt.Before(cutoff) {
			delete(c.inFlight, sessionID)
			deleted++
		}
	}
	return deleted, nil
}

var _ storage.AttemptSweeper = (*Controller)(nil)
