// Package session answers the "who is this?" question for every guarded
// request: validates stored tokens, refreshes them before they expire, and
// tears everything down on logout.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SrujanaJ313/claimant-gateway/internal/flow"
	"github.com/SrujanaJ313/claimant-gateway/internal/log"
	"github.com/SrujanaJ313/claimant-gateway/internal/storage"
	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

// refreshBuffer is how long before access-token expiry a refresh fires.
const refreshBuffer = 5 * time.Second

// State is the authentication snapshot handed to the route guard and the
// /api/me handler.
type State struct {
	IsAuthenticated bool                `json:"isAuthenticated"`
	User            *tokens.UserProfile `json:"user,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// Manager owns session lifecycles: authentication checks, proactive token
// refresh, and logout. Overlapping checks for the same session collapse into
// one upstream round trip.
type Manager struct {
	ctrl  *flow.Controller
	store storage.Store
	group singleflight.Group
	now   func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewManager creates a session manager on top of the flow controller's
// provider client and the shared token store.
func NewManager(ctrl *flow.Controller, store storage.Store) *Manager {
	return &Manager{
		ctrl:   ctrl,
		store:  store,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// CheckAuthentication resolves the session's current state. No tokens, or
// expired tokens without a usable refresh token, mean a plain
// unauthenticated state; a userinfo rejection clears the stored tokens and
// surfaces the error. Concurrent calls for one session share a single
// result.
func (m *Manager) CheckAuthentication(ctx context.Context, sessionID string) State {
	v, _, _ := m.group.Do(sessionID, func() (any, error) {
		return m.check(ctx, sessionID), nil
	})
	return v.(State)
}

func (m *Manager) check(ctx context.Context, sessionID string) State {
	set, err := m.store.LoadTokens(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNoTokens) {
			// A broken store degrades to "not signed in", never to a crash.
			log.LogWarnWithFields("session", "Token store read failed", map[string]any{
				"session": sessionID,
				"error":   err.Error(),
			})
		}
		return State{}
	}

	if !set.Valid(m.now()) {
		set, err = m.refresh(ctx, sessionID, set)
		if err != nil {
			// The session is simply over; logging in again is the fix.
			m.clear(ctx, sessionID)
			return State{}
		}
	}

	client, err := m.ctrl.Provider(ctx)
	if err != nil {
		return State{Error: err.Error()}
	}

	profile, err := client.UserInfo(ctx, set.AccessToken)
	if err != nil {
		log.LogWarnWithFields("session", "Userinfo rejected stored token", map[string]any{
			"session": sessionID,
			"error":   err.Error(),
		})
		m.clear(ctx, sessionID)
		return State{Error: err.Error()}
	}

	m.scheduleRefresh(sessionID, set)
	return State{IsAuthenticated: true, User: profile}
}

// refresh exchanges the refresh token for a new token set and persists it.
func (m *Manager) refresh(ctx context.Context, sessionID string, set *tokens.TokenSet) (*tokens.TokenSet, error) {
	if set.RefreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	client, err := m.ctrl.Provider(ctx)
	if err != nil {
		return nil, err
	}
	fresh, err := client.Refresh(ctx, set.RefreshToken)
	if err != nil {
		return nil, err
	}
	if fresh.RefreshToken == "" {
		// Providers that do not rotate keep the old one live.
		fresh.RefreshToken = set.RefreshToken
	}
	if err := m.store.SaveTokens(ctx, sessionID, fresh); err != nil {
		return nil, err
	}
	log.LogDebugWithFields("session", "Access token refreshed", map[string]any{
		"session": sessionID,
	})
	return fresh, nil
}

// scheduleRefresh arms a one-shot timer that renews the token set shortly
// before it expires, so guarded requests rarely pay the refresh latency.
func (m *Manager) scheduleRefresh(sessionID string, set *tokens.TokenSet) {
	if set.RefreshToken == "" {
		return
	}
	delay := time.Until(time.Unix(set.ExpiresAt, 0)) - refreshBuffer
	if delay < 0 {
		delay = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if t, ok := m.timers[sessionID]; ok {
		t.Stop()
	}
	m.timers[sessionID] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, sessionID)
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		current, err := m.store.LoadTokens(ctx, sessionID)
		if err != nil {
			return
		}
		fresh, err := m.refresh(ctx, sessionID, current)
		if err != nil {
			log.LogWarnWithFields("session", "Background refresh failed", map[string]any{
				"session": sessionID,
				"error":   err.Error(),
			})
			return
		}
		m.scheduleRefresh(sessionID, fresh)
	})
}

// Logout ends the session. Local state is cleared no matter what, so the
// user is signed out here even when the provider is unreachable. The
// returned URL, when not empty, is the provider's end-session endpoint with
// the id_token_hint attached; the browser should be sent there to terminate
// the provider-side session too.
func (m *Manager) Logout(ctx context.Context, sessionID, postLogoutRedirectURI string) string {
	set, loadErr := m.store.LoadTokens(ctx, sessionID)

	fields := map[string]any{"session": sessionID}
	var endSessionURL string
	if loadErr == nil && set.IDToken != "" {
		if client, err := m.ctrl.Provider(ctx); err == nil {
			endSessionURL = client.EndSessionURL(set.IDToken, postLogoutRedirectURI)
		}
		if claims, err := tokens.ParseIDTokenClaims(set.IDToken); err == nil {
			fields["subject"] = claims.Subject
		}
	}

	m.clear(ctx, sessionID)
	log.LogInfoWithFields("session", "Session ended", fields)
	return endSessionURL
}

func (m *Manager) clear(ctx context.Context, sessionID string) {
	m.mu.Lock()
	if t, ok := m.timers[sessionID]; ok {
		t.Stop()
		delete(m.timers, sessionID)
	}
	m.mu.Unlock()

	if err := m.store.ClearTokens(ctx, sessionID); err != nil {
		log.LogWarnWithFields("session", "Clearing tokens failed", map[string]any{
			"session": sessionID,
			"error":   err.Error(),
		})
	}
	if err := m.store.ClearPKCE(ctx, sessionID); err != nil && !errors.Is(err, storage.ErrNoPKCEMaterial) {
		log.LogWarnWithFields("session", "Clearing login attempt failed", map[string]any{
			"session": sessionID,
			"error":   err.Error(),
		})
	}
}

// Dispose stops all background refresh timers. The manager must not be used
// afterwards.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}
