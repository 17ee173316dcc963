package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/cookie"
	"github.com/SrujanaJ313/claimant-gateway/internal/crypto"
	"github.com/SrujanaJ313/claimant-gateway/internal/discovery"
	"github.com/SrujanaJ313/claimant-gateway/internal/flow"
	"github.com/SrujanaJ313/claimant-gateway/internal/jsonwriter"
	"github.com/SrujanaJ313/claimant-gateway/internal/log"
	"github.com/SrujanaJ313/claimant-gateway/internal/pkce"
	"github.com/SrujanaJ313/claimant-gateway/internal/session"
	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

type contextKey string

const userContextKey contextKey = "authenticated_user"

// WithUser attaches the authenticated user profile to the request context.
func WithUser(ctx context.Context, user *tokens.UserProfile) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user set by the route guard.
func UserFromContext(ctx context.Context) (*tokens.UserProfile, bool) {
	user, ok := ctx.Value(userContextKey).(*tokens.UserProfile)
	return user, ok
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for interface detection
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher
func (r *responseWriterDelegator) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)
var _ http.Flusher = (*responseWriterDelegator)(nil)

// NewLoggerMiddleware adds request/response logging
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}
			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Logf("<%s> Recovered from panic: %v", prefix, err)
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// sessionFromRequest opens the sealed session cookie. Any value the
// gateway did not seal itself, including a raw identifier planted by
// another party, fails decryption and counts as no session.
func sessionFromRequest(r *http.Request, enc crypto.Encryptor) (string, error) {
	sealed, err := cookie.GetSession(r)
	if err != nil || sealed == "" {
		return "", cookie.ErrNoSession
	}
	return enc.Decrypt(sealed)
}

// setSession seals the identifier and writes the cookie.
func setSession(w http.ResponseWriter, enc crypto.Encryptor, sessionID string, ttl time.Duration) error {
	sealed, err := enc.Encrypt(sessionID)
	if err != nil {
		return err
	}
	cookie.SetSession(w, sealed, ttl)
	return nil
}

// ensureSession returns the browsing-session identifier, minting and sealing
// a fresh one when the request carries none that opens.
func ensureSession(w http.ResponseWriter, r *http.Request, enc crypto.Encryptor, ttl time.Duration) (string, error) {
	if id, err := sessionFromRequest(r, enc); err == nil && id != "" {
		return id, nil
	}
	id, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", err
	}
	if err := setSession(w, enc, id, ttl); err != nil {
		return "", err
	}
	return id, nil
}

// NewRouteGuardMiddleware protects a subtree behind mandatory sign-in. A
// request without a valid session is redirected into the login flow rather
// than shown an error; only environment-level failures (metadata
// unreachable, no secure randomness) produce the try-again screen, since a
// redirect loop would not help there.
func NewRouteGuardMiddleware(gw config.Gateway, ctrl *flow.Controller, sessions *session.Manager, enc crypto.Encryptor) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := ensureSession(w, r, enc, gw.SessionTTL.Std())
			if err != nil {
				renderRetry(w, http.StatusServiceUnavailable, "Secure sign-in is unavailable in this browser environment.")
				return
			}

			state := sessions.CheckAuthentication(r.Context(), sessionID)
			if state.IsAuthenticated {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), state.User)))
				return
			}

			// A callback for this session may already be mid-exchange; do not
			// start a competing attempt over it.
			if ctrl.SessionState(r.Context(), sessionID) == flow.StateCallbackProcessing {
				renderRetry(w, http.StatusConflict, "Your sign-in is still being processed. Please try again in a moment.")
				return
			}

			authURL, err := ctrl.Begin(r.Context(), sessionID)
			if err != nil {
				var discErr *discovery.Error
				switch {
				case errors.As(err, &discErr), errors.Is(err, pkce.ErrCryptoUnavailable):
					log.LogErrorWithFields("guard", "Cannot start sign-in", map[string]any{
						"error": err.Error(),
					})
					renderRetry(w, http.StatusServiceUnavailable, "Sign-in is temporarily unavailable. Please try again.")
				case errors.Is(err, flow.ErrCallbackInFlight):
					// A callback for this session is mid-exchange; let it finish.
					renderRetry(w, http.StatusConflict, "Your sign-in is still being processed. Please try again in a moment.")
				default:
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
				return
			}

			http.Redirect(w, r, authURL, http.StatusFound)
		})
	}
}
