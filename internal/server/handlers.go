package server

import (
	"errors"
	"net/http"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/cookie"
	"github.com/SrujanaJ313/claimant-gateway/internal/crypto"
	"github.com/SrujanaJ313/claimant-gateway/internal/discovery"
	"github.com/SrujanaJ313/claimant-gateway/internal/flow"
	"github.com/SrujanaJ313/claimant-gateway/internal/jsonwriter"
	"github.com/SrujanaJ313/claimant-gateway/internal/log"
	"github.com/SrujanaJ313/claimant-gateway/internal/pkce"
	"github.com/SrujanaJ313/claimant-gateway/internal/provider"
	"github.com/SrujanaJ313/claimant-gateway/internal/session"
	"github.com/SrujanaJ313/claimant-gateway/internal/urlutil"
)

// AuthHandlers serves the login, callback, logout, and identity endpoints.
type AuthHandlers struct {
	gateway  config.Gateway
	ctrl     *flow.Controller
	sessions *session.Manager
	enc      crypto.Encryptor
}

// NewAuthHandlers creates the authentication endpoint handlers.
func NewAuthHandlers(gw config.Gateway, ctrl *flow.Controller, sessions *session.Manager, enc crypto.Encryptor) *AuthHandlers {
	return &AuthHandlers{gateway: gw, ctrl: ctrl, sessions: sessions, enc: enc}
}

// Login explicitly starts a sign-in attempt and redirects the browser to the
// provider's authorization endpoint. Already-authenticated sessions skip the
// round trip.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	sessionID, err := ensureSession(w, r, h.enc, h.gateway.SessionTTL.Std())
	if err != nil {
		renderRetry(w, http.StatusServiceUnavailable, "Secure sign-in is unavailable in this browser environment.")
		return
	}

	if state := h.sessions.CheckAuthentication(r.Context(), sessionID); state.IsAuthenticated {
		http.Redirect(w, r, h.gateway.PostLoginPath, http.StatusFound)
		return
	}

	authURL, err := h.ctrl.Begin(r.Context(), sessionID)
	if err != nil {
		h.renderBeginError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *AuthHandlers) renderBeginError(w http.ResponseWriter, err error) {
	var discErr *discovery.Error
	switch {
	case errors.As(err, &discErr), errors.Is(err, pkce.ErrCryptoUnavailable):
		log.LogErrorWithFields("auth", "Cannot start sign-in", map[string]any{
			"error": err.Error(),
		})
		renderRetry(w, http.StatusServiceUnavailable, "Sign-in is temporarily unavailable. Please try again.")
	case errors.Is(err, flow.ErrCallbackInFlight):
		renderRetry(w, http.StatusConflict, "Your sign-in is still being processed. Please try again in a moment.")
	default:
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
	}
}

// Callback completes the flow when the provider redirects back with a code
// and state. Every failure lands on the retry screen; the browser never sees
// token material or raw provider errors.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionFromRequest(r, h.enc)
	if err != nil || sessionID == "" {
		// No session to bind the callback to; restart from the top.
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		log.LogWarnWithFields("auth", "Provider returned an authorization error", map[string]any{
			"error":             errCode,
			"error_description": query.Get("error_description"),
		})
		renderRetry(w, http.StatusBadGateway, "The sign-in service reported a problem. Please try again.")
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		renderRetry(w, http.StatusBadRequest, "The sign-in response was incomplete. Please try again.")
		return
	}

	newID, _, err := h.ctrl.HandleCallback(r.Context(), sessionID, code, state)
	if err != nil {
		h.renderCallbackError(w, r, err)
		return
	}

	// The tokens live under the rotated identifier; the pre-login cookie
	// value must not carry into the authenticated session.
	if err := setSession(w, h.enc, newID, h.gateway.SessionTTL.Std()); err != nil {
		log.LogErrorWithFields("auth", "Failed to seal rotated session cookie", map[string]any{
			"error": err.Error(),
		})
		renderRetry(w, http.StatusServiceUnavailable, "Completing your sign-in failed. Please try again.")
		return
	}

	http.Redirect(w, r, h.gateway.PostLoginPath, http.StatusFound)
}

func (h *AuthHandlers) renderCallbackError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		csrfErr     *flow.CsrfMismatchError
		verifierErr *flow.MissingVerifierError
		exchangeErr *provider.TokenExchangeError
	)
	switch {
	case errors.Is(err, flow.ErrCallbackInFlight):
		// The first callback is still exchanging; send the browser home and
		// let the guard pick up whichever outcome it produced.
		http.Redirect(w, r, h.gateway.PostLoginPath, http.StatusFound)
	case errors.As(err, &csrfErr):
		log.LogWarnWithFields("auth", "Rejected callback", map[string]any{
			"reason": "state mismatch",
		})
		renderRetry(w, http.StatusBadRequest, "This sign-in attempt could not be verified. Please try again.")
	case errors.As(err, &verifierErr):
		renderRetry(w, http.StatusBadRequest, "This sign-in link has expired or was already used. Please try again.")
	case errors.As(err, &exchangeErr):
		log.LogErrorWithFields("auth", "Token exchange failed", map[string]any{
			"status": exchangeErr.StatusCode,
			"code":   exchangeErr.Code,
		})
		renderRetry(w, http.StatusBadGateway, "Completing your sign-in failed. Please try again.")
	default:
		log.LogErrorWithFields("auth", "Callback processing failed", map[string]any{
			"error": err.Error(),
		})
		renderRetry(w, http.StatusBadGateway, "Completing your sign-in failed. Please try again.")
	}
}

// Logout tears down the local session and, when the provider supports it,
// forwards the browser to the provider's end-session endpoint so the SSO
// session dies too.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionFromRequest(r, h.enc)
	if err == nil && sessionID != "" {
		postLogout, err := urlutil.JoinPath(h.gateway.BaseURL, "/signed-out")
		if err != nil {
			postLogout = h.gateway.BaseURL + "/signed-out"
		}
		if endSessionURL := h.sessions.Logout(r.Context(), sessionID, postLogout); endSessionURL != "" {
			cookie.ClearSession(w)
			http.Redirect(w, r, endSessionURL, http.StatusFound)
			return
		}
	}
	cookie.ClearSession(w)
	http.Redirect(w, r, "/signed-out", http.StatusFound)
}

// SignedOut confirms the session has ended. Unguarded; reaching it must not
// trigger another sign-in.
func (h *AuthHandlers) SignedOut(w http.ResponseWriter, _ *http.Request) {
	renderSignedOut(w)
}

// Me reports the session's authentication snapshot as JSON without ever
// redirecting, so page scripts can poll it.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionFromRequest(r, h.enc)
	if err != nil || sessionID == "" {
		_ = jsonwriter.Write(w, session.State{})
		return
	}
	_ = jsonwriter.Write(w, h.sessions.CheckAuthentication(r.Context(), sessionID))
}

// Portal is the guarded landing page. The route guard has already attached
// the user profile to the context.
func (h *AuthHandlers) Portal(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonwriter.WriteNotFound(w, "Not Found")
		return
	}
	user, ok := UserFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Unauthorized")
		return
	}
	renderPortal(w, user)
}
