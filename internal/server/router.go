package server

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/crypto"
	"github.com/SrujanaJ313/claimant-gateway/internal/flow"
	"github.com/SrujanaJ313/claimant-gateway/internal/session"
)

// NewRouter assembles the gateway's route table. The callback path is taken
// from the registered redirect URI so the two can never drift apart.
func NewRouter(cfg *config.Config, ctrl *flow.Controller, sessions *session.Manager, enc crypto.Encryptor) (http.Handler, error) {
	redirect, err := url.Parse(cfg.Provider.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URI: %w", err)
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/oauth/callback"
	}

	handlers := NewAuthHandlers(cfg.Gateway, ctrl, sessions, enc)
	guard := NewRouteGuardMiddleware(cfg.Gateway, ctrl, sessions, enc)

	mux := http.NewServeMux()
	mux.Handle("/healthz", NewHealthHandler())
	mux.HandleFunc("/login", handlers.Login)
	mux.HandleFunc(callbackPath, handlers.Callback)
	mux.HandleFunc("/logout", handlers.Logout)
	mux.HandleFunc("/signed-out", handlers.SignedOut)
	mux.HandleFunc("/api/me", handlers.Me)
	mux.Handle("/", guard(http.HandlerFunc(handlers.Portal)))

	return ChainMiddleware(mux,
		NewRecoverMiddleware("http"),
		NewLoggerMiddleware("http"),
	), nil
}
