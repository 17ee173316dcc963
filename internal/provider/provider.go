// Package provider is the OIDC identity-provider client. One Client serves
// both supported providers; per-kind differences (ForgeRock journey
// parameter, prompt handling) are resolved once at construction into a list
// of authorization-URL options, never branched at call sites.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/discovery"
	"github.com/SrujanaJ313/claimant-gateway/internal/ioutil"
	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

// Client talks to one identity provider. Construct it with New after
// discovery has resolved the endpoints.
type Client struct {
	conf          oauth2.Config
	userinfoURL   string
	endSessionURL string
	authOptions   []oauth2.AuthCodeOption
	httpClient    *http.Client
}

// New builds the provider client from validated config and a resolved
// discovery document.
func New(cfg config.Provider, doc *discovery.Document) *Client {
	opts := []oauth2.AuthCodeOption{}
	if cfg.PromptLogin {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "login"))
	}
	// ForgeRock AM selects the authentication tree via the service parameter.
	if cfg.Kind == config.ProviderForgeRock && cfg.Journey != "" {
		opts = append(opts, oauth2.SetAuthURLParam("service", cfg.Journey))
	}

	return &Client{
		conf: oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      splitScope(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:  doc.AuthorizationEndpoint,
				TokenURL: doc.TokenEndpoint,
				// Public client: no secret, client_id goes in the form body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userinfoURL:   doc.UserinfoEndpoint,
		endSessionURL: doc.EndSessionEndpoint,
		authOptions:   opts,
		httpClient:    &http.Client{Timeout: cfg.Timeout.Std()},
	}
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}

// AuthorizationURL builds the URL the browser is sent to for login.
func (c *Client) AuthorizationURL(state, codeChallenge string) string {
	opts := append([]oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}, c.authOptions...)
	return c.conf.AuthCodeURL(state, opts...)
}

// Exchange redeems an authorization code at the token endpoint using the
// stored PKCE verifier. A non-2xx response becomes a *TokenExchangeError
// carrying the provider's error code and description.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*tokens.TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.conf.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, asTokenExchangeError(err)
	}
	return fromOAuth2Token(tok), nil
}

// Refresh redeems a refresh token for a new token set.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*tokens.TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, asTokenExchangeError(err)
	}
	return fromOAuth2Token(tok), nil
}

// UserInfo fetches the user profile with the given access token.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*tokens.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userinfoURL, nil)
	if err != nil {
		return nil, &UserinfoError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UserinfoError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body := ioutil.ReadLimited(resp.Body, 1024)
		return nil, &UserinfoError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body),
		}
	}

	var profile tokens.UserProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, &UserinfoError{Err: fmt.Errorf("decoding userinfo: %w", err)}
	}
	return &profile, nil
}

// EndSessionURL builds the provider logout URL. The id_token_hint tells the
// provider which session to terminate.
func (c *Client) EndSessionURL(idTokenHint, postLogoutRedirectURI string) string {
	params := url.Values{}
	if idTokenHint != "" {
		params.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirectURI != "" {
		params.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	if len(params) == 0 {
		return c.endSessionURL
	}
	return c.endSessionURL + "?" + params.Encode()
}

func fromOAuth2Token(tok *oauth2.Token) *tokens.TokenSet {
	set := &tokens.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry.Unix(),
	}
	if tok.Expiry.IsZero() {
		// No expiry from the provider; assume a short-lived token.
		set.ExpiresAt = time.Now().Add(time.Hour).Unix()
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = idToken
	}
	return set
}

func asTokenExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &TokenExchangeError{
			StatusCode:  retrieveErr.Response.StatusCode,
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
		}
	}
	return &TokenExchangeError{Err: err}
}
