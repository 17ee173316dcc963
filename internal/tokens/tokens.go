// Package tokens defines the token set owned by the token store and the
// user profile derived from the userinfo endpoint.
package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSet holds the tokens from a successful code exchange or refresh.
// Overwritten wholesale on refresh, deleted on logout. RefreshToken may be
// empty; some grants omit it.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`

	// ExpiresAt is the access token expiry in epoch seconds.
	ExpiresAt int64 `json:"expires_at"`
}

// Valid reports whether the token set can still be used: the expiry must be
// strictly in the future.
func (t *TokenSet) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt > now.Unix()
}

// ExpiresIn returns the remaining lifetime, which is negative once expired.
func (t *TokenSet) ExpiresIn(now time.Time) time.Duration {
	return time.Duration(t.ExpiresAt-now.Unix()) * time.Second
}

// UserProfile is the claim set fetched from the userinfo endpoint. Replaced
// wholesale on each fetch.
type UserProfile struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email,omitempty"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// IDTokenClaims are the claims this gateway reads out of an ID token.
type IDTokenClaims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// ParseIDTokenClaims decodes an ID token without verifying its signature.
// The result is a hint only (end-session id_token_hint, refresh scheduling);
// authentication decisions always go through the userinfo endpoint.
func ParseIDTokenClaims(idToken string) (*IDTokenClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, err
	}

	out := &IDTokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
