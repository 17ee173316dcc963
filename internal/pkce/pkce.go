// Package pkce generates Proof Key for Code Exchange material (RFC 7636)
// and the anti-CSRF state parameter for the authorization code flow.
package pkce

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ChallengeMethodS256 is the only challenge method this gateway sends.
const ChallengeMethodS256 = "S256"

// ErrCryptoUnavailable indicates the platform's secure random source failed.
// There is no recovery; the environment is unsupported.
var ErrCryptoUnavailable = errors.New("secure random source unavailable")

// Material is the per-login-attempt secret bundle. Created fresh for every
// attempt, stored transiently, consumed exactly once by the callback handler.
type Material struct {
	CodeVerifier  string `json:"code_verifier"`
	CodeChallenge string `json:"code_challenge"`
	State         string `json:"state"`
}

// GenerateVerifier produces a 43-character code verifier: 32 bytes of
// cryptographically secure randomness, base64url encoded without padding.
func GenerateVerifier() (string, error) {
	return randomToken(32)
}

// DeriveChallenge computes the S256 code challenge:
// BASE64URL(SHA256(verifier)), no padding.
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateState produces an unguessable nonce binding the authorization
// request to its callback.
func GenerateState() (string, error) {
	return randomToken(32)
}

// Generate creates a fresh material bundle for one login attempt.
func Generate() (*Material, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	return &Material{
		CodeVerifier:  verifier,
		CodeChallenge: DeriveChallenge(verifier),
		State:         state,
	}, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
