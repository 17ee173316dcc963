package provider

import "fmt"

// TokenExchangeError reports a failed token-endpoint call, including replayed
// or expired authorization codes. Fatal per attempt; the user restarts login.
type TokenExchangeError struct {
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *TokenExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	if e.Description != "" {
		return fmt.Sprintf("token exchange failed: %s (%s, HTTP %d)", e.Code, e.Description, e.StatusCode)
	}
	return fmt.Sprintf("token exchange failed: %s (HTTP %d)", e.Code, e.StatusCode)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// UserinfoError reports a failed userinfo fetch. Callers downgrade the
// session to unauthenticated instead of crashing.
type UserinfoError struct {
	StatusCode int
	Err        error
}

func (e *UserinfoError) Error() string {
	return fmt.Sprintf("userinfo fetch failed: %v", e.Err)
}

func (e *UserinfoError) Unwrap() error { return e.Err }
