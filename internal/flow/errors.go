package flow

import (
	"errors"
	"fmt"
)

// ErrCallbackInFlight means a callback for this session is already being
// processed. The duplicate invocation is dropped rather than racing the
// first exchange.
var ErrCallbackInFlight = errors.New("callback already in flight for session")

// CsrfMismatchError reports a state parameter that does not match the value
// stored when the login was started. The token endpoint is never called;
// the user must restart login.
type CsrfMismatchError struct {
	Expected string
	Got      string
}

func (e *CsrfMismatchError) Error() string {
	return "state parameter mismatch, possible CSRF"
}

// MissingVerifierError reports that no PKCE material was stored for the
// session, e.g. storage was cleared between the redirect and the return.
type MissingVerifierError struct {
	Err error
}

func (e *MissingVerifierError) Error() string {
	return fmt.Sprintf("no code verifier stored for session: %v", e.Err)
}

func (e *MissingVerifierError) Unwrap() error { return e.Err }
