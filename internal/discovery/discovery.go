// Package discovery fetches and caches the OIDC discovery document for the
// configured identity provider.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/ioutil"
	"github.com/SrujanaJ313/claimant-gateway/internal/log"
	"github.com/SrujanaJ313/claimant-gateway/internal/urlutil"
)

// wellKnownSuffix is the fixed OIDC discovery path under the realm.
const wellKnownSuffix = "/.well-known/openid-configuration"

// maxResponseSize bounds the discovery payload read.
const maxResponseSize = 1 << 20

// Document is the subset of the OIDC discovery document this gateway uses.
type Document struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
}

// Error reports an unreachable or malformed discovery document. It is fatal
// to the boot sequence; there is no retry.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oidc discovery %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Resolver fetches the discovery document once and caches it for the process
// lifetime. A restart forces a re-fetch; there is no TTL.
type Resolver struct {
	cfg    config.Provider
	client *http.Client

	mu  sync.Mutex
	doc *Document
}

// NewResolver creates a resolver for the configured provider.
func NewResolver(cfg config.Provider) *Resolver {
	return &Resolver{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout.Std(),
		},
	}
}

// WellKnownURL builds the discovery URL for the configured realm, collapsing
// duplicate path separators since config variants differ in trailing-slash
// handling.
func (r *Resolver) WellKnownURL() string {
	raw := r.cfg.BaseURL + "/oauth2" + r.cfg.RealmPath + wellKnownSuffix
	return urlutil.CollapseSlashes(raw)
}

// Resolve returns the cached document or fetches it.
func (r *Resolver) Resolve(ctx context.Context) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc != nil {
		return r.doc, nil
	}

	wellKnownURL := r.WellKnownURL()
	log.LogInfoWithFields("discovery", "Fetching OIDC discovery document", map[string]any{
		"url": wellKnownURL,
	})

	doc, err := r.fetch(ctx, wellKnownURL)
	if err != nil {
		return nil, &Error{URL: wellKnownURL, Err: err}
	}
	if err := r.validate(doc); err != nil {
		return nil, &Error{URL: wellKnownURL, Err: err}
	}

	r.doc = doc
	return doc, nil
}

func (r *Resolver) fetch(ctx context.Context, wellKnownURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body := ioutil.ReadLimited(resp.Body, 1024)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(body))
	}

	var doc Document
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return &doc, nil
}

// validate requires all four endpoints, absolute and origin-consistent with
// the configured base URL.
func (r *Resolver) validate(doc *Document) error {
	base, err := url.Parse(r.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	endpoints := map[string]string{
		"authorization_endpoint": doc.AuthorizationEndpoint,
		"token_endpoint":         doc.TokenEndpoint,
		"userinfo_endpoint":      doc.UserinfoEndpoint,
		"end_session_endpoint":   doc.EndSessionEndpoint,
	}
	for name, endpoint := range endpoints {
		if endpoint == "" {
			return fmt.Errorf("document missing %s", name)
		}
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s is not an absolute URL: %q", name, endpoint)
		}
		if u.Scheme != base.Scheme || u.Host != base.Host {
			return fmt.Errorf("%s origin %s://%s does not match provider origin %s://%s",
				name, u.Scheme, u.Host, base.Scheme, base.Host)
		}
	}
	return nil
}
