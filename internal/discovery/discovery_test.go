package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
)

func testProvider(baseURL string) config.Provider {
	return config.Provider{
		Kind:      config.ProviderForgeRock,
		BaseURL:   baseURL,
		RealmPath: "/realms/root/realms/claimants",
		Timeout:   config.Duration(5 * time.Second),
	}
}

func serveDocument(t *testing.T, mutate func(doc map[string]string)) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]string{
			"issuer":                 server.URL + "/oauth2/realms/root/realms/claimants",
			"authorization_endpoint": server.URL + "/oauth2/realms/root/realms/claimants/authorize",
			"token_endpoint":         server.URL + "/oauth2/realms/root/realms/claimants/access_token",
			"userinfo_endpoint":      server.URL + "/oauth2/realms/root/realms/claimants/userinfo",
			"end_session_endpoint":   server.URL + "/oauth2/realms/root/realms/claimants/connect/endSession",
		}
		if mutate != nil {
			mutate(doc)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestWellKnownURL(t *testing.T) {
	tests := []struct {
		name      string
		baseURL   string
		realmPath string
		expected  string
	}{
		{
			name:      "plain join",
			baseURL:   "https://sso.example.gov/sso",
			realmPath: "/realms/root/realms/claimants",
			expected:  "https://sso.example.gov/sso/oauth2/realms/root/realms/claimants/.well-known/openid-configuration",
		},
		{
			name:      "trailing slash on base collapses",
			baseURL:   "https://sso.example.gov/sso/",
			realmPath: "/realms/root/realms/claimants",
			expected:  "https://sso.example.gov/sso/oauth2/realms/root/realms/claimants/.well-known/openid-configuration",
		},
		{
			name:      "doubled slashes collapse",
			baseURL:   "https://sso.example.gov/sso/",
			realmPath: "//realms/root//realms/claimants/",
			expected:  "https://sso.example.gov/sso/oauth2/realms/root/realms/claimants/.well-known/openid-configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(config.Provider{BaseURL: tt.baseURL, RealmPath: tt.realmPath})
			assert.Equal(t, tt.expected, r.WellKnownURL())
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches and caches the document", func(t *testing.T) {
		server := serveDocument(t, nil)
		resolver := NewResolver(testProvider(server.URL))

		doc, err := resolver.Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/oauth2/realms/root/realms/claimants/access_token", doc.TokenEndpoint)

		server.Close()
		// The server is gone; a cache hit is the only way this succeeds.
		again, err := resolver.Resolve(ctx)
		require.NoError(t, err)
		assert.Same(t, doc, again)
	})

	t.Run("missing endpoint fails", func(t *testing.T) {
		server := serveDocument(t, func(doc map[string]string) {
			delete(doc, "userinfo_endpoint")
		})
		resolver := NewResolver(testProvider(server.URL))

		_, err := resolver.Resolve(ctx)
		require.Error(t, err)

		var discErr *Error
		require.ErrorAs(t, err, &discErr)
		assert.Contains(t, discErr.Error(), "userinfo_endpoint")
	})

	t.Run("relative endpoint fails", func(t *testing.T) {
		server := serveDocument(t, func(doc map[string]string) {
			doc["token_endpoint"] = "/oauth2/access_token"
		})
		resolver := NewResolver(testProvider(server.URL))

		_, err := resolver.Resolve(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token_endpoint")
	})

	t.Run("foreign origin fails", func(t *testing.T) {
		server := serveDocument(t, func(doc map[string]string) {
			doc["authorization_endpoint"] = "https://evil.example.com/authorize"
		})
		resolver := NewResolver(testProvider(server.URL))

		_, err := resolver.Resolve(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match provider origin")
	})

	t.Run("non-200 response fails with excerpt", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "realm not found", http.StatusNotFound)
		}))
		t.Cleanup(server.Close)
		resolver := NewResolver(testProvider(server.URL))

		_, err := resolver.Resolve(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 404")
		assert.Contains(t, err.Error(), "realm not found")
	})

	t.Run("unreachable host fails", func(t *testing.T) {
		cfg := testProvider("http://127.0.0.1:1")
		cfg.Timeout = config.Duration(500 * time.Millisecond)
		resolver := NewResolver(cfg)

		_, err := resolver.Resolve(ctx)
		var discErr *Error
		require.ErrorAs(t, err, &discErr)
		assert.NotEmpty(t, discErr.URL)
	})

	t.Run("error wraps cause", func(t *testing.T) {
		server := serveDocument(t, func(doc map[string]string) {
			delete(doc, "issuer")
			delete(doc, "end_session_endpoint")
		})
		resolver := NewResolver(testProvider(server.URL))

		_, err := resolver.Resolve(ctx)
		require.Error(t, err)

		var discErr *Error
		require.ErrorAs(t, err, &discErr)
		assert.Equal(t, resolver.WellKnownURL(), discErr.URL)
		assert.Error(t, discErr.Unwrap())
	})
}
