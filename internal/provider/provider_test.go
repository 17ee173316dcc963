package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/discovery"
)

func testDoc(base string) *discovery.Document {
	return &discovery.Document{
		Issuer:                base + "/oauth2",
		AuthorizationEndpoint: base + "/authorize",
		TokenEndpoint:         base + "/access_token",
		UserinfoEndpoint:      base + "/userinfo",
		EndSessionEndpoint:    base + "/endSession",
	}
}

func testConfig() config.Provider {
	return config.Provider{
		Kind:        config.ProviderForgeRock,
		ClientID:    "claimant-portal",
		RedirectURI: "https://claims.example.gov/oauth/callback",
		Scope:       "openid profile email",
		Timeout:     config.Duration(5 * time.Second),
	}
}

func TestAuthorizationURL(t *testing.T) {
	t.Run("journey becomes the service parameter", func(t *testing.T) {
		cfg := testConfig()
		cfg.Journey = "UsernamePassword"
		client := New(cfg, testDoc("https://sso.example.gov"))

		u, err := url.Parse(client.AuthorizationURL("the-state", "the-challenge"))
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "UsernamePassword", q.Get("service"))
		assert.Equal(t, "the-state", q.Get("state"))
		assert.Equal(t, "the-challenge", q.Get("code_challenge"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
	})

	t.Run("no service parameter for pingone", func(t *testing.T) {
		cfg := testConfig()
		cfg.Kind = config.ProviderPingOne
		cfg.Journey = ""
		client := New(cfg, testDoc("https://auth.pingone.com"))

		u, err := url.Parse(client.AuthorizationURL("s", "c"))
		require.NoError(t, err)
		assert.Empty(t, u.Query().Get("service"))
	})

	t.Run("prompt login when configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.PromptLogin = true
		client := New(cfg, testDoc("https://sso.example.gov"))

		u, err := url.Parse(client.AuthorizationURL("s", "c"))
		require.NoError(t, err)
		assert.Equal(t, "login", u.Query().Get("prompt"))
	})
}

func TestEndSessionURL(t *testing.T) {
	client := New(testConfig(), testDoc("https://sso.example.gov"))

	t.Run("with hint and redirect", func(t *testing.T) {
		u, err := url.Parse(client.EndSessionURL("the-id-token", "https://claims.example.gov/signed-out"))
		require.NoError(t, err)
		assert.Equal(t, "/endSession", u.Path)
		assert.Equal(t, "the-id-token", u.Query().Get("id_token_hint"))
		assert.Equal(t, "https://claims.example.gov/signed-out", u.Query().Get("post_logout_redirect_uri"))
	})

	t.Run("bare endpoint without parameters", func(t *testing.T) {
		assert.Equal(t, "https://sso.example.gov/endSession", client.EndSessionURL("", ""))
	})
}

func TestUserInfo(t *testing.T) {
	t.Run("sends bearer token", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"sub":"claimant-123","email":"claimant@example.gov"}`))
		}))
		t.Cleanup(server.Close)

		client := New(testConfig(), testDoc(server.URL))
		profile, err := client.UserInfo(context.Background(), "the-access-token")
		require.NoError(t, err)

		assert.Equal(t, "Bearer the-access-token", gotAuth)
		assert.Equal(t, "claimant-123", profile.Subject)
	})

	t.Run("non-200 becomes a userinfo error with status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
		}))
		t.Cleanup(server.Close)

		client := New(testConfig(), testDoc(server.URL))
		_, err := client.UserInfo(context.Background(), "expired")

		var uiErr *UserinfoError
		require.ErrorAs(t, err, &uiErr)
		assert.Equal(t, http.StatusUnauthorized, uiErr.StatusCode)
	})

	t.Run("malformed body fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>not json</html>"))
		}))
		t.Cleanup(server.Close)

		client := New(testConfig(), testDoc(server.URL))
		_, err := client.UserInfo(context.Background(), "token")

		var uiErr *UserinfoError
		assert.ErrorAs(t, err, &uiErr)
	})
}
