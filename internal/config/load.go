package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Load reads, normalizes and validates the config file. Any problem is fatal;
// the gateway never starts with guessed URLs or missing fields.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Normalize fills derived and defaulted fields. The authority form
// {base}/oauth2{realmPath} is split at "/oauth2" so either spelling works,
// mirroring what the identity-provider team hands out.
func Normalize(cfg *Config) error {
	p := &cfg.Provider

	if p.Authority != "" && (p.BaseURL == "" || p.RealmPath == "") {
		base, realm, err := splitAuthority(p.Authority)
		if err != nil {
			return fmt.Errorf("provider.authority: %w", err)
		}
		p.BaseURL = base
		p.RealmPath = realm
	}

	if p.Scope == "" {
		p.Scope = "openid profile email"
	}
	if p.Timeout == 0 {
		p.Timeout = Duration(30 * time.Second)
	}

	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = StorageMemory
	}
	if cfg.Gateway.SessionTTL == 0 {
		cfg.Gateway.SessionTTL = Duration(12 * time.Hour)
	}
	if cfg.Gateway.PostLoginPath == "" {
		cfg.Gateway.PostLoginPath = "/"
	}
	return nil
}

// splitAuthority splits a full authority URL into base URL and realm path at
// the "/oauth2" segment, e.g.
// https://host/sso/oauth2/realms/root/realms/claims ->
// (https://host/sso, /realms/root/realms/claims)
func splitAuthority(authority string) (baseURL, realmPath string, err error) {
	u, err := url.Parse(authority)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("must be an absolute URL")
	}

	idx := strings.Index(u.Path, "/oauth2")
	if idx == -1 {
		// No /oauth2 segment; treat the whole path as the realm path.
		return u.Scheme + "://" + u.Host, u.Path, nil
	}

	baseURL = u.Scheme + "://" + u.Host + u.Path[:idx]
	realmPath = u.Path[idx+len("/oauth2"):]
	return baseURL, realmPath, nil
}

// ValidationError reports every config problem at once, each prefixed with
// its field path.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Validate checks the normalized config and reports every problem at once.
func Validate(cfg *Config) error {
	var problems []string

	check := func(ok bool, path, msg string) {
		if !ok {
			problems = append(problems, path+": "+msg)
		}
	}

	check(cfg.Gateway.Addr != "", "gateway.addr", "is required")
	check(cfg.Gateway.BaseURL != "", "gateway.baseUrl", "is required")
	if cfg.Gateway.BaseURL != "" {
		u, err := url.Parse(cfg.Gateway.BaseURL)
		check(err == nil && u.Scheme != "" && u.Host != "", "gateway.baseUrl", "must be an absolute URL")
	}
	check(len(cfg.Gateway.EncryptionKey) == 32, "gateway.encryptionKey", "must be exactly 32 bytes")

	p := &cfg.Provider
	switch p.Kind {
	case ProviderForgeRock, ProviderPingOne:
	case "":
		problems = append(problems, "provider.kind: is required")
	default:
		problems = append(problems, fmt.Sprintf("provider.kind: unknown kind %q", p.Kind))
	}
	check(p.ClientID != "", "provider.clientId", "is required")
	check(p.RedirectURI != "", "provider.redirectUri", "is required")
	if p.RedirectURI != "" {
		u, err := url.Parse(p.RedirectURI)
		check(err == nil && u.Scheme != "" && u.Host != "", "provider.redirectUri", "must be an absolute URL")
	}
	check(p.BaseURL != "", "provider.baseUrl", "is required (directly or via provider.authority)")
	if p.BaseURL != "" {
		u, err := url.Parse(p.BaseURL)
		check(err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != "", "provider.baseUrl", "must be an absolute http(s) URL")
	}
	check(p.RealmPath != "", "provider.realmPath", "is required (directly or via provider.authority)")
	check(strings.Contains(p.Scope, "openid"), "provider.scope", "must include the openid scope")
	check(p.Journey == "" || p.Kind == ProviderForgeRock, "provider.journey", "is only supported for forgerock providers")

	if cfg.Storage.Kind == StorageFirestore {
		check(cfg.Storage.GCPProject != "", "storage.gcpProject", "is required for firestore storage")
		check(cfg.Storage.Collection != "", "storage.collection", "is required for firestore storage")
	} else {
		check(cfg.Storage.Kind == StorageMemory, "storage.kind", fmt.Sprintf("unknown kind %q", cfg.Storage.Kind))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
