package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed. In config files a
// secret must be referenced as {"$env": "VAR_NAME"}; inline literals are
// rejected so credentials never live in the file.
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// UnmarshalJSON resolves {"$env": "VAR"} references at load time.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var ref struct {
		Env string `json:"$env"`
	}
	if err := json.Unmarshal(data, &ref); err == nil && ref.Env != "" {
		value, ok := os.LookupEnv(ref.Env)
		if !ok {
			return fmt.Errorf("environment variable %s is not set", ref.Env)
		}
		*s = Secret(value)
		return nil
	}

	var literal string
	if err := json.Unmarshal(data, &literal); err != nil {
		return fmt.Errorf("secret must be a {\"$env\": \"VAR_NAME\"} reference")
	}
	if literal != "" {
		return fmt.Errorf("secret must use an environment variable reference, not an inline value")
	}
	*s = ""
	return nil
}

// Duration unmarshals JSON strings like "30s" via time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ProviderKind selects the identity-provider profile.
type ProviderKind string

const (
	ProviderForgeRock ProviderKind = "forgerock"
	ProviderPingOne   ProviderKind = "pingone"
)

// StorageKind selects the token-store backend.
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
)

// Provider configures the OIDC identity provider this gateway authenticates
// against. Either Authority (the full issuer URL) or BaseURL+RealmPath must be
// set; Normalize derives one from the other.
type Provider struct {
	Kind ProviderKind `json:"kind"`

	// Authority is the full issuer URL, e.g.
	// https://sso.example.gov/sso/oauth2/realms/root/realms/claims
	Authority string `json:"authority,omitempty"`

	// BaseURL and RealmPath together identify the provider when Authority is
	// not given, e.g. https://sso.example.gov/sso and /realms/root/realms/claims
	BaseURL   string `json:"baseUrl,omitempty"`
	RealmPath string `json:"realmPath,omitempty"`

	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`
	Scope       string `json:"scope,omitempty"`

	// Journey names the authentication tree to request (ForgeRock only).
	Journey string `json:"journey,omitempty"`

	// PromptLogin forces re-authentication at the provider on every login.
	// Kept as a switch because deployments disagree on the right default.
	PromptLogin bool `json:"promptLogin,omitempty"`

	// Timeout bounds discovery, token exchange, userinfo and end-session
	// calls. Defaults to 30s.
	Timeout Duration `json:"timeout,omitempty"`
}

// Storage configures where token sets and PKCE material live.
type Storage struct {
	Kind StorageKind `json:"kind,omitempty"`

	// Firestore settings, required when Kind is "firestore".
	GCPProject string `json:"gcpProject,omitempty"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// Gateway configures the HTTP front of the portal.
type Gateway struct {
	Addr    string `json:"addr"`
	BaseURL string `json:"baseUrl"`

	// SessionTTL caps the browsing session. Defaults to 12h.
	SessionTTL Duration `json:"sessionTtl,omitempty"`

	// EncryptionKey seals session cookies and persisted token documents.
	// Must decode to 32 bytes.
	EncryptionKey Secret `json:"encryptionKey"`

	// PostLoginPath is where the callback handler sends the browser after a
	// successful exchange when no return target is known. Defaults to "/".
	PostLoginPath string `json:"postLoginPath,omitempty"`
}

// Config is the root configuration, loaded once at startup.
type Config struct {
	Gateway  Gateway  `json:"gateway"`
	Provider Provider `json:"provider"`
	Storage  Storage  `json:"storage"`
}
