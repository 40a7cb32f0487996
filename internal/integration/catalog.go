package integration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CredentialConfig holds the deploy-time secrets for one provider. Which
// fields matter depends on the provider's auth type: OAuth2 providers use
// ClientID/ClientSecret, basic-auth providers use Username/Password, API-key
// providers use APIKey (and sometimes Username for a paired identifier).
type CredentialConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	APIKey       string `yaml:"api_key"`
	Token        string `yaml:"token"`
}

// Configured reports whether any credential field is set.
func (c CredentialConfig) Configured() bool {
	return c.ClientID != "" || c.ClientSecret != "" || c.Username != "" ||
		c.Password != "" || c.APIKey != "" || c.Token != ""
}

// RateLimitConfig overrides a provider's default request budget.
type RateLimitConfig struct {
	Requests int    `yaml:"requests"`
	Per      string `yaml:"per"`
}

// ProviderConfig is one entry in the integration catalog.
type ProviderConfig struct {
	ID          string            `yaml:"id"`
	Enabled     *bool             `yaml:"enabled"`
	BaseURL     string            `yaml:"base_url"`
	Credentials CredentialConfig  `yaml:"credentials"`
	RateLimit   *RateLimitConfig  `yaml:"rate_limit"`
	Extra       map[string]string `yaml:"extra"`
}

// IsEnabled treats an absent enabled flag as true; catalog entries exist to
// be used unless explicitly switched off.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Catalog is the full set of provider configurations loaded at boot.
type Catalog struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// Provider returns the config for an id, or false when the catalog does not
// mention it.
func (c *Catalog) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// LoadCatalog reads a YAML catalog file. ${VAR} placeholders in the file are
// expanded from the environment before parsing, so secrets stay out of the
// file itself.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read integration catalog: %w", err)
	}

	expanded := os.ExpandEnv(string(raw))

	var catalog Catalog
	if err := yaml.Unmarshal([]byte(expanded), &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse integration catalog: %w", err)
	}

	seen := make(map[string]bool, len(catalog.Providers))
	for _, p := range catalog.Providers {
		if p.ID == "" {
			return nil, fmt.Errorf("integration catalog entry missing id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate integration catalog entry: %q", p.ID)
		}
		seen[p.ID] = true
	}

	return &catalog, nil
}
