package types

import "strings"

// ProviderConfig holds the credential, endpoint and model for one backend.
type ProviderConfig struct {
	Provider string `json:"provider" yaml:"provider" env:"PROVIDER"`
	APIKey   string `json:"-" yaml:"api_key" env:"API_KEY"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url" env:"BASE_URL"`
	Model    string `json:"model,omitempty" yaml:"model" env:"MODEL"`
}

// ProviderConfigs is the read-only provider table handed to one run.
type ProviderConfigs struct {
	Default   ProviderConfig            `json:"default" yaml:"default"`
	Providers map[string]ProviderConfig `json:"providers,omitempty" yaml:"providers"`
}

// Resolve picks the configuration for a persona binding.
// The bound provider (or the default provider when the binding names none)
// decides the endpoint and credential. A binding without its own model takes
// the provider entry's model, then the global default model.
func (c ProviderConfigs) Resolve(b ProviderBinding) (ProviderConfig, bool) {
	name := strings.ToLower(strings.TrimSpace(b.Provider))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(c.Default.Provider))
	}
	if name == "" {
		return ProviderConfig{Model: b.Model}, false
	}

	cfg, ok := c.Providers[name]
	if !ok && strings.EqualFold(c.Default.Provider, name) {
		cfg, ok = c.Default, true
	}
	if !ok {
		return ProviderConfig{Provider: name, Model: b.Model}, false
	}
	cfg.Provider = name
	if m := strings.TrimSpace(b.Model); m != "" {
		cfg.Model = m
	} else if cfg.Model == "" {
		cfg.Model = c.Default.Model
	}
	return cfg, true
}
