package config

// Config holds panelvox configuration.
// Stored at: {storage_root}/config.yaml
type Config struct {
	VisionProviders map[string]VisionProviderCfg `mapstructure:"vision_providers" yaml:"vision_providers"`
	TTSProviders    map[string]TTSProviderCfg    `mapstructure:"tts_providers" yaml:"tts_providers"`
	Defaults        DefaultsCfg                  `mapstructure:"defaults" yaml:"defaults"`
	Server          ServerCfg                    `mapstructure:"server" yaml:"server"`
}

// VisionProviderCfg configures a vision extraction provider.
type VisionProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "openrouter"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// TTSProviderCfg configures a TTS provider.
type TTSProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "elevenlabs", "openai"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	Voice     string  `mapstructure:"voice" yaml:"voice"`           // Default voice (openai)
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections and retry behavior.
type DefaultsCfg struct {
	VisionProvider string   `mapstructure:"vision_provider" yaml:"vision_provider"` // Default vision provider
	TTSProviders   []string `mapstructure:"tts_providers" yaml:"tts_providers"`     // Ordered TTS fallback chain
	RetryBaseSecs  float64  `mapstructure:"retry_base_secs" yaml:"retry_base_secs"` // Base delay for synthesis retries
	RetryCapSecs   float64  `mapstructure:"retry_cap_secs" yaml:"retry_cap_secs"`   // Cap on synthesis retry delay
	NarratorGender string   `mapstructure:"narrator_gender" yaml:"narrator_gender"` // "male" or "female", narrate mode default
	ChapterWorkers int      `mapstructure:"chapter_workers" yaml:"chapter_workers"` // Max chapters processed concurrently
}

// ServerCfg holds HTTP server configuration.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		VisionProviders: map[string]VisionProviderCfg{
			"openrouter": {
				Type:      "openrouter",
				Model:     "anthropic/claude-3.5-sonnet",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 2.0,
				Enabled:   true,
			},
		},
		TTSProviders: map[string]TTSProviderCfg{
			"elevenlabs": {
				Type:      "elevenlabs",
				Model:     "eleven_multilingual_v2",
				APIKey:    "${ELEVENLABS_API_KEY}",
				RateLimit: 10.0,
				Enabled:   true,
			},
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o-mini-tts",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 8.0,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			VisionProvider: "openrouter",
			TTSProviders:   []string{"elevenlabs", "openai"},
			RetryBaseSecs:  2.0,
			RetryCapSecs:   30.0,
			NarratorGender: "female",
			ChapterWorkers: 2,
		},
		Server: ServerCfg{
			Host: "0.0.0.0",
			Port: 8399,
		},
	}
}

// GetVisionProvider returns a vision provider config by name.
func (c *Config) GetVisionProvider(name string) (VisionProviderCfg, bool) {
	cfg, ok := c.VisionProviders[name]
	return cfg, ok
}

// GetTTSProvider returns a TTS provider config by name.
func (c *Config) GetTTSProvider(name string) (TTSProviderCfg, bool) {
	cfg, ok := c.TTSProviders[name]
	return cfg, ok
}

// EnabledTTSProviders returns all enabled TTS providers.
func (c *Config) EnabledTTSProviders() map[string]TTSProviderCfg {
	result := make(map[string]TTSProviderCfg)
	for name, cfg := range c.TTSProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
