package providers

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds references to vision and TTS providers.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu              sync.RWMutex
	visionProviders map[string]VisionProvider
	ttsProviders    map[string]TTSProvider
	ttsOrder        []string
	logger          *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		visionProviders: make(map[string]VisionProvider),
		ttsProviders:    make(map[string]TTSProvider),
		logger:          slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterVision registers a vision provider by name.
func (r *Registry) RegisterVision(name string, provider VisionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visionProviders[name] = provider
	if r.logger != nil {
		r.logger.Info("registered vision provider", "name", name)
	}
}

// RegisterTTS registers a TTS provider by name and appends it to the
// fallback order if not already present.
func (r *Registry) RegisterTTS(name string, provider TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttsProviders[name] = provider
	found := false
	for _, n := range r.ttsOrder {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		r.ttsOrder = append(r.ttsOrder, name)
	}
	if r.logger != nil {
		r.logger.Info("registered TTS provider", "name", name)
	}
}

// GetVision returns a vision provider by name.
func (r *Registry) GetVision(name string) (VisionProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.visionProviders[name]
	if !ok {
		return nil, fmt.Errorf("vision provider not found: %s", name)
	}
	return provider, nil
}

// GetTTS returns a TTS provider by name.
func (r *Registry) GetTTS(name string) (TTSProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.ttsProviders[name]
	if !ok {
		return nil, fmt.Errorf("TTS provider not found: %s", name)
	}
	return provider, nil
}

// TTSChain returns the registered TTS providers in fallback order.
func (r *Registry) TTSChain() []TTSProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := make([]TTSProvider, 0, len(r.ttsOrder))
	for _, name := range r.ttsOrder {
		if p, ok := r.ttsProviders[name]; ok {
			chain = append(chain, p)
		}
	}
	return chain
}

// ListVision returns all registered vision provider names.
func (r *Registry) ListVision() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.visionProviders))
	for name := range r.visionProviders {
		names = append(names, name)
	}
	return names
}

// ListTTS returns registered TTS provider names in fallback order.
func (r *Registry) ListTTS() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.ttsOrder...)
}

// HasVision checks if a vision provider is registered.
func (r *Registry) HasVision(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.visionProviders[name]
	return ok
}

// HasTTS checks if a TTS provider is registered.
func (r *Registry) HasTTS(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ttsProviders[name]
	return ok
}

// RegistryConfig defines the providers to instantiate from config.
// This mirrors the config.Config structure for provider setup.
type RegistryConfig struct {
	// VisionProviders maps provider names to their config
	VisionProviders map[string]VisionProviderConfig

	// TTSProviders maps provider names to their config
	TTSProviders map[string]TTSProviderConfig

	// TTSOrder is the fallback order for synthesis. Names not present in
	// TTSProviders are skipped.
	TTSOrder []string
}

// VisionProviderConfig matches config.VisionProviderCfg with resolved API key.
type VisionProviderConfig struct {
	Type      string  // "openrouter"
	Model     string  // Model name
	APIKey    string  // Resolved API key
	RateLimit float64 // Requests per second
	Enabled   bool
}

// TTSProviderConfig matches config.TTSProviderCfg with resolved API key.
type TTSProviderConfig struct {
	Type      string  // "elevenlabs", "openai"
	Model     string  // Model name
	Voice     string  // Default voice (openai)
	APIKey    string  // Resolved API key
	RateLimit float64 // Requests per second
	Enabled   bool
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with valid API keys will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.applyConfig(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.visionProviders = make(map[string]VisionProvider)
	r.ttsProviders = make(map[string]TTSProvider)
	r.ttsOrder = nil
	r.applyConfigLocked(cfg)

	if r.logger != nil {
		r.logger.Info("reloaded provider registry",
			"vision", len(r.visionProviders),
			"tts", len(r.ttsProviders))
	}
}

// applyConfig applies configuration (used during init).
func (r *Registry) applyConfig(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyConfigLocked(cfg)
}

func (r *Registry) applyConfigLocked(cfg RegistryConfig) {
	for name, provCfg := range cfg.VisionProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		provider := createVisionProvider(provCfg)
		if provider != nil {
			r.visionProviders[name] = provider
		}
	}

	for name, provCfg := range cfg.TTSProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		provider := createTTSProvider(provCfg)
		if provider != nil {
			r.ttsProviders[name] = provider
		}
	}

	// Fallback order: configured order first, then any remaining providers.
	for _, name := range cfg.TTSOrder {
		if _, ok := r.ttsProviders[name]; ok {
			r.ttsOrder = append(r.ttsOrder, name)
		}
	}
	for name := range r.ttsProviders {
		found := false
		for _, n := range r.ttsOrder {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			r.ttsOrder = append(r.ttsOrder, name)
		}
	}
}

// createVisionProvider creates a vision provider based on provider type.
func createVisionProvider(cfg VisionProviderConfig) VisionProvider {
	switch cfg.Type {
	case "openrouter":
		client, err := NewOpenRouterVisionClient(OpenRouterVisionConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
			RPS:    cfg.RateLimit,
		})
		if err != nil {
			return nil
		}
		return client
	default:
		return nil
	}
}

// createTTSProvider creates a TTS provider based on provider type.
func createTTSProvider(cfg TTSProviderConfig) TTSProvider {
	switch cfg.Type {
	case "elevenlabs":
		return NewElevenLabsTTSClient(ElevenLabsTTSConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
		})
	case "openai":
		return NewOpenAITTSClient(OpenAITTSConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Voice:     cfg.Voice,
			RateLimit: cfg.RateLimit,
		})
	default:
		return nil
	}
}
