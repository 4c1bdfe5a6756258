// Package server wires the HTTP surface to the chapter pipeline.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/internal/config"
	"github.com/jackzampolin/panelvox/internal/home"
	"github.com/jackzampolin/panelvox/internal/jobs"
	"github.com/jackzampolin/panelvox/internal/pipeline"
	"github.com/jackzampolin/panelvox/internal/providers"
	"github.com/jackzampolin/panelvox/internal/server/endpoints"
	"github.com/jackzampolin/panelvox/internal/store"
	"github.com/jackzampolin/panelvox/internal/svcctx"
)

// Server is the main PanelVox HTTP server. It owns the provider registry,
// the chapter runner, and the processor, and rebuilds the processing stack
// when the config file changes.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	runner     *jobs.Runner
	store      store.Store
	configMgr  *config.Manager
	homeDir    *home.Dir
	logger     *slog.Logger

	// processor is swapped atomically on config reload so in-flight
	// chapters keep their stack while new chapters pick up the change.
	processor *swappableProcessor

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8399)
	Port int
	// Store is the backing document store.
	Store store.Store
	// Home is the panelvox home directory.
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Home == nil {
		return nil, fmt.Errorf("home directory is required")
	}
	if cfg.ConfigManager == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	appCfg := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = appCfg.Server.Port
	}
	if cfg.Port == 0 {
		cfg.Port = 8399
	}

	registry := providers.NewRegistryFromConfig(appCfg.ToProviderRegistryConfig())
	registry.SetLogger(cfg.Logger)

	s := &Server{
		registry:  registry,
		store:     cfg.Store,
		configMgr: cfg.ConfigManager,
		homeDir:   cfg.Home,
		logger:    cfg.Logger,
		processor: &swappableProcessor{},
	}
	s.processor.swap(s.buildProcessor(appCfg))

	workers := appCfg.Defaults.ChapterWorkers
	s.runner = jobs.NewRunner(s.processor, workers, cfg.Logger)

	// Hot reload: rebuild providers and the processing stack. Worker
	// count stays fixed for the life of the server.
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		s.processor.swap(s.buildProcessor(c))
		cfg.Logger.Info("provider registry and processor reloaded from config")
	})

	s.services = &svcctx.Services{
		Store:         cfg.Store,
		Registry:      registry,
		Runner:        s.runner,
		ConfigManager: cfg.ConfigManager,
		Logger:        cfg.Logger,
		Home:          cfg.Home,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux)
	s.registerStatic(mux)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.withServices(mux),
		ReadTimeout:  10 * time.Minute, // uploads can be large
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// buildProcessor assembles the vision provider, synthesizer, and processor
// from the current config.
func (s *Server) buildProcessor(c *config.Config) *pipeline.Processor {
	var vision providers.VisionProvider
	if v, err := s.registry.GetVision(c.Defaults.VisionProvider); err == nil {
		vision = v
	} else {
		s.logger.Warn("default vision provider unavailable", "provider", c.Defaults.VisionProvider, "error", err)
		vision = providers.NewMockVisionProvider()
	}

	audio := &pipeline.DiskAudioStore{
		Root:      s.homeDir.AudioPath(),
		URLPrefix: "/audio",
	}
	synth := pipeline.NewSynthesizer(
		s.registry.TTSChain(),
		audio,
		time.Duration(c.Defaults.RetryBaseSecs*float64(time.Second)),
		time.Duration(c.Defaults.RetryCapSecs*float64(time.Second)),
		s.logger,
	)
	return pipeline.NewProcessor(s.store, vision, synth, s.logger)
}

// registerStatic serves ingested page images and synthesized audio.
func (s *Server) registerStatic(mux *http.ServeMux) {
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(s.homeDir.UploadsPath()))))
	mux.Handle("GET /audio/", http.StripPrefix("/audio/",
		http.FileServer(http.Dir(s.homeDir.AudioPath()))))
}

// Start starts the server. It blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.runner.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown drains the runner and stops the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.runner.Stop(shutdownCtx); err != nil {
		s.logger.Error("runner drain error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
// The processor is re-read per request so config reloads take effect.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		services := *s.services
		services.Processor = s.processor.current()
		ctx := svcctx.WithServices(r.Context(), &services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// swappableProcessor lets config reloads replace the pipeline stack while
// the runner keeps a stable ChapterProcessor reference.
type swappableProcessor struct {
	mu    sync.RWMutex
	inner *pipeline.Processor
}

func (p *swappableProcessor) swap(next *pipeline.Processor) {
	p.mu.Lock()
	p.inner = next
	p.mu.Unlock()
}

func (p *swappableProcessor) current() *pipeline.Processor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inner
}

func (p *swappableProcessor) ProcessChapter(ctx context.Context, req *pipeline.ChapterRequest) error {
	return p.current().ProcessChapter(ctx, req)
}
