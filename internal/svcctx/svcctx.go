// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/panelvox/internal/config"
	"github.com/jackzampolin/panelvox/internal/home"
	"github.com/jackzampolin/panelvox/internal/jobs"
	"github.com/jackzampolin/panelvox/internal/pipeline"
	"github.com/jackzampolin/panelvox/internal/providers"
	"github.com/jackzampolin/panelvox/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store         store.Store
	Registry      *providers.Registry
	Runner        *jobs.Runner
	Processor     *pipeline.Processor
	ConfigManager *config.Manager
	Logger        *slog.Logger
	Home          *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the document store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// RunnerFrom extracts the chapter runner from context.
func RunnerFrom(ctx context.Context) *jobs.Runner {
	if s := ServicesFrom(ctx); s != nil {
		return s.Runner
	}
	return nil
}

// ProcessorFrom extracts the chapter processor from context.
func ProcessorFrom(ctx context.Context) *pipeline.Processor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Processor
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
