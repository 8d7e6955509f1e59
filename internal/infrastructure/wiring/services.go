package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/orgsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/orgsync/pkg/application"
	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
	"github.com/felixgeelhaar/orgsync/pkg/github"
	"github.com/felixgeelhaar/orgsync/pkg/remote/memory"
)

// ErrMissingToken is returned when the github backend has no credentials.
var ErrMissingToken = errors.New("missing github token")

// AppServices exposes the application services wired to one remote backend.
type AppServices struct {
	Config    *config.Config
	Client    remote.Client
	Observer  *application.ObserverService
	Executor  *application.Executor
	Reconcile *application.ReconcileService
	// Memory is set when the in-memory backend is selected.
	Memory *memory.Platform
}

// BuildAppServices builds the client for cfg.Backend and the services on
// top of it. org seeds the in-memory backend so dry runs have an
// organization to plan against.
func BuildAppServices(ctx context.Context, cfg *config.Config, org string, logger *slog.Logger) (*AppServices, error) {
	if logger == nil {
		logger = slog.Default()
	}

	services := &AppServices{Config: cfg}
	switch cfg.Backend {
	case config.BackendMemory:
		services.Memory = memory.New().AddOrg(org)
		services.Client = services.Memory
	case config.BackendGitHub:
		client, err := NewGitHubClient(ctx, cfg, os.Getenv)
		if err != nil {
			return nil, err
		}
		services.Client = client
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}

	services.Observer = application.NewObserverService(services.Client, application.ObserverOptions{
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	services.Executor = application.NewExecutor(services.Client, application.ExecutorOptions{
		Concurrency:  cfg.Concurrency,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		Logger:       logger,
	})
	services.Reconcile = application.NewReconcileService(services.Observer, services.Executor, logger)

	return services, nil
}

// NewGitHubClient builds the GitHub adapter, reading the token from the
// configured environment variable.
func NewGitHubClient(ctx context.Context, cfg *config.Config, getenv func(string) string) (*github.Client, error) {
	token := cfg.Token(getenv)
	if token == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingToken, cfg.GitHub.TokenEnv)
	}
	return github.NewClient(ctx, github.Config{Token: token, BaseURL: cfg.GitHub.BaseURL})
}
