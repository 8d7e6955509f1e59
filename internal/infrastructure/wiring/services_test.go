package wiring

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/orgsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/orgsync/pkg/application"
	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
)

func TestBuildAppServicesMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendMemory

	services, err := BuildAppServices(context.Background(), cfg, "acme", nil)
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}
	if services.Memory == nil || services.Reconcile == nil || services.Observer == nil || services.Executor == nil {
		t.Fatalf("expected non-nil services, got %+v", services)
	}

	ok, err := services.Client.OrgExists(context.Background(), "acme")
	if err != nil || !ok {
		t.Fatalf("memory backend should be seeded with the org, got %v, %v", ok, err)
	}

	spec := &desired.OrgSpec{
		Name: "acme",
		Repositories: []desired.RepoSpec{{
			Name:          "svc-a",
			Visibility:    desired.VisibilityPublic,
			Branches:      []desired.BranchSpec{{Name: "main"}},
			DefaultBranch: "main",
		}},
	}
	run, err := services.Reconcile.Reconcile(context.Background(), spec, application.RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(run.Plan.Actions) != 1 {
		t.Errorf("expected a single CreateRepo, got %v", run.Plan.Actions)
	}
}

func TestNewGitHubClientRequiresToken(t *testing.T) {
	cfg := config.Default()

	_, err := NewGitHubClient(context.Background(), cfg, func(string) string { return "" })
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	client, err := NewGitHubClient(context.Background(), cfg, func(name string) string {
		if name == "GITHUB_TOKEN" {
			return "ghp_test"
		}
		return ""
	})
	if err != nil || client == nil {
		t.Fatalf("expected client, got %v", err)
	}
}

func TestBuildAppServicesUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "gitlab"

	if _, err := BuildAppServices(context.Background(), cfg, "acme", nil); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
