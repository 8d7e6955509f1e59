package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/orgsync/pkg/application"
	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
	"github.com/felixgeelhaar/orgsync/pkg/remote/memory"
)

func svcASpec() *desired.OrgSpec {
	return &desired.OrgSpec{
		Name: "acme",
		Repositories: []desired.RepoSpec{{
			Name:          "svc-a",
			Visibility:    desired.VisibilityPrivate,
			Branches:      []desired.BranchSpec{{Name: "main"}, {Name: "staging"}, {Name: "dev"}},
			DefaultBranch: "dev",
		}},
	}
}

func fullSpec() *desired.OrgSpec {
	spec := svcASpec()
	spec.Repositories[0].Branches[0].Protection = &desired.ProtectionPolicy{RequiredApprovals: 2, EnforceAdmins: true}
	spec.Repositories = append(spec.Repositories, desired.RepoSpec{
		Name:          "svc-b",
		Visibility:    desired.VisibilityPublic,
		License:       "mit",
		Branches:      []desired.BranchSpec{{Name: "trunk", Protection: &desired.ProtectionPolicy{RequireLinearHistory: true}}},
		DefaultBranch: "trunk",
	})
	spec.Projects = []desired.ProjectSpec{{Title: "Roadmap"}}
	return spec
}

func newReconciler(p *memory.Platform) *application.ReconcileService {
	observer := application.NewObserverService(p, application.ObserverOptions{
		ReadDelay: time.Millisecond,
		Logger:    quietLogger(),
	})
	return application.NewReconcileService(observer, newExecutor(p, 4), quietLogger())
}

func TestReconcile_CreatesMissingRepository(t *testing.T) {
	p := memory.New().AddOrg("acme")

	run, err := newReconciler(p).Reconcile(context.Background(), svcASpec(), application.RunOptions{})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	var got []string
	for _, a := range run.Plan.Actions {
		got = append(got, a.String())
	}
	want := []string{
		"CreateRepo(svc-a)",
		"CreateBranch(svc-a/staging)",
		"CreateBranch(svc-a/dev)",
		"SetDefaultBranch(svc-a -> dev)",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if !run.Summary.Clean() || run.Summary.Succeeded != 4 {
		t.Errorf("unexpected summary: %+v", run.Summary)
	}
	if run.ID == "" || run.FinishedAt.Before(run.StartedAt) {
		t.Errorf("unexpected run metadata: %+v", run)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	p := memory.New().AddOrg("acme")
	svc := newReconciler(p)

	first, err := svc.Reconcile(context.Background(), fullSpec(), application.RunOptions{})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if !first.Summary.Clean() {
		t.Fatalf("first run did not converge: %+v", first.Summary)
	}
	mutations := p.MutatingCalls()

	second, err := svc.Reconcile(context.Background(), fullSpec(), application.RunOptions{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !second.Plan.IsEmpty() {
		t.Errorf("expected empty plan, got %v", second.Plan.Actions)
	}
	if p.MutatingCalls() != mutations {
		t.Errorf("second run mutated the remote: %d -> %d", mutations, p.MutatingCalls())
	}
	if first.PlanHash == second.PlanHash {
		t.Error("plans of different content should hash differently")
	}
}

func TestReconcile_FullyPresentIsEmpty(t *testing.T) {
	p := memory.New().
		AddOrg("acme").
		AddRepo("acme", "svc-a", "dev", "main", "staging")

	run, err := newReconciler(p).Reconcile(context.Background(), svcASpec(), application.RunOptions{})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !run.Plan.IsEmpty() {
		t.Errorf("expected empty plan, got %v", run.Plan.Actions)
	}
	if run.Summary.AlreadySatisfied != 5 {
		t.Errorf("expected 5 satisfied resources, got %d", run.Summary.AlreadySatisfied)
	}
	if p.MutatingCalls() != 0 {
		t.Error("expected no mutating calls")
	}
}

func TestReconcile_FailFastValidation(t *testing.T) {
	p := memory.New().AddOrg("acme")
	spec := svcASpec()
	spec.Repositories[0].DefaultBranch = "release"

	_, err := newReconciler(p).Reconcile(context.Background(), spec, application.RunOptions{})

	var cfgErr *desired.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "repositories[0].default_branch" {
		t.Errorf("unexpected field: %s", cfgErr.Field)
	}
	if n := len(p.Calls()); n != 0 {
		t.Errorf("expected zero adapter calls, got %d", n)
	}
}

func TestReconcile_MissingOrganization(t *testing.T) {
	p := memory.New()

	_, err := newReconciler(p).Reconcile(context.Background(), svcASpec(), application.RunOptions{})

	var cfgErr *desired.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "name" {
		t.Fatalf("expected ConfigurationError on name, got %v", err)
	}
	if p.MutatingCalls() != 0 {
		t.Error("expected no mutating calls")
	}
}

func TestReconcile_DryRun(t *testing.T) {
	p := memory.New().AddOrg("acme")

	run, err := newReconciler(p).Reconcile(context.Background(), svcASpec(), application.RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(run.Plan.Actions) != 4 {
		t.Errorf("expected 4 planned actions, got %d", len(run.Plan.Actions))
	}
	if len(run.Results) != 0 || run.Summary.Planned != 4 {
		t.Errorf("dry run should not execute: %+v", run.Summary)
	}
	if p.MutatingCalls() != 0 {
		t.Error("dry run made mutating calls")
	}
}

func TestReconcile_ScopedRun(t *testing.T) {
	p := memory.New().AddOrg("acme")
	scope, err := planning.ParseScope([]string{"projects"})
	if err != nil {
		t.Fatal(err)
	}

	run, err := newReconciler(p).Reconcile(context.Background(), fullSpec(), application.RunOptions{Scope: scope})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(run.Plan.Actions) != 1 || run.Plan.Actions[0].Kind != planning.KindCreateProject {
		t.Errorf("expected only CreateProject, got %v", run.Plan.Actions)
	}
	if p.Count(memory.OpCreateRepo) != 0 {
		t.Error("out of scope repositories were created")
	}
	if run.Scope != "projects" {
		t.Errorf("unexpected scope label %q", run.Scope)
	}
}

func TestReconcile_TransientFailuresRecover(t *testing.T) {
	p := memory.New().AddOrg("acme")
	p.FailOn(memory.OpCreateBranch, "svc-a/dev", remote.Transient("create_branch", errors.New("502 bad gateway")), 2)

	run, err := newReconciler(p).Reconcile(context.Background(), svcASpec(), application.RunOptions{})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !run.Summary.FullyConverged() || len(run.Summary.Failures) != 0 {
		t.Errorf("expected convergence, got %+v", run.Summary)
	}
	for _, r := range run.Results {
		if r.Action.ID == "create-branch:svc-a/dev" && r.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", r.Attempts)
		}
	}
}

func TestReconcile_UnknownRepositoryIsDeferred(t *testing.T) {
	p := memory.New().AddOrg("acme")
	p.FailOn(memory.OpRepoExists, "svc-a", remote.Transient("repo_exists", errors.New("timeout")), 2)

	run, err := newReconciler(p).Reconcile(context.Background(), svcASpec(), application.RunOptions{})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !run.Plan.IsEmpty() {
		t.Errorf("unknown repository must not be created: %v", run.Plan.Actions)
	}
	if run.Summary.Deferred == 0 || run.Summary.Clean() {
		t.Errorf("expected deferrals, got %+v", run.Summary)
	}
	if p.Count(memory.OpCreateRepo) != 0 {
		t.Error("unexpected CreateRepo call")
	}
}

func TestReconcile_DriftedRepository(t *testing.T) {
	tests := []struct {
		name    string
		removal planning.RemovalPolicy
		want    []string
	}{
		{
			name:    "ignore leaves extra protection",
			removal: planning.RemovalIgnore,
			want:    []string{"SetDefaultBranch(svc-a -> dev)"},
		},
		{
			name:    "prune removes extra protection",
			removal: planning.RemovalPrune,
			want:    []string{"SetDefaultBranch(svc-a -> dev)", "RemoveProtection(svc-a/staging)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := memory.New().
				AddOrg("acme").
				AddRepo("acme", "svc-a", "dev", "main", "staging").
				SetDefault("acme", "svc-a", "main").
				Protect("acme", "svc-a", "staging", desired.ProtectionPolicy{RequiredApprovals: 1})

			run, err := newReconciler(p).Reconcile(context.Background(), svcASpec(), application.RunOptions{Removal: tt.removal})
			if err != nil {
				t.Fatalf("Reconcile failed: %v", err)
			}

			if len(run.Plan.Actions) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, run.Plan.Actions)
			}
			for i, a := range run.Plan.Actions {
				if a.String() != tt.want[i] {
					t.Errorf("action %d: got %s, want %s", i, a, tt.want[i])
				}
			}
			if run.Summary.Failed != 0 {
				t.Fatalf("unexpected failures: %+v", run.Summary.Failures)
			}
			if got := p.DefaultBranch("acme", "svc-a"); got != "dev" {
				t.Errorf("expected default branch dev, got %s", got)
			}

			policy, err := p.GetBranchProtection(context.Background(), "acme", "svc-a", "staging")
			if err != nil {
				t.Fatal(err)
			}
			if pruned := policy == nil; pruned != (tt.removal == planning.RemovalPrune) {
				t.Errorf("staging protection after run: %+v", policy)
			}
		})
	}
}
