package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/orgsync/pkg/application"
	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/observed"
	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
	"github.com/felixgeelhaar/orgsync/pkg/remote/memory"
)

func newObserver(p *memory.Platform) *application.ObserverService {
	return application.NewObserverService(p, application.ObserverOptions{
		Concurrency: 2,
		ReadDelay:   time.Millisecond,
		Logger:      quietLogger(),
	})
}

func TestObserve_ReadsRepositoryState(t *testing.T) {
	policy := desired.ProtectionPolicy{RequiredApprovals: 1}
	p := memory.New().
		AddOrg("acme").
		AddRepo("acme", "svc-a", "main", "dev").
		Protect("acme", "svc-a", "main", policy).
		AddProject("acme", "Roadmap")

	spec := fullSpec()
	state := newObserver(p).Observe(context.Background(), spec)

	if state.Org != observed.Present {
		t.Fatalf("expected org present, got %s", state.Org)
	}
	repo := state.Repository("svc-a")
	if repo.Presence != observed.Present || repo.BranchesPresence != observed.Present {
		t.Fatalf("unexpected repository observation: %+v", repo)
	}
	if repo.DefaultBranch != "main" {
		t.Errorf("expected default main, got %s", repo.DefaultBranch)
	}
	if !repo.HasBranch("dev") || repo.HasBranch("staging") {
		t.Errorf("unexpected branches: %v", repo.Branches)
	}
	mainBranch := repo.Branches["main"]
	if mainBranch.ProtectionPresence != observed.Present || !mainBranch.Protection.Equal(&policy) {
		t.Errorf("unexpected protection: %+v", mainBranch)
	}
	if repo.Branches["dev"].ProtectionPresence != observed.Absent {
		t.Error("unprotected branch should report absent protection")
	}

	if state.Repository("svc-b").Presence != observed.Absent {
		t.Error("svc-b should be absent")
	}
	if state.Project("Roadmap").Presence != observed.Present {
		t.Error("project should be present")
	}
	if p.MutatingCalls() != 0 {
		t.Error("observation must not mutate the remote")
	}
}

func TestObserve_FailuresBecomeUnknown(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		target string
		check  func(t *testing.T, s *observed.State)
	}{
		{
			name: "repository lookup", op: memory.OpRepoExists, target: "svc-a",
			check: func(t *testing.T, s *observed.State) {
				r := s.Repository("svc-a")
				if r.Presence != observed.Unknown || r.Err == "" {
					t.Errorf("expected unknown with error, got %+v", r)
				}
			},
		},
		{
			name: "branch listing", op: memory.OpListBranches, target: "svc-a",
			check: func(t *testing.T, s *observed.State) {
				r := s.Repository("svc-a")
				if r.Presence != observed.Present || r.BranchesPresence != observed.Unknown {
					t.Errorf("expected present repo with unknown branches, got %+v", r)
				}
			},
		},
		{
			name: "protection lookup", op: memory.OpGetBranchProtection, target: "svc-a/main",
			check: func(t *testing.T, s *observed.State) {
				b := s.Repository("svc-a").Branches["main"]
				if b.ProtectionPresence != observed.Unknown || b.ProtectionErr == "" {
					t.Errorf("expected unknown protection, got %+v", b)
				}
			},
		},
		{
			name: "project lookup", op: memory.OpProjectExists, target: "Roadmap",
			check: func(t *testing.T, s *observed.State) {
				if s.Project("Roadmap").Presence != observed.Unknown {
					t.Error("expected unknown project")
				}
			},
		},
		{
			name: "organization lookup", op: memory.OpOrgExists, target: "acme",
			check: func(t *testing.T, s *observed.State) {
				if s.Org != observed.Unknown || s.OrgErr == "" {
					t.Errorf("expected unknown org, got %s", s.Org)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := memory.New().AddOrg("acme").AddRepo("acme", "svc-a", "main")
			p.FailOn(tt.op, tt.target, remote.Transient(tt.op, errors.New("timeout")), 2)

			tt.check(t, newObserver(p).Observe(context.Background(), fullSpec()))
		})
	}
}

func TestObserve_SingleBlipIsRetried(t *testing.T) {
	p := memory.New().AddOrg("acme").AddRepo("acme", "svc-a", "main")
	p.FailOn(memory.OpRepoExists, "svc-a", remote.Transient("repo_exists", errors.New("reset")), 1)

	state := newObserver(p).Observe(context.Background(), svcASpec())
	if got := state.Repository("svc-a").Presence; got != observed.Present {
		t.Errorf("expected present after retry, got %s", got)
	}
	if got := p.Count(memory.OpRepoExists); got != 2 {
		t.Errorf("expected 2 lookups, got %d", got)
	}
}

func TestObserve_PermanentFailureIsNotRetried(t *testing.T) {
	p := memory.New().AddOrg("acme").AddRepo("acme", "svc-a", "main")
	p.FailOn(memory.OpRepoExists, "svc-a", remote.Permanent("repo_exists", errors.New("403 forbidden")), 1)

	state := newObserver(p).Observe(context.Background(), svcASpec())
	repo := state.Repository("svc-a")
	if repo.Presence != observed.Unknown || repo.Err == "" {
		t.Errorf("expected unknown with error, got %+v", repo)
	}
	if got := p.Count(memory.OpRepoExists); got != 1 {
		t.Errorf("expected a single lookup, got %d", got)
	}
}

func TestObserve_AbsentOrganizationStopsEarly(t *testing.T) {
	p := memory.New()

	state := newObserver(p).Observe(context.Background(), fullSpec())
	if state.Org != observed.Absent {
		t.Errorf("expected absent org, got %s", state.Org)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("expected only the organization lookup, got %d calls", n)
	}
}
