package planning

import (
	"fmt"

	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/observed"
)

// PlanOptions tunes what the planner emits.
type PlanOptions struct {
	Scope   Scope
	Removal RemovalPolicy
}

// Planner is a domain service that diffs desired against observed state and
// produces an ordered, dependency-annotated plan.
type Planner struct {
	opts PlanOptions
}

// NewPlanner creates a new Planner instance.
func NewPlanner(opts PlanOptions) *Planner {
	if opts.Removal == "" {
		opts.Removal = RemovalIgnore
	}
	return &Planner{opts: opts}
}

// Plan validates spec and returns the actions needed to converge state onto
// it. Actions are emitted category by category (repos, branches, default
// branches, protections, projects), each in spec order.
func (p *Planner) Plan(spec *desired.OrgSpec, state *observed.State) (*Plan, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if state == nil {
		state = observed.NewState(observed.Unknown)
	}

	b := &planBuilder{
		scope: p.opts.Scope,
		plan:  &Plan{Org: spec.Name, Actions: make([]Action, 0), Satisfied: make([]Resource, 0)},
	}

	if p.coversRepositories() {
		repos := make([]*repoPlanner, 0, len(spec.Repositories))
		for i := range spec.Repositories {
			rp := &repoPlanner{
				b:        b,
				removal:  p.opts.Removal,
				spec:     &spec.Repositories[i],
				obs:      state.Repository(spec.Repositories[i].Name),
				missing:  make(map[string]string),
				creating: make(map[string]string),
			}
			if rp.planRepo() {
				repos = append(repos, rp)
			}
		}
		for _, phase := range []func(*repoPlanner){
			(*repoPlanner).planBranches,
			(*repoPlanner).planDefaultBranch,
			(*repoPlanner).planProtections,
		} {
			for _, rp := range repos {
				phase(rp)
			}
		}
	}

	for _, proj := range spec.Projects {
		p.planProject(b, proj, state.Project(proj.Title))
	}

	if err := b.plan.ValidateDAG(); err != nil {
		return nil, fmt.Errorf("invalid plan dependency graph: %w", err)
	}
	return b.plan, nil
}

func (p *Planner) coversRepositories() bool {
	s := p.opts.Scope
	return s.Covers(ScopeRepos) || s.Covers(ScopeBranches) || s.Covers(ScopeProtections)
}

func (p *Planner) planProject(b *planBuilder, proj desired.ProjectSpec, obs *observed.Project) {
	res := Resource{Kind: ResourceProject, Project: proj.Title}
	switch obs.Presence {
	case observed.Present:
		b.satisfy(res)
	case observed.Absent:
		if b.scope.Allows(KindCreateProject) {
			b.add(Action{
				ID:      CreateProjectID(proj.Title),
				Kind:    KindCreateProject,
				Project: proj.Title,
			})
		}
	default:
		b.deferRes(res, "project state unknown: "+obs.Err)
	}
}

type planBuilder struct {
	scope Scope
	plan  *Plan
}

func (b *planBuilder) add(a Action) string {
	b.plan.Actions = append(b.plan.Actions, a)
	return a.ID
}

// satisfy and deferRes only record resources inside the scope.
func (b *planBuilder) satisfy(r Resource) {
	if b.scope.Covers(r.Kind.ScopeKind()) {
		b.plan.Satisfied = append(b.plan.Satisfied, r)
	}
}

func (b *planBuilder) deferRes(r Resource, reason string) {
	if b.scope.Covers(r.Kind.ScopeKind()) {
		b.plan.Deferred = append(b.plan.Deferred, DeferredResource{Resource: r, Reason: reason})
	}
}

// repoPlanner plans one repository. missing records, per branch, why the
// branch will not exist after the plan runs; creating maps a branch to the
// action that creates it.
type repoPlanner struct {
	b       *planBuilder
	removal RemovalPolicy
	spec    *desired.RepoSpec
	obs     *observed.Repository

	createRepo string
	setDefault string
	missing    map[string]string
	creating   map[string]string
}

func (rp *repoPlanner) present() bool {
	return rp.obs.Presence == observed.Present
}

func (rp *repoPlanner) absent() bool {
	return rp.obs.Presence == observed.Absent
}

// planRepo returns false when nothing more can be planned for the repository.
func (rp *repoPlanner) planRepo() bool {
	res := Resource{Kind: ResourceRepository, Repo: rp.spec.Name}

	switch rp.obs.Presence {
	case observed.Present:
		rp.b.satisfy(res)
		if rp.obs.BranchesPresence != observed.Present {
			rp.deferContents("branch list unknown: " + rp.obs.BranchesErr)
			return false
		}
		return true
	case observed.Absent:
		if !rp.b.scope.Allows(KindCreateRepo) {
			rp.deferContents("repository does not exist and repos are outside the --only scope")
			return false
		}
		spec := *rp.spec
		rp.createRepo = rp.b.add(Action{
			ID:       CreateRepoID(rp.spec.Name),
			Kind:     KindCreateRepo,
			Repo:     rp.spec.Name,
			Branch:   rp.spec.InitialBranch(),
			RepoSpec: &spec,
		})
		return true
	default:
		reason := "repository state unknown: " + rp.obs.Err
		rp.b.deferRes(res, reason)
		rp.deferContents(reason)
		return false
	}
}

func (rp *repoPlanner) deferContents(reason string) {
	for _, br := range rp.spec.Branches {
		rp.b.deferRes(Resource{Kind: ResourceBranch, Repo: rp.spec.Name, Branch: br.Name}, reason)
	}
	rp.b.deferRes(Resource{Kind: ResourceDefaultBranch, Repo: rp.spec.Name, Branch: rp.spec.DefaultBranch}, reason)
	for _, br := range rp.spec.Branches {
		if br.Protection != nil {
			rp.b.deferRes(Resource{Kind: ResourceProtection, Repo: rp.spec.Name, Branch: br.Name}, reason)
		}
	}
}

func (rp *repoPlanner) planBranches() {
	initial := rp.spec.InitialBranch()

	for _, br := range rp.spec.Branches {
		res := Resource{Kind: ResourceBranch, Repo: rp.spec.Name, Branch: br.Name}

		if rp.absent() && br.Name == initial {
			continue // created together with the repository
		}
		if rp.present() && rp.obs.HasBranch(br.Name) {
			rp.b.satisfy(res)
			continue
		}
		if !rp.b.scope.Allows(KindCreateBranch) {
			rp.missing[br.Name] = "branch does not exist and branches are outside the --only scope"
			continue
		}

		from, deps, reason := rp.branchSource(br.Name)
		if reason != "" {
			rp.missing[br.Name] = reason
			rp.b.deferRes(res, reason)
			continue
		}

		rp.creating[br.Name] = rp.b.add(Action{
			ID:         CreateBranchID(rp.spec.Name, br.Name),
			Kind:       KindCreateBranch,
			Repo:       rp.spec.Name,
			Branch:     br.Name,
			FromBranch: from,
			DependsOn:  deps,
		})
	}
}

// branchSource picks the branch a new branch is cut from: the initial branch
// when it exists or is being created, otherwise the live default branch.
func (rp *repoPlanner) branchSource(name string) (string, []string, string) {
	initial := rp.spec.InitialBranch()
	if name != initial {
		if _, gone := rp.missing[initial]; !gone {
			return initial, dependencies(rp.createRepo, rp.creating[initial]), ""
		}
	}
	if rp.present() && rp.obs.DefaultBranch != "" && rp.obs.HasBranch(rp.obs.DefaultBranch) {
		return rp.obs.DefaultBranch, dependencies(rp.createRepo), ""
	}
	return "", nil, fmt.Sprintf("no source branch available to create %q from", name)
}

func (rp *repoPlanner) planDefaultBranch() {
	want := rp.spec.DefaultBranch
	res := Resource{Kind: ResourceDefaultBranch, Repo: rp.spec.Name, Branch: want}

	current := rp.obs.DefaultBranch
	if rp.absent() {
		current = rp.spec.InitialBranch()
	}
	if current == want {
		if rp.present() {
			rp.b.satisfy(res)
		}
		return
	}
	if reason, gone := rp.missing[want]; gone {
		rp.b.deferRes(res, fmt.Sprintf("branch %q unavailable: %s", want, reason))
		return
	}
	if !rp.b.scope.Allows(KindSetDefaultBranch) {
		return
	}

	deps := []string{rp.createRepo}
	for _, br := range rp.spec.Branches {
		deps = append(deps, rp.creating[br.Name])
	}
	rp.setDefault = rp.b.add(Action{
		ID:        SetDefaultBranchID(rp.spec.Name),
		Kind:      KindSetDefaultBranch,
		Repo:      rp.spec.Name,
		Branch:    want,
		DependsOn: dependencies(deps...),
	})
}

func (rp *repoPlanner) planProtections() {
	for _, br := range rp.spec.Branches {
		res := Resource{Kind: ResourceProtection, Repo: rp.spec.Name, Branch: br.Name}

		var ob *observed.Branch
		if rp.present() {
			ob = rp.obs.Branches[br.Name]
		}

		if br.Protection == nil {
			rp.planRemoval(br.Name, ob)
			continue
		}
		if reason, gone := rp.missing[br.Name]; gone {
			rp.b.deferRes(res, fmt.Sprintf("branch %q unavailable: %s", br.Name, reason))
			continue
		}
		if ob != nil {
			switch ob.ProtectionPresence {
			case observed.Unknown:
				rp.b.deferRes(res, "protection state unknown: "+ob.ProtectionErr)
				continue
			case observed.Present:
				if ob.Protection.Equal(br.Protection) {
					rp.b.satisfy(res)
					continue
				}
			}
		}
		if !rp.b.scope.Allows(KindApplyProtection) {
			continue
		}

		policy := *br.Protection
		rp.b.add(Action{
			ID:         ApplyProtectionID(rp.spec.Name, br.Name),
			Kind:       KindApplyProtection,
			Repo:       rp.spec.Name,
			Branch:     br.Name,
			Protection: &policy,
			DependsOn:  dependencies(rp.createRepo, rp.creating[br.Name], rp.setDefault),
		})
	}
}

func (rp *repoPlanner) planRemoval(branch string, ob *observed.Branch) {
	if rp.removal != RemovalPrune || ob == nil || ob.ProtectionPresence != observed.Present {
		return
	}
	if !rp.b.scope.Allows(KindRemoveProtection) {
		return
	}
	rp.b.add(Action{
		ID:        RemoveProtectionID(rp.spec.Name, branch),
		Kind:      KindRemoveProtection,
		Repo:      rp.spec.Name,
		Branch:    branch,
		DependsOn: dependencies(rp.setDefault),
	})
}

// dependencies drops empty and repeated IDs while keeping order.
func dependencies(ids ...string) []string {
	var out []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
