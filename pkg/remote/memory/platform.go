// Package memory provides an in-memory remote.Client for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
)

// Operation names used for fault injection and the call log.
const (
	OpOrgExists              = "org_exists"
	OpRepoExists             = "repo_exists"
	OpCreateRepo             = "create_repo"
	OpListBranches           = "list_branches"
	OpCreateBranch           = "create_branch"
	OpSetDefaultBranch       = "set_default_branch"
	OpGetBranchProtection    = "get_branch_protection"
	OpApplyBranchProtection  = "apply_branch_protection"
	OpRemoveBranchProtection = "remove_branch_protection"
	OpProjectExists          = "project_exists"
	OpCreateProject          = "create_project"
)

// ErrNotFound is wrapped as a permanent failure when a referenced resource is missing.
var ErrNotFound = errors.New("not found")

// Check the struct is implementing the Client interface.
var _ remote.Client = &Platform{}

// Call is one recorded client invocation. Target is the repo, "repo/branch"
// or project title the call addressed.
type Call struct {
	Op     string
	Target string
	At     time.Time
}

type fault struct {
	op     string
	target string
	err    error
	times  int
}

type repository struct {
	spec          desired.RepoSpec
	defaultBranch string
	branches      map[string]*desired.ProtectionPolicy // nil value = unprotected
}

type organization struct {
	repos    map[string]*repository
	projects map[string]bool
}

// Platform is a thread-safe fake hosting platform.
type Platform struct {
	mu     sync.Mutex
	orgs   map[string]*organization
	faults []*fault
	calls  []Call

	inFlight    int
	maxInFlight int

	// Latency is slept (outside the lock) on every call when set.
	Latency time.Duration
	// OnCall, when set, runs before every call is served.
	OnCall func(op, target string)
}

// New returns an empty platform.
func New() *Platform {
	return &Platform{orgs: make(map[string]*organization)}
}

// AddOrg registers an organization.
func (p *Platform) AddOrg(name string) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.org(name)
	return p
}

// AddRepo seeds a repository with the given branches; the first branch
// listed becomes the default.
func (p *Platform) AddRepo(org, name string, branches ...string) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := &repository{
		spec:     desired.RepoSpec{Name: name, Visibility: desired.VisibilityPrivate},
		branches: make(map[string]*desired.ProtectionPolicy),
	}
	for i, b := range branches {
		if i == 0 {
			r.defaultBranch = b
		}
		r.branches[b] = nil
	}
	p.org(org).repos[name] = r
	return p
}

// SetDefault changes a seeded repository's default branch.
func (p *Platform) SetDefault(org, repo, branch string) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r := p.lookup(org).repos[repo]; r != nil {
		r.defaultBranch = branch
	}
	return p
}

// Protect seeds branch protection.
func (p *Platform) Protect(org, repo, branch string, policy desired.ProtectionPolicy) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r := p.lookup(org).repos[repo]; r != nil {
		r.branches[branch] = &policy
	}
	return p
}

// AddProject seeds a project board.
func (p *Platform) AddProject(org, title string) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.org(org).projects[title] = true
	return p
}

// FailOn makes the next `times` calls of op against target return err.
// An empty target matches every target.
func (p *Platform) FailOn(op, target string, err error, times int) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = append(p.faults, &fault{op: op, target: target, err: err, times: times})
	return p
}

// Calls returns a copy of the call log.
func (p *Platform) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Count returns how many times op was called.
func (p *Platform) Count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// MutatingCalls returns the number of calls that change remote state.
func (p *Platform) MutatingCalls() int {
	n := 0
	for _, op := range []string{OpCreateRepo, OpCreateBranch, OpSetDefaultBranch,
		OpApplyBranchProtection, OpRemoveBranchProtection, OpCreateProject} {
		n += p.Count(op)
	}
	return n
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (p *Platform) MaxInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}

// Branches returns the sorted branch names of a repository.
func (p *Platform) Branches(org, repo string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.lookup(org).repos[repo]
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.branches))
	for b := range r.branches {
		names = append(names, b)
	}
	sort.Strings(names)
	return names
}

// DefaultBranch returns a repository's default branch.
func (p *Platform) DefaultBranch(org, repo string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r := p.lookup(org).repos[repo]; r != nil {
		return r.defaultBranch
	}
	return ""
}

// org returns the organization, creating it if needed. Callers hold p.mu.
func (p *Platform) org(name string) *organization {
	o, ok := p.orgs[name]
	if !ok {
		o = &organization{repos: make(map[string]*repository), projects: make(map[string]bool)}
		p.orgs[name] = o
	}
	return o
}

// lookup returns the organization or an empty one without registering it.
// Callers hold p.mu.
func (p *Platform) lookup(name string) *organization {
	if o, ok := p.orgs[name]; ok {
		return o
	}
	return &organization{repos: make(map[string]*repository), projects: make(map[string]bool)}
}

// enter records the call, applies latency and returns an injected fault.
// The returned release func must be called when the call completes.
func (p *Platform) enter(ctx context.Context, op, target string) (func(), error) {
	if p.OnCall != nil {
		p.OnCall(op, target)
	}

	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: op, Target: target, At: time.Now()})
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	var injected error
	for _, f := range p.faults {
		if f.times > 0 && f.op == op && (f.target == "" || f.target == target) {
			f.times--
			injected = f.err
			break
		}
	}
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}

	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return release, remote.Transient(op, ctx.Err())
		}
	}
	return release, injected
}

func notFound(op, format string, args ...any) error {
	return remote.Permanent(op, fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...)))
}

func (p *Platform) OrgExists(ctx context.Context, org string) (bool, error) {
	release, err := p.enter(ctx, OpOrgExists, org)
	defer release()
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.orgs[org]
	return ok, nil
}

func (p *Platform) RepoExists(ctx context.Context, org, repo string) (bool, error) {
	release, err := p.enter(ctx, OpRepoExists, repo)
	defer release()
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.lookup(org).repos[repo]
	return ok, nil
}

func (p *Platform) CreateRepo(ctx context.Context, org string, spec desired.RepoSpec) error {
	release, err := p.enter(ctx, OpCreateRepo, spec.Name)
	defer release()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orgs[org]
	if !ok {
		return notFound(OpCreateRepo, "organization %s", org)
	}
	if _, ok := o.repos[spec.Name]; ok {
		return remote.ErrAlreadyExists
	}
	initial := spec.InitialBranch()
	if initial == "" {
		initial = "main"
	}
	o.repos[spec.Name] = &repository{
		spec:          spec,
		defaultBranch: initial,
		branches:      map[string]*desired.ProtectionPolicy{initial: nil},
	}
	return nil
}

func (p *Platform) ListBranches(ctx context.Context, org, repo string) ([]remote.BranchObservation, error) {
	release, err := p.enter(ctx, OpListBranches, repo)
	defer release()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.lookup(org).repos[repo]
	if r == nil {
		return nil, notFound(OpListBranches, "repository %s", repo)
	}
	names := make([]string, 0, len(r.branches))
	for b := range r.branches {
		names = append(names, b)
	}
	sort.Strings(names)
	out := make([]remote.BranchObservation, 0, len(names))
	for _, n := range names {
		out = append(out, remote.BranchObservation{Name: n, IsDefault: n == r.defaultBranch})
	}
	return out, nil
}

func (p *Platform) CreateBranch(ctx context.Context, org, repo, name, fromBranch string) error {
	release, err := p.enter(ctx, OpCreateBranch, repo+"/"+name)
	defer release()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.lookup(org).repos[repo]
	if r == nil {
		return notFound(OpCreateBranch, "repository %s", repo)
	}
	if _, ok := r.branches[name]; ok {
		return remote.ErrAlreadyExists
	}
	if _, ok := r.branches[fromBranch]; !ok {
		return notFound(OpCreateBranch, "source branch %s/%s", repo, fromBranch)
	}
	r.branches[name] = nil
	return nil
}

func (p *Platform) SetDefaultBranch(ctx context.Context, org, repo, name string) error {
	release, err := p.enter(ctx, OpSetDefaultBranch, repo+"/"+name)
	defer release()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.lookup(org).repos[repo]
	if r == nil {
		return notFound(OpSetDefaultBranch, "repository %s", repo)
	}
	if _, ok := r.branches[name]; !ok {
		return notFound(OpSetDefaultBranch, "branch %s/%s", repo, name)
	}
	r.defaultBranch = name
	return nil
}

func (p *Platform) GetBranchProtection(ctx context.Context, org, repo, branch string) (*desired.ProtectionPolicy, error) {
	release, err := p.enter(ctx, OpGetBranchProtection, repo+"/"+branch)
	defer release()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.lookup(org).repos[repo]
	if r == nil {
		return nil, notFound(OpGetBranchProtection, "repository %s", repo)
	}
	policy, ok := r.branches[branch]
	if !ok {
		return nil, notFound(OpGetBranchProtection, "branch %s/%s", repo, branch)
	}
	if policy == nil {
		return nil, nil
	}
	cp := *policy
	return &cp, nil
}

func (p *Platform) ApplyBranchProtection(ctx context.Context, org, repo, branch string, policy desired.ProtectionPolicy) error {
	release, err := p.enter(ctx, OpApplyBranchProtection, repo+"/"+branch)
	defer release()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.lookup(org).repos[repo]
	if r == nil {
		return notFound(OpApplyBranchProtection, "repository %s", repo)
	}
	if _, ok := r.branches[branch]; !ok {
		return notFound(OpApplyBranchProtection, "branch %s/%s", repo, branch)
	}
	r.branches[branch] = &policy
	return nil
}

func (p *Platform) RemoveBranchProtection(ctx context.Context, org, repo, branch string) error {
	release, err := p.enter(ctx, OpRemoveBranchProtection, repo+"/"+branch)
	defer release()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.lookup(org).repos[repo]
	if r == nil {
		return notFound(OpRemoveBranchProtection, "repository %s", repo)
	}
	if _, ok := r.branches[branch]; !ok {
		return notFound(OpRemoveBranchProtection, "branch %s/%s", repo, branch)
	}
	r.branches[branch] = nil
	return nil
}

func (p *Platform) ProjectExists(ctx context.Context, org, title string) (bool, error) {
	release, err := p.enter(ctx, OpProjectExists, title)
	defer release()
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookup(org).projects[title], nil
}

func (p *Platform) CreateProject(ctx context.Context, org, title string) error {
	release, err := p.enter(ctx, OpCreateProject, title)
	defer release()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orgs[org]
	if !ok {
		return notFound(OpCreateProject, "organization %s", org)
	}
	if o.projects[title] {
		return remote.ErrAlreadyExists
	}
	o.projects[title] = true
	return nil
}
