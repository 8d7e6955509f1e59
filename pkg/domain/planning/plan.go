package planning

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
)

// ActionKind identifies the remote operation an Action performs.
type ActionKind string

const (
	KindCreateRepo       ActionKind = "create_repo"
	KindCreateBranch     ActionKind = "create_branch"
	KindSetDefaultBranch ActionKind = "set_default_branch"
	KindApplyProtection  ActionKind = "apply_protection"
	KindRemoveProtection ActionKind = "remove_protection"
	KindCreateProject    ActionKind = "create_project"
)

// DisplayName returns a human-readable name for the kind.
func (k ActionKind) DisplayName() string {
	switch k {
	case KindCreateRepo:
		return "CreateRepo"
	case KindCreateBranch:
		return "CreateBranch"
	case KindSetDefaultBranch:
		return "SetDefaultBranch"
	case KindApplyProtection:
		return "ApplyProtection"
	case KindRemoveProtection:
		return "RemoveProtection"
	case KindCreateProject:
		return "CreateProject"
	default:
		return string(k)
	}
}

// ScopeKind returns the --only category the kind belongs to.
func (k ActionKind) ScopeKind() ScopeKind {
	switch k {
	case KindCreateRepo:
		return ScopeRepos
	case KindCreateBranch, KindSetDefaultBranch:
		return ScopeBranches
	case KindApplyProtection, KindRemoveProtection:
		return ScopeProtections
	case KindCreateProject:
		return ScopeProjects
	default:
		return ""
	}
}

// Action is a unit of planned work.
type Action struct {
	ID         string                    `json:"id"`
	Kind       ActionKind                `json:"kind"`
	Repo       string                    `json:"repo,omitempty"`
	Branch     string                    `json:"branch,omitempty"`
	FromBranch string                    `json:"from_branch,omitempty"`
	Project    string                    `json:"project,omitempty"`
	Protection *desired.ProtectionPolicy `json:"protection,omitempty"`
	RepoSpec   *desired.RepoSpec         `json:"repo_spec,omitempty"`
	DependsOn  []string                  `json:"depends_on,omitempty"`
}

// Target names the entity the action operates on.
func (a Action) Target() string {
	switch a.Kind {
	case KindCreateProject:
		return a.Project
	case KindCreateBranch, KindApplyProtection, KindRemoveProtection:
		return a.Repo + "/" + a.Branch
	case KindSetDefaultBranch:
		return a.Repo + " -> " + a.Branch
	default:
		return a.Repo
	}
}

func (a Action) String() string {
	return fmt.Sprintf("%s(%s)", a.Kind.DisplayName(), a.Target())
}

// ResourceKind identifies a reconciled entity for reporting.
type ResourceKind string

const (
	ResourceRepository    ResourceKind = "repository"
	ResourceBranch        ResourceKind = "branch"
	ResourceDefaultBranch ResourceKind = "default_branch"
	ResourceProtection    ResourceKind = "protection"
	ResourceProject       ResourceKind = "project"
)

// ScopeKind returns the --only category the resource belongs to.
func (k ResourceKind) ScopeKind() ScopeKind {
	switch k {
	case ResourceRepository:
		return ScopeRepos
	case ResourceBranch, ResourceDefaultBranch:
		return ScopeBranches
	case ResourceProtection:
		return ScopeProtections
	case ResourceProject:
		return ScopeProjects
	default:
		return ""
	}
}

// Resource identifies one desired entity.
type Resource struct {
	Kind    ResourceKind `json:"kind"`
	Repo    string       `json:"repo,omitempty"`
	Branch  string       `json:"branch,omitempty"`
	Project string       `json:"project,omitempty"`
}

func (r Resource) String() string {
	switch r.Kind {
	case ResourceProject:
		return fmt.Sprintf("project %s", r.Project)
	case ResourceBranch:
		return fmt.Sprintf("branch %s/%s", r.Repo, r.Branch)
	case ResourceDefaultBranch:
		return fmt.Sprintf("default branch of %s", r.Repo)
	case ResourceProtection:
		return fmt.Sprintf("protection %s/%s", r.Repo, r.Branch)
	default:
		return fmt.Sprintf("repository %s", r.Repo)
	}
}

// DeferredResource is a desired entity the planner could not safely act on.
type DeferredResource struct {
	Resource Resource `json:"resource"`
	Reason   string   `json:"reason"`
}

// Plan is the ordered set of actions for one reconciliation pass.
type Plan struct {
	Org       string             `json:"org"`
	Actions   []Action           `json:"actions"`
	Satisfied []Resource         `json:"satisfied"`
	Deferred  []DeferredResource `json:"deferred,omitempty"`
}

// IsEmpty reports whether the plan has nothing to execute.
func (p *Plan) IsEmpty() bool {
	return len(p.Actions) == 0
}

// Action looks an action up by ID.
func (p *Plan) Action(id string) (Action, bool) {
	for _, a := range p.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// Hash returns a deterministic hash of the plan structure.
func (p *Plan) Hash() string {
	h := sha256.New()
	h.Write([]byte(p.Org))
	for _, a := range p.Actions {
		h.Write([]byte(a.ID))
		h.Write([]byte(a.FromBranch))
		for _, dep := range a.DependsOn {
			h.Write([]byte(dep))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Action ID constructors. IDs are stable across runs for the same spec.

func CreateRepoID(repo string) string { return "create-repo:" + repo }

func CreateBranchID(repo, branch string) string { return "create-branch:" + repo + "/" + branch }

func SetDefaultBranchID(repo string) string { return "set-default-branch:" + repo }

func ApplyProtectionID(repo, branch string) string {
	return "apply-protection:" + repo + "/" + branch
}

func RemoveProtectionID(repo, branch string) string {
	return "remove-protection:" + repo + "/" + branch
}

func CreateProjectID(title string) string { return "create-project:" + title }
