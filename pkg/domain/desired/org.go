// Package desired holds the caller's declared target configuration for an
// organization: repositories, branches, protection policies and projects.
package desired

// Visibility controls who can see a repository.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// IsValid returns true if the visibility is a known value.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate:
		return true
	default:
		return false
	}
}

// IsPrivate reports whether the repository should be hidden from non-members.
func (v Visibility) IsPrivate() bool {
	return v == VisibilityPrivate
}

// OrgSpec is the desired state of one organization.
// Repositories and Projects are processed in the order given.
type OrgSpec struct {
	Name         string        `json:"name" yaml:"name"`
	Repositories []RepoSpec    `json:"repositories" yaml:"repositories"`
	Projects     []ProjectSpec `json:"projects,omitempty" yaml:"projects,omitempty"`
}

// RepoSpec is one target repository.
type RepoSpec struct {
	Name          string       `json:"name" yaml:"name"`
	Description   string       `json:"description,omitempty" yaml:"description,omitempty"`
	Visibility    Visibility   `json:"visibility" yaml:"visibility"`
	License       string       `json:"license,omitempty" yaml:"license,omitempty"`
	Branches      []BranchSpec `json:"branches" yaml:"branches"`
	DefaultBranch string       `json:"default_branch" yaml:"default_branch"`
}

// InitialBranch returns the branch the repository is created with.
func (r RepoSpec) InitialBranch() string {
	if len(r.Branches) == 0 {
		return ""
	}
	return r.Branches[0].Name
}

// BranchSpec is one target branch.
type BranchSpec struct {
	Name       string            `json:"name" yaml:"name"`
	Protection *ProtectionPolicy `json:"protection,omitempty" yaml:"protection,omitempty"`
}

// ProtectionPolicy describes the branch protection rule for a branch.
// Zero values are meaningful; nothing is defaulted.
type ProtectionPolicy struct {
	RequiredApprovals    int  `json:"required_approvals" yaml:"required_approvals"`
	EnforceAdmins        bool `json:"enforce_admins" yaml:"enforce_admins"`
	RequireLinearHistory bool `json:"require_linear_history" yaml:"require_linear_history"`
	AllowForcePushes     bool `json:"allow_force_pushes" yaml:"allow_force_pushes"`
}

// Equal reports whether two policies are identical. Two nil policies are equal.
func (p *ProtectionPolicy) Equal(other *ProtectionPolicy) bool {
	if p == nil || other == nil {
		return p == nil && other == nil
	}
	return *p == *other
}

// ProjectSpec is one target project board.
type ProjectSpec struct {
	Title string `json:"title" yaml:"title"`
}

// RepositoryNames returns repository names in processing order.
func (s *OrgSpec) RepositoryNames() []string {
	names := make([]string, 0, len(s.Repositories))
	for _, r := range s.Repositories {
		names = append(names, r.Name)
	}
	return names
}
