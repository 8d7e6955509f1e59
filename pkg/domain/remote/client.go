// Package remote defines the boundary to the hosting platform.
package remote

import (
	"context"

	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
)

// BranchObservation is one branch as listed by the platform.
type BranchObservation struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// Client is the set of platform operations the reconciler needs.
// Mutating calls return *AdapterError (or ErrAlreadyExists) on failure.
type Client interface {
	OrgExists(ctx context.Context, org string) (bool, error)
	RepoExists(ctx context.Context, org, repo string) (bool, error)
	CreateRepo(ctx context.Context, org string, repo desired.RepoSpec) error

	ListBranches(ctx context.Context, org, repo string) ([]BranchObservation, error)
	CreateBranch(ctx context.Context, org, repo, name, fromBranch string) error
	SetDefaultBranch(ctx context.Context, org, repo, name string) error

	// GetBranchProtection returns nil when the branch is unprotected.
	GetBranchProtection(ctx context.Context, org, repo, branch string) (*desired.ProtectionPolicy, error)
	ApplyBranchProtection(ctx context.Context, org, repo, branch string, policy desired.ProtectionPolicy) error
	RemoveBranchProtection(ctx context.Context, org, repo, branch string) error

	ProjectExists(ctx context.Context, org, title string) (bool, error)
	CreateProject(ctx context.Context, org, title string) error
}
