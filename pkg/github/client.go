// Package github implements remote.Client against the GitHub REST and
// GraphQL APIs.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v69/github"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
)

// Check the struct is implementing the Client interface.
var _ remote.Client = &Client{}

// Config selects the API endpoint and credentials.
type Config struct {
	Token string
	// BaseURL overrides the REST endpoint, e.g. for GitHub Enterprise.
	BaseURL string
	// HTTPClient is used when no token is configured.
	HTTPClient *http.Client
}

// Client talks to one GitHub installation.
type Client struct {
	gh *gh.Client
	// graphQLPath is resolved against the REST base URL.
	graphQLPath string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := gh.NewClient(httpClient)

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url %q: %w", cfg.BaseURL, err)
		}
		client.BaseURL = u
	}

	return &Client{gh: client, graphQLPath: graphQLPath(client.BaseURL)}, nil
}

// graphQLPath returns the GraphQL endpoint relative to the REST base.
// GitHub Enterprise serves REST under /api/v3/ and GraphQL at /api/graphql.
func graphQLPath(base *url.URL) string {
	if strings.HasSuffix(base.Path, "/api/v3/") {
		return "../graphql"
	}
	return "graphql"
}

func (c *Client) OrgExists(ctx context.Context, org string) (bool, error) {
	_, _, err := c.gh.Organizations.Get(ctx, org)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, classify("get organization", err)
	}
	return true, nil
}

func (c *Client) RepoExists(ctx context.Context, org, repo string) (bool, error) {
	_, _, err := c.gh.Repositories.Get(ctx, org, repo)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, classify("get repository", err)
	}
	return true, nil
}

// CreateRepo creates the repository initialised with one commit so that the
// initial branch exists. GitHub names that branch after the org default; it
// is renamed when the spec asks for a different initial branch.
//
// A retry after a failed rename finds the repository already there. The
// rename is then finished and the call succeeds; ErrAlreadyExists is only
// reported once the initial branch is in place.
func (c *Client) CreateRepo(ctx context.Context, org string, spec desired.RepoSpec) error {
	req := &gh.Repository{
		Name:     gh.Ptr(spec.Name),
		Private:  gh.Ptr(spec.Visibility.IsPrivate()),
		AutoInit: gh.Ptr(true),
	}
	if spec.Description != "" {
		req.Description = gh.Ptr(spec.Description)
	}
	if spec.License != "" {
		req.LicenseTemplate = gh.Ptr(spec.License)
	}

	created, _, err := c.gh.Repositories.Create(ctx, org, req)
	if err == nil {
		_, err := c.renameInitialBranch(ctx, org, spec, created.GetDefaultBranch(), false)
		return err
	}

	createErr := classify("create repository", err)
	if !errors.Is(createErr, remote.ErrAlreadyExists) {
		return createErr
	}
	existing, _, err := c.gh.Repositories.Get(ctx, org, spec.Name)
	if err != nil {
		return classify("get repository", err)
	}
	renamed, err := c.renameInitialBranch(ctx, org, spec, existing.GetDefaultBranch(), true)
	if err != nil || renamed {
		return err
	}
	return createErr
}

// renameInitialBranch renames current to the spec's initial branch. With
// checkExisting set it leaves the repository alone when the initial branch
// is already there. It reports whether a rename happened.
func (c *Client) renameInitialBranch(ctx context.Context, org string, spec desired.RepoSpec, current string, checkExisting bool) (bool, error) {
	initial := spec.InitialBranch()
	if initial == "" || current == "" || current == initial {
		return false, nil
	}

	if checkExisting {
		_, _, err := c.gh.Git.GetRef(ctx, org, spec.Name, "heads/"+initial)
		if err == nil {
			return false, nil
		}
		if !isNotFound(err) {
			return false, classify("resolve initial branch", err)
		}
	}

	if _, _, err := c.gh.Repositories.RenameBranch(ctx, org, spec.Name, current, initial); err != nil {
		return false, classify("rename initial branch", err)
	}
	return true, nil
}

func (c *Client) ListBranches(ctx context.Context, org, repo string) ([]remote.BranchObservation, error) {
	r, _, err := c.gh.Repositories.Get(ctx, org, repo)
	if err != nil {
		return nil, classify("get repository", err)
	}
	defaultBranch := r.GetDefaultBranch()

	var out []remote.BranchObservation
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		branches, resp, err := c.gh.Repositories.ListBranches(ctx, org, repo, opts)
		if err != nil {
			return nil, classify("list branches", err)
		}
		for _, b := range branches {
			out = append(out, remote.BranchObservation{Name: b.GetName(), IsDefault: b.GetName() == defaultBranch})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) CreateBranch(ctx context.Context, org, repo, name, fromBranch string) error {
	source, _, err := c.gh.Git.GetRef(ctx, org, repo, "heads/"+fromBranch)
	if err != nil {
		return classify("resolve source branch", err)
	}

	_, _, err = c.gh.Git.CreateRef(ctx, org, repo, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + name),
		Object: &gh.GitObject{SHA: gh.Ptr(source.GetObject().GetSHA())},
	})
	return classify("create branch", err)
}

func (c *Client) SetDefaultBranch(ctx context.Context, org, repo, name string) error {
	_, _, err := c.gh.Repositories.Edit(ctx, org, repo, &gh.Repository{DefaultBranch: gh.Ptr(name)})
	return classify("set default branch", err)
}

func (c *Client) GetBranchProtection(ctx context.Context, org, repo, branch string) (*desired.ProtectionPolicy, error) {
	p, _, err := c.gh.Repositories.GetBranchProtection(ctx, org, repo, branch)
	if errors.Is(err, gh.ErrBranchNotProtected) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get branch protection", err)
	}
	return policyFromProtection(p), nil
}

func (c *Client) ApplyBranchProtection(ctx context.Context, org, repo, branch string, policy desired.ProtectionPolicy) error {
	_, _, err := c.gh.Repositories.UpdateBranchProtection(ctx, org, repo, branch, protectionRequest(policy))
	return classify("update branch protection", err)
}

func (c *Client) RemoveBranchProtection(ctx context.Context, org, repo, branch string) error {
	_, err := c.gh.Repositories.RemoveBranchProtection(ctx, org, repo, branch)
	if errors.Is(err, gh.ErrBranchNotProtected) {
		return nil
	}
	return classify("remove branch protection", err)
}

func protectionRequest(policy desired.ProtectionPolicy) *gh.ProtectionRequest {
	req := &gh.ProtectionRequest{
		EnforceAdmins:        policy.EnforceAdmins,
		RequireLinearHistory: gh.Ptr(policy.RequireLinearHistory),
		AllowForcePushes:     gh.Ptr(policy.AllowForcePushes),
	}
	if policy.RequiredApprovals > 0 {
		req.RequiredPullRequestReviews = &gh.PullRequestReviewsEnforcementRequest{
			RequiredApprovingReviewCount: policy.RequiredApprovals,
		}
	}
	return req
}

func policyFromProtection(p *gh.Protection) *desired.ProtectionPolicy {
	policy := &desired.ProtectionPolicy{}
	if p == nil {
		return policy
	}
	if p.RequiredPullRequestReviews != nil {
		policy.RequiredApprovals = p.RequiredPullRequestReviews.RequiredApprovingReviewCount
	}
	if p.EnforceAdmins != nil {
		policy.EnforceAdmins = p.EnforceAdmins.Enabled
	}
	if p.RequireLinearHistory != nil {
		policy.RequireLinearHistory = p.RequireLinearHistory.Enabled
	}
	if p.AllowForcePushes != nil {
		policy.AllowForcePushes = p.AllowForcePushes.Enabled
	}
	return policy
}
