package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/observed"
	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
)

// ObserverOptions tunes the observed-state reader.
type ObserverOptions struct {
	// Concurrency bounds parallel repository lookups. Defaults to DefaultConcurrency.
	Concurrency int
	// ReadAttempts bounds attempts per read call before the resource is marked unknown.
	ReadAttempts int
	// ReadDelay is the initial backoff between read attempts.
	ReadDelay time.Duration
	Logger    *slog.Logger
}

// ObserverService builds a fresh snapshot of remote state. It never mutates
// the remote and never fails as a whole: failed lookups degrade to Unknown.
type ObserverService struct {
	client      remote.Client
	concurrency int
	retryConfig retry.Config
	logger      *slog.Logger
}

func NewObserverService(client remote.Client, opts ObserverOptions) *ObserverService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ReadAttempts <= 0 {
		opts.ReadAttempts = 2
	}
	if opts.ReadDelay <= 0 {
		opts.ReadDelay = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ObserverService{
		client:      client,
		concurrency: opts.Concurrency,
		retryConfig: retry.Config{
			MaxAttempts:   opts.ReadAttempts,
			InitialDelay:  opts.ReadDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: opts.Logger,
	}
}

// readResult carries a permanent failure through the retry loop, which
// only sees transient errors.
type readResult[T any] struct {
	value T
	err   error
}

func read[T any](ctx context.Context, cfg retry.Config, fn func(ctx context.Context) (T, error)) (T, error) {
	res, err := retry.New[readResult[T]](cfg).Do(ctx, func(ctx context.Context) (readResult[T], error) {
		v, err := fn(ctx)
		if err != nil && !remote.IsTransient(err) {
			return readResult[T]{value: v, err: err}, nil
		}
		return readResult[T]{value: v}, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.value, res.err
}

// Observe reads the organization, every desired repository (branches,
// default branch, per-branch protection) and every desired project.
func (s *ObserverService) Observe(ctx context.Context, spec *desired.OrgSpec) *observed.State {
	exists, err := read(ctx, s.retryConfig, func(ctx context.Context) (bool, error) {
		return s.client.OrgExists(ctx, spec.Name)
	})

	state := observed.NewState(presence(exists, err))
	if err != nil {
		state.OrgErr = err.Error()
		s.logger.Warn("organization lookup failed", "org", spec.Name, "error", err)
	}
	if state.Org == observed.Absent {
		return state
	}

	repos := make([]*observed.Repository, len(spec.Repositories))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i := range spec.Repositories {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			repos[i] = s.observeRepo(ctx, spec.Name, &spec.Repositories[i])
		}(i)
	}
	wg.Wait()

	for _, r := range repos {
		state.Repositories[r.Name] = r
	}

	for _, p := range spec.Projects {
		exists, err := read(ctx, s.retryConfig, func(ctx context.Context) (bool, error) {
			return s.client.ProjectExists(ctx, spec.Name, p.Title)
		})
		proj := &observed.Project{Title: p.Title, Presence: presence(exists, err)}
		if err != nil {
			proj.Err = err.Error()
			s.logger.Warn("project lookup failed", "project", p.Title, "error", err)
		}
		state.Projects[p.Title] = proj
	}

	return state
}

func (s *ObserverService) observeRepo(ctx context.Context, org string, spec *desired.RepoSpec) *observed.Repository {
	exists, err := read(ctx, s.retryConfig, func(ctx context.Context) (bool, error) {
		return s.client.RepoExists(ctx, org, spec.Name)
	})

	repo := &observed.Repository{Name: spec.Name, Presence: presence(exists, err)}
	if err != nil {
		repo.Err = err.Error()
		s.logger.Warn("repository lookup failed", "repo", spec.Name, "error", err)
		return repo
	}
	if !exists {
		return repo
	}

	branches, err := read(ctx, s.retryConfig, func(ctx context.Context) ([]remote.BranchObservation, error) {
		return s.client.ListBranches(ctx, org, spec.Name)
	})
	if err != nil {
		repo.BranchesPresence = observed.Unknown
		repo.BranchesErr = err.Error()
		s.logger.Warn("branch listing failed", "repo", spec.Name, "error", err)
		return repo
	}

	repo.BranchesPresence = observed.Present
	repo.Branches = make(map[string]*observed.Branch, len(branches))
	for _, b := range branches {
		repo.Branches[b.Name] = &observed.Branch{Name: b.Name, ProtectionPresence: observed.Absent}
		if b.IsDefault {
			repo.DefaultBranch = b.Name
		}
	}

	// Protection is only read for branches the spec names.
	for _, want := range spec.Branches {
		branch, ok := repo.Branches[want.Name]
		if !ok {
			continue
		}
		policy, err := read(ctx, s.retryConfig, func(ctx context.Context) (*desired.ProtectionPolicy, error) {
			return s.client.GetBranchProtection(ctx, org, spec.Name, want.Name)
		})
		switch {
		case err != nil:
			branch.ProtectionPresence = observed.Unknown
			branch.ProtectionErr = err.Error()
			s.logger.Warn("protection lookup failed", "repo", spec.Name, "branch", want.Name, "error", err)
		case policy != nil:
			branch.ProtectionPresence = observed.Present
			branch.Protection = policy
		}
	}

	s.logger.Debug("repository observed",
		"repo", spec.Name,
		"default_branch", repo.DefaultBranch,
		"branches", len(repo.Branches))
	return repo
}

func presence(exists bool, err error) observed.Presence {
	switch {
	case err != nil:
		return observed.Unknown
	case exists:
		return observed.Present
	default:
		return observed.Absent
	}
}
