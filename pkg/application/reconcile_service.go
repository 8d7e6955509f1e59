package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/observed"
	"github.com/felixgeelhaar/orgsync/pkg/domain/outcome"
	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
	"github.com/google/uuid"
)

// RunOptions selects how a reconciliation pass behaves.
type RunOptions struct {
	// DryRun stops after planning. No mutating call is made.
	DryRun  bool
	Scope   planning.Scope
	Removal planning.RemovalPolicy
}

// Run is the record of one reconciliation pass.
type Run struct {
	ID         string                 `json:"id"`
	Org        string                 `json:"org"`
	DryRun     bool                   `json:"dry_run"`
	Scope      string                 `json:"scope"`
	Plan       *planning.Plan         `json:"plan"`
	PlanHash   string                 `json:"plan_hash"`
	Results    []outcome.ActionResult `json:"results"`
	Summary    outcome.Summary        `json:"summary"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// ReconcileService drives validate, observe, plan, execute and summarize.
type ReconcileService struct {
	observer *ObserverService
	executor *Executor
	logger   *slog.Logger
}

func NewReconcileService(observer *ObserverService, executor *Executor, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{observer: observer, executor: executor, logger: logger}
}

// Plan validates the spec, observes the remote and returns the plan without executing it.
func (s *ReconcileService) Plan(ctx context.Context, spec *desired.OrgSpec, opts RunOptions) (*planning.Plan, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	state := s.observer.Observe(ctx, spec)
	if state.Org == observed.Absent {
		return nil, &desired.ConfigurationError{
			Field:   "name",
			Message: fmt.Sprintf("organization %q does not exist", spec.Name),
		}
	}

	planner := planning.NewPlanner(planning.PlanOptions{Scope: opts.Scope, Removal: opts.Removal})
	plan, err := planner.Plan(spec, state)
	if err != nil {
		return nil, fmt.Errorf("failed to plan: %w", err)
	}
	return plan, nil
}

// Reconcile runs one full pass. Remote failures never surface as an error;
// they are reported per action in the returned Run.
func (s *ReconcileService) Reconcile(ctx context.Context, spec *desired.OrgSpec, opts RunOptions) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Org:       spec.Name,
		DryRun:    opts.DryRun,
		Scope:     opts.Scope.String(),
		StartedAt: time.Now(),
		Results:   []outcome.ActionResult{},
	}
	logger := s.logger.With("run_id", run.ID, "org", spec.Name)

	plan, err := s.Plan(ctx, spec, opts)
	if err != nil {
		return nil, err
	}
	run.Plan = plan
	run.PlanHash = plan.Hash()

	logger.Info("plan computed",
		"actions", len(plan.Actions),
		"satisfied", len(plan.Satisfied),
		"deferred", len(plan.Deferred),
		"dry_run", opts.DryRun)

	if !opts.DryRun && !plan.IsEmpty() {
		results, err := s.executor.Execute(ctx, plan)
		if err != nil {
			return nil, err
		}
		run.Results = results
	}

	run.Summary = outcome.Summarize(run.Results, plan)
	run.FinishedAt = time.Now()

	logger.Info("run finished",
		"succeeded", run.Summary.Succeeded,
		"skipped", run.Summary.Skipped,
		"failed", run.Summary.Failed,
		"duration", run.FinishedAt.Sub(run.StartedAt))
	return run, nil
}
