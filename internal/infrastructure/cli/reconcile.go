package cli

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/orgsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/orgsync/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/orgsync/pkg/application"
	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/outcome"
	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
	"github.com/felixgeelhaar/orgsync/pkg/storage"
	"github.com/spf13/cobra"
)

// runFlags are shared by reconcile, plan and watch.
type runFlags struct {
	concurrency     int
	only            []string
	pruneProtection bool
	report          string
	history         string
	output          string
}

var (
	reconcileFlags runFlags
	reconcileDry   bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <spec>",
	Short: "Bring the organization in line with the spec",
	Long: `Observe the organization, compute the actions needed to reach the spec
and execute them in dependency order. Existing resources are never
recreated; a failed action only blocks the actions that depend on it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, args[0], reconcileFlags, reconcileDry)
	},
}

var planFlags runFlags

var planCmd = &cobra.Command{
	Use:   "plan <spec>",
	Short: "Show the actions a reconcile would take without making changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, args[0], planFlags, true)
	},
}

// session holds the services built for one org and the options every
// pass runs with.
type session struct {
	services *wiring.AppServices
	opts     application.RunOptions
	history  *storage.RunHistory
}

func newSession(ctx context.Context, org string, flags runFlags, dryRun bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if flags.concurrency != 0 {
		cfg.Concurrency = flags.concurrency
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	opts, err := runOptions(cfg, flags, dryRun)
	if err != nil {
		return nil, err
	}

	services, err := wiring.BuildAppServices(ctx, cfg, org, logger)
	if err != nil {
		return nil, err
	}
	s := &session{services: services, opts: opts}
	if path := historyPath(cfg, flags.history); path != "" {
		s.history = storage.NewRunHistory(path)
	}
	return s, nil
}

func runOptions(cfg *config.Config, flags runFlags, dryRun bool) (application.RunOptions, error) {
	switch flags.output {
	case "", outputText, outputJSON:
	default:
		return application.RunOptions{}, invalid(fmt.Sprintf("unknown output format %q", flags.output), "Use --output text or --output json", nil)
	}

	scope, err := planning.ParseScope(flags.only)
	if err != nil {
		return application.RunOptions{}, invalid("invalid --only value", "Use one of "+planning.ScopeKindList(", "), err)
	}

	removal, err := cfg.Removal()
	if err != nil {
		return application.RunOptions{}, err
	}
	if flags.pruneProtection {
		removal = planning.RemovalPrune
	}

	return application.RunOptions{DryRun: dryRun, Scope: scope, Removal: removal}, nil
}

func runOnce(cmd *cobra.Command, specPath string, flags runFlags, dryRun bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	spec, err := storage.LoadOrgSpec(specPath)
	if err != nil {
		return MapError(err)
	}

	s, err := newSession(ctx, spec.Name, flags, dryRun)
	if err != nil {
		return MapError(err)
	}

	run, err := s.reconcile(ctx, spec)
	if err != nil {
		return MapError(err)
	}
	if err := s.publish(cmd, run, flags); err != nil {
		return err
	}
	return outcomeError(ctx, run)
}

func (s *session) reconcile(ctx context.Context, spec *desired.OrgSpec) (*application.Run, error) {
	return s.services.Reconcile.Reconcile(ctx, spec, s.opts)
}

// publish renders the run and writes the report and history, if configured.
func (s *session) publish(cmd *cobra.Command, run *application.Run, flags runFlags) error {
	if err := renderRun(cmd.OutOrStdout(), run, flags.output); err != nil {
		return err
	}
	if flags.report != "" {
		if err := storage.SaveRunReport(flags.report, run); err != nil {
			return NewCLIError("failed to write report", "Check that the report directory is writable", err)
		}
	}
	if s.history != nil {
		if err := s.history.Append(runRecord(run)); err != nil {
			return NewCLIError("failed to record run history", "Check history_file in the config", err)
		}
	}
	return nil
}

func runRecord(run *application.Run) *storage.RunRecord {
	sum := run.Summary
	return &storage.RunRecord{
		ID:               run.ID,
		Org:              run.Org,
		DryRun:           run.DryRun,
		Scope:            run.Scope,
		PlanHash:         run.PlanHash,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		Planned:          sum.Planned,
		Succeeded:        sum.Succeeded,
		Skipped:          sum.Skipped,
		Failed:           sum.Failed,
		AlreadySatisfied: sum.AlreadySatisfied,
		Deferred:         sum.Deferred,
	}
}

func historyPath(cfg *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.HistoryFile
}

// outcomeError maps a finished run onto the process exit code. An interrupt
// that left actions undispatched or resources unobserved is a cancellation.
func outcomeError(ctx context.Context, run *application.Run) error {
	s := run.Summary
	if ctx.Err() != nil && (hasCancelled(run.Results) || s.Deferred > 0) {
		return &CLIError{
			Message:  "interrupted before the run could finish",
			Hint:     "Run reconcile again; completed work is not repeated",
			ExitCode: ExitCancelled,
			Err:      ctx.Err(),
		}
	}

	switch {
	case s.Failed > 0:
		return &CLIError{
			Message:  fmt.Sprintf("%d action(s) failed", s.Failed),
			Hint:     "Fix the reported failures and run reconcile again; completed work is not repeated",
			ExitCode: ExitFailed,
		}
	case s.Deferred > 0:
		return &CLIError{
			Message:  fmt.Sprintf("%d resource(s) could not be observed and were deferred", s.Deferred),
			Hint:     "Run reconcile again once the API is reachable",
			ExitCode: ExitFailed,
		}
	}
	return nil
}

func hasCancelled(results []outcome.ActionResult) bool {
	for _, r := range results {
		if r.Status == outcome.StatusFailed && r.Detail == outcome.DetailCancelled {
			return true
		}
	}
	return false
}

func bindRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Maximum concurrent API calls (0 uses the config value)")
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "Restrict to resource kinds: "+planning.ScopeKindList(", "))
	cmd.Flags().BoolVar(&f.pruneProtection, "prune-protection", false, "Remove branch protection the spec does not declare")
	cmd.Flags().StringVar(&f.report, "report", "", "Write the run as JSON to this file")
	cmd.Flags().StringVar(&f.history, "history", "", "Append the run to this history file (overrides history_file)")
	cmd.Flags().StringVarP(&f.output, "output", "o", outputText, "Output format: text or json")
}

func init() {
	bindRunFlags(reconcileCmd, &reconcileFlags)
	reconcileCmd.Flags().BoolVar(&reconcileDry, "dry-run", false, "Plan only, make no changes")
	bindRunFlags(planCmd, &planFlags)

	RootCmd.AddCommand(reconcileCmd)
	RootCmd.AddCommand(planCmd)
}
