package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/orgsync/internal/infrastructure/watch"
	"github.com/felixgeelhaar/orgsync/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	watchFlags    runFlags
	watchDebounce time.Duration
	watchDryRun   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <spec>",
	Short: "Reconcile every time the spec file changes",
	Long: `Run a reconcile pass now and again after each change to the spec file.
Passes run one at a time; a change made during a pass triggers one more
pass once it finishes. Errors in a pass are reported and watching continues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		triggers := make(chan watch.ChangeEvent, 1)
		w, err := watch.NewSpecWatcher(args[0], watchDebounce, func(e watch.ChangeEvent) {
			select {
			case triggers <- e:
			default:
				// A pass is already queued.
			}
		})
		if err != nil {
			return NewCLIError("failed to watch spec", "Check that the spec directory exists", err)
		}

		watchErr := make(chan error, 1)
		go func() {
			watchErr <- w.Run(ctx)
		}()

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", w.Path())
		p := &watchPasses{cmd: cmd, path: args[0], sessions: map[string]*session{}}
		p.run(ctx)

		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-watchErr:
				if err != nil && !errors.Is(err, context.Canceled) {
					return NewCLIError("spec watcher stopped", "", err)
				}
				return nil
			case e := <-triggers:
				logger.Info("spec changed", "path", e.Path, "change", e.ChangeType)
				fmt.Fprintf(cmd.OutOrStdout(), "\nChange detected at %s\n", time.Now().Format("15:04:05"))
				p.run(ctx)
			}
		}
	},
}

// watchPasses runs one reconcile per trigger. Sessions are kept per org so
// the in-memory backend carries state from pass to pass.
type watchPasses struct {
	cmd      *cobra.Command
	path     string
	sessions map[string]*session
}

func (p *watchPasses) run(ctx context.Context) {
	if err := p.pass(ctx); err != nil {
		PrintError(p.cmd.ErrOrStderr(), err)
	}
}

func (p *watchPasses) pass(ctx context.Context) error {
	spec, err := storage.LoadOrgSpec(p.path)
	if err != nil {
		return err
	}

	s, ok := p.sessions[spec.Name]
	if !ok {
		s, err = newSession(ctx, spec.Name, watchFlags, watchDryRun)
		if err != nil {
			return err
		}
		p.sessions[spec.Name] = s
	}

	run, err := s.reconcile(ctx, spec)
	if err != nil {
		return err
	}
	if err := s.publish(p.cmd, run, watchFlags); err != nil {
		return err
	}
	return outcomeError(ctx, run)
}

func init() {
	bindRunFlags(watchCmd, &watchFlags)
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "Plan only, make no changes")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before a change triggers a pass")
	RootCmd.AddCommand(watchCmd)
}
