package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/felixgeelhaar/orgsync/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Global flags.
var (
	configPath string
	backend    string
	verbose    bool
	logFormat  string
)

// logger is configured from the global flags before any command runs.
var logger = slog.Default()

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "orgsync",
	Version: Version,
	Short:   "Reconcile a GitHub organization against a declarative spec",
	Long: `orgsync reads a desired organization layout (repositories, branches,
default branches, branch protection and project boards), compares it with
what exists, and creates or updates only what is missing or different.

Exit codes:
  0  converged, nothing deferred
  1  one or more resources failed or were deferred
  2  invalid spec or configuration
  3  interrupted`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(cmd.ErrOrStderr(), verbose, logFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

// Execute runs the root command with ctx, which is cancelled on interrupt.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute(ctx context.Context) error {
	return RootCmd.ExecuteContext(ctx)
}

func newLogger(w io.Writer, verbose bool, format string) (*slog.Logger, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, &CLIError{
			Message:  fmt.Sprintf("unknown log format %q", format),
			Hint:     "Use --log-format text or --log-format json",
			ExitCode: ExitInvalid,
		}
	}
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backend != "" {
		cfg.Backend = backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/orgsync/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Remote backend: github or memory (overrides config)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	RootCmd.SetErr(os.Stderr)
}
