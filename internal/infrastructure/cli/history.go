package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/felixgeelhaar/orgsync/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	historyFile   string
	historyOrg    string
	historyVerify bool
	historyLast   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs and check the history chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return MapError(err)
		}
		path := historyPath(cfg, historyFile)
		if path == "" {
			return invalid("no history file configured", "Pass --file or set history_file in the config", nil)
		}

		h := storage.NewRunHistory(path)
		out := cmd.OutOrStdout()

		if historyVerify {
			violations, err := h.VerifyIntegrity()
			if err != nil {
				return NewCLIError("failed to read history", "", err)
			}
			if len(violations) > 0 {
				for _, v := range violations {
					fmt.Fprintln(out, failStyle.Render("  - "+v))
				}
				return NewCLIError(fmt.Sprintf("history chain broken in %d place(s)", len(violations)), "", nil)
			}
			fmt.Fprintln(out, okStyle.Render("History chain intact."))
			return nil
		}

		if historyLast {
			if historyOrg == "" {
				return invalid("--last needs --org", "Pass the organization whose last run to show", nil)
			}
			last, err := h.Last(historyOrg)
			if err != nil {
				return NewCLIError("failed to read history", "", err)
			}
			if last == nil {
				fmt.Fprintf(out, "No runs recorded for %s.\n", historyOrg)
				return nil
			}
			fmt.Fprintf(out, "Last run for %s: %s\n", last.Org, last.ID)
			fmt.Fprintf(out, "  finished %s, plan %s\n", last.FinishedAt.Local().Format("2006-01-02 15:04:05"), last.PlanHash)
			fmt.Fprintf(out, "  %d succeeded, %d skipped, %d failed, %d deferred\n", last.Succeeded, last.Skipped, last.Failed, last.Deferred)
			return nil
		}

		records, err := h.LoadAll()
		if err != nil {
			return NewCLIError("failed to read history", "", err)
		}

		columns := []table.Column{
			{Title: "Started", Width: 20},
			{Title: "Org", Width: 16},
			{Title: "Scope", Width: 14},
			{Title: "Dry", Width: 4},
			{Title: "OK", Width: 4},
			{Title: "Skip", Width: 5},
			{Title: "Fail", Width: 5},
			{Title: "Defer", Width: 6},
			{Title: "Run", Width: 36},
		}
		rows := make([]table.Row, 0, len(records))
		for _, r := range records {
			if historyOrg != "" && r.Org != historyOrg {
				continue
			}
			dry := ""
			if r.DryRun {
				dry = "yes"
			}
			rows = append(rows, table.Row{
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Org,
				r.Scope,
				dry,
				strconv.Itoa(r.Succeeded),
				strconv.Itoa(r.Skipped),
				strconv.Itoa(r.Failed),
				strconv.Itoa(r.Deferred),
				r.ID,
			})
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
		fmt.Fprintln(out, staticTable(columns, rows))
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFile, "file", "", "History file (overrides history_file)")
	historyCmd.Flags().StringVar(&historyOrg, "org", "", "Only show runs for this organization")
	historyCmd.Flags().BoolVar(&historyVerify, "verify", false, "Check the hash chain instead of listing runs")
	historyCmd.Flags().BoolVar(&historyLast, "last", false, "Only show the newest run for --org")
	RootCmd.AddCommand(historyCmd)
}
