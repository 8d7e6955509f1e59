package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/orgsync/pkg/application"
	"github.com/felixgeelhaar/orgsync/pkg/domain/outcome"
	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
)

const (
	outputText = "text"
	outputJSON = "json"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func staticTable(columns []table.Column, rows []table.Row) string {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Bold(true)
	s.Selected = lipgloss.NewStyle() // Disable selection style for static view
	t.SetStyles(s)
	return t.View()
}

func renderRun(w io.Writer, run *application.Run, format string) error {
	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "", outputText:
		renderPlan(w, run.Plan, run.DryRun)
		if !run.DryRun && len(run.Results) > 0 {
			renderResults(w, run.Results)
		}
		renderSummary(w, run)
		return nil
	default:
		return invalid(fmt.Sprintf("unknown output format %q", format), "Use --output text or --output json", nil)
	}
}

func renderPlan(w io.Writer, plan *planning.Plan, dryRun bool) {
	heading := "Plan for " + plan.Org
	if dryRun {
		heading += " (dry run)"
	}
	fmt.Fprintln(w, titleStyle.Render(heading))

	if plan.IsEmpty() {
		fmt.Fprintln(w, okStyle.Render("Nothing to do."))
	} else {
		columns := []table.Column{
			{Title: "#", Width: 3},
			{Title: "Action", Width: 22},
			{Title: "Target", Width: 32},
			{Title: "Depends On", Width: 40},
		}
		rows := make([]table.Row, 0, len(plan.Actions))
		for i, a := range plan.Actions {
			rows = append(rows, table.Row{
				strconv.Itoa(i + 1),
				a.Kind.DisplayName(),
				a.Target(),
				strings.Join(a.DependsOn, ", "),
			})
		}
		fmt.Fprintln(w, staticTable(columns, rows))
	}

	if len(plan.Deferred) > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Deferred (%d):", len(plan.Deferred))))
		columns := []table.Column{
			{Title: "Resource", Width: 36},
			{Title: "Reason", Width: 60},
		}
		rows := make([]table.Row, 0, len(plan.Deferred))
		for _, d := range plan.Deferred {
			rows = append(rows, table.Row{d.Resource.String(), d.Reason})
		}
		fmt.Fprintln(w, staticTable(columns, rows))
	}
}

func renderResults(w io.Writer, results []outcome.ActionResult) {
	columns := []table.Column{
		{Title: "Action", Width: 22},
		{Title: "Target", Width: 32},
		{Title: "Status", Width: 28},
		{Title: "Tries", Width: 5},
		{Title: "Detail", Width: 50},
	}
	rows := make([]table.Row, 0, len(results))
	for _, r := range results {
		rows = append(rows, table.Row{
			r.Action.Kind.DisplayName(),
			r.Action.Target(),
			r.Status.DisplayName(),
			strconv.Itoa(r.Attempts),
			r.Detail,
		})
	}
	fmt.Fprintln(w, titleStyle.Render("Results"))
	fmt.Fprintln(w, staticTable(columns, rows))
}

func renderSummary(w io.Writer, run *application.Run) {
	s := run.Summary
	line := fmt.Sprintf("%d planned, %d succeeded, %d skipped, %d failed, %d already satisfied, %d deferred",
		s.Planned, s.Succeeded, s.Skipped, s.Failed, s.AlreadySatisfied, s.Deferred)

	switch {
	case s.Failed > 0:
		fmt.Fprintln(w, failStyle.Render(line))
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  - %s %s: %s\n", f.Kind.DisplayName(), f.Target, f.Detail)
		}
	case s.Deferred > 0:
		fmt.Fprintln(w, warnStyle.Render(line))
	default:
		fmt.Fprintln(w, okStyle.Render(line))
	}
	fmt.Fprintf(w, "Run %s\n", run.ID)
}
