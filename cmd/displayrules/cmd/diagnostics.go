package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/solatis/displayrules/internal/core/db"
	"github.com/solatis/displayrules/internal/types"
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "List rules that failed to compile",
	RunE:  runDiagnostics,
}

func init() {
	rootCmd.AddCommand(diagnosticsCmd)
	diagnosticsCmd.Flags().String("run", "", "compile run id (default: latest run)")
	diagnosticsCmd.Flags().Bool("source", false, "include rule XML and partial script")
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if err := requireDB(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	database, err := db.Open(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	store, err := openStore(ctx, database)
	if err != nil {
		return err
	}

	var run *db.Run
	if id, _ := cmd.Flags().GetString("run"); id != "" {
		runID, err := types.ParseRunID(id)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", id, err)
		}
		run, err = store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
	} else if run, err = store.LatestRun(ctx); err != nil {
		return err
	}

	diags, err := store.ListDiagnostics(ctx, run.ID)
	if err != nil {
		return err
	}
	showSource, _ := cmd.Flags().GetBool("source")
	printDiagnostics(cmd.OutOrStdout(), run, diags, showSource)
	return nil
}

func printDiagnostics(w io.Writer, run *db.Run, diags []db.Diagnostic, showSource bool) {
	r := lipgloss.NewRenderer(w)
	heading := r.NewStyle().Bold(true)
	failure := r.NewStyle().Foreground(lipgloss.Color("9"))
	muted := r.NewStyle().Foreground(lipgloss.Color("8"))

	finished := run.FinishedAt
	if finished == "" {
		finished = "running"
	}
	fmt.Fprintln(w, heading.Render("Run "+string(run.ID)))
	fmt.Fprintf(w, "started %s, finished %s: %d displays, %d rules emitted, %d failed\n",
		run.StartedAt, finished, run.Displays, run.RulesEmitted, run.RulesFailed)

	if len(diags) == 0 {
		fmt.Fprintln(w, muted.Render("no rule failures"))
		return
	}
	for _, d := range diags {
		fmt.Fprintf(w, "\n%s %s rule '%s' (%s)\n", d.Display, d.WidgetID, d.RuleName, d.Property)
		fmt.Fprintln(w, "  "+failure.Render(d.Error))
		if !showSource {
			continue
		}
		fmt.Fprintln(w, muted.Render(indent(d.Source, "    ")))
		if d.Partial != "" {
			fmt.Fprintln(w, muted.Render(indent(strings.TrimRight(d.Partial, "\n"), "    ")))
		}
	}
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
