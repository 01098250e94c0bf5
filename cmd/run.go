package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/research"
)

var (
	runDepth  string
	runBudget float64
	runJSON   bool
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Research a query and file the findings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		depth, err := model.ParseDepth(runDepth)
		if err != nil {
			return err
		}

		env, err := initResearch(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []research.ExecuteOption
		if cmd.Flags().Changed("budget") {
			opts = append(opts, research.WithBudget(runBudget))
		}

		result, err := env.Controller.Execute(ctx, strings.Join(args, " "), depth, opts...)
		if err != nil {
			return eris.Wrap(err, "research run")
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		formatResult(os.Stdout, result)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDepth, "depth", string(model.DepthStandard), "research depth (quick, standard, deep)")
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "budget ceiling in USD (default from depth)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(runCmd)
}

// formatResult writes a human-readable research summary to out.
func formatResult(out io.Writer, r *model.ResearchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", r.SessionID)
	_, _ = fmt.Fprintf(w, "Document:\t%s (%s)\n", r.DocumentPath, r.Operation)
	_, _ = fmt.Fprintf(w, "Confidence:\t%.2f\n", r.FinalConfidence)
	_, _ = fmt.Fprintf(w, "Hops:\t%d (%s)\n", r.HopsExecuted, r.StopReason)
	_, _ = fmt.Fprintf(w, "Sources:\t%d\n", r.SourcesAnalyzed)
	budget := "within budget"
	if !r.WithinBudget {
		budget = "over budget"
	}
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f (%s)\n", r.TotalCost, budget)
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", r.Duration.Round(time.Millisecond))
	_ = w.Flush()

	writeSection(out, "Key findings", r.KeyFindings)
	writeSection(out, "Warnings", r.Warnings)
	writeSection(out, "Suggestions", r.Suggestions)
	if len(r.Conflicts) > 0 {
		_, _ = fmt.Fprintf(out, "\nConflicts:\n")
		for _, c := range r.Conflicts {
			_, _ = fmt.Fprintf(out, "  - [%s] %s: %q vs %q\n", c.Severity, c.Field, c.ExistingValue, c.NewValue)
		}
	}
}

func writeSection(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%s:\n", title)
	for _, it := range items {
		_, _ = fmt.Fprintf(out, "  - %s\n", it)
	}
}
