package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/diff"
	"github.com/sprite-ai/revu/internal/score"
	"github.com/sprite-ai/revu/internal/session"
)

var fixCmd = &cobra.Command{
	Use:   "fix <path>...",
	Short: "Analyze, fix every issue, and report the improvement",
	Long: `Run the full cycle without interaction: analyze the code, ask the
service to fix all findings, re-analyze the fixed code, and print a
before/after summary. The fixed code is written next to the input
with an .improved suffix unless -o is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFix,
}

func init() {
	fixCmd.Flags().StringP("output", "o", "", "write fixed code to this path")
	fixCmd.Flags().Bool("diff", false, "print a unified diff of the fix")
}

func runFix(cmd *cobra.Command, args []string) error {
	mode, err := analysisMode()
	if err != nil {
		return err
	}

	units, err := aggregate.LoadPaths(args)
	if err != nil {
		return err
	}

	ctrl := session.New(newClient(), mode)
	if err := ctrl.SetSource(units); err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := ctrl.Analyze(ctx); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	before := ctrl.Snapshot()
	fmt.Printf("Score: %.1f/100 (%s), %d unique issues\n",
		before.CurrentResult.OverallScore,
		score.Interpret(before.CurrentResult.OverallScore),
		before.CurrentResult.TotalUniqueIssues)

	if before.CurrentResult.TotalUniqueIssues == 0 {
		fmt.Println("Nothing to fix.")
		return nil
	}

	fmt.Println("Fixing all issues...")
	if err := ctrl.Fix(ctx, false); err != nil {
		return fmt.Errorf("fix failed: %w", err)
	}

	after := ctrl.Snapshot()
	printImprovement(ctrl.Delta(), before, after)

	if showDiff, _ := cmd.Flags().GetBool("diff"); showDiff {
		printFixDiff(after)
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = defaultOutputPath(units)
	}
	if err := os.WriteFile(out, []byte(after.SourceCode), 0644); err != nil {
		return fmt.Errorf("writing fixed code: %w", err)
	}
	fmt.Printf("Fixed code written to %s\n", out)
	return nil
}

func defaultOutputPath(units []aggregate.Unit) string {
	if len(units) == 1 {
		return units[0].Name + ".improved"
	}
	return "revu.improved"
}

func printImprovement(d score.Delta, before, after session.Session) {
	if !d.Measured {
		fmt.Println("Fix applied; improvement not measured.")
		return
	}

	fmt.Printf("\nScore: %.1f -> %.1f (%+.1f points)\n",
		before.CurrentResult.OverallScore,
		after.RemainingResult.OverallScore,
		d.ScoreImprovement)
	fmt.Printf("Issues: %d fixed, %d remaining\n", d.IssuesFixed, d.IssuesRemaining)

	// Per-category before/after issue counts.
	for _, cat := range before.CurrentResult.Categories() {
		b := len(before.CurrentResult.IssuesByCategory[cat])
		a := 0
		if after.RemainingResult != nil {
			a = len(after.RemainingResult.IssuesByCategory[cat])
		}
		fmt.Printf("  %-12s %d -> %d\n", cat, b, a)
	}
}

func printFixDiff(s session.Session) {
	if s.PreFixCode == "" || s.PreFixCode == s.SourceCode {
		return
	}
	name := "code"
	if len(s.Manifest) == 1 {
		name = s.Manifest[0]
	}
	f, err := diff.Compare(name, s.PreFixCode, s.SourceCode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not diff the fix: %v\n", err)
		return
	}
	fmt.Println()
	fmt.Print(f.Raw)
}
