package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/model"
	"github.com/sprite-ai/revu/internal/score"
)

var checkCmd = &cobra.Command{
	Use:   "check <path>...",
	Short: "Analyze code and output a report (non-interactive)",
	Long: `Submit files or directories for analysis and print the findings.
Useful for CI, pre-commit hooks, and piping into other tools.

Exit codes:
  0 — clean, no issues found
  1 — issues found
  2 — high or critical issues found`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
}

func runCheck(cmd *cobra.Command, args []string) error {
	mode, err := analysisMode()
	if err != nil {
		return err
	}

	units, err := aggregate.LoadPaths(args)
	if err != nil {
		return err
	}
	code, manifest, err := aggregate.Aggregate(units)
	if err != nil {
		return err
	}

	result, err := newClient().Analyze(cmd.Context(), code, mode)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		if err := outputJSON(result); err != nil {
			return err
		}
	case "markdown":
		outputMarkdown(result, code, manifest)
	default:
		outputText(result, code, manifest)
	}

	os.Exit(checkExitCode(result))
	return nil
}

// checkExitCode maps the worst finding to the command's exit status.
func checkExitCode(result *model.AnalysisResult) int {
	if result.TotalUniqueIssues == 0 {
		return 0
	}
	for _, iss := range result.Issues() {
		if iss.Severity.Rank() >= model.SeverityHigh.Rank() {
			return 2
		}
	}
	return 1
}

// location renders an issue's position, mapped back to its source unit when
// several were aggregated.
func location(code string, manifest []string, line int) string {
	if line <= 0 {
		return ""
	}
	if len(manifest) > 1 {
		if unit, local := aggregate.Attribute(code, line); unit != "" {
			return fmt.Sprintf("%s:%d", unit, local)
		}
	}
	if len(manifest) == 1 {
		return fmt.Sprintf("%s:%d", manifest[0], line)
	}
	return fmt.Sprintf("line %d", line)
}

func outputText(result *model.AnalysisResult, code string, manifest []string) {
	fmt.Printf("Score: %.1f/100 (%s)\n", result.OverallScore, score.Interpret(result.OverallScore))
	fmt.Printf("Issues: %d unique\n\n", result.TotalUniqueIssues)

	if result.TotalUniqueIssues == 0 {
		fmt.Println("No issues found.")
		return
	}

	for _, cat := range result.Categories() {
		issues := result.IssuesByCategory[cat]
		if len(issues) == 0 {
			continue
		}
		header := cat
		if s, ok := result.CategoryScores[cat]; ok {
			header = fmt.Sprintf("%s (%.1f)", cat, s)
		}
		fmt.Printf("  %s\n", header)
		for _, iss := range issues {
			icon := severityIcon(iss.Severity)
			loc := location(code, manifest, iss.Line)
			if loc != "" {
				loc = " " + loc
			}
			fmt.Printf("    %s [%s]%s: %s\n", icon, iss.Severity, loc, iss.Description)
			if iss.Suggestion != "" {
				fmt.Printf("         fix: %s\n", iss.Suggestion)
			}
		}
		fmt.Println()
	}
}

func outputJSON(result *model.AnalysisResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputMarkdown(result *model.AnalysisResult, code string, manifest []string) {
	fmt.Printf("## Review Report\n\n")
	fmt.Printf("**Score:** %.1f/100 (%s) | **Issues:** %d\n\n",
		result.OverallScore, score.Interpret(result.OverallScore), result.TotalUniqueIssues)

	if result.TotalUniqueIssues == 0 {
		fmt.Println("No issues found.")
		return
	}

	fmt.Println("| Severity | Category | Location | Description |")
	fmt.Println("|----------|----------|----------|-------------|")
	for _, iss := range result.Issues() {
		loc := location(code, manifest, iss.Line)
		if loc == "" {
			loc = "-"
		}
		fmt.Printf("| %s | %s | `%s` | %s |\n", iss.Severity, iss.Category, loc, iss.Description)
	}
}

func severityIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "!!"
	case model.SeverityHigh:
		return "! "
	case model.SeverityMedium:
		return "* "
	default:
		return "- "
	}
}
