package cli

import (
	"github.com/spf13/cobra"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/session"
	"github.com/sprite-ai/revu/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review <path>...",
	Short: "Open an interactive review session",
	Long: `Open an interactive TUI for reviewing the given files or directories.
The code is analyzed on startup; findings can be selected and fixed,
and the fix is re-analyzed to measure the improvement.

Examples:
  revu review app.py               # single file
  revu review src/                 # whole directory
  revu review -m security app.py   # security findings only`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReview,
}

func runReview(cmd *cobra.Command, args []string) error {
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

	return tui.Run(ctrl)
}
