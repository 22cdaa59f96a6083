package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newHistoryCommand creates the history subcommand
func newHistoryCommand() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent playback history",
		Long: `Show recently played tracks, newest first.

Examples:
  resono history
  resono history --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, limit)
		},
	}

	historyCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show")

	return historyCmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cli.initializeHistory()
	if cli.historyStore == nil {
		return fmt.Errorf("playback history is unavailable")
	}

	plays, err := cli.historyStore.RecentPlays(limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if len(plays) == 0 {
		cmd.Println("No plays recorded yet")
		return nil
	}

	for _, p := range plays {
		status := "stopped"
		if p.Completed {
			status = "finished"
		}
		cmd.Printf("%s  %-8s  %6s  %s\n",
			p.StartedAt.Format("2006-01-02 15:04"),
			status,
			formatElapsed(time.Duration(p.DurationMS)*time.Millisecond),
			p.Path)
	}

	return nil
}
