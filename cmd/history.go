package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mingsxs/UCS-AutoRobot/internal/core"
	"github.com/mingsxs/UCS-AutoRobot/internal/history"
)

// ANSI palette, matching the teacher's cmd/stats.go conventions.
const (
	histColorReset  = "\033[0m"
	histColorBold   = "\033[1m"
	histColorGreen  = "\033[32m"
	histColorRed    = "\033[31m"
	histColorYellow = "\033[33m"
	histColorCyan   = "\033[36m"
	histColorGray   = "\033[90m"
)

// NewHistoryCommand reports on past runs recorded in the SQLite history
// database: `autorobot history <sequence-base-name>` lists the most recent
// worker runs matching that name, and with --loops prints each run's
// per-iteration PASS/FAIL/UNKNOWN breakdown.
func NewHistoryCommand() *cobra.Command {
	var limit int
	var showLoops bool

	historyCmd := &cobra.Command{
		Use:   "history <sequence-base-name>",
		Short: "Show recent run history for a sequence",
		Long:  `Reads the local run-history database and prints recent worker runs matching the given sequence base name, newest first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			db, err := history.Open(core.GetHistoryDBPath())
			if err != nil {
				return fmt.Errorf("open history database: %w", err)
			}
			defer db.Close()

			runs, err := db.GetRecentWorkerRuns(limit)
			if err != nil {
				return fmt.Errorf("query run history: %w", err)
			}

			matched := 0
			for _, run := range runs {
				if !strings.Contains(run.WorkerName, name) && !strings.Contains(run.SequenceFile, name) {
					continue
				}
				matched++

				fmt.Printf("%s%s%s  %s  loops=%d pass=%s%d%s fail=%s%d%s  %s\n",
					histColorBold, run.WorkerName, histColorReset,
					formatRunWhen(run.StartedAt),
					run.TotalLoops,
					histColorGreen, run.PassLoops, histColorReset,
					histColorRed, run.FailLoops, histColorReset,
					statusColor(run.Status),
				)

				if showLoops {
					results, err := db.GetLoopResults(run.ID)
					if err != nil {
						return fmt.Errorf("query loop results for run %d: %w", run.ID, err)
					}
					for _, r := range results {
						fmt.Printf("    loop %-4d %s", r.LoopNumber, resultColor(r.Result))
						if r.FailureMessage != "" {
							fmt.Printf("  %s%s%s", histColorGray, r.FailureMessage, histColorReset)
						}
						fmt.Println()
					}
				}
			}

			if matched == 0 {
				fmt.Printf("no history found matching %q\n", name)
			}
			return nil
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to scan")
	historyCmd.Flags().BoolVarP(&showLoops, "loops", "L", false, "show per-loop PASS/FAIL/UNKNOWN detail for each run")

	return historyCmd
}

func formatRunWhen(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func statusColor(status string) string {
	switch status {
	case "running":
		return histColorYellow + status + histColorReset
	case "complete":
		return histColorGreen + status + histColorReset
	default:
		return histColorGray + status + histColorReset
	}
}

func resultColor(result string) string {
	switch result {
	case "PASS":
		return histColorGreen + result + histColorReset
	case "FAIL":
		return histColorRed + result + histColorReset
	default:
		return histColorCyan + result + histColorReset
	}
}
