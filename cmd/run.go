package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mingsxs/UCS-AutoRobot/internal/core"
	"github.com/mingsxs/UCS-AutoRobot/internal/master"
	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
)

// NewRunCommand is the operator-facing entry point: it parses the entry
// sequence file (just to fail fast on a bad file before spawning anything),
// binds a per-sequence Master socket, spawns the entry Worker, and drives
// the Master's display loop to completion.
func NewRunCommand() *cobra.Command {
	var loops int
	var maxSequences int
	var watch bool

	runCmd := &cobra.Command{
		Use:   "run -f <sequence-file>",
		Short: "Run a sequence file under the Master Scheduler",
		Long:  `Spawns one Worker process for the given sequence file and supervises it to completion, rendering a live progress display.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			seqFile, err := cmd.Flags().GetString("file")
			if err != nil || seqFile == "" {
				return fmt.Errorf("--file is required")
			}

			if _, err := sequence.Parse(seqFile); err != nil {
				return fmt.Errorf("parse sequence file: %w", err)
			}

			if err := core.EnsureRunDirs(); err != nil {
				return fmt.Errorf("prepare run directories: %w", err)
			}

			socketPath := core.NewSocketName(seqFile)

			if maxSequences <= 0 {
				maxSequences = core.GetMaxSequences()
			}

			binary, err := os.Executable()
			if err != nil {
				binary = os.Args[0]
			}

			sched, err := master.New(master.Config{
				SocketPath:      socketPath,
				MaxSequences:    maxSequences,
				RefreshInterval: time.Duration(core.GetWindowRefreshInterval() * float64(time.Second)),
				FailureLogPath:  core.NewLogPath(seqFile, "failure"),
				Logger:          slog.Default(),
				BinaryPath:      binary,
			})
			if err != nil {
				return err
			}

			entryName := filepath.Base(seqFile)
			if loops <= 0 {
				loops = 1
			}
			if err := sched.SpawnEntryWorker(entryName, seqFile, loops); err != nil {
				return err
			}

			if watch {
				done := make(chan struct{})
				defer close(done)
				go master.WatchSequenceFile(seqFile, slog.Default(), done)
			}

			summary, err := sched.Run()
			if err != nil {
				return err
			}

			fmt.Printf("workers=%d pass=%d fail=%d unknown=%d\n",
				summary.TotalWorkers, summary.TotalPass, summary.TotalFail, summary.TotalUnknown)

			return nil
		},
	}

	runCmd.Flags().StringP("file", "f", "", "entry sequence file (required)")
	runCmd.Flags().IntVarP(&loops, "loops", "l", 1, "number of loop iterations for the entry sequence")
	runCmd.Flags().IntVarP(&maxSequences, "max-sequences", "S", 0, "concurrency cap (defaults to config)")
	runCmd.Flags().BoolVarP(&watch, "watch", "D", false, "warn if the entry sequence file changes while running")
	runCmd.MarkFlagRequired("file")

	return runCmd
}
