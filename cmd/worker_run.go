package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mingsxs/UCS-AutoRobot/internal/core"
	"github.com/mingsxs/UCS-AutoRobot/internal/history"
	"github.com/mingsxs/UCS-AutoRobot/internal/sequence"
	"github.com/mingsxs/UCS-AutoRobot/internal/worker"
)

// NewWorkerRunCommand is the hidden re-exec target used both for the
// Master's entry worker and for every NEW_WORKER step: `autorobot
// runworker --sequence <file> --loops N --name <label> --socket <path>`.
// It is never invoked directly by an operator.
func NewWorkerRunCommand() *cobra.Command {
	var seqFile, name, socketPath string
	var loops int

	runworkerCmd := &cobra.Command{
		Use:    "runworker",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := sequence.Parse(seqFile)
			if err != nil {
				return fmt.Errorf("parse sequence file: %w", err)
			}

			db, err := history.Open(core.GetHistoryDBPath())
			if err != nil {
				slog.Warn("run history unavailable", "error", err)
			} else {
				defer db.Close()
			}

			w := worker.New(name, seq, loops, worker.Config{
				StopOnFailure: core.GetStopOnFailure(),
				RecoverRetry:  core.GetSessionRecoverRetry(),
				SocketPath:    socketPath,
				ErrorDumpPath: core.ErrorDumpDir,
				CSVDumpDir:    core.CSVDumpDir,
				HistoryDB:     db,
				Logger:        slog.Default(),
			})

			return w.RunAll()
		},
	}

	runworkerCmd.Flags().StringVar(&seqFile, "sequence", "", "sequence file to run")
	runworkerCmd.Flags().StringVar(&name, "name", "", "worker name reported over IPC")
	runworkerCmd.Flags().StringVar(&socketPath, "socket", "", "Master IPC socket path")
	runworkerCmd.Flags().IntVar(&loops, "loops", 1, "number of loop iterations")
	runworkerCmd.MarkFlagRequired("sequence")
	runworkerCmd.MarkFlagRequired("name")

	return runworkerCmd
}
