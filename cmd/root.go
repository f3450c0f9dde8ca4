package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/mingsxs/UCS-AutoRobot/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "autorobot",
		Short: "autorobot - PTY-driven network test automation engine",
		Long:  `autorobot drives interactive network-device sessions through scripted sequence files, run via a Master Scheduler supervising one Worker process per sequence.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			messages, err := core.InitializeConfig(cmd)
			for _, message := range messages {
				fmt.Println(message)
			}
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			switch {
			case verbose >= 2:
				level = slog.LevelDebug
			case verbose == 1:
				level = slog.LevelInfo
			}

			slog.SetDefault(slog.New(
				tint.NewHandler(os.Stderr, &tint.Options{
					Level:      level,
					TimeFormat: time.DateTime,
				}),
			))

			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewRunCommand(),
		NewWorkerRunCommand(),
		NewHistoryCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
