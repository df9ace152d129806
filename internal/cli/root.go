package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/querydesk/internal/config"
	"github.com/soyeahso/querydesk/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	cfg   config.Config
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "querydesk",
		Short: "Chat with the analytics pipeline from a terminal",
		Long: "querydesk connects to the analytics pipeline, streams its replies and progress,\n" +
			"and manages threads, documents, CSV data and the learning queue.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			if err := config.LoadDotEnv(paths.EnvFile); err != nil {
				return err
			}
			cfg, err = config.Load(paths.Config)
			if err != nil {
				return err
			}
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			log = logging.NewStyled(cfg.Logging.ConsoleStyle, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.querydesk/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newThreadsCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newCSVCmd())
	cmd.AddCommand(newWorkbooksCmd())
	cmd.AddCommand(newUsersCmd())
	cmd.AddCommand(newLearningCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", describeErr(err))
	}
	return err
}
