package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"outreach/internal/config"
	"outreach/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	emailFlag  string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Outreach assistant: cold-email campaigns and finance interview prep",
	Long: `outreach drives the Outreach Assistant backend.

It runs the web dashboard (serve), and exposes the same operations from the
terminal: settings, templates, the screenshot watcher, contact sheets,
streamed email sends, send history, the finance chat and the MCQ quiz.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Log.Development || verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&emailFlag, "email", "", "act as this account instead of the signed-in one")

	rootCmd.AddCommand(
		serveCmd,
		loginCmd,
		logoutCmd,
		settingsCmd,
		templatesCmd,
		watcherCmd,
		contactsCmd,
		sendCmd,
		historyCmd,
		chatCmd,
		askCmd,
		quizCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
