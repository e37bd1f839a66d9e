// Package cli provides the command-line interface for vaultwiz.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vaultwiz/internal/app"
	"github.com/raphaelgruber/vaultwiz/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose         bool
	vaultFlag       string
	modelFlag       string
	persistenceFlag string

	// Global config and application
	cfg         config.Config
	application *app.App
	logCleanup  func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vaultwiz",
	Short: "Chat with an LLM about the notes in your vault",
	Long: `Vaultwiz is a chat assistant for a folder of markdown notes.

The active note (and a selected range of lines) is sent to the configured
model as context. Conversations are stored in the vault, in SQLite or in
SurrealDB, and can be reopened, exported and linked from notes.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

// setup loads configuration, creates the logger and builds the app.
func setup(cmd *cobra.Command, args []string) error {
	// Skip initialization for version and help commands
	if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	cfg = config.Load()
	if vaultFlag != "" {
		cfg.VaultDir = vaultFlag
	}
	if modelFlag != "" {
		cfg.ModelID = modelFlag
	}
	if persistenceFlag != "" {
		cfg.Persistence = persistenceFlag
	}

	// The terminal belongs to command output (or the chat view); logs go
	// to the file unless -v is given.
	var logger *slog.Logger
	if verbose {
		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	} else {
		logger, logCleanup = config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	application, err = app.New(ctx, cfg, app.Options{
		Watch:  cmd.Name() == chatCmd.Name(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("start vaultwiz: %w", err)
	}
	return nil
}

func teardown() {
	if application != nil {
		if err := application.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close: %v\n", err)
		}
		application = nil
	}
	if logCleanup != nil {
		_ = logCleanup()
		logCleanup = nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer teardown()
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (logs on stderr)")
	rootCmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "vault directory (default $VAULTWIZ_VAULT or cwd)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "configured model id to use")
	rootCmd.PersistentFlags().StringVar(&persistenceFlag, "persistence", "", "persistence provider: local, sqlite, surrealdb")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(backgroundCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(linkCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	teardown()
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
