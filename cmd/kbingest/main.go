// Package main provides the kbingest CLI: bulk-loads knowledge-base
// collection files into the RAG backend and verifies a deployed stack.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/kb-ingest/internal/config"
)

// Exit codes: 0 full success, 1 partial failure, 2 total failure.
const (
	exitOK      = 0
	exitPartial = 1
	exitFailure = 2
)

// exitError carries the process exit code for an outcome without aborting
// cobra's normal error flow.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// app holds the dependencies shared by all subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	configPath string
	backendURL string
}

func main() {
	root := newRootCmd()

	if err := root.Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}

		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(exitFailure)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "kbingest",
		Short:         "Bulk-load knowledge-base documents into the RAG backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return &exitError{code: exitFailure, msg: fmt.Sprintf("failed to load configuration: %v", err)}
			}
			if a.backendURL != "" {
				cfg.Backend.URL = a.backendURL
			}
			a.cfg = cfg

			logger, err := initializeLogger(cfg)
			if err != nil {
				return &exitError{code: exitFailure, msg: fmt.Sprintf("failed to initialize logger: %v", err)}
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&a.backendURL, "url", "", "RAG backend base URL override")

	root.AddCommand(newImportCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newTestCmd(a))
	root.AddCommand(newSmokeCmd(a))
	root.AddCommand(newWatchCmd(a))

	return root
}

// initializeLogger creates a logger based on configuration settings
func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	if cfg.Logging.Output == "file" {
		zapConfig.OutputPaths = []string{"kbingest.log"}
		zapConfig.ErrorOutputPaths = []string{"kbingest.log"}
	} else {
		// Keep stdout clean for the human-readable summaries.
		zapConfig.OutputPaths = []string{"stderr"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	return zapConfig.Build()
}
