// Copyright 2024 KB Ingest Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/kb-ingest/internal/document"
	"github.com/your-org/kb-ingest/internal/history"
	"github.com/your-org/kb-ingest/internal/importer"
	"github.com/your-org/kb-ingest/internal/rag"
)

// maxDisplayedErrors bounds the error lines in the console summary.
const maxDisplayedErrors = 5

func newImportCmd(a *app) *cobra.Command {
	var (
		file    string
		latest  bool
		offset  int
		workers int
		ratePS  float64
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON collection file into the RAG backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "" && !latest) || (file != "" && latest) {
				return &exitError{code: exitFailure, msg: "exactly one of --file or --latest is required"}
			}

			path := file
			if latest {
				var err error
				path, err = document.Latest(a.cfg.Import.CollectedDir)
				if err != nil {
					return &exitError{code: exitFailure, msg: err.Error()}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Selected latest collection file: %s\n", path)
			}

			if workers == 0 {
				workers = a.cfg.Import.Workers
			}
			if ratePS == 0 {
				ratePS = a.cfg.Import.RatePerSec
			}

			backend := rag.NewClient(a.cfg.Backend.URL, a.logger)
			coord := importer.New(backend, a.logger,
				importer.WithWorkers(workers),
				importer.WithRateLimit(ratePS),
				importer.WithOffset(offset),
			)

			startedAt := time.Now()
			result := coord.ImportFile(cmd.Context(), path)

			printImportSummary(cmd.OutOrStdout(), path, result)
			recordRun(a, path, startedAt, result)

			return importExitError(result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a JSON collection file")
	cmd.Flags().BoolVarP(&latest, "latest", "l", false, "Import the most recent file in the collected-data directory")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip the first N records (manual resume)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Bounded number of concurrent imports (default from config)")
	cmd.Flags().Float64Var(&ratePS, "rate", 0, "Requests per second throttle, 0 disables (default from config)")

	return cmd
}

func printImportSummary(out io.Writer, source string, result *importer.Result) {
	attempted := result.Succeeded + result.Failed

	fmt.Fprintf(out, "\nImport summary for %s\n", source)
	fmt.Fprintf(out, "  Attempted: %d\n", attempted)
	fmt.Fprintf(out, "  Succeeded: %d\n", result.Succeeded)
	fmt.Fprintf(out, "  Failed:    %d\n", result.Failed)
	fmt.Fprintf(out, "  Duration:  %v\n", result.Duration.Round(time.Millisecond))

	if len(result.Errors) > 0 {
		shown := len(result.Errors)
		if shown > maxDisplayedErrors {
			shown = maxDisplayedErrors
		}
		fmt.Fprintf(out, "  Errors (showing first %d of %d):\n", shown, len(result.Errors))
		for _, msg := range result.Errors[:shown] {
			fmt.Fprintf(out, "    - %s\n", msg)
		}
	}
}

// recordRun persists the run in the history ledger. Ledger failures never
// fail an import.
func recordRun(a *app, source string, startedAt time.Time, result *importer.Result) {
	store, err := history.Open(a.cfg.History.DBPath, a.logger)
	if err != nil {
		a.logger.Warn("Failed to open history ledger", zap.Error(err))
		return
	}
	defer func() { _ = store.Close() }()

	errs := result.Errors
	if len(errs) > maxDisplayedErrors {
		errs = errs[:maxDisplayedErrors]
	}

	run := history.Run{
		ID:          uuid.NewString(),
		StartedAt:   startedAt,
		Source:      source,
		Total:       result.Succeeded + result.Failed,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		Duration:    result.Duration,
		FirstErrors: errs,
	}
	if err := store.Record(run); err != nil {
		a.logger.Warn("Failed to record import run", zap.Error(err))
	}
}

// importExitError maps an import outcome to the process exit code: nil for
// full success (or an empty batch), partial when some items failed, total
// when nothing succeeded but something went wrong.
func importExitError(result *importer.Result) error {
	switch {
	case len(result.Errors) == 0:
		return nil
	case result.Succeeded > 0:
		return &exitError{code: exitPartial}
	default:
		return &exitError{code: exitFailure}
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent import runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(a.cfg.History.DBPath, a.logger)
			if err != nil {
				return &exitError{code: exitFailure, msg: fmt.Sprintf("failed to open history ledger: %v", err)}
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Recent(limit)
			if err != nil {
				return &exitError{code: exitFailure, msg: fmt.Sprintf("failed to read history: %v", err)}
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No import runs recorded")
				return nil
			}

			for _, run := range runs {
				fmt.Fprintf(out, "%s  %s  total=%d succeeded=%d failed=%d duration=%v\n",
					run.StartedAt.Format(time.RFC3339), run.Source,
					run.Total, run.Succeeded, run.Failed, run.Duration.Round(time.Millisecond))
				for _, msg := range run.FirstErrors {
					fmt.Fprintf(out, "    - %s\n", msg)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs to list")

	return cmd
}
