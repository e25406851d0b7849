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
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/kb-ingest/internal/importer"
	"github.com/your-org/kb-ingest/internal/rag"
)

// settleDelay gives the generator time to finish writing a file before the
// watcher imports it.
const settleDelay = 500 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the collected-data directory and import new collection files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Import.CollectedDir
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return &exitError{code: exitFailure, msg: fmt.Sprintf("failed to create watcher: %v", err)}
			}
			defer func() { _ = watcher.Close() }()

			if err := watcher.Add(dir); err != nil {
				return &exitError{code: exitFailure, msg: fmt.Sprintf("failed to watch %s: %v", dir, err)}
			}

			backend := rag.NewClient(a.cfg.Backend.URL, a.logger)
			coord := importer.New(backend, a.logger,
				importer.WithWorkers(a.cfg.Import.Workers),
				importer.WithRateLimit(a.cfg.Import.RatePerSec),
			)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s for new collection files (Ctrl-C to stop)\n", dir)
			a.logger.Info("Watching collected-data directory", zap.String("dir", dir))

			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !event.Has(fsnotify.Create) || filepath.Ext(event.Name) != ".json" {
						continue
					}

					time.Sleep(settleDelay)
					startedAt := time.Now()
					result := coord.ImportFile(ctx, event.Name)
					printImportSummary(out, event.Name, result)
					recordRun(a, event.Name, startedAt, result)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					a.logger.Warn("Watcher error", zap.Error(err))
				}
			}
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to watch (default from config)")

	return cmd
}
