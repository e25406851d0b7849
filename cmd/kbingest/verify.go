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
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/kb-ingest/internal/gateway"
	"github.com/your-org/kb-ingest/internal/probe"
	"github.com/your-org/kb-ingest/internal/rag"
	"github.com/your-org/kb-ingest/internal/smoketest"
)

func newTestCmd(a *app) *cobra.Command {
	var (
		query string
		topK  int
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Probe the backend search endpoint with a canned query",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				query = a.cfg.Probe.Query
			}
			if topK == 0 {
				topK = a.cfg.Probe.TopK
			}

			backend := rag.NewClient(a.cfg.Backend.URL, a.logger)
			result := probe.Run(cmd.Context(), backend, query, topK, a.logger)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Search probe: %s\n", result.Status)
			fmt.Fprintf(out, "  Query:   %q\n", result.Query)

			if result.Status != probe.StatusWorking {
				fmt.Fprintf(out, "  Error:   %s\n", result.Err)
				return &exitError{code: exitFailure}
			}

			fmt.Fprintf(out, "  Results: %d\n", result.ResultCount)
			for _, snippet := range result.Sample {
				fmt.Fprintf(out, "    - %s\n", snippet)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Probe query (default from config)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Result-count limit (default from config)")

	return cmd
}

func newSmokeCmd(a *app) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the full-stack smoke test",
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait == 0 {
				wait = a.cfg.Smoke.ResponseWait
			}

			backend := rag.NewClient(a.cfg.Backend.URL, a.logger)
			gw := gateway.NewClient(a.cfg.Gateway.URL, a.logger)

			runner := smoketest.NewRunner(a.cfg.Gateway.URL, a.cfg.Services, backend, gw, wait, a.logger)
			report := runner.Run(cmd.Context())

			out := cmd.OutOrStdout()
			for _, step := range report.Steps {
				mark := "ok"
				detail := step.Detail
				if !step.OK {
					mark = "FAIL"
					detail = step.Err
				}
				fmt.Fprintf(out, "[%-4s] %-24s %s\n", mark, step.Name, detail)
			}

			failed := report.Failed()
			fmt.Fprintf(out, "\nSmoke test: %d/%d steps passed\n", len(report.Steps)-failed, len(report.Steps))

			switch {
			case report.Aborted:
				return &exitError{code: exitFailure, msg: "gateway unavailable, smoke test aborted"}
			case failed == len(report.Steps):
				return &exitError{code: exitFailure}
			case failed > 0:
				return &exitError{code: exitPartial}
			default:
				return nil
			}
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait before polling for the asynchronous reply (default from config)")

	return cmd
}
