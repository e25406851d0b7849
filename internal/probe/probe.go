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

// Package probe issues a canned query against the backend search endpoint
// as a read-only sanity check that imported content is retrievable.
package probe

import (
	"context"

	"go.uber.org/zap"
)

const (
	// StatusWorking indicates the search endpoint answered the probe
	StatusWorking = "working"
	// StatusError indicates the probe failed
	StatusError = "error"

	// DefaultQuery is the canned probe query
	DefaultQuery = "emergency"
	// DefaultTopK is the result-count limit for the probe
	DefaultTopK = 3

	maxSampleSnippets = 3
	maxSnippetRunes   = 100
)

// Searcher is the backend search capability the probe needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]string, error)
}

// Result reports the outcome of one search probe.
type Result struct {
	Status      string   `json:"status"`
	Query       string   `json:"query"`
	ResultCount int      `json:"result_count"`
	Sample      []string `json:"sample,omitempty"`
	Err         string   `json:"error,omitempty"`
}

// Run issues one search probe. A network or backend failure yields a
// StatusError result; it is never propagated as an error.
func Run(ctx context.Context, searcher Searcher, query string, topK int, logger *zap.Logger) Result {
	if query == "" {
		query = DefaultQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	docs, err := searcher.Search(ctx, query, topK)
	if err != nil {
		logger.Warn("Search probe failed", zap.String("query", query), zap.Error(err))
		return Result{Status: StatusError, Query: query, Err: err.Error()}
	}

	result := Result{
		Status:      StatusWorking,
		Query:       query,
		ResultCount: len(docs),
	}
	for _, doc := range docs {
		if len(result.Sample) >= maxSampleSnippets {
			break
		}
		result.Sample = append(result.Sample, truncate(doc, maxSnippetRunes))
	}

	logger.Info("Search probe succeeded",
		zap.String("query", query),
		zap.Int("result_count", result.ResultCount))

	return result
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
