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

// Package importer coordinates bulk document imports into the RAG backend.
// A run is gated by a single health check, submits every record exactly
// once in input order, isolates per-document failures, and returns one
// aggregated outcome.
package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/your-org/kb-ingest/internal/document"
)

// ProgressInterval is the number of completed items between progress signals.
const ProgressInterval = 10

// Backend is the subset of the RAG client the coordinator needs.
type Backend interface {
	HealthCheck(ctx context.Context) error
	AddDocument(ctx context.Context, text string, metadata map[string]any) error
}

// ItemOutcome is the tagged per-item result of one submission.
type ItemOutcome struct {
	Index int // 1-based position in the input sequence
	Title string
	Err   error
}

// OK reports whether the item was accepted by the backend.
func (o ItemOutcome) OK() bool {
	return o.Err == nil
}

// Result is the aggregated outcome of one bulk import run.
// Invariant: Succeeded + Failed equals the number of attempted items.
type Result struct {
	Succeeded int
	Failed    int
	Errors    []string
	Items     []ItemOutcome
	Duration  time.Duration
}

// ProgressFunc receives the number of items completed so far and the total.
type ProgressFunc func(done, total int)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers bounds the number of in-flight submissions. n <= 1 keeps the
// default strictly sequential behavior; n > 1 runs at most n concurrent
// submissions while outcomes are merged back into input order.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 1 {
			c.workers = n
		}
	}
}

// WithRateLimit spaces submissions at perSec requests per second. Zero
// disables the limiter.
func WithRateLimit(perSec float64) Option {
	return func(c *Coordinator) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithProgress replaces the default progress signal (an info log).
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// WithOffset skips the first k records of the input sequence. Skipped
// records are not attempted and not counted. This is a manual resume aid;
// the backend is not assumed to deduplicate re-imported documents.
func WithOffset(k int) Option {
	return func(c *Coordinator) {
		if k > 0 {
			c.offset = k
		}
	}
}

// Coordinator runs bulk imports. It is single-use per Run call and not safe
// for concurrent callers.
type Coordinator struct {
	backend  Backend
	logger   *zap.Logger
	workers  int
	limiter  *rate.Limiter
	progress ProgressFunc
	offset   int
}

// New creates a bulk import coordinator.
func New(backend Backend, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend: backend,
		logger:  logger,
		workers: 1,
	}
	c.progress = func(done, total int) {
		c.logger.Info("Import progress",
			zap.Int("done", done),
			zap.Int("total", total))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run imports the given records. The health gate runs first, even for an
// empty batch: an unavailable backend short-circuits the whole run with
// zero submissions and failed == len(records). Once health is confirmed the
// full sequence is always attempted; a per-item failure is logged, recorded
// in the outcome, and never stops the run.
func (c *Coordinator) Run(ctx context.Context, records []document.Record) *Result {
	start := time.Now()

	if err := c.backend.HealthCheck(ctx); err != nil {
		c.logger.Error("RAG backend unavailable, aborting import", zap.Error(err))
		return &Result{
			Failed:   len(records),
			Errors:   []string{fmt.Sprintf("rag backend unavailable: %v", err)},
			Duration: time.Since(start),
		}
	}

	if c.offset > 0 {
		if c.offset >= len(records) {
			records = nil
		} else {
			records = records[c.offset:]
		}
		c.logger.Info("Skipping records before offset",
			zap.Int("offset", c.offset),
			zap.Int("remaining", len(records)))
	}

	result := &Result{Items: make([]ItemOutcome, len(records))}

	if c.workers > 1 {
		c.runParallel(ctx, records, result)
	} else {
		c.runSequential(ctx, records, result)
	}

	for _, item := range result.Items {
		if item.OK() {
			result.Succeeded++
		} else {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to import document %d: %v", item.Index, item.Err))
		}
	}

	result.Duration = time.Since(start)
	c.logger.Info("Bulk import finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result
}

// ImportFile loads a collection file and runs the import. Load failures are
// converted into a zero-attempt structured result so the caller never has
// to distinguish load errors from run errors.
func (c *Coordinator) ImportFile(ctx context.Context, path string) *Result {
	records, err := document.Load(path)
	if err != nil {
		c.logger.Error("Failed to load collection file", zap.String("path", path), zap.Error(err))
		return &Result{Errors: []string{err.Error()}}
	}

	c.logger.Info("Loaded collection file",
		zap.String("path", path),
		zap.Int("documents", len(records)))

	return c.Run(ctx, records)
}

// submit sends one record and converts the outcome into a tagged result.
// Failure is swallowed and reported, never propagated.
func (c *Coordinator) submit(ctx context.Context, index int, record document.Record) ItemOutcome {
	outcome := ItemOutcome{Index: index, Title: record.DisplayTitle()}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			outcome.Err = err
			return outcome
		}
	}

	if err := c.backend.AddDocument(ctx, record.Text, record.Payload()); err != nil {
		c.logger.Warn("Failed to import document",
			zap.Int("index", index),
			zap.String("title", outcome.Title),
			zap.Error(err))
		outcome.Err = err
	}

	return outcome
}

func (c *Coordinator) runSequential(ctx context.Context, records []document.Record, result *Result) {
	for i, record := range records {
		result.Items[i] = c.submit(ctx, i+1, record)
		if done := i + 1; done%ProgressInterval == 0 {
			c.progress(done, len(records))
		}
	}
}

// runParallel bounds in-flight submissions at c.workers. Outcomes land in a
// pre-sized slice indexed by position, so counts and error ordering are
// identical to the sequential run.
func (c *Coordinator) runParallel(ctx context.Context, records []document.Record, result *Result) {
	type job struct {
		index  int
		record document.Record
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcome := c.submit(ctx, j.index+1, j.record)

				mu.Lock()
				result.Items[j.index] = outcome
				completed++
				if completed%ProgressInterval == 0 {
					c.progress(completed, len(records))
				}
				mu.Unlock()
			}
		}()
	}

	for i, record := range records {
		jobs <- job{index: i, record: record}
	}
	close(jobs)
	wg.Wait()
}
