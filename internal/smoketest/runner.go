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

// Package smoketest exercises a deployed stack end to end: gateway health,
// per-service health, a message round trip, knowledge-store statistics, and
// a final search probe. One pass per invocation, no rollback.
package smoketest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/kb-ingest/internal/gateway"
	"github.com/your-org/kb-ingest/internal/health"
	"github.com/your-org/kb-ingest/internal/probe"
)

// DefaultResponseWait is how long the runner waits before its single
// history poll for the asynchronous reply.
const DefaultResponseWait = 10 * time.Second

const cannedMessage = "What emergency numbers should I know?"

// Backend is the knowledge-backend capability the smoke test needs.
type Backend interface {
	Stats(ctx context.Context) (map[string]any, error)
	Search(ctx context.Context, query string, topK int) ([]string, error)
}

// Gateway is the gateway capability the smoke test needs.
type Gateway interface {
	SubmitMessage(ctx context.Context, userID, text string) error
	History(ctx context.Context, userID string) ([]gateway.Message, error)
}

// StepResult records one smoke-test step.
type StepResult struct {
	Name    string
	OK      bool
	Detail  string
	Err     string
	Latency time.Duration
}

// Report is the ordered outcome of one smoke-test run. Aborted is set when
// the gateway gate failed and the remaining steps were skipped.
type Report struct {
	Steps   []StepResult
	Aborted bool
}

// Failed counts the steps that did not pass.
func (r *Report) Failed() int {
	failed := 0
	for _, step := range r.Steps {
		if !step.OK {
			failed++
		}
	}
	return failed
}

// Runner drives one smoke-test pass over a deployed stack.
type Runner struct {
	gatewayURL   string
	services     map[string]string
	backend      Backend
	gw           Gateway
	responseWait time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewRunner creates a smoke-test runner. services maps service names to
// their base URLs; each is probed at <base>/health.
func NewRunner(gatewayURL string, services map[string]string, backend Backend, gw Gateway, responseWait time.Duration, logger *zap.Logger) *Runner {
	if responseWait <= 0 {
		responseWait = DefaultResponseWait
	}
	return &Runner{
		gatewayURL:   gatewayURL,
		services:     services,
		backend:      backend,
		gw:           gw,
		responseWait: responseWait,
		httpClient:   &http.Client{Timeout: health.DefaultTimeout},
		logger:       logger,
	}
}

// Run executes the smoke-test steps in order. Every step traps its own
// failure into its StepResult; only the initial gateway check gates the
// rest of the run.
func (r *Runner) Run(ctx context.Context) *Report {
	report := &Report{}

	gatewayStep := r.checkHealth(ctx, "gateway", r.gatewayURL)
	report.Steps = append(report.Steps, gatewayStep)
	if !gatewayStep.OK {
		r.logger.Error("Gateway health check failed, aborting smoke test",
			zap.String("error", gatewayStep.Err))
		report.Aborted = true
		return report
	}

	for _, name := range r.serviceNames() {
		step := r.checkHealth(ctx, "service "+name, r.services[name])
		report.Steps = append(report.Steps, step)
	}

	report.Steps = append(report.Steps, r.messageRoundTrip(ctx))
	report.Steps = append(report.Steps, r.knowledgeStats(ctx))
	report.Steps = append(report.Steps, r.searchProbe(ctx))

	r.logger.Info("Smoke test finished",
		zap.Int("steps", len(report.Steps)),
		zap.Int("failed", report.Failed()))

	return report
}

func (r *Runner) serviceNames() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) checkHealth(ctx context.Context, name, baseURL string) StepResult {
	checker := health.HTTPHealthChecker(baseURL+"/health", r.httpClient)
	result := checker.Check(ctx)

	step := StepResult{
		Name:    name + " health",
		OK:      result.Status == health.StatusHealthy,
		Err:     result.Error,
		Latency: result.Latency,
	}
	if step.OK {
		step.Detail = fmt.Sprintf("%s (%v)", result.Status, result.Latency.Round(time.Millisecond))
	}
	return step
}

// messageRoundTrip submits one message under a fresh user ID, waits once,
// and polls history once. A reply arriving after the wait window is
// reported as absent; this is a single best-effort poll, not a retry loop.
func (r *Runner) messageRoundTrip(ctx context.Context) StepResult {
	start := time.Now()
	step := StepResult{Name: "message round trip"}
	userID := "smoke-" + uuid.NewString()

	if err := r.gw.SubmitMessage(ctx, userID, cannedMessage); err != nil {
		step.Err = fmt.Sprintf("message submission failed: %v", err)
		step.Latency = time.Since(start)
		return step
	}

	r.logger.Info("Message submitted, waiting for asynchronous response",
		zap.String("user_id", userID),
		zap.Duration("wait", r.responseWait))
	time.Sleep(r.responseWait)

	messages, err := r.gw.History(ctx, userID)
	if err != nil {
		step.Err = fmt.Sprintf("history poll failed: %v", err)
		step.Latency = time.Since(start)
		return step
	}

	for _, msg := range messages {
		if msg.Role == "assistant" {
			step.OK = true
			step.Detail = fmt.Sprintf("reply received (%d runes)", len([]rune(msg.Content)))
			break
		}
	}
	if !step.OK {
		step.Err = fmt.Sprintf("no assistant reply within %v", r.responseWait)
	}

	step.Latency = time.Since(start)
	return step
}

func (r *Runner) knowledgeStats(ctx context.Context) StepResult {
	start := time.Now()
	step := StepResult{Name: "knowledge stats"}

	stats, err := r.backend.Stats(ctx)
	if err != nil {
		step.Err = fmt.Sprintf("stats request failed: %v", err)
		step.Latency = time.Since(start)
		return step
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%v", k, stats[k]))
	}

	step.OK = true
	step.Detail = strings.Join(lines, " ")
	step.Latency = time.Since(start)
	return step
}

func (r *Runner) searchProbe(ctx context.Context) StepResult {
	start := time.Now()
	step := StepResult{Name: "knowledge search"}

	result := probe.Run(ctx, r.backend, "", 0, r.logger)
	step.OK = result.Status == probe.StatusWorking
	step.Err = result.Err
	if step.OK {
		step.Detail = fmt.Sprintf("%d results for %q", result.ResultCount, result.Query)
	}

	step.Latency = time.Since(start)
	return step
}
