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

package ragstub

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/kb-ingest/internal/gateway"
	"github.com/your-org/kb-ingest/internal/rag"
)

func newStubServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	stub := New(zaptest.NewLogger(t), opts...)
	server := httptest.NewServer(stub.Handler())
	t.Cleanup(server.Close)
	return stub, server
}

func TestHealthEndpoint(t *testing.T) {
	_, server := newStubServer(t)
	client := rag.NewClient(server.URL, zaptest.NewLogger(t))

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestAddAndStats(t *testing.T) {
	stub, server := newStubServer(t)
	client := rag.NewClient(server.URL, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, client.AddDocument(ctx, "call 112 in an emergency", map[string]any{"category": "emergency"}))
	require.NoError(t, client.AddDocument(ctx, "pharmacy open until 22:00", nil))

	assert.Equal(t, 2, stub.DocumentCount())

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(2), stats["total_documents"])
	assert.NotEmpty(t, stats["last_added_at"])
}

func TestAddRejectsEmptyText(t *testing.T) {
	_, server := newStubServer(t)
	client := rag.NewClient(server.URL, zaptest.NewLogger(t))

	err := client.AddDocument(context.Background(), "   ", nil)
	require.Error(t, err)

	backendErr, ok := err.(rag.BackendError)
	require.True(t, ok)
	assert.Equal(t, 422, backendErr.StatusCode)
}

func TestSearchIsDeterministicAndBounded(t *testing.T) {
	_, server := newStubServer(t)
	client := rag.NewClient(server.URL, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, client.AddDocument(ctx, "fire emergency exits map", nil))
	require.NoError(t, client.AddDocument(ctx, "emergency numbers: dial 112", nil))
	require.NoError(t, client.AddDocument(ctx, "lunch menu for friday", nil))
	require.NoError(t, client.AddDocument(ctx, "emergency contact emergency procedure emergency drill", nil))

	docs, err := client.Search(ctx, "emergency drill", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2, "top_k must cap the result set")
	assert.Equal(t, "emergency contact emergency procedure emergency drill", docs[0],
		"highest token overlap ranks first")

	again, err := client.Search(ctx, "emergency drill", 2)
	require.NoError(t, err)
	assert.Equal(t, docs, again, "search order must be deterministic")
}

func TestImportedKeywordIsRetrievable(t *testing.T) {
	_, server := newStubServer(t)
	client := rag.NewClient(server.URL, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, client.AddDocument(ctx, "the xylophone workshop meets on tuesdays", nil))

	docs, err := client.Search(ctx, "xylophone", 3)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Contains(t, docs[0], "xylophone")
}

func TestMessageRoundTripImmediateReply(t *testing.T) {
	_, server := newStubServer(t)
	client := gateway.NewClient(server.URL, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, client.SubmitMessage(ctx, "user-1", "where is the pharmacy"))

	messages, err := client.History(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Contains(t, messages[1].Content, "where is the pharmacy")
}

func TestMessageRoundTripDelayedReply(t *testing.T) {
	_, server := newStubServer(t, WithReplyDelay(50*time.Millisecond))
	client := gateway.NewClient(server.URL, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, client.SubmitMessage(ctx, "user-2", "hello"))

	messages, err := client.History(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, messages, 1, "assistant reply must not be visible before the delay")

	assert.Eventually(t, func() bool {
		messages, err := client.History(ctx, "user-2")
		return err == nil && len(messages) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHistoryIsPerUser(t *testing.T) {
	_, server := newStubServer(t)
	client := gateway.NewClient(server.URL, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, client.SubmitMessage(ctx, "user-a", "hi"))

	messages, err := client.History(ctx, "user-b")
	require.NoError(t, err)
	assert.Empty(t, messages)
}
