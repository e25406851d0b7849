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

// Package ragstub is an in-memory stand-in for the RAG backend and gateway
// stack, implementing the full consumed HTTP contract so the tool can be
// run and tested offline. It is a test double, not a definition of the real
// engine's semantics.
package ragstub

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/kb-ingest/internal/health"
)

// Server holds the in-memory knowledge store and conversation state.
type Server struct {
	mu          sync.RWMutex
	documents   []storedDocument
	history     map[string][]historyMessage
	lastAddedAt time.Time

	replyDelay time.Duration
	router     *gin.Engine
	logger     *zap.Logger
}

type storedDocument struct {
	Text     string
	Metadata map[string]any
}

type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Option configures the stub server.
type Option func(*Server)

// WithReplyDelay delays the canned assistant reply, simulating the
// asynchronous response path of a real deployment.
func WithReplyDelay(d time.Duration) Option {
	return func(s *Server) {
		s.replyDelay = d
	}
}

// New creates a stub server with empty state.
func New(logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		history: make(map[string][]historyMessage),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	manager := health.NewManager("ragstub", "dev", logger)
	manager.AddCheckerFunc("store", func(ctx context.Context) health.CheckResult {
		s.mu.RLock()
		count := len(s.documents)
		s.mu.RUnlock()
		return health.CheckResult{
			Status:   health.StatusHealthy,
			Metadata: map[string]interface{}{"total_documents": count},
		}
	})

	router.GET("/health", gin.WrapF(manager.HTTPHandler()))
	router.POST("/add", s.handleAdd)
	router.POST("/search", s.handleSearch)
	router.GET("/stats", s.handleStats)
	router.POST("/message", s.handleMessage)
	router.GET("/history", s.handleHistory)

	s.router = router
	return s
}

// Handler exposes the stub as an http.Handler for httptest mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

// DocumentCount returns how many documents the stub holds.
func (s *Server) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

type addRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleAdd(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid JSON payload"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "text must not be empty"})
		return
	}

	s.mu.Lock()
	s.documents = append(s.documents, storedDocument{Text: req.Text, Metadata: req.Metadata})
	s.lastAddedAt = time.Now().UTC()
	count := len(s.documents)
	s.mu.Unlock()

	s.logger.Debug("Stub stored document", zap.Int("total_documents", count))
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// handleSearch scores documents by case-insensitive token overlap with the
// query. Ties break on insertion order, so results are deterministic.
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid JSON payload"})
		return
	}
	if req.TopK <= 0 {
		req.TopK = 3
	}

	queryTokens := tokenize(req.Query)

	type scored struct {
		index int
		score int
	}

	s.mu.RLock()
	var matches []scored
	for i, doc := range s.documents {
		score := overlap(queryTokens, tokenize(doc.Text+" "+metadataText(doc.Metadata)))
		if score > 0 {
			matches = append(matches, scored{index: i, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	documents := make([]string, 0, req.TopK)
	for _, m := range matches {
		if len(documents) >= req.TopK {
			break
		}
		documents = append(documents, s.documents[m.index].Text)
	}
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{"documents": documents})
}

func (s *Server) handleStats(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := gin.H{"total_documents": len(s.documents)}
	if !s.lastAddedAt.IsZero() {
		stats["last_added_at"] = s.lastAddedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, stats)
}

type messageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// handleMessage appends the user message and a canned assistant echo reply.
// With a reply delay configured the assistant turn lands asynchronously.
func (s *Server) handleMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "user_id and message are required"})
		return
	}

	s.mu.Lock()
	s.history[req.UserID] = append(s.history[req.UserID], historyMessage{
		Role:      "user",
		Content:   req.Message,
		Timestamp: time.Now().UTC(),
	})
	s.mu.Unlock()

	reply := func() {
		s.mu.Lock()
		s.history[req.UserID] = append(s.history[req.UserID], historyMessage{
			Role:      "assistant",
			Content:   "You asked: " + req.Message,
			Timestamp: time.Now().UTC(),
		})
		s.mu.Unlock()
	}

	if s.replyDelay > 0 {
		time.AfterFunc(s.replyDelay, reply)
	} else {
		reply()
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) handleHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "user_id is required"})
		return
	}

	s.mu.RLock()
	messages := make([]historyMessage, len(s.history[userID]))
	copy(messages, s.history[userID])
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(s)) {
		token := strings.Trim(field, ".,;:!?\"'()[]")
		if token != "" {
			tokens[token] = true
		}
	}
	return tokens
}

func overlap(query, doc map[string]bool) int {
	count := 0
	for token := range query {
		if doc[token] {
			count++
		}
	}
	return count
}

func metadataText(metadata map[string]any) string {
	var parts []string
	for _, v := range metadata {
		if s, ok := v.(string); ok {
			parts = append(parts, s)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
