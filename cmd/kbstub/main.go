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

// Package main runs the local stand-in backend+gateway stack, so kbingest
// can be exercised without a deployed RAG service.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/kb-ingest/internal/ragstub"
)

func main() {
	addr := flag.String("addr", ":8003", "Listen address")
	replyDelay := flag.Duration("reply-delay", 2*time.Second, "Artificial delay before the canned assistant reply")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	stub := ragstub.New(logger, ragstub.WithReplyDelay(*replyDelay))

	logger.Info("Starting kbstub",
		zap.String("addr", *addr),
		zap.Duration("reply_delay", *replyDelay))

	server := &http.Server{
		Addr:         *addr,
		Handler:      stub.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
