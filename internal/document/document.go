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

// Package document defines the document record type and loads record
// batches from the JSON collection files produced by the generators.
package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Record is one unit of ingested content: a text body plus an opaque
// metadata mapping. Title and Category are convenience fields merged into
// the metadata before submission. A record is read once, submitted once,
// then discarded.
type Record struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Title    string         `json:"title,omitempty"`
	Category string         `json:"category,omitempty"`
}

// Payload returns the metadata to submit: a copy of Metadata with non-empty
// Title and Category merged in. Convenience fields win on key collision.
func (r Record) Payload() map[string]any {
	payload := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		payload[k] = v
	}
	if r.Title != "" {
		payload["title"] = r.Title
	}
	if r.Category != "" {
		payload["category"] = r.Category
	}
	return payload
}

// DisplayTitle returns a short human-readable label for log and error
// messages: the Title field, a "title" metadata entry, or a prefix of the
// text body.
func (r Record) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	if title, ok := r.Metadata["title"].(string); ok && title != "" {
		return title
	}
	if r.Text != "" {
		runes := []rune(r.Text)
		if len(runes) > 40 {
			return string(runes[:40])
		}
		return r.Text
	}
	return "(untitled)"
}

// Load reads a collection file whose top-level value must be a JSON array
// of records. A missing file, unreadable file, malformed JSON, or non-array
// top level each produce a descriptive error; the caller converts these
// into a zero-attempt structured result.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection file %s: %w", path, err)
	}

	// Probe the first token so "not a list" is distinguishable from
	// "invalid JSON" in the error text.
	var top json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("invalid JSON in collection file %s: %w", path, err)
	}
	if len(top) == 0 || top[0] != '[' {
		return nil, fmt.Errorf("collection file %s must contain a top-level JSON array of documents", path)
	}

	var records []Record
	if err := json.Unmarshal(top, &records); err != nil {
		return nil, fmt.Errorf("invalid document records in %s: %w", path, err)
	}

	return records, nil
}

// Latest returns the most recent *.json file in the collected-data
// directory, by modification time. It errors when the directory is missing
// or holds no JSON files.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read collected-data directory %s: %w", dir, err)
	}

	type candidate struct {
		path    string
		modTime int64
	}

	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("no JSON collection files found in %s", dir)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})

	return candidates[0].path, nil
}
