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

package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPayloadMergesConvenienceFields(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		expected map[string]any
	}{
		{
			name:     "metadata only",
			record:   Record{Text: "body", Metadata: map[string]any{"source": "generator"}},
			expected: map[string]any{"source": "generator"},
		},
		{
			name:     "title and category merged",
			record:   Record{Text: "body", Title: "Fire Safety", Category: "emergency"},
			expected: map[string]any{"title": "Fire Safety", "category": "emergency"},
		},
		{
			name: "convenience fields win on collision",
			record: Record{
				Text:     "body",
				Title:    "New Title",
				Metadata: map[string]any{"title": "Old Title", "lang": "en"},
			},
			expected: map[string]any{"title": "New Title", "lang": "en"},
		},
		{
			name:     "nil metadata yields empty mapping",
			record:   Record{Text: "body"},
			expected: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.record.Payload())
		})
	}
}

func TestPayloadDoesNotMutateRecord(t *testing.T) {
	record := Record{Text: "body", Title: "T", Metadata: map[string]any{"k": "v"}}
	_ = record.Payload()
	assert.Equal(t, map[string]any{"k": "v"}, record.Metadata)
}

func TestDisplayTitle(t *testing.T) {
	longText := strings.Repeat("x", 60)

	tests := []struct {
		name     string
		record   Record
		expected string
	}{
		{"title field", Record{Title: "Pharmacies", Text: "body"}, "Pharmacies"},
		{"metadata title", Record{Metadata: map[string]any{"title": "Hotlines"}, Text: "body"}, "Hotlines"},
		{"text prefix", Record{Text: "short body"}, "short body"},
		{"long text truncated", Record{Text: longText}, longText[:40]},
		{"empty record", Record{}, "(untitled)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.record.DisplayTitle())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docs.json", `[
		{"text": "call 112", "title": "Emergency Numbers", "metadata": {"lang": "en"}},
		{"text": "pharmacy open until 22:00", "category": "health"}
	]`)

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "call 112", records[0].Text)
	assert.Equal(t, "Emergency Numbers", records[0].Title)
	assert.Equal(t, "en", records[0].Metadata["lang"])
	assert.Equal(t, "health", records[1].Category)
}

func TestLoadEmptyArray(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.json", `[]`)

	records, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name        string
		path        string
		errContains string
	}{
		{
			name:        "missing file",
			path:        filepath.Join(dir, "nope.json"),
			errContains: "failed to read",
		},
		{
			name:        "invalid json",
			path:        writeFile(t, dir, "broken.json", `{"text": `),
			errContains: "invalid JSON",
		},
		{
			name:        "top level not a list",
			path:        writeFile(t, dir, "object.json", `{"documents": []}`),
			errContains: "top-level JSON array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.json", `[]`)
	newest := writeFile(t, dir, "new.json", `[]`)
	writeFile(t, dir, "notes.txt", "ignored")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	path, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, newest, path)
}

func TestLatestErrors(t *testing.T) {
	_, err := Latest(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	empty := t.TempDir()
	writeFile(t, empty, "readme.txt", "no json here")
	_, err = Latest(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON collection files")
}
