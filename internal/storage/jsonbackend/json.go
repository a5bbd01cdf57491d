// Package jsonbackend writes a run's results as an indented JSON array,
// replacing the file on every save.
package jsonbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/FranksOps/bingscrape/internal/storage"
)

// Indent is the per-level indentation of the written array.
const Indent = "    "

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	path string
}

// New creates a JSON snapshot storage.Backend writing to filePath. The file
// is not touched until Save.
func New(filePath string) (storage.Backend, error) {
	if filePath == "" {
		return nil, fmt.Errorf("json output: empty file path")
	}
	return &jsonBackend{path: filePath}, nil
}

// Marshal renders results the way they are written to disk. A nil slice is
// written as an empty array.
func Marshal(results []serp.Result) ([]byte, error) {
	if results == nil {
		results = []serp.Result{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", Indent)
	if err := enc.Encode(results); err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *jsonBackend) Save(ctx context.Context, run *storage.Run) error {
	data, err := Marshal(run.Results)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", b.path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", b.path, err)
	}
	return nil
}

func (b *jsonBackend) Close() error {
	return nil
}

// Load reads a file written by the backend.
func Load(filePath string) ([]serp.Result, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	var results []serp.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return results, nil
}
