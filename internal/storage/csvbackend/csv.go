// Package csvbackend writes a run's results as a CSV table, replacing the
// file on every save.
package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/FranksOps/bingscrape/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	path string
}

// headers defines the CSV column order. has_caption separates an empty
// caption from a missing one.
var headers = []string{
	"title",
	"url",
	"caption",
	"has_caption",
}

// New creates a CSV snapshot storage.Backend writing to filePath.
func New(filePath string) (storage.Backend, error) {
	if filePath == "" {
		return nil, fmt.Errorf("csv output: empty file path")
	}
	return &csvBackend{path: filePath}, nil
}

// Write renders results with a header row.
func Write(w io.Writer, results []serp.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		record := []string{
			r.Title,
			r.URL,
			r.CaptionText(),
			strconv.FormatBool(r.HasCaption()),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (b *csvBackend) Save(ctx context.Context, run *storage.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", b.path, err)
	}
	if err := Write(f, run.Results); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", b.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", b.path, err)
	}
	return nil
}

func (b *csvBackend) Close() error {
	return nil
}

// Load reads a file written by the backend. Rows of the wrong width are
// skipped.
func Load(filePath string) ([]serp.Result, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []serp.Result{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var results []serp.Result
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if len(record) != len(headers) {
			continue
		}

		res := serp.Result{Title: record[0], URL: record[1]}
		if has, _ := strconv.ParseBool(record[3]); has {
			res.Caption = serp.Caption(record[2])
		}
		results = append(results, res)
	}
	return results, nil
}
