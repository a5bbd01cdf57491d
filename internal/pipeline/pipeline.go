// Package pipeline runs one search and delivers its results: a snapshot file
// when an output backend is configured, otherwise the url list on stdout.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/FranksOps/bingscrape/internal/storage"
)

// Pipeline wires a search provider to its outputs.
type Pipeline struct {
	Provider serp.Provider
	// Output receives the result set. Nil prints urls to Stdout instead.
	Output storage.Backend
	// OutputPath is reported in logs after a successful save.
	OutputPath string
	// Archive, if set, records every completed run. Its failures are logged only.
	Archive storage.Backend
	Stdout  io.Writer
	Logger  *slog.Logger
}

// Run searches for req and delivers the results. A failed first page returns
// the run and an error wrapping serp.ErrNetworkFailure. A failed write
// returns the populated run and an error wrapping serp.ErrPersistence. A
// query without results writes nothing and is not an error; check Run.Found.
func (p *Pipeline) Run(ctx context.Context, req serp.Request) (*storage.Run, error) {
	if p.Provider == nil {
		return nil, errors.New("pipeline: provider is nil")
	}
	if req.Query == "" {
		return nil, errors.New("pipeline: empty query")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out, err := p.Provider.Search(ctx, req)
	run := storage.NewRun(req, out)
	if err != nil {
		return run, fmt.Errorf("search %q: %w", req.Query, err)
	}

	var deliverErr error
	if run.Found {
		deliverErr = p.deliver(ctx, logger, run)
	}

	if p.Archive != nil {
		if err := p.Archive.Save(ctx, run); err != nil {
			logger.Warn("failed to archive run", "run", run.ID, "err", err)
		} else {
			logger.Debug("run archived", "run", run.ID, "results", len(run.Results))
		}
	}

	return run, deliverErr
}

func (p *Pipeline) deliver(ctx context.Context, logger *slog.Logger, run *storage.Run) error {
	if p.Output == nil {
		if err := PrintURLs(p.stdout(), run.Results); err != nil {
			return fmt.Errorf("%w: print urls: %w", serp.ErrPersistence, err)
		}
		return nil
	}

	if err := p.Output.Save(ctx, run); err != nil {
		return fmt.Errorf("%w: %w", serp.ErrPersistence, err)
	}
	logger.Info("file saved", "path", p.OutputPath, "results", len(run.Results))
	return nil
}

func (p *Pipeline) stdout() io.Writer {
	if p.Stdout == nil {
		return os.Stdout
	}
	return p.Stdout
}

// PrintURLs writes the url of every result as a single JSON array line.
func PrintURLs(w io.Writer, results []serp.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(serp.URLs(results))
}
