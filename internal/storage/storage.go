package storage

import (
	"context"
	"time"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/google/uuid"
)

// Run is the persisted record of one search invocation.
type Run struct {
	ID         string
	Query      string
	Paginate   bool
	Found      bool
	Stop       serp.StopReason
	Pages      int
	Skipped    int
	Results    []serp.Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRun snapshots out under a fresh run ID.
func NewRun(req serp.Request, out *serp.Outcome) *Run {
	r := &Run{
		ID:       uuid.NewString(),
		Query:    req.Query,
		Paginate: req.Paginate,
	}
	if out == nil {
		return r
	}
	r.Found = out.Found
	r.Stop = out.Stop
	r.Pages = out.Pages
	r.Skipped = out.SkippedItems
	r.Results = out.Results
	r.StartedAt = out.StartedAt
	r.FinishedAt = out.FinishedAt
	return r
}

// Filter selects archived runs. Zero fields match everything.
type Filter struct {
	Query  string
	Found  *bool
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend stores the result set of a run.
type Backend interface {
	Save(ctx context.Context, run *Run) error
	Close() error
}

// Archive is a Backend that keeps every run and can be queried, newest first.
type Archive interface {
	Backend
	Query(ctx context.Context, filter Filter) ([]*Run, error)
}
