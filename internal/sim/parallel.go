package sim

import (
	"context"
	"runtime"

	"github.com/san-kum/phokimo/internal/dynamo"
	"golang.org/x/sync/errgroup"
)

// Job is one independent run of a Batch.
type Job struct {
	Name    string
	System  dynamo.System
	X0      dynamo.State
	Span    Span
	Options Options

	// Solver overrides the batch factory for this job.
	Solver func() dynamo.Solver
}

// Batch runs independent jobs concurrently. Each job gets a fresh solver
// from newSolver because steppers keep scratch buffers. newSolver may be nil
// when every job names its own.
type Batch struct {
	newSolver func() dynamo.Solver
	workers   int
}

func NewBatch(newSolver func() dynamo.Solver, workers int) *Batch {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Batch{newSolver: newSolver, workers: workers}
}

// Run returns results in job order. The first failure cancels the
// remaining jobs and is returned.
func (b *Batch) Run(ctx context.Context, jobs []Job) ([]*Result, error) {
	results := make([]*Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, job := range jobs {
		g.Go(func() error {
			newSolver := b.newSolver
			if job.Solver != nil {
				newSolver = job.Solver
			}
			res, err := New(newSolver()).Run(gctx, job.System, job.X0, job.Span, job.Options)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
