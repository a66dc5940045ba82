package fit

import (
	"context"
	"runtime"

	"github.com/san-kum/phokimo/internal/trajectory"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Outcome is the fit of one series. Result is nil when Err is set.
type Outcome struct {
	Label  string
	Result *Result
	Err    error
}

// FitAll fits every series with opts.Order terms concurrently. A failed fit
// is logged and recorded in its Outcome; it never stops the others. When
// ctx ends, every series not yet fitted records the context error.
func FitAll(ctx context.Context, series []*trajectory.Trajectory, opts Options) []Outcome {
	order := opts.Order
	if order < 1 {
		order = 1
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]Outcome, len(series))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, s := range series {
		g.Go(func() error {
			res, err := Fit(ctx, s, order, opts)
			out[i] = Outcome{Label: s.Label, Result: res, Err: err}
			if err != nil {
				logrus.WithFields(logrus.Fields{"series": s.Label, "order": order}).Warnf("fit skipped: %v", err)
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		logrus.WithError(err).Warn("fitting interrupted")
	}
	return out
}
