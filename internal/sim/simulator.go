package sim

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/metrics"
	"github.com/san-kum/phokimo/internal/trajectory"
	"github.com/sirupsen/logrus"
)

// Integrator drives a solver over a sample grid and checks every sample
// against the population guards.
type Integrator struct {
	solver    dynamo.Solver
	metrics   []dynamo.Metric
	observers []dynamo.Observer
}

func New(solver dynamo.Solver) *Integrator {
	return &Integrator{
		solver:    solver,
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]dynamo.Observer, 0),
	}
}

func (s *Integrator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Integrator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Integrator) Solver() string { return s.solver.Name() }

// Integrate runs the system and returns its trajectories.
func (s *Integrator) Integrate(ctx context.Context, sys dynamo.System, x0 dynamo.State, span Span, opts Options) (*trajectory.Set, error) {
	res, err := s.Run(ctx, sys, x0, span, opts)
	if err != nil {
		return nil, err
	}
	return res.Set(sys, opts.TimeUnit), nil
}

// Run integrates sys from x0 over span. Every failure is an
// *dynamo.IntegrationError and no partial result is returned.
func (s *Integrator) Run(ctx context.Context, sys dynamo.System, x0 dynamo.State, span Span, opts Options) (*Result, error) {
	name := s.solver.Name()
	if err := span.Validate(); err != nil {
		return nil, &dynamo.IntegrationError{Solver: name, Wrapped: err}
	}
	if len(x0) != sys.StateDim() {
		return nil, &dynamo.IntegrationError{Solver: name, Wrapped: dynamo.ErrDimensionMismatch}
	}
	if !x0.IsValid() {
		return nil, &dynamo.IntegrationError{Solver: name, Wrapped: dynamo.ErrInvalidState, Detail: "initial populations"}
	}

	start := time.Now()
	times := span.Times()
	cfg := opts.Config

	var (
		states []dynamo.State
		stats  dynamo.Stats
		err    error
	)
	switch solver := s.solver.(type) {
	case dynamo.Propagator:
		states, stats, err = solver.Propagate(ctx, sys, x0, times, cfg)
	case dynamo.Stepper:
		if _, adaptive := solver.(dynamo.AdaptiveStepper); !adaptive {
			logrus.Warnf("%s is an explicit fixed-step method; stiff mechanisms need bdf or expm", name)
		}
		states, stats, err = s.march(ctx, solver, sys, x0, times, cfg)
	default:
		err = &dynamo.IntegrationError{Solver: name, Wrapped: dynamo.ErrUnsupported}
	}
	if err != nil {
		if !errors.Is(err, dynamo.ErrIntegration) {
			err = &dynamo.IntegrationError{Solver: name, Wrapped: err}
		}
		return nil, err
	}

	guards := []dynamo.Guard{
		metrics.NewConservation(opts.ConservationTolerance),
		metrics.NewMinPopulation(opts.NegativeTolerance),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	for i, x := range states {
		t := times[i]
		for _, g := range guards {
			g.Observe(x, t)
			if gerr := g.Err(); gerr != nil {
				return nil, dynamo.Fail(name, i, t, gerr, "")
			}
		}
		for _, m := range s.metrics {
			m.Observe(x, t)
		}
		for _, o := range s.observers {
			o.OnSample(x, t)
		}
	}

	res := &Result{
		Solver:  name,
		Times:   times,
		States:  states,
		Stats:   stats,
		Metrics: make(map[string]float64, len(guards)+len(s.metrics)),
		Elapsed: time.Since(start),
	}
	for _, g := range guards {
		res.Metrics[g.Name()] = g.Value()
	}
	for _, m := range s.metrics {
		res.Metrics[m.Name()] = m.Value()
	}

	logrus.WithFields(logrus.Fields{
		"solver":  name,
		"steps":   stats.Steps,
		"rejects": stats.Rejected,
		"evals":   stats.Evaluations,
		"elapsed": res.Elapsed,
	}).Debug("integration finished")
	return res, nil
}

// counting wraps a system to count right-hand side evaluations.
type counting struct {
	dynamo.System
	n *int
}

func (c counting) Derive(x dynamo.State, t float64) dynamo.State {
	*c.n++
	return c.System.Derive(x, t)
}

// march drives a single-step method, clamping steps so that every sample
// time is hit exactly.
func (s *Integrator) march(ctx context.Context, st dynamo.Stepper, sys dynamo.System, x0 dynamo.State, times []float64, cfg dynamo.Config) ([]dynamo.State, dynamo.Stats, error) {
	var stats dynamo.Stats
	name := st.Name()
	counted := counting{System: sys, n: &stats.Evaluations}
	adaptive, isAdaptive := st.(dynamo.AdaptiveStepper)

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = dynamo.DefaultConfig().MaxSteps
	}
	dt := cfg.Dt
	if dt <= 0 {
		dt = (times[1] - times[0]) / 10
	}

	out := make([]dynamo.State, 0, len(times))
	out = append(out, x0.Clone())
	x := x0.Clone()
	t := times[0]

	for k := 1; k < len(times); k++ {
		target := times[k]
		for t < target {
			select {
			case <-ctx.Done():
				return nil, stats, dynamo.Fail(name, stats.Steps, t, ctx.Err(), "")
			default:
			}
			if stats.Steps >= maxSteps {
				return nil, stats, dynamo.Fail(name, stats.Steps, t, dynamo.ErrStepBudget, "")
			}

			h := dt
			if cfg.MaxDt > 0 && h > cfg.MaxDt {
				h = cfg.MaxDt
			}
			last := false
			if t+h >= target || target-(t+h) <= 1e-12*math.Abs(target) {
				h = target - t
				last = true
			}

			if isAdaptive {
				xNew, next, err := adaptive.StepAdaptive(counted, x, t, h, cfg)
				if errors.Is(err, dynamo.ErrStepRejected) {
					stats.Rejected++
					dt = next
					minDt := math.Max(cfg.MinDt, 10*math.Abs(math.Nextafter(t, math.Inf(1))-t))
					if dt < minDt {
						return nil, stats, dynamo.Fail(name, stats.Steps, t, dynamo.ErrStepTooSmall, "")
					}
					continue
				}
				if err != nil {
					return nil, stats, dynamo.Fail(name, stats.Steps, t, err, "")
				}
				x = xNew
				if last {
					dt = math.Max(dt, next)
				} else {
					dt = next
				}
			} else {
				x = st.Step(counted, x, t, h)
			}

			if last {
				t = target
			} else {
				t += h
			}
			stats.Steps++

			if cfg.ValidateState && !x.IsValid() {
				return nil, stats, dynamo.Fail(name, stats.Steps, t, dynamo.ErrInvalidState, "")
			}
		}
		out = append(out, x.Clone())
	}
	return out, stats, nil
}
