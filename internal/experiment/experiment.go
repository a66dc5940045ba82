// Package experiment runs the full pipeline from a configuration:
// mechanism, rates, network, integration, fitting and analysis.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/phokimo/internal/analysis"
	"github.com/san-kum/phokimo/internal/config"
	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/fit"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/metrics"
	"github.com/san-kum/phokimo/internal/network"
	"github.com/san-kum/phokimo/internal/rates"
	"github.com/san-kum/phokimo/internal/report"
	"github.com/san-kum/phokimo/internal/sim"
	"github.com/san-kum/phokimo/internal/trajectory"
	"github.com/sirupsen/logrus"
)

type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	resolver  *rates.Resolver
	collector *metrics.Collector
	observers []dynamo.Observer
}

type Option func(*Experiment)

func WithRegistry(r *Registry) Option { return func(e *Experiment) { e.registry = r } }

func WithResolver(r *rates.Resolver) Option { return func(e *Experiment) { e.resolver = r } }

// WithCollector records solver and fit metrics of every run.
func WithCollector(c *metrics.Collector) Option { return func(e *Experiment) { e.collector = c } }

func WithObserver(o dynamo.Observer) Option {
	return func(e *Experiment) { e.observers = append(e.observers, o) }
}

func New(cfg *config.Config, opts ...Option) *Experiment {
	e := &Experiment{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.resolver == nil {
		e.resolver = rates.NewResolver()
	}
	return e
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// Model is everything that can be derived before integrating.
type Model struct {
	Mechanism *mechanism.Mechanism
	Rates     rates.Table
	Network   *network.Network
}

// Prepare validates the mechanism, resolves its rates and builds the
// network. Validation and domain errors are returned unchanged.
func (e *Experiment) Prepare() (*Model, error) {
	energies, err := e.cfg.LoadEnergies()
	if err != nil {
		return nil, err
	}
	m, err := mechanism.Build(e.cfg.Mechanism, energies)
	if err != nil {
		return nil, err
	}
	table, err := e.resolver.ResolveAll(m)
	if err != nil {
		return nil, err
	}
	net, err := network.Build(m, table, network.Options{Strict: e.cfg.Strict})
	if err != nil {
		return nil, err
	}
	return &Model{Mechanism: m, Rates: table, Network: net}, nil
}

// Run is the outcome of one pipeline execution.
type Run struct {
	Model
	Result       *sim.Result
	Trajectories *trajectory.Set
	Fits         []fit.Outcome
	Document     *report.Document
}

func (e *Experiment) Options() sim.Options {
	opts := sim.DefaultOptions()
	sc := e.cfg.Solver
	if sc.Tolerance > 0 {
		opts.Config.Tolerance = sc.Tolerance
	}
	if sc.AbsTolerance > 0 {
		opts.Config.AbsTolerance = sc.AbsTolerance
	}
	if sc.Dt > 0 {
		opts.Config.Dt = sc.Dt
	}
	if sc.MaxSteps > 0 {
		opts.Config.MaxSteps = sc.MaxSteps
	}
	if sc.NegativeTolerance > 0 {
		opts.NegativeTolerance = sc.NegativeTolerance
	}
	if sc.ConservationTolerance > 0 {
		opts.ConservationTolerance = sc.ConservationTolerance
	}
	return opts
}

func (e *Experiment) Run(ctx context.Context) (*Run, error) {
	model, err := e.Prepare()
	if err != nil {
		return nil, err
	}
	m := model.Mechanism

	solver, err := e.registry.Solver(e.cfg.Solver.Name)
	if err != nil {
		return nil, err
	}
	integ := sim.New(solver)
	for _, o := range e.observers {
		integ.AddObserver(o)
	}

	opts := e.Options()
	opts.TimeUnit = string(m.Globals.TimeUnit)
	span := sim.Span{Total: m.Globals.TotalTime, Samples: m.Globals.Samples}

	log := logrus.WithFields(logrus.Fields{"run": e.cfg.Name, "solver": solver.Name()})
	log.Infof("integrating %d states over %g %s", len(m.States), span.Total, m.Globals.TimeUnit)

	start := time.Now()
	res, err := integ.Run(ctx, model.Network, m.InitialPopulations(), span, opts)
	if e.collector != nil {
		var drift float64
		var stats dynamo.Stats
		if res != nil {
			drift, stats = res.Metrics["conservation_drift"], res.Stats
		}
		e.collector.ObserveRun(e.cfg.Name, solver.Name(), stats, time.Since(start), drift, err)
	}
	if err != nil {
		return nil, err
	}

	run := &Run{Model: *model, Result: res, Trajectories: res.Set(model.Network, opts.TimeUnit)}

	doc := report.New(e.cfg.Name, m, model.Rates)
	doc.Metadata.Solver = res.Solver
	doc.Metadata.Elapsed = res.Elapsed
	doc.Metadata.Stats = report.NewSolverStats(res.Stats)
	doc.Metadata.Metrics = res.Metrics
	doc.Trajectories = report.NewTrajectories(run.Trajectories)
	for _, w := range model.Network.Warnings() {
		var ne *network.NetworkError
		subject := ""
		if errors.As(w, &ne) {
			subject = ne.State
		}
		doc.Warn(report.KindNetwork, subject, w)
	}

	if e.cfg.Fit.Enabled {
		run.Fits = e.fit(ctx, run)
		doc.AddFits(run.Fits)
	}
	doc.Analysis = analyse(run, doc)
	run.Document = doc

	log.WithField("warnings", len(doc.Warnings)).Info("run complete")
	return run, nil
}

// series selects the trajectories to fit.
func (e *Experiment) series(set *trajectory.Set) []*trajectory.Trajectory {
	switch e.cfg.Fit.Series {
	case config.SeriesStates:
		return set.States
	case config.SeriesAll:
		return append(append([]*trajectory.Trajectory(nil), set.Spins...), set.States...)
	}
	return set.Spins
}

func (e *Experiment) fit(ctx context.Context, run *Run) []fit.Outcome {
	opts := fit.DefaultOptions()
	opts.Order = e.cfg.Fit.Order
	opts.Offset = e.cfg.Fit.Offset
	opts.Workers = e.cfg.Fit.Workers
	if e.cfg.Fit.MaxIterations > 0 {
		opts.MaxIterations = e.cfg.Fit.MaxIterations
	}
	for _, entry := range run.Rates.Entries {
		opts.RateHints = append(opts.RateHints, entry.K)
	}

	outcomes := fit.FitAll(ctx, e.series(run.Trajectories), opts)
	if e.collector != nil {
		for _, o := range outcomes {
			if o.Result != nil {
				e.collector.ObserveFit(true, o.Result.RSquared)
			} else {
				e.collector.ObserveFit(false, 0)
			}
		}
	}
	return outcomes
}

func analyse(run *Run, doc *report.Document) report.Analysis {
	var out report.Analysis
	set := run.Trajectories

	out.Fractions = report.NewFractions(analysis.FinalFractions(set))

	ratio, err := analysis.ProductRatio(set, run.Mechanism)
	switch {
	case errors.Is(err, analysis.ErrNoProducts):
	case err != nil:
		doc.Warn(report.KindAnalysis, "product_ratio", err)
	default:
		out.ProductRatio = report.NewFractions(ratio)
	}

	for _, s := range run.Mechanism.States {
		if s.Initial <= 0 {
			continue
		}
		if hl, ok := analysis.HalfLife(set.States[s.Index]); ok {
			if out.HalfLives == nil {
				out.HalfLives = make(map[string]float64)
			}
			out.HalfLives[s.ID] = hl
		}
	}
	return out
}

// Describe is a one-line summary of a run.
func (r *Run) Describe() string {
	return fmt.Sprintf("%s: %d states, %d transitions, %d samples, %d steps (%s)",
		r.Result.Solver, len(r.Mechanism.States), len(r.Mechanism.Transitions),
		len(r.Result.Times), r.Result.Stats.Steps, r.Result.Elapsed.Round(time.Microsecond))
}
