package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/phokimo/internal/dynamo"
)

// Collector holds the Prometheus series of one CLI invocation in its own
// registry, so nothing leaks into the global default registerer.
type Collector struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	steps       *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	drift       *prometheus.GaugeVec
	fits        *prometheus.CounterVec
	rSquared    prometheus.Histogram
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phokimo_runs_total",
			Help: "Kinetics runs by solver and outcome.",
		}, []string{"solver", "outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phokimo_solver_steps_total",
			Help: "Accepted solver steps.",
		}, []string{"solver"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phokimo_solver_rejected_steps_total",
			Help: "Rejected solver steps.",
		}, []string{"solver"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phokimo_solver_evaluations_total",
			Help: "Right-hand side evaluations.",
		}, []string{"solver"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phokimo_run_duration_seconds",
			Help:    "Wall time of a kinetics run.",
			Buckets: prometheus.ExponentialBuckets(1e-4, 4, 10),
		}, []string{"solver"}),
		drift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phokimo_conservation_drift",
			Help: "Largest relative drift of the total population.",
		}, []string{"run"}),
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phokimo_fits_total",
			Help: "Lifetime fits by outcome.",
		}, []string{"outcome"}),
		rSquared: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "phokimo_fit_r_squared",
			Help:    "Coefficient of determination of converged fits.",
			Buckets: []float64{0.5, 0.9, 0.99, 0.999, 0.9999, 1},
		}),
	}
	c.registry.MustRegister(c.runs, c.steps, c.rejected, c.evaluations, c.duration, c.drift, c.fits, c.rSquared)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveRun records a finished run; err decides the outcome label.
func (c *Collector) ObserveRun(run, solver string, stats dynamo.Stats, elapsed time.Duration, drift float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.runs.WithLabelValues(solver, outcome).Inc()
	c.steps.WithLabelValues(solver).Add(float64(stats.Steps))
	c.rejected.WithLabelValues(solver).Add(float64(stats.Rejected))
	c.evaluations.WithLabelValues(solver).Add(float64(stats.Evaluations))
	c.duration.WithLabelValues(solver).Observe(elapsed.Seconds())
	if err == nil {
		c.drift.WithLabelValues(run).Set(drift)
	}
}

func (c *Collector) ObserveFit(converged bool, rSquared float64) {
	if !converged {
		c.fits.WithLabelValues("failed").Inc()
		return
	}
	c.fits.WithLabelValues("converged").Inc()
	c.rSquared.Observe(rSquared)
}

// WriteFile dumps the registry in the text exposition format.
func (c *Collector) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
