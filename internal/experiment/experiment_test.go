package experiment

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/phokimo/internal/config"
	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/metrics"
	"github.com/san-kum/phokimo/internal/network"
	"github.com/san-kum/phokimo/internal/rates"
	"github.com/san-kum/phokimo/internal/report"
)

func f(v float64) *float64 { return &v }

type sampleCounter struct{ n int }

func (c *sampleCounter) OnSample(x dynamo.State, t float64) { c.n++ }

var _ = Describe("Pipeline", func() {
	var (
		cfg *config.Config
		ctx context.Context
	)

	BeforeEach(func() {
		cfg = config.GetPreset("two_state")
		ctx = context.Background()
	})

	Describe("two-state decay with an explicit rate", func() {
		It("matches the analytic solution", func() {
			run, err := New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			a, ok := run.Trajectories.State("A")
			Expect(ok).To(BeTrue())
			b, _ := run.Trajectories.State("B")
			for _, t := range []float64{1, 2, 5} {
				i := int(math.Round(t / 0.01))
				Expect(a.Times[i]).To(BeNumerically("~", t, 1e-12))
				Expect(a.Values[i]).To(BeNumerically("~", math.Exp(-t), 1e-4))
				Expect(b.Values[i]).To(BeNumerically("~", 1-math.Exp(-t), 1e-4))
			}
		})

		It("reports the product split and half-life", func() {
			run, err := New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			an := run.Document.Analysis
			Expect(an.ProductRatio).To(HaveLen(1))
			Expect(an.ProductRatio[0].Value).To(BeNumerically("~", 100, 1e-9))
			Expect(an.HalfLives["A"]).To(BeNumerically("~", math.Ln2, 1e-3))
		})

		It("gives the same trajectories on every run", func() {
			first, err := New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			second, err := New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Trajectories.States[0].Values).To(Equal(first.Trajectories.States[0].Values))
		})

		It("agrees across solvers", func() {
			for _, name := range []string{"expm", "rk45"} {
				cfg.Solver.Name = name
				run, err := New(cfg).Run(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(run.Trajectories.States[0].Final()).To(BeNumerically("~", math.Exp(-5), 1e-6))
			}
		})

		It("rejects unknown solvers", func() {
			cfg.Solver.Name = "leapfrog"
			_, err := New(cfg).Run(ctx)
			Expect(err).To(MatchError(ContainSubstring("unknown solver")))
		})
	})

	Describe("an isolated state", func() {
		BeforeEach(func() {
			cfg.Mechanism.States = append(cfg.Mechanism.States, mechanism.StateSpec{ID: "C", Spin: "triplet"})
		})

		It("is a warning in non-strict mode", func() {
			run, err := New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(run.Document.Warnings).To(ContainElement(SatisfyAll(
				HaveField("Kind", report.KindNetwork),
				HaveField("Subject", "C"),
			)))
			c, ok := run.Trajectories.State("C")
			Expect(ok).To(BeTrue())
			Expect(c.Values).To(HaveEach(BeZero()))
		})

		It("fails the run in strict mode", func() {
			cfg.Strict = true
			run, err := New(cfg).Run(ctx)
			Expect(run).To(BeNil())
			Expect(errors.Is(err, network.ErrNetwork)).To(BeTrue())
		})
	})

	Describe("a transition state named only as a barrier", func() {
		It("passes strict validation", func() {
			cfg = config.GetPreset("isomerization")
			cfg.Strict = true
			model, err := New(cfg).Prepare()
			Expect(err).NotTo(HaveOccurred())
			Expect(model.Network.Warnings()).To(BeEmpty())

			dot, err := model.Network.MarshalDOT(model.Mechanism.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(dot)).To(ContainSubstring("via TS"))
		})
	})

	Describe("a rate theory missing a parameter", func() {
		It("fails before integrating and names the transition", func() {
			cfg.Mechanism.States[0].Energy = f(10)
			cfg.Mechanism.States[1].Energy = f(0)
			cfg.Mechanism.EnergyUnit = "kj/mol"
			cfg.Mechanism.Transitions[0] = mechanism.TransitionSpec{
				From: "A", To: "B", Theory: "marcus",
				Params: map[string]float64{mechanism.ParamReorganization: 20e3},
			}
			samples := &sampleCounter{}

			run, err := New(cfg, WithObserver(samples)).Run(ctx)
			Expect(run).To(BeNil())
			Expect(errors.Is(err, rates.ErrKineticsDomain)).To(BeTrue())
			Expect(errors.Is(err, rates.ErrMissingParameter)).To(BeTrue())

			var de *rates.DomainError
			Expect(errors.As(err, &de)).To(BeTrue())
			Expect(de.Transition).To(Equal("A->B"))
			Expect(samples.n).To(BeZero())
		})
	})

	Describe("lifetime fitting", func() {
		It("recovers the generating rate", func() {
			cfg.Fit.Series = config.SeriesStates
			run, err := New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			a := run.Document.Fit("A")
			Expect(a).NotTo(BeNil())
			Expect(a.Terms).To(HaveLen(1))
			Expect(a.Terms[0].Rate).To(BeNumerically("~", 1, 1e-3))
			Expect(a.Terms[0].Amplitude).To(BeNumerically("~", 1, 1e-3))
		})

		It("records a flat manifold as a warning, not an error", func() {
			run, err := New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(run.Document.Fit("singlet")).To(BeNil())
			Expect(run.Document.Warnings).To(ContainElement(HaveField("Kind", report.KindFit)))
		})
	})

	Describe("a non-positive total time", func() {
		It("fails with an integration error and no trajectories", func() {
			for _, total := range []float64{0, -5} {
				cfg.Mechanism.TotalTime = total
				collector := metrics.NewCollector()

				run, err := New(cfg, WithCollector(collector)).Run(ctx)
				Expect(run).To(BeNil())
				Expect(errors.Is(err, dynamo.ErrIntegration)).To(BeTrue())
				Expect(errors.Is(err, dynamo.ErrInvalidSpan)).To(BeTrue())

				var ie *dynamo.IntegrationError
				Expect(errors.As(err, &ie)).To(BeTrue())
			}
		})
	})

	Describe("the stiff cascade preset", func() {
		It("conserves population including the sink", func() {
			cfg = config.GetPreset("triplet_cascade")
			run, err := New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			total := 0.0
			for _, s := range run.Trajectories.States {
				total += s.Final()
			}
			Expect(total).To(BeNumerically("~", 1, 1e-6))
			Expect(run.Trajectories.Sink).NotTo(BeNil())
			Expect(run.Trajectories.Sink.Final()).To(BeNumerically(">", 0))
			Expect(run.Result.Metrics["min_population"]).To(BeNumerically(">=", -1e-8))
		})
	})
})

var _ = Describe("Registry", func() {
	It("lists every solver", func() {
		Expect(NewRegistry().ListSolvers()).To(Equal([]string{"bdf", "euler", "expm", "rk4", "rk45"}))
	})

	It("builds a fresh solver each time", func() {
		r := NewRegistry()
		a, err := r.Solver("rk45")
		Expect(err).NotTo(HaveOccurred())
		b, _ := r.Solver("rk45")
		Expect(a).NotTo(BeIdenticalTo(b))
	})
})
