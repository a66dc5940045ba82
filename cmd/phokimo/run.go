package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/phokimo/internal/chart"
	"github.com/san-kum/phokimo/internal/config"
	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/experiment"
	"github.com/san-kum/phokimo/internal/fit"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/metrics"
	"github.com/san-kum/phokimo/internal/optim"
	"github.com/san-kum/phokimo/internal/report"
	"github.com/san-kum/phokimo/internal/sim"
	"github.com/san-kum/phokimo/internal/storage"
	"github.com/san-kum/phokimo/internal/trajectory"
	"github.com/san-kum/phokimo/internal/viz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if !cmd.Flags().Changed("data") && cfg.Output.Dir != "" {
		dataDir = cfg.Output.Dir
	}

	collector := metrics.NewCollector()
	run, err := experiment.New(cfg, experiment.WithCollector(collector)).Run(cmd.Context())
	if metricsFile != "" {
		if werr := collector.WriteFile(metricsFile); werr != nil {
			logrus.WithError(werr).Warn("failed to write metrics")
		}
	}
	if err != nil {
		return err
	}
	doc := run.Document
	logrus.Info(run.Describe())

	var runID, runDir string
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		id, err := st.Save(doc)
		if err != nil {
			return err
		}
		runID, runDir = id, st.Dir(id)
		logrus.WithField("run", id).Info("run stored")
	}

	if cfg.Output.Plot != "" {
		dir := runDir
		if dir == "" {
			dir = "."
		}
		if err := renderPlots(dir, cfg.Output.Plot, doc, run.Mechanism); err != nil {
			return err
		}
	}

	if cfg.Output.WriteBack {
		if path == "" {
			logrus.Warn("write-back needs a config file; skipped for presets")
		} else if err := report.WriteBack(path, doc); err != nil {
			return fmt.Errorf("write-back: %w", err)
		}
	}

	if asJSON {
		return doc.WriteJSON(os.Stdout)
	}
	fmt.Println(viz.Summary(doc))
	if preview {
		fmt.Println()
		set := doc.Trajectories.Set()
		fmt.Println(graph(set.Spins, set.TimeUnit))
	}
	if runID != "" {
		fmt.Printf("\nrun id: %s\n", runID)
	}
	return nil
}

type plotJob struct {
	name string
	draw func(path string) error
}

// renderPlots writes every chart that applies to doc into dir. A chart with
// nothing to show is skipped. m may be nil when only a stored report is
// available.
func renderPlots(dir, format string, doc *report.Document, m *mechanism.Mechanism) error {
	ext := "." + strings.TrimPrefix(strings.ToLower(format), ".")
	set := doc.Trajectories.Set()
	if set == nil {
		return errors.New("report has no trajectories")
	}

	byLabel := make(map[string]*trajectory.Trajectory)
	for _, tr := range append(append([]*trajectory.Trajectory(nil), set.Spins...), set.States...) {
		if _, dup := byLabel[tr.Label]; !dup {
			byLabel[tr.Label] = tr
		}
	}
	var fitted []*trajectory.Trajectory
	results := make(map[string]*fit.Result)
	for _, f := range doc.Fits {
		if tr, ok := byLabel[f.Label]; ok && f.OK() {
			fitted = append(fitted, tr)
			results[f.Label] = f.Result()
		}
	}

	jobs := []plotJob{
		{"populations", func(p string) error { return chart.Populations(set, p) }},
		{"spins", func(p string) error { return chart.Spins(set, p) }},
		{"fits", func(p string) error { return chart.FitOverlay(fitted, results, set.TimeUnit, p) }},
	}
	if m != nil {
		jobs = append(jobs, plotJob{"energies", func(p string) error { return chart.EnergyDiagram(m, p) }})
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, j := range jobs {
		p := filepath.Join(dir, j.name+ext)
		err := j.draw(p)
		switch {
		case errors.Is(err, chart.ErrNothingToPlot):
			logrus.WithField("chart", j.name).Debug("nothing to plot")
		case err != nil:
			return err
		default:
			fmt.Fprintf(os.Stderr, "wrote %s\n", p)
		}
	}
	return nil
}

// graph draws trajectories on one asciigraph canvas.
func graph(list []*trajectory.Trajectory, unit string) string {
	if len(list) == 0 {
		return "nothing to plot"
	}
	colors := []asciigraph.AnsiColor{asciigraph.Cyan, asciigraph.Magenta, asciigraph.Yellow, asciigraph.Green, asciigraph.Red, asciigraph.Blue}
	data := make([][]float64, len(list))
	legends := make([]string, len(list))
	seriesColors := make([]asciigraph.AnsiColor, len(list))
	for i, tr := range list {
		data[i] = tr.Values
		legends[i] = tr.Label
		seriesColors[i] = colors[i%len(colors)]
	}
	last := list[0].Times[len(list[0].Times)-1]
	return asciigraph.PlotMany(data,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Precision(3),
		asciigraph.SeriesColors(seriesColors...),
		asciigraph.SeriesLegends(legends...),
		asciigraph.Caption(fmt.Sprintf("population vs time, 0 to %.4g %s", last, unit)),
	)
}

func printRates(cmd *cobra.Command, args []string) error {
	model, err := prepare(cmd, args)
	if err != nil {
		return err
	}
	fmt.Println(viz.Header(model.Mechanism.Name))
	fmt.Println(viz.RateTable(report.NewRateTable(model.Rates)))
	return nil
}

func validateMechanism(cmd *cobra.Command, args []string) error {
	model, err := prepare(cmd, args)
	if err != nil {
		return err
	}
	m := model.Mechanism
	fmt.Println(viz.Metric("mechanism", m.Name))
	fmt.Println(viz.Metric("states", fmt.Sprint(len(m.States))))
	fmt.Println(viz.Metric("transitions", fmt.Sprint(len(m.Transitions))))
	lo, hi := model.Rates.Range()
	fmt.Println(viz.Metric("rate range", fmt.Sprintf("%.3g to %.3g per %s", lo, hi, m.Globals.TimeUnit)))

	warnings := model.Network.Warnings()
	if len(warnings) == 0 {
		fmt.Println(viz.SparkHigh.Render("ok"))
		return nil
	}
	for _, w := range warnings {
		fmt.Println(viz.WarnStyle.Render("warning: " + w.Error()))
	}
	return nil
}

// printGraph writes the mechanism's transition graph as Graphviz DOT.
func printGraph(cmd *cobra.Command, args []string) error {
	model, err := prepare(cmd, args)
	if err != nil {
		return err
	}
	b, err := model.Network.MarshalDOT(model.Mechanism.Name)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if outFile == "" {
		_, err = os.Stdout.Write(b)
		return err
	}
	if err := os.WriteFile(outFile, b, 0644); err != nil {
		return err
	}
	logrus.WithField("path", outFile).Info("graph written")
	return nil
}

// compareSolvers integrates one network with several solvers concurrently
// and reports how far each final state is from the first solver's.
func compareSolvers(cmd *cobra.Command, args []string) error {
	cfgArgs, names := args[:1], args[1:]
	if preset != "" {
		cfgArgs, names = nil, args
	}
	cfg, _, err := loadConfig(cfgArgs)
	if err != nil {
		return err
	}
	exp := experiment.New(cfg)
	model, err := exp.Prepare()
	if err != nil {
		return err
	}
	m := model.Mechanism

	registry := experiment.NewRegistry()
	opts := exp.Options()
	opts.TimeUnit = string(m.Globals.TimeUnit)
	span := sim.Span{Total: m.Globals.TotalTime, Samples: m.Globals.Samples}

	jobs := make([]sim.Job, len(names))
	for i, name := range names {
		factory, err := registry.Factory(name)
		if err != nil {
			return err
		}
		jobs[i] = sim.Job{Name: name, System: model.Network, X0: m.InitialPopulations(), Span: span, Options: opts, Solver: factory}
	}

	start := time.Now()
	results, err := sim.NewBatch(nil, len(jobs)).Run(cmd.Context(), jobs)
	if err != nil {
		return err
	}
	logrus.WithField("elapsed", time.Since(start)).Debug("comparison finished")

	fmt.Printf("comparing solvers for %s (%g %s, %d samples)\n\n", m.Name, span.Total, m.Globals.TimeUnit, span.Samples)
	fmt.Printf("%-8s  %8s  %8s  %12s  %12s  %10s\n", "solver", "steps", "rejected", "max_dev", "drift", "time_ms")
	fmt.Println(strings.Repeat("-", 68))

	ref := results[0].States
	for i, res := range results {
		fmt.Printf("%-8s  %8d  %8d  %12.3e  %12.3e  %10.2f\n", names[i], res.Stats.Steps, res.Stats.Rejected,
			maxDeviation(ref, res.States), res.Metrics["conservation_drift"], float64(res.Elapsed.Microseconds())/1000)
	}
	return nil
}

func maxDeviation(a, b []dynamo.State) float64 {
	var dev float64
	for i := range min(len(a), len(b)) {
		for j := range min(len(a[i]), len(b[i])) {
			dev = math.Max(dev, math.Abs(a[i][j]-b[i][j]))
		}
	}
	return dev
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	var parsed []optim.Axis
	for _, a := range axes {
		ax, err := optim.ParseAxis(a)
		if err != nil {
			return err
		}
		parsed = append(parsed, ax)
	}

	collector := metrics.NewCollector()
	points, err := optim.NewSweep(parsed, workers).Run(cmd.Context(), cfg, experiment.WithCollector(collector))
	if metricsFile != "" {
		if werr := collector.WriteFile(metricsFile); werr != nil {
			logrus.WithError(werr).Warn("failed to write metrics")
		}
	}
	if err != nil {
		return err
	}

	fmt.Println(viz.Header(fmt.Sprintf("sweep of %s: %d points", cfg.Name, len(points))))
	for _, p := range points {
		var params []string
		for _, ax := range parsed {
			params = append(params, fmt.Sprintf("%s=%.4g", ax.Param, p.Params[ax.Param]))
		}
		if p.Err != nil {
			fmt.Printf("%s  %s\n", strings.Join(params, " "), viz.ErrorStyle.Render(p.Err.Error()))
			continue
		}
		var outs []string
		for _, f := range p.ProductRatio {
			outs = append(outs, fmt.Sprintf("%s %.2f%%", f.Label, f.Value))
		}
		if len(outs) == 0 {
			for _, f := range p.Fractions {
				outs = append(outs, fmt.Sprintf("%s %.3f", f.Label, f.Value))
			}
		}
		fmt.Printf("%s  %s\n", strings.Join(params, " "), strings.Join(outs, ", "))
	}

	if bestKey != "" {
		best, ok := optim.Best(points, bestKey, maximize)
		if !ok {
			return fmt.Errorf("no successful point reports %q", bestKey)
		}
		v, _ := best.Value(bestKey)
		fmt.Println()
		fmt.Println(viz.Metric("best "+bestKey, fmt.Sprintf("%.4g at %v", v, best.Params)))
	}
	return nil
}

func showPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, name := range config.ListPresets() {
			cfg, err := config.LoadPreset(name)
			if err != nil {
				return err
			}
			fmt.Printf("  %-16s %s\n", name, viz.Subtle.Render(cfg.Mechanism.Name))
		}
		return nil
	}
	cfg, err := config.LoadPreset(args[0])
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
