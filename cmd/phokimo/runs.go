package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/phokimo/internal/analysis"
	"github.com/san-kum/phokimo/internal/config"
	"github.com/san-kum/phokimo/internal/experiment"
	"github.com/san-kum/phokimo/internal/fit"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/report"
	"github.com/san-kum/phokimo/internal/storage"
	"github.com/san-kum/phokimo/internal/trajectory"
	"github.com/san-kum/phokimo/internal/viz"
	"github.com/spf13/cobra"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tSPAN\tSAMPLES\tSOLVER\tWARNINGS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g %s\t%d\t%s\t%d\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.TotalTime,
			run.TimeUnit,
			run.Samples,
			run.Solver,
			run.Warnings,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	set, err := st.LoadTrajectories(runID)
	if err != nil {
		return err
	}

	fmt.Println(viz.Metric("run", meta.ID))
	fmt.Println(viz.Metric("mechanism", meta.Name))
	fmt.Println(viz.Metric("samples", fmt.Sprint(len(set.Times))))
	fmt.Println()

	list := set.Spins
	if showStates {
		list = set.States
	}
	fmt.Println(graph(list, set.TimeUnit))
	fmt.Println()
	fmt.Println(viz.Sparklines(list, 60))
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	set, err := st.LoadTrajectories(args[0])
	if err != nil {
		return err
	}
	p, err := analysis.NewPortrait(set, xAxis, yAxis)
	if err != nil {
		return err
	}
	fmt.Println(viz.Header(fmt.Sprintf("%s vs %s", p.YLabel, p.XLabel)))
	fmt.Print(p.ASCII(70, 20))
	return nil
}

func renderRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	doc, err := st.LoadReport(runID)
	if err != nil {
		return err
	}
	if doc.Trajectories == nil {
		set, err := st.LoadTrajectories(runID)
		if err != nil {
			return err
		}
		doc.Trajectories = report.NewTrajectories(set)
	}

	var m *mechanism.Mechanism
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		model, err := experiment.New(cfg).Prepare()
		if err != nil {
			return err
		}
		m = model.Mechanism
	}

	dir := outDir
	if dir == "" {
		dir = st.Dir(runID)
	}
	return renderPlots(dir, plotFormat, doc, m)
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	set, err := st.LoadTrajectories(args[0])
	if err != nil {
		return err
	}
	list := set.Spins
	if showStates {
		list = set.States
	}
	return storage.WriteCSV(os.Stdout, set.Times, list)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	doc, err := st.LoadReport(args[0])
	if err != nil {
		return err
	}
	if asYAML {
		return doc.WriteYAML(os.Stdout)
	}
	return doc.WriteJSON(os.Stdout)
}

// fitRun fits the series of a stored run, or of a CSV file when the
// argument names one.
func fitRun(cmd *cobra.Command, args []string) error {
	var (
		series []*trajectory.Trajectory
		unit   string
	)
	if src := args[0]; strings.HasSuffix(src, ".csv") || strings.HasSuffix(src, ".csv.gz") {
		_, list, err := storage.ImportCSV(src, trajectory.KindSpin)
		if err != nil {
			return err
		}
		series = list
	} else {
		set, err := storage.New(dataDir).LoadTrajectories(src)
		if err != nil {
			return err
		}
		unit = set.TimeUnit
		switch fitSeries {
		case config.SeriesSpins:
			series = set.Spins
		case config.SeriesStates:
			series = set.States
		case config.SeriesAll:
			series = append(append(series, set.Spins...), set.States...)
		default:
			return fmt.Errorf("unknown series %q (spins, states, all)", fitSeries)
		}
	}
	if unit == "" {
		unit = "s"
	}

	opts := fit.DefaultOptions()
	opts.Order = fitOrder
	opts.Offset = !noOffset
	outcomes := fit.FitAll(cmd.Context(), series, opts)

	records := make([]report.FitRecord, len(outcomes))
	for i, o := range outcomes {
		records[i] = report.NewFitRecord(o)
	}
	fmt.Println(viz.FitTable(records, unit))
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Println(viz.WarnStyle.Render(fmt.Sprintf("%s: %v", o.Label, o.Err)))
		}
	}
	return nil
}
