package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/san-kum/phokimo/internal/config"
	"github.com/san-kum/phokimo/internal/experiment"
	"github.com/san-kum/phokimo/internal/viz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	logLevel    string
	metricsFile string
	theme       string

	preset      string
	solver      string
	tolerance   float64
	dt          float64
	totalTime   float64
	samples     int
	temperature float64
	strict      bool
	noFit       bool
	fitOrder    int
	fitSeries   string
	plotFormat  string
	writeBack   bool
	noSave      bool
	preview     bool
	asJSON      bool
	outFile     string

	// stored-run commands
	showStates bool
	noOffset   bool
	xAxis      string
	yAxis      string
	outDir     string
	configFile string
	asYAML     bool

	// sweep
	axes     []string
	workers  int
	bestKey  string
	maximize bool
)

// main registers the phokimo commands and executes the root command.
// It exits with status 1 when a command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "phokimo",
		Short:         "photochemical kinetics modelling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(lvl)
			logrus.SetOutput(os.Stderr)
			return viz.SetTheme(theme)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultOutputDir, "run storage directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "log level (trace, debug, info, warning, error)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", viz.ThemeCyberpunk.Name, "terminal colour theme")

	runCmd := &cobra.Command{
		Use:   "run [config]",
		Short: "integrate a mechanism, fit lifetimes and store the run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	mechanismFlags(runCmd)
	runCmd.Flags().BoolVar(&noFit, "no-fit", false, "skip exponential fitting")
	runCmd.Flags().IntVar(&fitOrder, "fit-order", config.DefaultFitOrder, "number of exponential terms")
	runCmd.Flags().StringVar(&fitSeries, "fit-series", config.SeriesSpins, "series to fit (spins, states, all)")
	runCmd.Flags().StringVar(&plotFormat, "plot", "", "render plots in this format (png, svg, pdf)")
	runCmd.Flags().BoolVar(&writeBack, "write-back", false, "write results into the config file")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().BoolVar(&preview, "preview", false, "print a terminal plot of the spin populations")
	runCmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON instead of a summary")

	ratesCmd := &cobra.Command{
		Use:   "rates [config]",
		Short: "resolve and print the rate constants of a mechanism",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printRates,
	}
	mechanismFlags(ratesCmd)

	validateCmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "check a mechanism and its reaction network",
		Args:  cobra.MaximumNArgs(1),
		RunE:  validateMechanism,
	}
	mechanismFlags(validateCmd)

	compareCmd := &cobra.Command{
		Use:   "compare [config] [solver1] [solver2] ...",
		Short: "compare solvers on the same mechanism",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareSolvers,
	}
	compareCmd.Flags().StringVar(&preset, "preset", "", "use a built-in mechanism; all arguments are solvers")

	sweepCmd := &cobra.Command{
		Use:   "sweep [config]",
		Short: "run a mechanism over a parameter grid",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&preset, "preset", "", "use a built-in mechanism")
	sweepCmd.Flags().StringArrayVar(&axes, "axis", nil, "sweep axis, e.g. temperature=250:350:5 or rate.isc=log:1e6:1e9:4")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")
	sweepCmd.Flags().StringVar(&bestKey, "best", "", "report the point that optimises this output")
	sweepCmd.Flags().BoolVar(&maximize, "maximize", true, "maximise rather than minimise --best")
	_ = sweepCmd.MarkFlagRequired("axis")

	graphCmd := &cobra.Command{
		Use:   "graph [config]",
		Short: "print the transition graph of a mechanism in DOT",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printGraph,
	}
	mechanismFlags(graphCmd)
	graphCmd.Flags().StringVarP(&outFile, "out", "o", "", "write the graph to this file instead of stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list built-in mechanisms or print one as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showPresets,
	}

	fitCmd := &cobra.Command{
		Use:   "fit [run_id | file.csv]",
		Short: "fit exponentials to a stored run or a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE:  fitRun,
	}
	fitCmd.Flags().IntVar(&fitOrder, "order", config.DefaultFitOrder, "number of exponential terms")
	fitCmd.Flags().StringVar(&fitSeries, "series", config.SeriesSpins, "series to fit (spins, states, all)")
	fitCmd.Flags().BoolVar(&noOffset, "no-offset", false, "fit without a constant offset")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().BoolVar(&showStates, "states", false, "plot states instead of spin manifolds")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "plot one population against another",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&xAxis, "x", "singlet", "state or spin label for the x axis")
	phaseCmd.Flags().StringVar(&yAxis, "y", "triplet", "state or spin label for the y axis")

	renderCmd := &cobra.Command{
		Use:   "render [run_id]",
		Short: "render plots of a stored run to image files",
		Args:  cobra.ExactArgs(1),
		RunE:  renderRun,
	}
	renderCmd.Flags().StringVar(&plotFormat, "format", "png", "image format (png, svg, pdf)")
	renderCmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: the run directory)")
	renderCmd.Flags().StringVar(&configFile, "config", "", "mechanism config for the energy diagram")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "print populations as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().BoolVar(&showStates, "states", false, "export states instead of spin manifolds")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "print the full run report",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().BoolVar(&asYAML, "yaml", false, "print YAML instead of JSON")

	rootCmd.AddCommand(runCmd, ratesCmd, validateCmd, graphCmd, compareCmd, sweepCmd, presetsCmd, fitCmd,
		listCmd, plotCmd, phaseCmd, renderCmd, exportCmd, exportCSVCmd, exportJSONCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, viz.ErrorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

// mechanismFlags registers the flags that override a loaded config.
func mechanismFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "use a built-in mechanism instead of a config file")
	cmd.Flags().StringVar(&solver, "solver", config.DefaultSolver, "solver (bdf, expm, rk45, rk4, euler)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", config.DefaultTolerance, "relative tolerance")
	cmd.Flags().Float64Var(&dt, "dt", 0, "step size of fixed-step solvers")
	cmd.Flags().Float64Var(&totalTime, "time", 0, "total simulated time in the mechanism time unit")
	cmd.Flags().IntVar(&samples, "samples", 0, "number of output samples")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "temperature in K")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat network warnings as errors")
}

// loadConfig reads the config named by args or --preset. The returned path
// is empty for presets.
func loadConfig(args []string) (*config.Config, string, error) {
	switch {
	case preset != "" && len(args) > 0:
		return nil, "", fmt.Errorf("give either a config file or --preset, not both")
	case preset != "":
		cfg, err := config.LoadPreset(preset)
		if err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	case len(args) == 0:
		return nil, "", fmt.Errorf("a config file or --preset is required")
	}
	cfg, err := config.Load(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, args[0], nil
}

// applyFlags copies every explicitly set flag over the file values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		return flags.Lookup(name) != nil && flags.Changed(name)
	}
	if changed("solver") {
		cfg.Solver.Name = solver
	}
	if changed("tolerance") {
		cfg.Solver.Tolerance = tolerance
	}
	if changed("dt") {
		cfg.Solver.Dt = dt
	}
	if changed("time") {
		cfg.Mechanism.TotalTime = totalTime
	}
	if changed("samples") {
		cfg.Mechanism.Samples = samples
	}
	if changed("temperature") {
		cfg.Mechanism.Temperature = temperature
	}
	if changed("strict") {
		cfg.Strict = strict
	}
	if changed("no-fit") {
		cfg.Fit.Enabled = !noFit
	}
	if changed("fit-order") {
		cfg.Fit.Order = fitOrder
	}
	if changed("fit-series") {
		cfg.Fit.Series = fitSeries
	}
	if changed("plot") {
		cfg.Output.Plot = plotFormat
	}
	if changed("write-back") {
		cfg.Output.WriteBack = writeBack
	}
	return cfg.Validate()
}

func prepare(cmd *cobra.Command, args []string) (*experiment.Model, error) {
	cfg, _, err := loadConfig(args)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return experiment.New(cfg).Prepare()
}
