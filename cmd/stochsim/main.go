package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/stochsim/internal/analysis"
	"github.com/san-kum/stochsim/internal/api"
	"github.com/san-kum/stochsim/internal/automation"
	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/san-kum/stochsim/internal/export"
	"github.com/san-kum/stochsim/internal/logging"
	"github.com/san-kum/stochsim/internal/metrics"
	"github.com/san-kum/stochsim/internal/optim"
	"github.com/san-kum/stochsim/internal/sim"
	"github.com/san-kum/stochsim/internal/storage"
	"github.com/san-kum/stochsim/internal/viz"
)

var (
	dataDir  string
	logLevel string
	logger   *slog.Logger

	// model selection and run controls
	preset       string
	modelFile    string
	tMax         float64
	dt           float64
	realizations int
	seed         int64
	workers      int
	maxSteps     int
	params       []string

	save         bool
	showProgress bool

	// run inspection
	plotRealization  int
	phaseRealization int
	csvRealization   int
	varIndex         int
	analyzeStep      float64
	xAxis            int
	yAxis            int
	svgPath          string
	outPath          string

	// sweeps
	sweepParam string
	sweepFrom  float64
	sweepTo    float64
	sweepSteps int
	metricName string
	grid       []string
	maximize   bool

	// server
	addr      string
	redisAddr string
	redisDB   int
	cacheTTL  time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stochsim",
		Short:         "stochastic simulation of population models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logger = logging.New(level)
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".stochsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run an ensemble of realizations",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addModelFlags(runCmd)
	runCmd.Flags().BoolVar(&save, "save", true, "save the run to the data directory")
	runCmd.Flags().BoolVar(&showProgress, "progress", false, "show a progress bar")

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list built-in models, or print one as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showPresets,
	}
	presetsCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the preset to a file instead of stdout")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotRealization, "realization", 0, "realization to plot (1-based); 0 plots the ensemble band")
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write every realization to an SVG file")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase plot of two variables",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", 0, "variable index for x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", 1, "variable index for y-axis")
	phaseCmd.Flags().IntVar(&phaseRealization, "realization", 1, "realization to plot (1-based)")
	phaseCmd.Flags().StringVar(&svgPath, "svg", "", "also write the portrait to an SVG file")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "ensemble spread and dominant period",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&varIndex, "var", 0, "variable index")
	analyzeCmd.Flags().Float64Var(&analyzeStep, "step", 0, "resampling step (default t_max/1000)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export one realization to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().IntVar(&csvRealization, "realization", 1, "realization to export (1-based)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep one parameter and report a metric",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addModelFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "sweep", "", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 1, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 11, "number of values")
	sweepCmd.Flags().StringVar(&metricName, "metric", "events_avg", "metric to report")
	sweepCmd.MarkFlagRequired("sweep")

	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "grid search parameters for the best metric value",
		Args:  cobra.NoArgs,
		RunE:  runOptimize,
	}
	addModelFlags(optimizeCmd)
	optimizeCmd.Flags().StringArrayVar(&grid, "grid", nil, "parameter grid as name=from:to:steps (repeatable)")
	optimizeCmd.Flags().StringVar(&metricName, "metric", "events_avg", "metric to optimize")
	optimizeCmd.Flags().BoolVar(&maximize, "maximize", false, "maximize instead of minimize")
	optimizeCmd.MarkFlagRequired("grid")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of ensembles",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve simulations over HTTP",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&redisAddr, "redis", "", "redis address for caching seeded runs")
	serveCmd.Flags().IntVar(&redisDB, "redis-db", 0, "redis database")
	serveCmd.Flags().DurationVar(&cacheTTL, "cache-ttl", time.Hour, "lifetime of cached runs")
	serveCmd.Flags().IntVar(&workers, "workers", 0, "concurrent realizations per request (0 = GOMAXPROCS)")

	rootCmd.AddCommand(runCmd, presetsCmd, listCmd, plotCmd, phaseCmd, analyzeCmd, exportCSVCmd, exportJSONCmd,
		sweepCmd, optimizeCmd, scenarioCmd, serveCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "food_chain", "built-in model")
	cmd.Flags().StringVarP(&modelFile, "file", "f", "", "model file (yaml); overrides --preset")
	cmd.Flags().Float64Var(&tMax, "t-max", config.DefaultTMax, "time horizon")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "time step (ctmp and sde)")
	cmd.Flags().IntVarP(&realizations, "realizations", "n", config.DefaultRealizations, "number of realizations")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed of the first realization (0 = from clock)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent realizations (0 = GOMAXPROCS)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "per-realization step cap (0 = engine default)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter override name=value (repeatable)")
}

// loadExperiment resolves the model and applies flags given explicitly on
// the command line over the model file's own controls.
func loadExperiment(cmd *cobra.Command) (experiment.Config, error) {
	var cfg *config.Config
	if modelFile != "" {
		var err error
		if cfg, err = config.Load(modelFile); err != nil {
			return experiment.Config{}, fmt.Errorf("failed to load model: %w", err)
		}
	} else if cfg = config.GetPreset(preset); cfg == nil {
		return experiment.Config{}, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}

	overrides, err := parseAssignments(params)
	if err != nil {
		return experiment.Config{}, err
	}
	for _, name := range sortedKeys(overrides) {
		if err := cfg.Model.SetParam(name, overrides[name]); err != nil {
			return experiment.Config{}, err
		}
	}

	exp := experiment.FromConfig(cfg)
	flags := cmd.Flags()
	if flags.Changed("t-max") {
		exp.TMax = tMax
	}
	if flags.Changed("dt") {
		exp.Dt = dt
	}
	if flags.Changed("realizations") {
		exp.Realizations = realizations
	}
	if flags.Changed("seed") {
		exp.Seed = seed
	}
	if flags.Changed("workers") {
		exp.Workers = workers
	}
	if flags.Changed("max-steps") {
		exp.MaxSteps = maxSteps
	}
	return exp, nil
}

func parseAssignments(items []string) (map[string]float64, error) {
	out := make(map[string]float64, len(items))
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q (want name=value)", item)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadExperiment(cmd)
	if err != nil {
		return err
	}

	var rep *experiment.Report
	if showProgress {
		n := sim.ClampRealizations(cfg.Realizations)
		err = viz.Track(cmd.Context(), os.Stderr, cfg.Model.Name, n, func(ctx context.Context, progress sim.ProgressFunc) error {
			var err error
			rep, err = experiment.New(cfg, experiment.WithLogger(logger), experiment.WithProgress(progress)).Run(ctx)
			return err
		})
	} else {
		rep, err = experiment.New(cfg, experiment.WithLogger(logger)).Run(cmd.Context())
	}
	if err != nil {
		return err
	}

	fmt.Println(viz.Summary(rep, 60))

	if save {
		st := storage.New(dataDir, storage.WithLogger(logger))
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(rep.Metadata(), rep.Results)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	return nil
}

func showPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg := config.GetPreset(args[0])
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s", args[0])
		}
		if outPath != "" {
			if err := config.Save(outPath, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", outPath)
			return nil
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tVARIABLES\tDESCRIPTION")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			name,
			cfg.Model.Kind,
			strings.Join(cfg.Model.VarNames(), ","),
			cfg.Model.Description,
		)
	}
	return w.Flush()
}

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
	fmt.Fprintln(w, "ID\tMODEL\tKIND\tTIME\tT_MAX\tN\tSEED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%d\t%d\n",
			run.ID,
			run.Model,
			run.Kind,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.TMax,
			run.Realizations,
			run.Seed,
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []*sim.Result, error) {
	meta, results, err := storage.New(dataDir).LoadAll(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(results) == 0 {
		return nil, nil, fmt.Errorf("run %s has no realizations", runID)
	}
	return meta, results, nil
}

func pickRealization(results []*sim.Result, i int) (*sim.Result, error) {
	if i < 1 || i > len(results) {
		return nil, fmt.Errorf("realization %d out of range 1..%d", i, len(results))
	}
	return results[i-1], nil
}

const plotWidth = 80

func plotRun(cmd *cobra.Command, args []string) error {
	meta, results, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s (%s)\n", meta.Model, meta.Kind)
	fmt.Printf("realizations: %d\n\n", len(results))

	grid := analysis.Grid(meta.TMax, meta.TMax/float64(plotWidth))
	for varIdx, name := range meta.VarNames {
		if plotRealization > 0 {
			r, err := pickRealization(results, plotRealization)
			if err != nil {
				return err
			}
			fmt.Println(asciigraph.Plot(analysis.Resample(r, varIdx, grid),
				asciigraph.Height(10),
				asciigraph.Width(plotWidth),
				asciigraph.Caption(fmt.Sprintf("%s, realization %d", name, plotRealization)),
			))
			fmt.Println()
			continue
		}

		band := analysis.Bands(results, varIdx, grid)
		fmt.Println(asciigraph.PlotMany([][]float64{band.Lower(1), band.Mean, band.Upper(1)},
			asciigraph.Height(10),
			asciigraph.Width(plotWidth),
			asciigraph.SeriesColors(asciigraph.DarkGray, asciigraph.Green, asciigraph.DarkGray),
			asciigraph.Caption(fmt.Sprintf("%s, mean ± 1 sd over %d realizations", name, len(results))),
		))
		fmt.Println()
	}

	if svgPath != "" {
		discrete := meta.Kind != "sde"
		for varIdx, name := range meta.VarNames {
			path := svgPath
			if len(meta.VarNames) > 1 {
				path = strings.TrimSuffix(svgPath, ".svg") + "_" + name + ".svg"
			}
			svg := export.EnsembleSVG(results, varIdx, 800, 400, discrete)
			if err := os.WriteFile(path, []byte(svg), 0644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
		}
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, results, err := loadRun(args[0])
	if err != nil {
		return err
	}
	r, err := pickRealization(results, phaseRealization)
	if err != nil {
		return err
	}

	p := analysis.PhasePortrait(r, xAxis, yAxis)
	if p == nil {
		return fmt.Errorf("axes %d and %d out of range for %d variables", xAxis, yAxis, len(meta.VarNames))
	}

	fmt.Printf("phase portrait: %s against %s\n\n", meta.VarNames[yAxis], meta.VarNames[xAxis])
	fmt.Println(p.ASCII(plotWidth, 24))

	if svgPath != "" {
		if err := os.WriteFile(svgPath, []byte(export.PhaseSVG(p, 600, 600, export.Palette[0])), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgPath)
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, results, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if varIndex < 0 || varIndex >= len(meta.VarNames) {
		return fmt.Errorf("variable %d out of range for %d variables", varIndex, len(meta.VarNames))
	}
	name := meta.VarNames[varIndex]

	step := analyzeStep
	if step <= 0 {
		step = meta.TMax / 1000
	}
	grid := analysis.Grid(meta.TMax, step)
	band := analysis.Bands(results, varIndex, grid)

	fmt.Printf("analysis: %s\n", meta.ID)
	fmt.Printf("model: %s, variable: %s\n\n", meta.Model, name)

	last := len(grid) - 1
	fmt.Printf("final mean: %.4f ± %.4f\n", band.Mean[last], band.Std[last])

	ps := analysis.PowerSpectrum(band.Mean)
	if len(ps) > 1 {
		fmt.Println(asciigraph.Plot(ps[1:max(len(ps)/4, 2)],
			asciigraph.Height(15),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(fmt.Sprintf("power spectrum of mean %s", name)),
		))
		fmt.Println()
	}

	period, err := analysis.DominantPeriod(band.Mean, step)
	switch {
	case errors.Is(err, analysis.ErrFlatSeries):
		fmt.Println("no dominant period")
	case err != nil:
		return err
	default:
		fmt.Printf("dominant period: %.4f (frequency %.4f)\n", period, 1/period)
	}

	growth := analysis.GrowthRate(band.Mean, step, max(1, len(grid)/200))
	if period, err := analysis.DominantPeriod(growth, step); err == nil {
		fmt.Printf("growth-rate period: %.4f\n", period)
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	meta, results, err := loadRun(args[0])
	if err != nil {
		return err
	}
	r, err := pickRealization(results, csvRealization)
	if err != nil {
		return err
	}
	return storage.WriteCSV(os.Stdout, meta.VarNames, r)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, results, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, storage.NewExport(*meta, results))
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadExperiment(cmd)
	if err != nil {
		return err
	}

	runner := &automation.Runner{Logger: logger, Opts: []experiment.Option{experiment.WithLogger(logger)}}
	points, err := runner.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Base:   cfg,
		Param:  sweepParam,
		Values: optim.Linspace(sweepFrom, sweepTo, sweepSteps),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(sweepParam), strings.ToUpper(metricName))
	values := make([]float64, 0, len(points))
	for _, p := range points {
		v, ok := p.Metrics[metricName]
		if !ok {
			return fmt.Errorf("unknown metric %q", metricName)
		}
		values = append(values, v)
		fmt.Fprintf(w, "%g\t%.6g\n", p.ParamValue, v)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(values) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(values,
			asciigraph.Height(10),
			asciigraph.Caption(fmt.Sprintf("%s against %s", metricName, sweepParam)),
		))
	}
	return nil
}

// parseGrid reads name=from:to:steps.
func parseGrid(items []string) ([]string, [][]float64, error) {
	var names []string
	var ranges [][]float64
	for _, item := range items {
		name, spec, ok := strings.Cut(item, "=")
		parts := strings.Split(spec, ":")
		if !ok || len(parts) != 3 {
			return nil, nil, fmt.Errorf("invalid grid %q (want name=from:to:steps)", item)
		}
		from, err1 := strconv.ParseFloat(parts[0], 64)
		to, err2 := strconv.ParseFloat(parts[1], 64)
		steps, err3 := strconv.Atoi(parts[2])
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, nil, fmt.Errorf("invalid grid %q: %w", item, err)
		}
		names = append(names, name)
		ranges = append(ranges, optim.Linspace(from, to, steps))
	}
	return names, ranges, nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadExperiment(cmd)
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}

	search := optim.NewGridSearch(names, ranges)
	if maximize {
		search.Maximize()
	}
	res, err := search.Search(cmd.Context(), cfg, metricName, experiment.WithLogger(logger))
	if err != nil {
		return err
	}

	fmt.Printf("evaluated %d grid points\n", len(res.Points))
	fmt.Printf("best %s: %.6g\n", metricName, res.Best.Value)
	for _, name := range sortedKeys(res.Best.Params) {
		fmt.Printf("  %s = %g\n", name, res.Best.Params[name])
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir, storage.WithLogger(logger))
	if err := st.Init(); err != nil {
		return err
	}
	runner := &automation.Runner{
		Registry: experiment.NewRegistry(),
		Store:    st,
		Logger:   logger,
		Opts:     []experiment.Option{experiment.WithLogger(logger)},
	}

	results, err := runner.RunScenario(cmd.Context(), scenario)
	for i, res := range results {
		fmt.Printf("step %d: %s\n", i+1, viz.StatsLine(res.Report))
		if res.RunID != "" {
			fmt.Printf("  run id: %s\n", res.RunID)
		}
	}
	return err
}

func serve(cmd *cobra.Command, args []string) error {
	opts := []api.Option{
		api.WithLogger(logger),
		api.WithCollector(metrics.NewCollector()),
		api.WithWorkers(workers),
	}
	if redisAddr != "" {
		cache := storage.NewRedisCache(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB, storage.WithTTL(cacheTTL))
		defer cache.Close()
		opts = append(opts, api.WithCache(cache))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(experiment.NewRegistry(), opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-cmd.Context().Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
