package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/bookload/internal/config"
	"github.com/wesleyorama2/bookload/internal/engine"
	"github.com/wesleyorama2/bookload/internal/report"
	"github.com/wesleyorama2/bookload/internal/storage"
)

type runOptions struct {
	configPath string
	preset     string

	stages   string
	vus      int
	duration string
	baseURL  string
	sleep    string
	weights  string
	seed     int64

	thresholds []string

	out         string
	html        string
	history     string
	noHistory   bool
	metricsAddr string
	quiet       bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against the booking API",
		Long: `Run a load test from a configuration file, a built-in preset or flags.

Config file mode:
  bookload run --config load.yaml

Preset mode:
  bookload run --preset spike --base-url http://localhost:8080/api

Quick CLI mode:
  bookload run --stages "30s:10,1m:10,30s:0" \
    --weights create_booking=40,list_bookings=60 \
    --threshold "http_req_duration=p(95)<500"

Flags override values from the configuration file. The command exits with
status 1 when a threshold fails or the run is aborted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, ro)
			if err != nil {
				return err
			}
			return runLoadTest(cmd, global, ro, cfg)
		},
	}

	ro.addFlags(cmd)
	return cmd
}

func (ro *runOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&ro.configPath, "config", "c", "", "Configuration file (YAML or JSON)")
	f.StringVarP(&ro.preset, "preset", "p", "", "Built-in profile: load, smoke, spike")
	f.StringVar(&ro.stages, "stages", "", "Stages in format 'duration:target,duration:target,...'")
	f.IntVar(&ro.vus, "vus", 0, "Constant number of virtual users (with --duration)")
	f.StringVar(&ro.duration, "duration", "", "Test duration for --vus (e.g., 5m, 30s)")
	f.StringVar(&ro.baseURL, "base-url", "", "Booking API base URL")
	f.StringVar(&ro.sleep, "sleep", "", "Think time between iterations, e.g. '1s-3s' or '500ms'")
	f.StringVar(&ro.weights, "weights", "", "Scenario weights, e.g. 'create_booking=40,list_bookings=30'")
	f.Int64Var(&ro.seed, "seed", 0, "Seed for reproducible scenario selection")
	f.StringArrayVar(&ro.thresholds, "threshold", nil, "Threshold 'metric=expression' (repeatable)")
	f.StringVarP(&ro.out, "out", "o", "", "Write the JSON summary to this file")
	f.StringVar(&ro.html, "html", "", "Write an HTML report to this file")
	f.StringVar(&ro.history, "history", "", "History database (default ~/.bookload/history.db)")
	f.BoolVar(&ro.noHistory, "no-history", false, "Do not archive the run summary")
	f.StringVar(&ro.metricsAddr, "metrics-addr", "", "Serve live Prometheus metrics on this address")
	f.BoolVarP(&ro.quiet, "quiet", "q", false, "Disable live progress output, show only final summary")
}

// buildConfig loads the configuration file, if any, and applies flag
// overrides. Flags that select the profile are applied before presets and
// defaults are merged; --duration, thresholds and outputs after.
func buildConfig(cmd *cobra.Command, ro *runOptions) (*config.TestConfig, error) {
	cfg := &config.TestConfig{}
	if ro.configPath != "" {
		loaded, err := config.LoadConfig(ro.configPath)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		cfg = loaded
	}

	if ro.preset != "" {
		cfg.Preset = ro.preset
	}

	switch {
	case ro.stages != "":
		stages, err := config.ParseStages(ro.stages)
		if err != nil {
			return nil, fmt.Errorf("invalid --stages: %w", err)
		}
		cfg.Stages = stages
		cfg.VUs, cfg.Duration = 0, ""
	case ro.vus > 0:
		cfg.Stages = nil
		cfg.VUs = ro.vus
	}

	// Without a file, the load preset fills whatever the flags leave unset.
	if ro.configPath == "" && cfg.Preset == "" {
		cfg.Preset = config.PresetLoad
	}

	if ro.baseURL != "" {
		cfg.Settings.BaseURL = ro.baseURL
	}
	if ro.sleep != "" {
		sleep, err := config.ParseSleep(ro.sleep)
		if err != nil {
			return nil, fmt.Errorf("invalid --sleep: %w", err)
		}
		cfg.Sleep = sleep
	}
	if ro.weights != "" {
		weights, err := config.ParseWeights(ro.weights)
		if err != nil {
			return nil, fmt.Errorf("invalid --weights: %w", err)
		}
		cfg.Scenarios = weights
	}
	if cmd.Flags().Changed("seed") {
		seed := ro.seed
		cfg.Settings.Seed = &seed
	}

	if err := config.ApplyDefaults(cfg); err != nil {
		return nil, err
	}

	// --duration holds a constant VU count; a staged profile has no single
	// duration to replace.
	if ro.duration != "" {
		if len(cfg.Stages) > 0 {
			return nil, errors.New("--duration needs a constant VU profile: set --vus or use --stages")
		}
		cfg.Duration = ro.duration
	}

	// --threshold replaces every threshold of the metrics it names.
	overrides := map[string][]config.ThresholdSpec{}
	for _, t := range ro.thresholds {
		metric, spec, err := config.ParseThresholdFlag(t)
		if err != nil {
			return nil, fmt.Errorf("invalid --threshold: %w", err)
		}
		overrides[metric] = append(overrides[metric], spec)
	}
	if len(overrides) > 0 {
		merged := make(map[string][]config.ThresholdSpec, len(cfg.Thresholds)+len(overrides))
		for metric, specs := range cfg.Thresholds {
			merged[metric] = specs
		}
		for metric, specs := range overrides {
			merged[metric] = specs
		}
		cfg.Thresholds = merged
	}

	if ro.out != "" {
		cfg.Output.JSON = ro.out
	}
	if ro.html != "" {
		cfg.Output.HTML = ro.html
	}
	if ro.history != "" {
		cfg.Output.History = ro.history
	}
	if ro.metricsAddr != "" {
		cfg.Output.MetricsAddr = ro.metricsAddr
	}

	return cfg, nil
}

func runLoadTest(cmd *cobra.Command, global *globalOptions, ro *runOptions, cfg *config.TestConfig) error {
	logger := global.logger

	eng, err := engine.NewEngine(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	colors := report.ColorsFor(out, global.noColor)
	console := report.NewConsole(out, colors)

	if !ro.quiet {
		console.PrintHeader(headerFor(eng))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	if ro.quiet {
		close(progressDone)
	} else {
		printer := report.NewProgressPrinter(out, eng.Progress, report.DefaultProgressInterval, colors)
		go func() {
			defer close(progressDone)
			printer.Run(stopProgress)
		}()
	}

	result, err := eng.Run(ctx)
	close(stopProgress)
	<-progressDone
	if err != nil {
		return fmt.Errorf("error running test: %w", err)
	}

	snap := report.FromResult(result)
	console.PrintSummary(snap)

	artifactErr := writeArtifacts(out, logger, cfg.Output, snap, ro.noHistory)

	if !result.Passed {
		return ErrRunFailed
	}
	return artifactErr
}

func headerFor(eng *engine.Engine) report.Header {
	cfg := eng.Config()
	profile := eng.Profile()

	weights := make(map[string]float64, len(cfg.Scenarios))
	for _, s := range cfg.Scenarios {
		weights[s.Name] = s.Weight
	}

	return report.Header{
		Name:     cfg.Name,
		BaseURL:  cfg.Settings.BaseURL,
		Duration: profile.TotalDuration().String(),
		MaxVUs:   profile.MaxTarget(),
		Stages:   len(profile.Stages()),
		Seed:     eng.Seed(),
		Weights:  weights,
	}
}

// writeArtifacts writes the JSON summary and HTML report and archives the
// run. Every artifact is attempted; the errors are joined.
func writeArtifacts(out io.Writer, logger *zap.Logger, o config.OutputConfig, snap *report.Snapshot, noHistory bool) error {
	var errs []error

	if o.JSON != "" {
		if err := report.SaveJSON(o.JSON, snap); err != nil {
			errs = append(errs, err)
		} else {
			fmt.Fprintf(out, "JSON summary written to: %s\n", o.JSON)
		}
	}

	if o.HTML != "" {
		if err := report.GenerateHTML(snap, o.HTML); err != nil {
			errs = append(errs, fmt.Errorf("error generating HTML report: %w", err))
		} else {
			fmt.Fprintf(out, "HTML report written to: %s\n", o.HTML)
		}
	}

	if !noHistory {
		if err := archive(o.History, snap); err != nil {
			errs = append(errs, err)
		} else {
			logger.Debug("run archived", zap.String("run_id", snap.RunID))
		}
	}

	for _, err := range errs {
		logger.Error("failed to write run artifact", zap.Error(err))
	}
	return errors.Join(errs...)
}

func archive(path string, snap *report.Snapshot) error {
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			return fmt.Errorf("failed to locate history database: %w", err)
		}
	}

	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(snap); err != nil {
		return fmt.Errorf("failed to archive run: %w", err)
	}
	return nil
}
