// ============================================================================
// Dispatcher CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree of the campaign dispatcher
//
// Command Structure:
//   dispatcher                     # Root command
//   ├── --config, -c               # Service config file (default: configs/default.yaml)
//   ├── serve                      # Run HTTP API + scheduler until SIGINT/SIGTERM
//   ├── validate -f cfg.json       # Check a humanization config, exit 1 on violations
//   ├── simulate -f campaign.json  # Run one campaign on a virtual clock
//   ├── estimate                   # Remaining-time calculator
//   ├── status <campaign-id>       # Query a running server
//   └── report -f run.json | --list # Print a saved run report, or list them
//
// serve Command:
//   1. Load config (YAML, then DISPATCH_* env overrides)
//   2. Build logger, metrics registry, sender, report writer
//   3. Start scheduler and HTTP API under one errgroup
//   4. On signal: shut down HTTP, cancel runs, wait for workers
//
//   Examples:
//     ./dispatcher serve
//     DISPATCH_SERVER_ADDR=:9000 ./dispatcher serve -c prod.yaml
//
// Campaign file format (simulate):
//   {
//     "campaign_id": "spring-promo",
//     "config": {"delay_min": 10, "delay_max": 45, "randomize_order": true},
//     "contacts": [{"id": "c1", "phone": "+15550100"}]
//   }
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/internal/config"
	"github.com/ChuLiYu/campaign-dispatch/internal/humanize"
	"github.com/ChuLiYu/campaign-dispatch/internal/logging"
	"github.com/ChuLiYu/campaign-dispatch/internal/metrics"
	"github.com/ChuLiYu/campaign-dispatch/internal/report"
	"github.com/ChuLiYu/campaign-dispatch/internal/scheduler"
	"github.com/ChuLiYu/campaign-dispatch/internal/sender"
	"github.com/ChuLiYu/campaign-dispatch/internal/server"
	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds graceful shutdown of the HTTP API and workers
const shutdownTimeout = 15 * time.Second

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dispatcher",
		Short: "Dispatcher: humanized pacing for bulk outbound campaigns",
		Long: `Dispatcher paces outbound campaigns so they look human:
- randomized inter-message delays
- optional contact order shuffling
- time-of-day and weekday sending windows
- per-campaign progress, statistics and ETA`,
		Version:      "1.0.0",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildValidateCommand())
	rootCmd.AddCommand(buildSimulateCommand())
	rootCmd.AddCommand(buildEstimateCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildReportCommand())

	return rootCmd
}

// loadServiceConfig loads configFile, tolerating its absence when it is the default path
func loadServiceConfig() (*config.Config, error) {
	path := configFile
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == "configs/default.yaml" {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatch scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServiceConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// newSender builds the configured outbound adapter
func newSender(cfg config.SenderConfig, log *zap.Logger) (scheduler.Sender, error) {
	switch cfg.Kind {
	case "webhook":
		return sender.NewWebhook(cfg.WebhookURL,
			sender.WithTimeout(cfg.Timeout),
			sender.WithRateLimit(cfg.MaxPerSecond, cfg.Burst))
	case "log", "":
		return sender.NewLog(log.Named("sender")), nil
	default:
		return nil, fmt.Errorf("unknown sender kind %q", cfg.Kind)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	out, err := newSender(cfg.Sender, log)
	if err != nil {
		return err
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(log.Named("scheduler")),
		scheduler.WithEngine(humanize.NewEngine(
			humanize.WithLogger(log.Named("humanize")),
			humanize.WithFallbackHook(collector.RecordFallback),
		)),
		scheduler.WithRecorder(collector),
		scheduler.WithPollInterval(cfg.Scheduler.WindowPollInterval),
		scheduler.WithProcessingSeconds(cfg.Scheduler.AvgProcessingSeconds),
	}
	if cfg.Reports.Enabled {
		opts = append(opts, scheduler.WithReports(report.NewWriter(cfg.Reports.Dir)))
	}
	sched := scheduler.New(out, opts...)

	srvOpts := []server.Option{
		server.WithLogger(log.Named("http")),
		server.WithProcessingSeconds(cfg.Scheduler.AvgProcessingSeconds),
		server.WithCORS(cfg.Server.CORSOrigins),
	}
	if cfg.Metrics.Enabled {
		srvOpts = append(srvOpts, server.WithMetrics(metrics.Handler(reg)))
	}
	srv := server.New(cfg.Server.Addr, sched, srvOpts...)

	log.Info("Dispatcher starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("sender", cfg.Sender.Kind),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("reports", cfg.Reports.Enabled))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Received shutdown signal, stopping gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Dispatcher stopped. Goodbye!")
	return nil
}

func buildValidateCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a humanization config JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateFile(cmd.OutOrStdout(), file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "humanization config JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func validateFile(out io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}

	res := humanize.ValidateConfig(raw)
	if res.Valid {
		fmt.Fprintf(out, "✓ %s is valid\n", path)
		return nil
	}
	for _, e := range res.Errors {
		fmt.Fprintf(out, "✗ %s\n", e)
	}
	return fmt.Errorf("%d violation(s) in %s", len(res.Errors), path)
}

func buildEstimateCommand() *cobra.Command {
	var (
		remaining     int
		avgDelay      float64
		avgProcessing float64
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the time needed for the remaining contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			// a negative remaining count estimates to zero
			if avgDelay < 0 || avgProcessing < 0 {
				return fmt.Errorf("average delay and processing time must not be negative")
			}
			sec := humanize.EstimateRemainingTime(remaining, avgDelay, avgProcessing)
			d := time.Duration(sec * float64(time.Second)).Round(time.Second)
			fmt.Fprintf(cmd.OutOrStdout(), "Estimated remaining time: %s (%.0f seconds)\n", d, sec)
			return nil
		},
	}

	cmd.Flags().IntVar(&remaining, "remaining", 0, "contacts left to send")
	cmd.Flags().Float64Var(&avgDelay, "avg-delay", 0, "average humanized delay in seconds")
	cmd.Flags().Float64Var(&avgProcessing, "avg-processing", humanize.DefaultProcessingSeconds, "average processing time per contact in seconds")
	_ = cmd.MarkFlagRequired("remaining")
	_ = cmd.MarkFlagRequired("avg-delay")
	return cmd
}

func buildStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status <campaign-id>",
		Short: "Show the run status of a campaign on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), cmd.OutOrStdout(), addr, args[0])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "dispatcher API base URL")
	return cmd
}

func showStatus(ctx context.Context, out io.Writer, addr, campaignID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1/campaigns/%s", addr, url.PathEscape(campaignID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach dispatcher at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("campaign %q is unknown to %s", campaignID, addr)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status request failed: %s: %s", resp.Status, body)
	}

	var st types.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	printStatus(out, st)
	return nil
}

func printStatus(out io.Writer, st types.Status) {
	fmt.Fprintf(out, "Campaign:   %s\n", st.CampaignID)
	fmt.Fprintf(out, "Run:        %s\n", st.RunID)
	fmt.Fprintf(out, "State:      %s\n", st.State)
	fmt.Fprintf(out, "Processed:  %d\n", st.ProcessedCount)
	fmt.Fprintf(out, "Remaining:  %d\n", st.RemainingCount)
	if st.Stats.Count > 0 {
		fmt.Fprintf(out, "Delays:     n=%d min=%dms max=%dms mean=%.0fms median=%.0fms stddev=%.0fms\n",
			st.Stats.Count, st.Stats.Min, st.Stats.Max, st.Stats.Mean, st.Stats.Median, st.Stats.StdDev)
	}
	eta := time.Duration(st.EstimatedRemainingSeconds * float64(time.Second)).Round(time.Second)
	fmt.Fprintf(out, "ETA:        %s\n", eta)
}

func buildReportCommand() *cobra.Command {
	var (
		file string
		list bool
		dir  string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a saved run report, or list the saved ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				if dir == "" {
					cfg, err := loadServiceConfig()
					if err != nil {
						return err
					}
					dir = cfg.Reports.Dir
				}
				return listReports(cmd.OutOrStdout(), report.NewWriter(dir))
			}
			if file == "" {
				return fmt.Errorf("either --file or --list is required")
			}
			return showReport(cmd.OutOrStdout(), file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "run report JSON file")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list the reports in the report directory")
	cmd.Flags().StringVar(&dir, "dir", "", "report directory for --list (default: reports.dir from config)")
	cmd.MarkFlagsMutuallyExclusive("file", "list")
	return cmd
}

func listReports(out io.Writer, w *report.Writer) error {
	paths, err := w.List()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintf(out, "No reports in %s\n", w.Dir())
		return nil
	}

	fmt.Fprintf(out, "Reports in %s:\n", w.Dir())
	for _, path := range paths {
		name := filepath.Base(path)
		rep, err := report.Load(path)
		if err != nil {
			fmt.Fprintf(out, "  %-40s  unreadable: %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "  %-40s  %-10s %s processed=%d remaining=%d\n",
			name, rep.Status.State, rep.Status.CampaignID, rep.Status.ProcessedCount, rep.Status.RemainingCount)
	}
	return nil
}

func showReport(out io.Writer, path string) error {
	rep, err := report.Load(path)
	if err != nil {
		return err
	}
	printStatus(out, rep.Status)
	fmt.Fprintf(out, "Config:     delay %d-%ds, randomize_order=%t\n",
		rep.Config.DelayMinSeconds, rep.Config.DelayMaxSeconds, rep.Config.RandomizeOrder)
	if rep.Status.FinishedAt != nil {
		fmt.Fprintf(out, "Duration:   %s\n", rep.Status.FinishedAt.Sub(rep.Status.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "Written:    %s\n", rep.WrittenAt.Format(time.RFC3339))
	return nil
}
