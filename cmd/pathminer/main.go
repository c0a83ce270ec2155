package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeSquared-Agency/pathminer/internal/api"
	"github.com/MikeSquared-Agency/pathminer/internal/baseline"
	"github.com/MikeSquared-Agency/pathminer/internal/batch"
	"github.com/MikeSquared-Agency/pathminer/internal/candidates"
	"github.com/MikeSquared-Agency/pathminer/internal/config"
	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/export"
	"github.com/MikeSquared-Agency/pathminer/internal/extract"
	"github.com/MikeSquared-Agency/pathminer/internal/graph"
	"github.com/MikeSquared-Agency/pathminer/internal/hermes"
	"github.com/MikeSquared-Agency/pathminer/internal/metrics"
	"github.com/MikeSquared-Agency/pathminer/internal/prompt"
	"github.com/MikeSquared-Agency/pathminer/internal/store"
)

const usage = `usage: pathminer <command> [flags]

commands:
  export     dump completed call transcripts of production assistants
  extract    build decision points from exported transcripts
  examples   write prompt examples for every candidate branch of a dataset
  baseline   record the branch production selected at every decision point`

// app holds what every command shares.
type app struct {
	cfg       config.Config
	db        *store.Store
	publisher batch.Publisher
	metrics   *metrics.Metrics
	tracker   *batch.Tracker
	logger    *slog.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel workers")
	fs.StringVar(&cfg.ReportDir, "report-dir", cfg.ReportDir, "directory for run reports, empty to disable")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	var singleFile string
	switch cmd {
	case export.Job:
		fs.StringVar(&cfg.TranscriptsDir, "out", cfg.TranscriptsDir, "transcripts output directory")
		fs.IntVar(&cfg.ExportLimit, "limit", cfg.ExportLimit, "most recent calls per assistant, 0 for all")
	case batch.JobExtract:
		fs.StringVar(&cfg.TranscriptsDir, "transcripts", cfg.TranscriptsDir, "exported transcripts directory")
		fs.StringVar(&cfg.DatasetDir, "out", cfg.DatasetDir, "dataset output directory")
		fs.StringVar(&singleFile, "file", "", "process a single transcript file")
	case batch.JobExamples:
		fs.StringVar(&cfg.DatasetDir, "dataset", cfg.DatasetDir, "dataset directory")
		fs.StringVar(&cfg.ExamplesDir, "out", cfg.ExamplesDir, "examples output directory")
	case baseline.JobName:
		fs.StringVar(&cfg.DatasetDir, "dataset", cfg.DatasetDir, "dataset directory")
		fs.StringVar(&cfg.TranscriptsDir, "transcripts", cfg.TranscriptsDir, "exported transcripts directory")
		fs.StringVar(&cfg.BaselineDir, "out", cfg.BaselineDir, "baseline output directory")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	fs.Parse(args)

	setupLogging(cfg.LogLevel)
	slog.Info("pathminer starting", "command", cmd, "workers", cfg.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	a := &app{
		cfg:     cfg,
		db:      db,
		tracker: batch.NewTracker(),
		logger:  slog.Default(),
	}

	// NATS/Hermes (optional, run events only)
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		a.publisher = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	reg := prometheus.NewRegistry()
	a.metrics = metrics.New(reg)
	if cfg.MetricsPort > 0 {
		srv := api.NewServer(cfg.MetricsPort, reg, a.tracker.Snapshot)
		go func() {
			if err := srv.Start(); err != nil {
				slog.Error("HTTP server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var report *batch.Report
	switch cmd {
	case export.Job:
		report, err = a.export(ctx)
	case batch.JobExtract:
		report, err = a.extract(ctx, singleFile)
	case batch.JobExamples:
		report, err = a.examples(ctx)
	case baseline.JobName:
		report, err = a.baseline(ctx)
	}
	if err != nil {
		slog.Error("run failed", "command", cmd, "error", err)
		os.Exit(1)
	}
	slog.Info("pathminer done",
		"command", cmd,
		"run_id", report.RunID,
		"duration", report.Duration().String(),
		"failed", report.Failed,
	)
}

func (a *app) export(ctx context.Context) (*batch.Report, error) {
	e := export.New(export.Config{
		Dir:       a.cfg.TranscriptsDir,
		ReportDir: a.cfg.ReportDir,
		Workers:   a.cfg.Workers,
		Limit:     a.cfg.ExportLimit,
	}, a.db, a.publisher, a.metrics, a.tracker, a.logger)
	return e.Run(ctx)
}

func (a *app) extract(ctx context.Context, singleFile string) (*batch.Report, error) {
	ext := extract.New(
		graph.NewReader(a.db),
		candidates.NewBuilder(a.db),
		prompt.NewResolver(a.db, a.logger),
		dataset.NewWriter(a.cfg.DatasetDir),
		a.logger,
	)
	r := batch.NewRunner(batch.Config{
		TranscriptsDir: a.cfg.TranscriptsDir,
		OutputDir:      a.cfg.DatasetDir,
		ReportDir:      a.cfg.ReportDir,
		Workers:        a.cfg.Workers,
		SingleFile:     singleFile,
	}, a.db, ext, a.publisher, a.metrics, a.tracker, a.logger)
	return r.Run(ctx)
}

func (a *app) examples(ctx context.Context) (*batch.Report, error) {
	w := dataset.NewExamplesWriter(a.cfg.ExamplesDir, prompt.NewResolver(a.db, a.logger), a.logger)
	j := batch.NewExamplesJob(batch.ExamplesConfig{
		DatasetDir: a.cfg.DatasetDir,
		ReportDir:  a.cfg.ReportDir,
		Workers:    a.cfg.Workers,
	}, w, a.publisher, a.metrics, a.tracker, a.logger)
	return j.Run(ctx)
}

func (a *app) baseline(ctx context.Context) (*batch.Report, error) {
	r := baseline.NewRunner(baseline.Config{
		DatasetDir:     a.cfg.DatasetDir,
		TranscriptsDir: a.cfg.TranscriptsDir,
		OutputDir:      a.cfg.BaselineDir,
		ReportDir:      a.cfg.ReportDir,
		Workers:        a.cfg.Workers,
	}, graph.NewReader(a.db), a.db, a.publisher, a.metrics, a.tracker, a.logger)
	return r.Run(ctx)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
