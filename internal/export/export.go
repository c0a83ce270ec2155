// Package export dumps the completed call transcripts of production
// assistants to {dir}/{assistant_id}/{call_id}.json.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/MikeSquared-Agency/pathminer/internal/batch"
	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/metrics"
	"github.com/MikeSquared-Agency/pathminer/internal/pool"
	"github.com/MikeSquared-Agency/pathminer/internal/transcript"
)

const Job = "export"

// Source lists production assistants and their completed calls.
type Source interface {
	ProductionAssistants(ctx context.Context) ([]string, error)
	// CompletedCalls returns calls newest first. limit <= 0 means all.
	CompletedCalls(ctx context.Context, assistantID string, limit int) ([]transcript.Call, error)
}

type Config struct {
	Dir       string
	ReportDir string
	Workers   int
	Limit     int // most recent calls per assistant, 0 for all
}

type Exporter struct {
	cfg       Config
	src       Source
	publisher batch.Publisher
	metrics   *metrics.Metrics
	tracker   *batch.Tracker
	logger    *slog.Logger
}

func New(cfg Config, src Source, publisher batch.Publisher, m *metrics.Metrics, tracker *batch.Tracker, logger *slog.Logger) *Exporter {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Exporter{cfg: cfg, src: src, publisher: publisher, metrics: m, tracker: tracker, logger: logger}
}

type assistantResult struct {
	calls   int
	written int
	skipped int
}

// Run exports every production assistant on the worker pool. A failing
// assistant is logged and does not stop the others.
func (e *Exporter) Run(ctx context.Context) (*batch.Report, error) {
	report := batch.NewReport(Job, e.cfg.ReportDir)
	defer e.metrics.RunStarted()()

	assistants, err := e.src.ProductionAssistants(ctx)
	if err != nil {
		return report, fmt.Errorf("list production assistants: %w", err)
	}
	e.logger.Info("production assistants found", "run_id", report.RunID, "assistants", len(assistants))

	e.tracker.Start(Job, report.RunID, len(assistants))
	defer e.tracker.Finish()

	outcomes := pool.Map(ctx, e.cfg.Workers, assistants, func(ctx context.Context, id string) (assistantResult, error) {
		start := time.Now()
		res, err := e.exportAssistant(ctx, id)
		outcome := metrics.OutcomeProcessed
		if err != nil {
			outcome = metrics.OutcomeFailed
		}
		e.metrics.ObserveUnit(Job, outcome, time.Since(start))
		e.metrics.FilesWritten(Job, res.written)
		e.tracker.UnitDone(err != nil)
		return res, err
	})

	for _, o := range outcomes {
		id := assistants[o.Index]
		report.Discovered += o.Value.calls
		report.FilesWritten += o.Value.written
		report.Skipped += o.Value.skipped
		if o.Err != nil {
			e.logger.Error("export failed", "assistant_id", id, "error", o.Err)
			report.Failed++
			report.AddError(fmt.Sprintf("%s: %v", id, o.Err))
			continue
		}
		report.Processed += o.Value.written
	}

	report.Finish()
	if err := report.Save(); err != nil {
		e.logger.Warn("failed to save run report", "path", report.Path(), "error", err)
	}
	batch.PublishRunCompleted(e.publisher, report, e.logger)

	e.logger.Info("export complete",
		"run_id", report.RunID,
		"written", report.FilesWritten,
		"skipped", report.Skipped,
		"failed_assistants", report.Failed,
	)
	return report, ctx.Err()
}

func (e *Exporter) exportAssistant(ctx context.Context, assistantID string) (assistantResult, error) {
	var res assistantResult

	calls, err := e.src.CompletedCalls(ctx, assistantID, e.cfg.Limit)
	if err != nil {
		return res, fmt.Errorf("fetch calls: %w", err)
	}
	res.calls = len(calls)
	if len(calls) == 0 {
		e.logger.Debug("no completed calls", "assistant_id", assistantID)
		return res, nil
	}

	for _, call := range calls {
		path := filepath.Join(e.cfg.Dir, assistantID, call.ID+".json")
		if dataset.FileExists(path) {
			e.logger.Debug("transcript already exported, skipping", "assistant_id", assistantID, "call_id", call.ID)
			res.skipped++
			continue
		}
		if isEmptyTranscript(call.Transcript) {
			e.logger.Debug("call has no transcript", "assistant_id", assistantID, "call_id", call.ID)
			res.skipped++
			continue
		}

		var buf bytes.Buffer
		if err := json.Indent(&buf, call.Transcript, "", "  "); err != nil {
			return res, fmt.Errorf("call %s: invalid transcript: %w", call.ID, err)
		}
		if err := dataset.WriteFileAtomic(path, buf.Bytes()); err != nil {
			return res, fmt.Errorf("call %s: %w", call.ID, err)
		}
		res.written++
		e.logger.Info("saved transcript", "assistant_id", assistantID, "call_id", call.ID)
	}
	return res, nil
}

func isEmptyTranscript(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "[]", "{}", `""`:
		return true
	}
	return false
}
