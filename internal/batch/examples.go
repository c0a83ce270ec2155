package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/metrics"
	"github.com/MikeSquared-Agency/pathminer/internal/pool"
)

const JobExamples = "examples"

const defaultExamplesChunk = 500

type ExamplesConfig struct {
	DatasetDir string
	ReportDir  string
	Workers    int
	ChunkSize  int // branch ids per bulk prompt lookup
}

// ExamplesJob writes a prompt-examples record for every candidate branch
// found in the committed decision points of a dataset.
type ExamplesJob struct {
	cfg       ExamplesConfig
	writer    *dataset.ExamplesWriter
	publisher Publisher
	metrics   *metrics.Metrics
	tracker   *Tracker
	logger    *slog.Logger
}

func NewExamplesJob(cfg ExamplesConfig, w *dataset.ExamplesWriter, publisher Publisher, m *metrics.Metrics, tracker *Tracker, logger *slog.Logger) *ExamplesJob {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = defaultExamplesChunk
	}
	return &ExamplesJob{cfg: cfg, writer: w, publisher: publisher, metrics: m, tracker: tracker, logger: logger}
}

// Run collects the distinct candidate branch ids of the dataset and writes
// their records in chunks on the worker pool. Chunks are disjoint, so no two
// workers ever write the same file.
func (j *ExamplesJob) Run(ctx context.Context) (*Report, error) {
	report := NewReport(JobExamples, j.cfg.ReportDir)
	defer j.metrics.RunStarted()()

	ids, err := j.collect(report)
	if err != nil {
		return report, err
	}
	report.Discovered = len(ids)

	chunks := chunk(ids, j.cfg.ChunkSize)
	j.logger.Info("candidate branches collected",
		"run_id", report.RunID,
		"branches", len(ids),
		"chunks", len(chunks),
	)

	j.tracker.Start(JobExamples, report.RunID, len(chunks))
	defer j.tracker.Finish()

	outcomes := pool.Map(ctx, j.cfg.Workers, chunks, func(ctx context.Context, c []string) (int, error) {
		start := time.Now()
		n, err := j.writer.Write(ctx, c)
		outcome := metrics.OutcomeProcessed
		if err != nil {
			outcome = metrics.OutcomeFailed
		}
		j.metrics.ObserveUnit(JobExamples, outcome, time.Since(start))
		j.metrics.FilesWritten(JobExamples, n)
		j.tracker.UnitDone(err != nil)
		return n, err
	})

	for _, o := range outcomes {
		c := chunks[o.Index]
		report.FilesWritten += o.Value
		if o.Err != nil {
			j.logger.Error("examples chunk failed", "chunk", o.Index, "branches", len(c), "error", o.Err)
			report.Failed += len(c) - o.Value
			report.Processed += o.Value
			report.AddError(fmt.Sprintf("chunk %d: %v", o.Index, o.Err))
			continue
		}
		report.Processed += o.Value
		report.Skipped += len(c) - o.Value
	}

	report.Finish()
	if err := report.Save(); err != nil {
		j.logger.Warn("failed to save run report", "path", report.Path(), "error", err)
	}
	PublishRunCompleted(j.publisher, report, j.logger)

	j.logger.Info("examples complete",
		"run_id", report.RunID,
		"written", report.FilesWritten,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, ctx.Err()
}

func (j *ExamplesJob) collect(report *Report) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	err := dataset.WalkDecisionPoints(j.cfg.DatasetDir, func(ref dataset.Ref) error {
		dp, err := dataset.ReadDecisionPoint(ref.Path)
		if err != nil {
			j.logger.Warn("unreadable decision point", "path", ref.Path, "error", err)
			report.Failed++
			report.AddError(err.Error())
			return nil
		}
		report.DecisionPoints++
		for _, id := range dp.Candidates.BranchIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk dataset: %w", err)
	}
	return ids, nil
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
