// Package batch runs the extract and examples jobs over a whole corpus.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/extract"
	"github.com/MikeSquared-Agency/pathminer/internal/hermes"
	"github.com/MikeSquared-Agency/pathminer/internal/metrics"
	"github.com/MikeSquared-Agency/pathminer/internal/pool"
	"github.com/MikeSquared-Agency/pathminer/internal/transcript"
)

const JobExtract = "extract"

// Config holds the extract command configuration.
type Config struct {
	TranscriptsDir string
	OutputDir      string
	ReportDir      string
	Workers        int
	SingleFile     string // process a single transcript only
}

// LanguageSource resolves an assistant's language code.
type LanguageSource interface {
	AssistantLanguage(ctx context.Context, assistantID string) (string, error)
}

// Publisher emits run events. hermes.Client implements it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Runner orchestrates the extract job.
type Runner struct {
	cfg       Config
	langs     LanguageSource
	extractor *extract.Extractor
	layout    dataset.Layout
	publisher Publisher
	metrics   *metrics.Metrics
	tracker   *Tracker
	logger    *slog.Logger
}

// NewRunner creates an extract runner. publisher, m and tracker may be nil.
func NewRunner(cfg Config, langs LanguageSource, ext *extract.Extractor, publisher Publisher, m *metrics.Metrics, tracker *Tracker, logger *slog.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		cfg:       cfg,
		langs:     langs,
		extractor: ext,
		layout:    dataset.Layout{Root: cfg.OutputDir},
		publisher: publisher,
		metrics:   m,
		tracker:   tracker,
		logger:    logger,
	}
}

type pendingUnit struct {
	Unit
	language string
}

// Run processes every transcript without a committed call directory. Unit
// failures are logged and recorded in the report; they never stop the run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := NewReport(JobExtract, r.cfg.ReportDir)
	defer r.metrics.RunStarted()()

	units, err := r.discover()
	if err != nil {
		return report, fmt.Errorf("discover transcripts: %w", err)
	}
	report.Discovered = len(units)

	todo := r.plan(ctx, units, report)

	r.logger.Info("transcripts discovered",
		"run_id", report.RunID,
		"discovered", report.Discovered,
		"skipped", report.Skipped,
		"to_process", len(todo),
		"workers", r.cfg.Workers,
	)

	r.tracker.Start(JobExtract, report.RunID, len(todo))
	defer r.tracker.Finish()

	outcomes := pool.Map(ctx, r.cfg.Workers, todo, func(ctx context.Context, u pendingUnit) (extract.Result, error) {
		start := time.Now()
		res, err := r.processUnit(ctx, u)
		outcome := metrics.OutcomeProcessed
		if err != nil {
			outcome = metrics.OutcomeFailed
		}
		r.metrics.ObserveUnit(JobExtract, outcome, time.Since(start))
		r.tracker.UnitDone(err != nil)
		return res, err
	})

	for _, o := range outcomes {
		u := todo[o.Index]
		if o.Err != nil {
			r.logger.Error("transcript failed",
				"assistant_id", u.AssistantID,
				"call_id", u.CallID,
				"path", u.Path,
				"error", o.Err,
			)
			report.Failed++
			report.AddError(fmt.Sprintf("%s/%s: %v", u.AssistantID, u.CallID, o.Err))
			continue
		}
		report.Processed++
		report.DecisionPoints += o.Value.DecisionPoints
		report.SkippedTurns.Add(o.Value.Skipped)
		r.metrics.ObserveExtraction(o.Value)
		if o.Value.DecisionPoints > 0 {
			report.FilesWritten += o.Value.DecisionPoints + 1
			r.metrics.FilesWritten(JobExtract, o.Value.DecisionPoints+1)
			r.publish(hermes.SubjectTranscriptProcessed, hermes.TranscriptProcessed{
				RunID:          report.RunID,
				AssistantID:    u.AssistantID,
				CallID:         u.CallID,
				Language:       u.language,
				DecisionPoints: o.Value.DecisionPoints,
				Timestamp:      time.Now().UTC(),
			})
		}
	}

	report.Finish()
	if err := report.Save(); err != nil {
		r.logger.Warn("failed to save run report", "path", report.Path(), "error", err)
	}
	PublishRunCompleted(r.publisher, report, r.logger)

	r.logger.Info("extract complete",
		"run_id", report.RunID,
		"processed", report.Processed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"decision_points", report.DecisionPoints,
		"duration", report.Duration().String(),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) discover() ([]Unit, error) {
	if r.cfg.SingleFile != "" {
		u, err := UnitFromPath(expandHome(r.cfg.SingleFile))
		if err != nil {
			return nil, err
		}
		return []Unit{u}, nil
	}
	return Discover(r.cfg.TranscriptsDir)
}

// plan resolves each assistant's language once and drops units that are
// already complete or whose language cannot be resolved.
func (r *Runner) plan(ctx context.Context, units []Unit, report *Report) []pendingUnit {
	languages := make(map[string]string)
	langErrs := make(map[string]error)

	var todo []pendingUnit
	for _, u := range units {
		lang, known := languages[u.AssistantID]
		lerr := langErrs[u.AssistantID]
		if !known && lerr == nil {
			lang, lerr = r.langs.AssistantLanguage(ctx, u.AssistantID)
			if lerr == nil && lang == "" {
				lerr = fmt.Errorf("assistant %s has no language", u.AssistantID)
			}
			if lerr != nil {
				r.logger.Error("language lookup failed", "assistant_id", u.AssistantID, "error", lerr)
				langErrs[u.AssistantID] = lerr
			} else {
				languages[u.AssistantID] = lang
			}
		}
		if lerr != nil {
			report.Failed++
			report.AddError(fmt.Sprintf("%s/%s: language: %v", u.AssistantID, u.CallID, lerr))
			r.metrics.ObserveUnit(JobExtract, metrics.OutcomeFailed, 0)
			continue
		}

		if r.layout.IsComplete(lang, u.AssistantID, u.CallID) {
			r.logger.Debug("transcript already processed, skipping", "assistant_id", u.AssistantID, "call_id", u.CallID)
			report.Skipped++
			r.metrics.ObserveUnit(JobExtract, metrics.OutcomeSkipped, 0)
			continue
		}
		todo = append(todo, pendingUnit{Unit: u, language: lang})
	}
	return todo
}

func (r *Runner) processUnit(ctx context.Context, u pendingUnit) (extract.Result, error) {
	turns, err := transcript.Load(u.Path)
	if err != nil {
		return extract.Result{}, err
	}
	return r.extractor.Process(ctx, extract.Job{
		AssistantID: u.AssistantID,
		CallID:      u.CallID,
		Language:    u.language,
		Turns:       turns,
	})
}

func (r *Runner) publish(subject string, ev any) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(subject, ev); err != nil {
		r.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}

// PublishRunCompleted emits the run summary. A nil publisher is a no-op.
func PublishRunCompleted(p Publisher, report *Report, logger *slog.Logger) {
	if p == nil {
		return
	}
	ev := hermes.RunCompleted{
		RunID:          report.RunID,
		Job:            report.Job,
		Discovered:     report.Discovered,
		Skipped:        report.Skipped,
		Processed:      report.Processed,
		Failed:         report.Failed,
		DecisionPoints: report.DecisionPoints,
		DurationMS:     report.Duration().Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}
	if err := p.Publish(hermes.SubjectRunCompleted, ev); err != nil {
		logger.Warn("publish failed", "subject", hermes.SubjectRunCompleted, "error", err)
	}
}
