// Package baseline records, for every decision point of a dataset, the branch
// the production matcher actually selected. The records form the baseline
// output set a new matcher is compared against.
package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/pathminer/internal/batch"
	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/graph"
	"github.com/MikeSquared-Agency/pathminer/internal/metrics"
	"github.com/MikeSquared-Agency/pathminer/internal/pool"
	"github.com/MikeSquared-Agency/pathminer/internal/transcript"
)

const JobName = "baseline"

type Config struct {
	DatasetDir     string
	TranscriptsDir string
	OutputDir      string
	ReportDir      string
	Workers        int
}

type Runner struct {
	cfg       Config
	graph     *graph.Reader
	texts     graph.TextSource
	out       dataset.Layout
	publisher batch.Publisher
	metrics   *metrics.Metrics
	tracker   *batch.Tracker
	logger    *slog.Logger
}

func NewRunner(cfg Config, g *graph.Reader, texts graph.TextSource, publisher batch.Publisher, m *metrics.Metrics, tracker *batch.Tracker, logger *slog.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		cfg:       cfg,
		graph:     g,
		texts:     texts,
		out:       dataset.Layout{Root: cfg.OutputDir},
		publisher: publisher,
		metrics:   m,
		tracker:   tracker,
		logger:    logger,
	}
}

// callUnit is every pending decision point of one call.
type callUnit struct {
	Language    string
	AssistantID string
	CallID      string
	Refs        []dataset.Ref
}

type callResult struct {
	written int
	missing int
}

// Run writes the missing baseline outputs, one call per unit of work.
func (r *Runner) Run(ctx context.Context) (*batch.Report, error) {
	report := batch.NewReport(JobName, r.cfg.ReportDir)
	defer r.metrics.RunStarted()()

	units, err := r.plan(report)
	if err != nil {
		return report, err
	}
	r.logger.Info("decision points collected",
		"run_id", report.RunID,
		"decision_points", report.Discovered,
		"skipped", report.Skipped,
		"calls", len(units),
	)

	r.tracker.Start(JobName, report.RunID, len(units))
	defer r.tracker.Finish()

	outcomes := pool.Map(ctx, r.cfg.Workers, units, func(ctx context.Context, u callUnit) (callResult, error) {
		start := time.Now()
		res, err := r.processCall(ctx, u)
		outcome := metrics.OutcomeProcessed
		if err != nil {
			outcome = metrics.OutcomeFailed
		}
		r.metrics.ObserveUnit(JobName, outcome, time.Since(start))
		r.metrics.FilesWritten(JobName, res.written)
		r.tracker.UnitDone(err != nil)
		return res, err
	})

	for _, o := range outcomes {
		u := units[o.Index]
		report.FilesWritten += o.Value.written
		if o.Err != nil {
			r.logger.Error("baseline failed",
				"assistant_id", u.AssistantID,
				"call_id", u.CallID,
				"error", o.Err,
			)
			report.Failed += len(u.Refs) - o.Value.written
			report.AddError(fmt.Sprintf("%s/%s: %v", u.AssistantID, u.CallID, o.Err))
			continue
		}
		report.Processed += o.Value.written
		report.Failed += o.Value.missing
	}

	report.Finish()
	if err := report.Save(); err != nil {
		r.logger.Warn("failed to save run report", "path", report.Path(), "error", err)
	}
	batch.PublishRunCompleted(r.publisher, report, r.logger)

	r.logger.Info("baseline complete",
		"run_id", report.RunID,
		"written", report.FilesWritten,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, ctx.Err()
}

// plan groups the decision points without a baseline output by call.
func (r *Runner) plan(report *batch.Report) ([]callUnit, error) {
	var units []callUnit
	err := dataset.WalkDecisionPoints(r.cfg.DatasetDir, func(ref dataset.Ref) error {
		report.Discovered++
		if dataset.FileExists(r.outputPath(ref)) {
			report.Skipped++
			return nil
		}
		n := len(units)
		if n == 0 || units[n-1].Language != ref.Language || units[n-1].AssistantID != ref.AssistantID || units[n-1].CallID != ref.CallID {
			units = append(units, callUnit{Language: ref.Language, AssistantID: ref.AssistantID, CallID: ref.CallID})
			n++
		}
		units[n-1].Refs = append(units[n-1].Refs, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk dataset: %w", err)
	}
	return units, nil
}

func (r *Runner) outputPath(ref dataset.Ref) string {
	return r.out.DecisionPointPath(ref.Language, ref.AssistantID, ref.CallID, ref.Seq)
}

type selection struct {
	ref      dataset.Ref
	branchID string
}

func (r *Runner) processCall(ctx context.Context, u callUnit) (callResult, error) {
	var res callResult
	logger := r.logger.With("assistant_id", u.AssistantID, "call_id", u.CallID)

	turns, err := transcript.Load(filepath.Join(r.cfg.TranscriptsDir, u.AssistantID, u.CallID+".json"))
	if err != nil {
		return res, err
	}

	var picks []selection
	for _, ref := range u.Refs {
		dp, err := dataset.ReadDecisionPoint(ref.Path)
		if err != nil {
			return res, err
		}
		branchID, ok := selectedBranch(dp, turns)
		if !ok {
			logger.Warn("no selected branch after decision point", "seq", ref.Seq, "user_text_idx", dp.UserTextIdx)
			res.missing++
			continue
		}
		picks = append(picks, selection{ref: ref, branchID: branchID})
	}
	if len(picks) == 0 {
		return res, nil
	}

	outputs, err := r.resolve(ctx, picks)
	if err != nil {
		return res, err
	}
	for _, p := range picks {
		out, ok := outputs[p.branchID]
		if !ok {
			logger.Warn("selected branch has no prompt or answer text", "seq", p.ref.Seq, "conv_path_id", p.branchID)
			res.missing++
			continue
		}
		if err := dataset.WriteJSON(r.outputPath(p.ref), out); err != nil {
			return res, err
		}
		res.written++
	}
	return res, nil
}

// selectedBranch returns the branch of the first turn after the decision
// point's user turn whose matching belongs to the decision point's sibling
// group. Only matching.conv_path_id is required of that turn.
func selectedBranch(dp dataset.DecisionPoint, turns []transcript.RawTurn) (string, bool) {
	if len(dp.Candidates.BranchIDs) == 0 {
		return "", false
	}
	parent, err := graph.ParentOf(dp.Candidates.BranchIDs[0])
	if err != nil {
		return "", false
	}
	prefix := parent + "_"
	for i := dp.UserTextIdx + 1; i < len(turns); i++ {
		id, ok := transcript.BranchIDOf(turns[i])
		if ok && strings.HasPrefix(id, prefix) {
			return id, true
		}
	}
	return "", false
}

// resolve loads the selected branches and their texts with one branch query
// and one query per text kind.
func (r *Runner) resolve(ctx context.Context, picks []selection) (map[string]dataset.BaselineOutput, error) {
	ids := make([]string, 0, len(picks))
	for _, p := range picks {
		ids = append(ids, p.branchID)
	}
	branches, err := r.graph.ByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	var promptIDs, answerIDs, questionIDs []string
	for _, b := range branches {
		promptIDs = append(promptIDs, b.PromptID)
		answerIDs = append(answerIDs, b.AnswerID)
		if b.FollowUpQuestionID != nil {
			questionIDs = append(questionIDs, *b.FollowUpQuestionID)
		}
	}
	prompts, err := r.lookup(ctx, graph.KindPrompt, promptIDs)
	if err != nil {
		return nil, err
	}
	answers, err := r.lookup(ctx, graph.KindAnswer, answerIDs)
	if err != nil {
		return nil, err
	}
	questions, err := r.lookup(ctx, graph.KindQuestion, questionIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]dataset.BaselineOutput, len(branches))
	for id, b := range branches {
		up, ok := prompts[b.PromptID]
		if !ok {
			continue
		}
		aa, ok := answers[b.AnswerID]
		if !ok {
			continue
		}
		var aq string
		if b.FollowUpQuestionID != nil {
			aq = questions[*b.FollowUpQuestionID]
		}
		out[id] = dataset.BaselineOutput{BranchID: id, Prompt: up, Answer: aa, FollowUp: aq}
	}
	return out, nil
}

func (r *Runner) lookup(ctx context.Context, kind graph.TextKind, ids []string) (map[string]string, error) {
	ids = graph.Distinct(ids)
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	texts, err := r.texts.Texts(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch %s texts: %w", kind, err)
	}
	return texts, nil
}
