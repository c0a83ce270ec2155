// Package extract turns one call transcript into decision points.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MikeSquared-Agency/pathminer/internal/candidates"
	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/graph"
	"github.com/MikeSquared-Agency/pathminer/internal/prompt"
	"github.com/MikeSquared-Agency/pathminer/internal/transcript"
)

// Job is one transcript to process.
type Job struct {
	AssistantID string
	CallID      string
	Language    string
	Turns       []transcript.RawTurn
}

// SkipCounts tallies why matched turns did not become decision points.
type SkipCounts struct {
	NotMatched int `json:"not_matched"`
	NotDepth2  int `json:"not_depth2"`
	Seen       int `json:"seen"`
	NoUserTurn int `json:"no_user_turn"`
	ExactMatch int `json:"exact_match"`
	Sentinel   int `json:"sentinel"`
	Empty      int `json:"empty"`
}

func (s *SkipCounts) Add(o SkipCounts) {
	s.NotMatched += o.NotMatched
	s.NotDepth2 += o.NotDepth2
	s.Seen += o.Seen
	s.NoUserTurn += o.NoUserTurn
	s.ExactMatch += o.ExactMatch
	s.Sentinel += o.Sentinel
	s.Empty += o.Empty
}

type Result struct {
	DecisionPoints int
	// BranchIDs holds the candidate branch ids of every emitted decision point.
	BranchIDs []string
	Skipped   SkipCounts
}

type Extractor struct {
	graph   *graph.Reader
	builder *candidates.Builder
	prompts *prompt.Resolver
	writer  *dataset.Writer
	logger  *slog.Logger
}

func New(g *graph.Reader, b *candidates.Builder, p *prompt.Resolver, w *dataset.Writer, logger *slog.Logger) *Extractor {
	return &Extractor{graph: g, builder: b, prompts: p, writer: w, logger: logger}
}

// scan holds the state of one pass over a transcript. Nothing in it outlives
// a single Process call.
type scan struct {
	job      Job
	logger   *slog.Logger
	session  *dataset.Session
	builder  *candidates.Builder
	matched  map[int]transcript.Turn
	depth2   map[string]graph.Branch
	siblings map[string][]graph.Branch
	exact    map[string]prompt.Resolution

	lastUserIdx  int
	seen         map[string]struct{}
	seq          int
	conversation []dataset.ConversationLine
	result       Result
}

// Process scans job and writes its decision points plus conversation.json.
// Nothing is left on disk when the transcript yields no decision point or
// when an error occurs.
func (e *Extractor) Process(ctx context.Context, job Job) (Result, error) {
	logger := e.logger.With("assistant_id", job.AssistantID, "call_id", job.CallID, "language", job.Language)

	matched, idx := transcript.FilterMatched(job.Turns)
	matchedAt := make(map[int]transcript.Turn, len(matched))
	ids := make([]string, 0, len(matched))
	for i, t := range matched {
		matchedAt[idx[i]] = t
		ids = append(ids, t.Matching.BranchID)
	}

	depth2, err := e.graph.Depth2ByID(ctx, ids)
	if err != nil {
		return Result{}, err
	}
	siblings, err := e.graph.SiblingsByParent(ctx, sortedBranches(depth2))
	if err != nil {
		return Result{}, err
	}
	exact, err := e.resolveExactCandidates(ctx, matched, depth2)
	if err != nil {
		return Result{}, err
	}

	session, err := e.writer.Begin(job.Language, job.AssistantID, job.CallID)
	if err != nil {
		return Result{}, fmt.Errorf("begin session: %w", err)
	}

	sc := &scan{
		job:         job,
		logger:      logger,
		session:     session,
		builder:     e.builder,
		matched:     matchedAt,
		depth2:      depth2,
		siblings:    siblings,
		exact:       exact,
		lastUserIdx: -1,
		seen:        make(map[string]struct{}),
	}
	for i, raw := range job.Turns {
		err := ctx.Err()
		if err == nil {
			err = sc.step(ctx, i, raw)
		}
		if err != nil {
			if derr := session.Discard(); derr != nil {
				logger.Warn("discard failed", "error", derr)
			}
			return sc.result, err
		}
	}

	if sc.seq == 0 {
		if err := session.Discard(); err != nil {
			return sc.result, err
		}
		logger.Debug("no decision points in transcript", "turns", len(job.Turns))
		return sc.result, nil
	}
	if err := session.Commit(sc.conversation); err != nil {
		_ = session.Discard()
		return sc.result, fmt.Errorf("commit %s/%s: %w", job.AssistantID, job.CallID, err)
	}

	logger.Info("processed call transcript", "decision_points", sc.seq, "turns", len(job.Turns))
	return sc.result, nil
}

func (sc *scan) step(ctx context.Context, i int, raw transcript.RawTurn) error {
	role := transcript.RoleOf(raw)
	sc.conversation = append(sc.conversation, dataset.ConversationLine{Role: string(role), Text: transcript.TextOf(raw)})

	if role.IsSpeaker() {
		sc.lastUserIdx = i
		return nil
	}

	turn, ok := sc.matched[i]
	if !ok {
		sc.result.Skipped.NotMatched++
		return nil
	}
	branchID := turn.Matching.BranchID
	branch, ok := sc.depth2[branchID]
	if !ok {
		sc.result.Skipped.NotDepth2++
		return nil
	}
	if _, dup := sc.seen[branchID]; dup {
		sc.result.Skipped.Seen++
		return nil
	}
	if sc.lastUserIdx < 0 {
		sc.result.Skipped.NoUserTurn++
		sc.logger.Debug("matched turn without preceding caller turn", "turn_idx", i, "conv_path_id", branchID)
		return nil
	}

	userText := transcript.UserText(sc.job.Turns[sc.lastUserIdx])

	if turn.Matching.Distance == 0 {
		if res, ok := sc.exact[branch.PromptID]; ok && res.Matches(userText) {
			sc.result.Skipped.ExactMatch++
			sc.logger.Debug("skipping exact match", "conv_path_id", branchID, "user_text", userText)
			return nil
		}
	}

	cs, err := sc.builder.Build(ctx, *branch.ParentNodeID, sc.siblings)
	if err != nil {
		return fmt.Errorf("build candidates for %s: %w", branchID, err)
	}
	if cs == nil {
		sc.result.Skipped.Sentinel++
		sc.logger.Debug("sentinel placeholder among candidates", "conv_path_id", branchID)
		return nil
	}
	if cs.Len() == 0 {
		sc.result.Skipped.Empty++
		sc.logger.Debug("no resolvable candidates", "conv_path_id", branchID)
		return nil
	}

	dp := dataset.DecisionPoint{
		AssistantID: sc.job.AssistantID,
		CallID:      sc.job.CallID,
		Language:    sc.job.Language,
		UserText:    userText,
		UserTextIdx: sc.lastUserIdx,
		Candidates:  *cs,
	}
	if err := sc.session.WriteDecisionPoint(sc.seq, dp); err != nil {
		return err
	}

	sc.seen[branchID] = struct{}{}
	sc.seq++
	sc.result.DecisionPoints++
	sc.result.BranchIDs = append(sc.result.BranchIDs, cs.BranchIDs...)
	return nil
}

// resolveExactCandidates resolves, in bulk, the prompts of depth-2 branches
// that were matched with distance 0. Only those turns are subject to the
// exact-match filter.
func (e *Extractor) resolveExactCandidates(ctx context.Context, matched []transcript.Turn, depth2 map[string]graph.Branch) (map[string]prompt.Resolution, error) {
	var promptIDs []string
	for _, t := range matched {
		if t.Matching.Distance != 0 {
			continue
		}
		if b, ok := depth2[t.Matching.BranchID]; ok {
			promptIDs = append(promptIDs, b.PromptID)
		}
	}
	if len(promptIDs) == 0 {
		return map[string]prompt.Resolution{}, nil
	}
	res, err := e.prompts.ResolveMany(ctx, promptIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve exact-match prompts: %w", err)
	}
	return res, nil
}

func sortedBranches(m map[string]graph.Branch) []graph.Branch {
	out := make([]graph.Branch, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
