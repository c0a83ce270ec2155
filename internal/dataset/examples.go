package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/MikeSquared-Agency/pathminer/internal/graph"
	"github.com/MikeSquared-Agency/pathminer/internal/prompt"
)

// ExamplesWriter writes one PromptExamples record per branch id to
// {dir}/{branch_id}.json. Existing records are kept.
type ExamplesWriter struct {
	dir      string
	resolver *prompt.Resolver
	logger   *slog.Logger
}

func NewExamplesWriter(dir string, resolver *prompt.Resolver, logger *slog.Logger) *ExamplesWriter {
	return &ExamplesWriter{dir: dir, resolver: resolver, logger: logger}
}

func (w *ExamplesWriter) Path(branchID string) string {
	return filepath.Join(w.dir, branchID+".json")
}

// Write resolves the prompts behind branchIDs in bulk and writes the missing
// records. It returns how many files were written.
func (w *ExamplesWriter) Write(ctx context.Context, branchIDs []string) (int, error) {
	type pending struct {
		branchID string
		promptID string
	}

	var todo []pending
	var promptIDs []string
	queued := make(map[string]struct{})
	for _, id := range branchIDs {
		if _, ok := queued[id]; ok {
			continue
		}
		if strings.ContainsAny(id, `/\`) {
			w.logger.Warn("unsafe branch id, skipping", "conv_path_id", id)
			continue
		}
		if FileExists(w.Path(id)) {
			continue
		}
		promptID, err := graph.PromptIDOf(id)
		if err != nil {
			w.logger.Warn("skipping branch", "conv_path_id", id, "error", err)
			continue
		}
		queued[id] = struct{}{}
		todo = append(todo, pending{branchID: id, promptID: promptID})
		promptIDs = append(promptIDs, promptID)
	}
	if len(todo) == 0 {
		return 0, nil
	}

	resolved, err := w.resolver.ResolveMany(ctx, promptIDs)
	if err != nil {
		return 0, fmt.Errorf("resolve prompts: %w", err)
	}

	written := 0
	for _, p := range todo {
		res, ok := resolved[p.promptID]
		if !ok {
			w.logger.Warn("prompt not found, skipping branch", "conv_path_id", p.branchID, "prompt_id", p.promptID)
			continue
		}
		rec := PromptExamples{
			BranchID:        p.branchID,
			PrimaryPrompt:   res.Primary,
			AttachedPrompts: res.Aliases,
		}
		if rec.AttachedPrompts == nil {
			rec.AttachedPrompts = []string{}
		}
		if err := WriteJSON(w.Path(p.branchID), rec); err != nil {
			return written, fmt.Errorf("write examples for %s: %w", p.branchID, err)
		}
		w.logger.Debug("saved prompt examples", "conv_path_id", p.branchID)
		written++
	}
	return written, nil
}
