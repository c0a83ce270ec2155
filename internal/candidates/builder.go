// Package candidates builds the candidate set for a decision point from the
// siblings of the selected branch.
package candidates

import (
	"context"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/graph"
)

// Sentinel marks authoring placeholder prompts. In stored data it appears
// wrapped in § delimiters, e.g. "§NO_NEED_EXAMPLE§".
const Sentinel = "NO_NEED"

// ContainsSentinel reports whether a prompt text is a placeholder.
func ContainsSentinel(text string) bool {
	return strings.Contains(text, Sentinel)
}

type Builder struct {
	texts graph.TextSource
}

func NewBuilder(texts graph.TextSource) *Builder {
	return &Builder{texts: texts}
}

// Build assembles the candidate set of the sibling group under parentID.
// siblings must come from graph.Reader.SiblingsByParent. It returns nil when
// any sibling prompt is a placeholder. Siblings whose prompt or answer text
// is missing are dropped; a missing follow-up question becomes a nil entry.
func (b *Builder) Build(ctx context.Context, parentID string, siblings map[string][]graph.Branch) (*dataset.CandidateSet, error) {
	group := siblings[parentID]

	var promptIDs, answerIDs, questionIDs []string
	for _, br := range group {
		promptIDs = append(promptIDs, br.PromptID)
		answerIDs = append(answerIDs, br.AnswerID)
		if br.FollowUpQuestionID != nil {
			questionIDs = append(questionIDs, *br.FollowUpQuestionID)
		}
	}

	prompts, err := b.lookup(ctx, graph.KindPrompt, promptIDs)
	if err != nil {
		return nil, err
	}
	for _, text := range prompts {
		if ContainsSentinel(text) {
			return nil, nil
		}
	}

	answers, err := b.lookup(ctx, graph.KindAnswer, answerIDs)
	if err != nil {
		return nil, err
	}
	questions, err := b.lookup(ctx, graph.KindQuestion, questionIDs)
	if err != nil {
		return nil, err
	}

	cs := dataset.NewCandidateSet(len(group))
	for _, br := range group {
		if br.Depth() != 2 {
			continue
		}
		prompt, ok := prompts[br.PromptID]
		if !ok {
			continue
		}
		answer, ok := answers[br.AnswerID]
		if !ok {
			continue
		}
		var followUp *string
		if br.FollowUpQuestionID != nil {
			if q, ok := questions[*br.FollowUpQuestionID]; ok {
				followUp = &q
			}
		}
		cs.Add(br.ID, prompt, answer, followUp)
	}
	return cs, nil
}

func (b *Builder) lookup(ctx context.Context, kind graph.TextKind, ids []string) (map[string]string, error) {
	ids = graph.Distinct(ids)
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	texts, err := b.texts.Texts(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch %s texts: %w", kind, err)
	}
	return texts, nil
}
