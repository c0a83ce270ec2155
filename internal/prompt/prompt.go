// Package prompt resolves user prompts through their primary/alias links.
//
// A primary prompt owns a list of attached (alias) prompt ids. A secondary
// prompt points back at its primary through PrimaryID. Every consumer that
// needs "the texts a caller could have said to trigger this prompt" goes
// through Resolver so the relationship is interpreted in one place.
package prompt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/pathminer/internal/textnorm"
)

type Prompt struct {
	ID                string
	Text              string
	PrimaryID         *string
	AttachedPromptIDs []string
}

func (p Prompt) IsPrimary() bool {
	return p.PrimaryID == nil
}

// Source bulk-fetches prompts. Unknown ids are absent from the result.
type Source interface {
	PromptsByIDs(ctx context.Context, ids []string) ([]Prompt, error)
}

// Resolution is a prompt together with the texts it is matched by.
type Resolution struct {
	Prompt Prompt
	// Primary is the prompt's own text when it is a primary prompt, nil for
	// a secondary one.
	Primary *string
	// Aliases holds the texts of the attached prompts of a primary prompt, or
	// the prompt's own text for a secondary one.
	Aliases []string
}

type Resolver struct {
	src    Source
	logger *slog.Logger
}

func NewResolver(src Source, logger *slog.Logger) *Resolver {
	return &Resolver{src: src, logger: logger}
}

// ResolveMany resolves ids with at most two bulk queries: one for the prompts
// and one for the aliases of the primary prompts among them. Unknown ids are
// absent from the result.
func (r *Resolver) ResolveMany(ctx context.Context, ids []string) (map[string]Resolution, error) {
	ids = distinct(ids)
	if len(ids) == 0 {
		return map[string]Resolution{}, nil
	}

	prompts, err := r.src.PromptsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch prompts: %w", err)
	}

	var aliasIDs []string
	for _, p := range prompts {
		if p.IsPrimary() {
			aliasIDs = append(aliasIDs, p.AttachedPromptIDs...)
		}
	}
	aliasIDs = distinct(aliasIDs)

	aliasText := make(map[string]string, len(aliasIDs))
	if len(aliasIDs) > 0 {
		aliases, err := r.src.PromptsByIDs(ctx, aliasIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch attached prompts: %w", err)
		}
		for _, a := range aliases {
			aliasText[a.ID] = a.Text
		}
	}

	out := make(map[string]Resolution, len(prompts))
	for _, p := range prompts {
		res := Resolution{Prompt: p}
		if p.IsPrimary() {
			text := p.Text
			res.Primary = &text
			for _, id := range p.AttachedPromptIDs {
				t, ok := aliasText[id]
				if !ok {
					r.logger.Debug("attached prompt not found", "prompt_id", p.ID, "attached_id", id)
					continue
				}
				res.Aliases = append(res.Aliases, t)
			}
		} else {
			res.Aliases = []string{p.Text}
		}
		out[p.ID] = res
	}
	return out, nil
}

// Matches reports whether userText equals one of the alias texts after
// normalization.
func (res Resolution) Matches(userText string) bool {
	want := textnorm.Normalize(userText)
	for _, alias := range res.Aliases {
		if textnorm.Normalize(alias) == want {
			return true
		}
	}
	return false
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
