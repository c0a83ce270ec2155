package graph

import (
	"context"
	"fmt"
	"sort"
)

// Source is the bulk query surface of the branch store.
type Source interface {
	// BranchesByIDs returns the branches with the given ids. With depth2Only
	// set, root branches are excluded by the query itself.
	BranchesByIDs(ctx context.Context, ids []string, depth2Only bool) ([]Branch, error)
	// BranchesByParents returns every branch whose parent is one of parentIDs.
	BranchesByParents(ctx context.Context, parentIDs []string) ([]Branch, error)
}

// TextSource resolves prompt, answer and follow-up question ids to their
// texts. Ids that do not exist are absent from the result.
type TextSource interface {
	Texts(ctx context.Context, kind TextKind, ids []string) (map[string]string, error)
}

type Reader struct {
	src Source
}

func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

// Depth2ByID fetches the given branches in one query and keeps those with a
// parent node.
func (r *Reader) Depth2ByID(ctx context.Context, ids []string) (map[string]Branch, error) {
	ids = Distinct(ids)
	if len(ids) == 0 {
		return map[string]Branch{}, nil
	}

	branches, err := r.src.BranchesByIDs(ctx, ids, true)
	if err != nil {
		return nil, fmt.Errorf("fetch branches: %w", err)
	}

	out := make(map[string]Branch, len(branches))
	for _, b := range branches {
		if b.Depth() != 2 {
			continue
		}
		out[b.ID] = b
	}
	return out, nil
}

// ByID fetches branches of any depth in one query.
func (r *Reader) ByID(ctx context.Context, ids []string) (map[string]Branch, error) {
	ids = Distinct(ids)
	if len(ids) == 0 {
		return map[string]Branch{}, nil
	}

	branches, err := r.src.BranchesByIDs(ctx, ids, false)
	if err != nil {
		return nil, fmt.Errorf("fetch branches: %w", err)
	}

	out := make(map[string]Branch, len(branches))
	for _, b := range branches {
		out[b.ID] = b
	}
	return out, nil
}

// SiblingsByParent fetches, in one query, every branch that shares a parent
// with one of branches, grouped by parent id. The input branches are part of
// their own groups.
func (r *Reader) SiblingsByParent(ctx context.Context, branches []Branch) (map[string][]Branch, error) {
	var parents []string
	for _, b := range branches {
		if b.ParentNodeID != nil {
			parents = append(parents, *b.ParentNodeID)
		}
	}
	parents = Distinct(parents)
	if len(parents) == 0 {
		return map[string][]Branch{}, nil
	}

	siblings, err := r.src.BranchesByParents(ctx, parents)
	if err != nil {
		return nil, fmt.Errorf("fetch siblings: %w", err)
	}

	out := make(map[string][]Branch, len(parents))
	for _, b := range siblings {
		if b.ParentNodeID == nil {
			continue
		}
		out[*b.ParentNodeID] = append(out[*b.ParentNodeID], b)
	}
	return out, nil
}

// Distinct returns the non-empty values of ids, deduplicated and sorted.
func Distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
