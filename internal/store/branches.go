package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/pathminer/internal/graph"
)

const branchColumns = `id, source_node_id, user_prompt_id, assistant_answer_id, target_node_id`

// BranchesByIDs fetches the conversational paths with the given ids. With
// depth2Only set, paths without a source node are filtered out in SQL.
func (s *Store) BranchesByIDs(ctx context.Context, ids []string, depth2Only bool) ([]graph.Branch, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + branchColumns + ` FROM conversational_paths WHERE id = ANY($1)`
	if depth2Only {
		q += ` AND source_node_id IS NOT NULL`
	}
	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("query branches: %w", err)
	}
	return collectBranches(rows)
}

// BranchesByParents fetches every conversational path leaving one of the
// given nodes, ordered by node then id.
func (s *Store) BranchesByParents(ctx context.Context, parentIDs []string) ([]graph.Branch, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+branchColumns+`
		FROM conversational_paths
		WHERE source_node_id = ANY($1)
		ORDER BY source_node_id, id`,
		parentIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query sibling branches: %w", err)
	}
	return collectBranches(rows)
}

func collectBranches(rows pgx.Rows) ([]graph.Branch, error) {
	defer rows.Close()
	var out []graph.Branch
	for rows.Next() {
		var b graph.Branch
		if err := rows.Scan(&b.ID, &b.ParentNodeID, &b.PromptID, &b.AnswerID, &b.FollowUpQuestionID); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return out, nil
}
