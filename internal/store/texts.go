package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/pathminer/internal/graph"
)

var textTables = map[graph.TextKind]string{
	graph.KindPrompt:   "user_prompts",
	graph.KindAnswer:   "assistant_answers",
	graph.KindQuestion: "assistant_questions",
}

// Texts resolves ids of one kind to their texts in a single query.
func (s *Store) Texts(ctx context.Context, kind graph.TextKind, ids []string) (map[string]string, error) {
	table, ok := textTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown text kind %s", kind)
	}
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id, text FROM `+table+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query %s texts: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var text *string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan %s text: %w", kind, err)
		}
		if text != nil {
			out[id] = *text
		}
	}
	return out, rows.Err()
}
