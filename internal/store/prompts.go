package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/pathminer/internal/prompt"
)

func (s *Store) PromptsByIDs(ctx context.Context, ids []string) ([]prompt.Prompt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(text, ''), primary_id, COALESCE(attached_user_prompt_ids, '{}')
		FROM user_prompts
		WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var out []prompt.Prompt
	for rows.Next() {
		var p prompt.Prompt
		if err := rows.Scan(&p.ID, &p.Text, &p.PrimaryID, &p.AttachedPromptIDs); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
