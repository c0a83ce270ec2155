package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/pathminer/internal/transcript"
)

// CompletedCalls returns an assistant's completed calls, newest first. A
// limit of zero or less returns all of them.
func (s *Store) CompletedCalls(ctx context.Context, assistantID string, limit int) ([]transcript.Call, error) {
	q := `
		SELECT id, conversation_transcript
		FROM calls
		WHERE assistant_id = $1 AND status = 'completed'
		ORDER BY dt_started DESC`
	args := []any{assistantID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var out []transcript.Call
	for rows.Next() {
		var c transcript.Call
		var raw []byte
		if err := rows.Scan(&c.ID, &raw); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.Transcript = raw
		out = append(out, c)
	}
	return out, rows.Err()
}
