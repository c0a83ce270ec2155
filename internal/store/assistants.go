package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrAssistantNotFound = errors.New("assistant not found")

// AssistantLanguage returns the language code configured for an assistant.
func (s *Store) AssistantLanguage(ctx context.Context, assistantID string) (string, error) {
	var lang *string
	err := s.pool.QueryRow(ctx, `SELECT language FROM assistants WHERE id = $1`, assistantID).Scan(&lang)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrAssistantNotFound, assistantID)
	}
	if err != nil {
		return "", fmt.Errorf("query assistant language: %w", err)
	}
	if lang == nil {
		return "", nil
	}
	return *lang, nil
}

// ProductionAssistants lists the ids of assistants whose settings mark them
// as the production version.
func (s *Store) ProductionAssistants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM assistants
		WHERE settings->>'version' = 'prod'
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query production assistants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan assistant id: %w", err)
	}
	return ids, nil
}
