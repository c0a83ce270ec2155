// Package memstore is an in-memory stand-in for the Postgres store. It
// implements the same query surface and counts round trips, which lets tests
// check that callers batch their lookups.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/MikeSquared-Agency/pathminer/internal/graph"
	"github.com/MikeSquared-Agency/pathminer/internal/prompt"
	"github.com/MikeSquared-Agency/pathminer/internal/transcript"
)

type Store struct {
	mu         sync.Mutex
	branches   []graph.Branch
	prompts    map[string]prompt.Prompt
	answers    map[string]string
	questions  map[string]string
	languages  map[string]string
	production []string
	calls      map[string][]transcript.Call
	queries    map[string]int

	// Err, when set, is returned by every query.
	Err error
}

func New() *Store {
	return &Store{
		prompts:   make(map[string]prompt.Prompt),
		answers:   make(map[string]string),
		questions: make(map[string]string),
		languages: make(map[string]string),
		calls:     make(map[string][]transcript.Call),
		queries:   make(map[string]int),
	}
}

// AddBranch registers a branch. parent and question may be empty.
func (s *Store) AddBranch(id, parent, promptID, answerID, question string) graph.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := graph.Branch{ID: id, PromptID: promptID, AnswerID: answerID}
	if parent != "" {
		b.ParentNodeID = &parent
	}
	if question != "" {
		b.FollowUpQuestionID = &question
	}
	s.branches = append(s.branches, b)
	return b
}

// AddSibling registers a depth-2 branch whose id is derived from its parts.
func (s *Store) AddSibling(parent, promptID, answerID, question string) graph.Branch {
	id := fmt.Sprintf("%s_%s_%s_%s", parent, promptID, answerID, question)
	return s.AddBranch(id, parent, promptID, answerID, question)
}

func (s *Store) AddPrompt(p prompt.Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[p.ID] = p
}

// AddPrimaryPrompt registers a primary prompt and its aliases.
func (s *Store) AddPrimaryPrompt(id, text string, aliases map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := prompt.Prompt{ID: id, Text: text}
	ids := make([]string, 0, len(aliases))
	for aid := range aliases {
		ids = append(ids, aid)
	}
	sort.Strings(ids)
	for _, aid := range ids {
		primary := id
		s.prompts[aid] = prompt.Prompt{ID: aid, Text: aliases[aid], PrimaryID: &primary}
		p.AttachedPromptIDs = append(p.AttachedPromptIDs, aid)
	}
	s.prompts[id] = p
}

func (s *Store) AddAnswer(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[id] = text
}

func (s *Store) AddQuestion(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[id] = text
}

func (s *Store) SetLanguage(assistantID, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.languages[assistantID] = language
}

// AddCall registers a completed call for a production assistant.
func (s *Store) AddCall(assistantID string, call transcript.Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[assistantID]; !ok {
		s.production = append(s.production, assistantID)
	}
	s.calls[assistantID] = append(s.calls[assistantID], call)
}

// Queries returns how many times the named method was called.
func (s *Store) Queries(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[method]
}

func (s *Store) ResetQueries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = make(map[string]int)
}

func (s *Store) record(method string) error {
	s.queries[method]++
	return s.Err
}

func (s *Store) BranchesByIDs(_ context.Context, ids []string, depth2Only bool) ([]graph.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("BranchesByIDs"); err != nil {
		return nil, err
	}
	want := toSet(ids)
	var out []graph.Branch
	for _, b := range s.branches {
		if _, ok := want[b.ID]; !ok {
			continue
		}
		if depth2Only && b.ParentNodeID == nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) BranchesByParents(_ context.Context, parentIDs []string) ([]graph.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("BranchesByParents"); err != nil {
		return nil, err
	}
	want := toSet(parentIDs)
	var out []graph.Branch
	for _, b := range s.branches {
		if b.ParentNodeID == nil {
			continue
		}
		if _, ok := want[*b.ParentNodeID]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) Texts(_ context.Context, kind graph.TextKind, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Texts:" + kind.String()); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, id := range ids {
		switch kind {
		case graph.KindPrompt:
			if p, ok := s.prompts[id]; ok {
				out[id] = p.Text
			}
		case graph.KindAnswer:
			if t, ok := s.answers[id]; ok {
				out[id] = t
			}
		case graph.KindQuestion:
			if t, ok := s.questions[id]; ok {
				out[id] = t
			}
		}
	}
	return out, nil
}

func (s *Store) PromptsByIDs(_ context.Context, ids []string) ([]prompt.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("PromptsByIDs"); err != nil {
		return nil, err
	}
	var out []prompt.Prompt
	for _, id := range ids {
		if p, ok := s.prompts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) AssistantLanguage(_ context.Context, assistantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("AssistantLanguage"); err != nil {
		return "", err
	}
	lang, ok := s.languages[assistantID]
	if !ok {
		return "", fmt.Errorf("assistant %s not found", assistantID)
	}
	return lang, nil
}

func (s *Store) ProductionAssistants(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ProductionAssistants"); err != nil {
		return nil, err
	}
	return append([]string(nil), s.production...), nil
}

func (s *Store) CompletedCalls(_ context.Context, assistantID string, limit int) ([]transcript.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CompletedCalls"); err != nil {
		return nil, err
	}
	calls := s.calls[assistantID]
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}
	return append([]transcript.Call(nil), calls...), nil
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
