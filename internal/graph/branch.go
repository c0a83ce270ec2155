// Package graph reads the branch graph of an assistant's dialogue: branches
// (conversational paths) and the sibling groups that hang off a parent node.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedBranchID is returned for branch ids that do not have the
// {parent}_{prompt}_{answer}_{question} shape.
var ErrMalformedBranchID = errors.New("malformed branch id")

// Branch is one edge of the dialogue graph.
type Branch struct {
	ID string
	// ParentNodeID is nil for root branches, which have no siblings.
	ParentNodeID       *string
	PromptID           string
	AnswerID           string
	FollowUpQuestionID *string
}

// Depth is 1 for root branches and 2 for branches with a parent node.
func (b Branch) Depth() int {
	if b.ParentNodeID == nil {
		return 1
	}
	return 2
}

// BranchKey holds the components of a depth-2 branch id.
type BranchKey struct {
	ParentNodeID string
	PromptID     string
	AnswerID     string
	QuestionID   string
}

// ParseBranchID splits a depth-2 branch id. The question segment may be empty
// or missing entirely, so both n_p_a_q and n_p_a are accepted.
func ParseBranchID(id string) (BranchKey, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 && len(parts) != 4 {
		return BranchKey{}, fmt.Errorf("%w: %q", ErrMalformedBranchID, id)
	}
	for _, p := range parts[:3] {
		if p == "" {
			return BranchKey{}, fmt.Errorf("%w: %q", ErrMalformedBranchID, id)
		}
	}
	k := BranchKey{
		ParentNodeID: parts[0],
		PromptID:     parts[1],
		AnswerID:     parts[2],
	}
	if len(parts) == 4 {
		k.QuestionID = parts[3]
	}
	return k, nil
}

// PromptIDOf returns the prompt component of a depth-2 branch id.
func PromptIDOf(id string) (string, error) {
	k, err := ParseBranchID(id)
	if err != nil {
		return "", err
	}
	return k.PromptID, nil
}

// ParentOf returns the parent node component of a depth-2 branch id.
func ParentOf(id string) (string, error) {
	k, err := ParseBranchID(id)
	if err != nil {
		return "", err
	}
	return k.ParentNodeID, nil
}

// TextKind names one of the text tables a branch points into.
type TextKind int

const (
	KindPrompt TextKind = iota
	KindAnswer
	KindQuestion
)

func (k TextKind) String() string {
	switch k {
	case KindPrompt:
		return "prompt"
	case KindAnswer:
		return "answer"
	case KindQuestion:
		return "question"
	default:
		return fmt.Sprintf("TextKind(%d)", int(k))
	}
}
