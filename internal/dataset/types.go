// Package dataset owns the on-disk training dataset: decision point records,
// the per-call conversation marker, prompt-example records and baseline
// outputs.
package dataset

import (
	"errors"
	"fmt"
)

var ErrMisalignedCandidates = errors.New("candidate arrays are not aligned")

// CandidateSet holds the sibling branches available at one decision point as
// index-aligned arrays. FollowUps entries are nil when a branch has no
// resolvable follow-up question.
type CandidateSet struct {
	Prompts   []string  `json:"up"`
	Answers   []string  `json:"aa"`
	FollowUps []*string `json:"aq"`
	BranchIDs []string  `json:"conv_path_id"`
}

func NewCandidateSet(capacity int) *CandidateSet {
	return &CandidateSet{
		Prompts:   make([]string, 0, capacity),
		Answers:   make([]string, 0, capacity),
		FollowUps: make([]*string, 0, capacity),
		BranchIDs: make([]string, 0, capacity),
	}
}

// Add appends one candidate to all four arrays.
func (c *CandidateSet) Add(branchID, prompt, answer string, followUp *string) {
	c.Prompts = append(c.Prompts, prompt)
	c.Answers = append(c.Answers, answer)
	c.FollowUps = append(c.FollowUps, followUp)
	c.BranchIDs = append(c.BranchIDs, branchID)
}

func (c *CandidateSet) Len() int {
	return len(c.BranchIDs)
}

// Validate checks that the four arrays have the same length.
func (c *CandidateSet) Validate() error {
	n := len(c.BranchIDs)
	if len(c.Prompts) != n || len(c.Answers) != n || len(c.FollowUps) != n {
		return fmt.Errorf("%w: up=%d aa=%d aq=%d conv_path_id=%d",
			ErrMisalignedCandidates, len(c.Prompts), len(c.Answers), len(c.FollowUps), n)
	}
	return nil
}

// DecisionPoint is one training example: what the caller said and the
// branches that were available when the matcher picked one.
type DecisionPoint struct {
	AssistantID string       `json:"assistant_id"`
	CallID      string       `json:"call_id"`
	Language    string       `json:"language"`
	UserText    string       `json:"user_text"`
	UserTextIdx int          `json:"user_text_idx"`
	Candidates  CandidateSet `json:"candidates"`
}

// ConversationLine is one element of conversation.json.
type ConversationLine struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// PromptExamples lists the texts that trigger a branch. PrimaryPrompt is nil
// when the branch points at a secondary prompt.
type PromptExamples struct {
	BranchID        string   `json:"conv_path_id"`
	PrimaryPrompt   *string  `json:"primary_user_prompt"`
	AttachedPrompts []string `json:"attached_user_prompts"`
}

// BaselineOutput is the branch the production matcher selected for a decision
// point, with its texts. FollowUp is "" when the branch has none.
type BaselineOutput struct {
	BranchID string `json:"conv_path_id"`
	Prompt   string `json:"up"`
	Answer   string `json:"aa"`
	FollowUp string `json:"aq"`
}
