package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/pathminer/internal/candidates"
	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/graph"
	"github.com/MikeSquared-Agency/pathminer/internal/memstore"
	"github.com/MikeSquared-Agency/pathminer/internal/prompt"
	"github.com/MikeSquared-Agency/pathminer/internal/transcript"
)

const (
	branchA = "n1_p1_a1_q1"
	branchB = "n1_p2_a2_"
	branchC = "n2_p5_a5_"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedGraph(st *memstore.Store) {
	st.AddBranch("r1", "", "p1", "a1", "")
	st.AddSibling("n1", "p1", "a1", "q1")
	st.AddSibling("n1", "p2", "a2", "")
	st.AddSibling("n1", "p3", "a3", "")
	st.AddSibling("n1", "p4", "a4", "")
	st.AddSibling("n2", "p5", "a5", "")
	st.AddSibling("n2", "p6", "a6", "")

	st.AddPrimaryPrompt("p1", "Device issue", map[string]string{"p1x": "Hi, I have a problem"})
	for id, text := range map[string]string{
		"p2": "Billing question", "p3": "Cancel", "p4": "Something else",
		"p5": "Yes", "p6": "No",
	} {
		st.AddPrompt(prompt.Prompt{ID: id, Text: text})
	}
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
		st.AddAnswer(id, "answer "+id)
	}
	st.AddQuestion("q1", "Which device?")
}

func newExtractor(t *testing.T, st *memstore.Store) (*Extractor, dataset.Layout) {
	t.Helper()
	logger := discardLogger()
	w := dataset.NewWriter(t.TempDir())
	ext := New(graph.NewReader(st), candidates.NewBuilder(st), prompt.NewResolver(st, logger), w, logger)
	return ext, w.Layout()
}

func speaker(text string) map[string]any {
	return map[string]any{"role": "SPEAKER", "text": text}
}

func assistant(text string) map[string]any {
	return map[string]any{"role": "ASSISTANT", "text": text}
}

func matched(branchID string, distance float64) map[string]any {
	return map[string]any{
		"role": "ASSISTANT",
		"text": "reply",
		"matching": map[string]any{
			"conv_path_id": branchID,
			"distance":     distance,
		},
	}
}

func job(t *testing.T, elems ...any) Job {
	t.Helper()
	data, err := json.Marshal(elems)
	require.NoError(t, err)
	turns, err := transcript.Decode(data)
	require.NoError(t, err)
	return Job{AssistantID: "asst", CallID: "call", Language: "en", Turns: turns}
}

func readConversation(t *testing.T, layout dataset.Layout) []dataset.ConversationLine {
	t.Helper()
	data, err := os.ReadFile(layout.MarkerPath("en", "asst", "call"))
	require.NoError(t, err)
	var lines []dataset.ConversationLine
	require.NoError(t, json.Unmarshal(data, &lines))
	return lines
}

func TestProcess_ScenarioA(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	j := job(t,
		assistant("Hello, how can I help?"),
		speaker("Hi, I have a problem"),
		matched(branchA, 0.31),
		speaker("It's my phone"),
	)
	res, err := ext.Process(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DecisionPoints)

	dp, err := dataset.ReadDecisionPoint(layout.DecisionPointPath("en", "asst", "call", 0))
	require.NoError(t, err)
	assert.Equal(t, "Hi, I have a problem", dp.UserText)
	assert.Equal(t, 1, dp.UserTextIdx)
	assert.Equal(t, "asst", dp.AssistantID)
	assert.Equal(t, "call", dp.CallID)
	assert.Equal(t, "en", dp.Language)
	assert.Equal(t, 4, dp.Candidates.Len())
	assert.Len(t, dp.Candidates.Prompts, 4)
	assert.Len(t, dp.Candidates.Answers, 4)
	assert.Len(t, dp.Candidates.FollowUps, 4)
	assert.NotContains(t, dp.Candidates.BranchIDs, "r1")

	entries, err := os.ReadDir(layout.CallDir("en", "asst", "call"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one decision point and conversation.json")

	conv := readConversation(t, layout)
	require.Len(t, conv, 4)
	assert.Equal(t, dataset.ConversationLine{Role: "SPEAKER", Text: "Hi, I have a problem"}, conv[1])
}

func TestProcess_ScenarioB(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	st.AddPrompt(prompt.Prompt{ID: "p4", Text: "§NO_NEED_FOO§"})
	ext, layout := newExtractor(t, st)

	j := job(t,
		assistant("Hello"),
		speaker("Hi, I have a problem"),
		matched(branchA, 0.31),
		speaker("and billing too"),
		matched(branchB, 0.2),
	)
	res, err := ext.Process(context.Background(), j)
	require.NoError(t, err)
	assert.Zero(t, res.DecisionPoints)
	assert.Equal(t, 2, res.Skipped.Sentinel)

	_, err = os.Stat(layout.CallDir("en", "asst", "call"))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, layout.IsComplete("en", "asst", "call"))
}

func TestProcess_ScenarioC(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	j := job(t,
		assistant("Hello"),
		speaker("my device"),
		matched(branchA, 0.4),
		matched(branchA, 0.4),
		speaker("yes"),
		matched(branchC, 0.1),
	)
	res, err := ext.Process(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DecisionPoints)
	assert.Equal(t, 1, res.Skipped.Seen)

	first, err := dataset.ReadDecisionPoint(layout.DecisionPointPath("en", "asst", "call", 0))
	require.NoError(t, err)
	assert.Equal(t, branchA, first.Candidates.BranchIDs[0])
	assert.Equal(t, 1, first.UserTextIdx)

	second, err := dataset.ReadDecisionPoint(layout.DecisionPointPath("en", "asst", "call", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{branchC, "n2_p6_a6_"}, second.Candidates.BranchIDs)
	assert.Equal(t, "yes", second.UserText)
	assert.Equal(t, 4, second.UserTextIdx)
}

func TestProcess_DepthFiltering(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	j := job(t,
		speaker("hello"),
		matched("r1", 0.5),
		matched("unknown_x_y_z", 0.5),
	)
	res, err := ext.Process(context.Background(), j)
	require.NoError(t, err)
	assert.Zero(t, res.DecisionPoints)
	assert.Equal(t, 2, res.Skipped.NotDepth2)
	assert.False(t, layout.IsComplete("en", "asst", "call"))
}

func TestProcess_IndexFidelity(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	offline := map[string]any{
		"role":     "SPEAKER",
		"text":     "live transcription",
		"matching": map[string]any{"original": "offline transcription"},
	}
	j := job(t,
		"garbage",
		nil,
		map[string]any{"role": 7, "text": "bad role"},
		speaker("first"),
		offline,
		map[string]any{"role": "ASSISTANT", "matching": map[string]any{"conv_path_id": branchB}},
		assistant("thinking"),
		matched(branchA, 0.2),
	)
	res, err := ext.Process(context.Background(), j)
	require.NoError(t, err)
	require.Equal(t, 1, res.DecisionPoints)

	dp, err := dataset.ReadDecisionPoint(layout.DecisionPointPath("en", "asst", "call", 0))
	require.NoError(t, err)
	assert.Equal(t, 4, dp.UserTextIdx)
	assert.Equal(t, "offline transcription", dp.UserText)

	conv := readConversation(t, layout)
	assert.Len(t, conv, 8, "every element keeps its slot")
	assert.Equal(t, dataset.ConversationLine{}, conv[0])
}

func TestProcess_EmptyOriginalFallsBackToText(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	j := job(t,
		map[string]any{"role": "SPEAKER", "text": "live", "matching": map[string]any{"original": ""}},
		matched(branchA, 0.2),
	)
	_, err := ext.Process(context.Background(), j)
	require.NoError(t, err)

	dp, err := dataset.ReadDecisionPoint(layout.DecisionPointPath("en", "asst", "call", 0))
	require.NoError(t, err)
	assert.Equal(t, "live", dp.UserText)
}

func TestProcess_LegacyUserRole(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	j := job(t,
		map[string]any{"role": "USER", "text": "legacy caller"},
		matched(branchA, 0.2),
	)
	res, err := ext.Process(context.Background(), j)
	require.NoError(t, err)
	require.Equal(t, 1, res.DecisionPoints)

	dp, err := dataset.ReadDecisionPoint(layout.DecisionPointPath("en", "asst", "call", 0))
	require.NoError(t, err)
	assert.Equal(t, 0, dp.UserTextIdx)
}

func TestProcess_ExactMatchSkip(t *testing.T) {
	tests := []struct {
		name     string
		userText string
		distance float64
		want     int
	}{
		{"alias text at distance zero", "hi, I have a PROBLEM!", 0, 0},
		{"primary label is not an alias", "Device issue", 0, 1},
		{"different text at distance zero", "my screen is cracked", 0, 1},
		{"alias text at nonzero distance", "Hi, I have a problem", 0.05, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			seedGraph(st)
			ext, _ := newExtractor(t, st)

			res, err := ext.Process(context.Background(), job(t, speaker(tt.userText), matched(branchA, tt.distance)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.DecisionPoints)
			assert.Equal(t, 1-tt.want, res.Skipped.ExactMatch)
		})
	}
}

func TestProcess_NoPrecedingSpeaker(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	res, err := ext.Process(context.Background(), job(t, matched(branchA, 0.3), speaker("late")))
	require.NoError(t, err)
	assert.Zero(t, res.DecisionPoints)
	assert.Equal(t, 1, res.Skipped.NoUserTurn)
	assert.False(t, layout.IsComplete("en", "asst", "call"))
}

func TestProcess_BulkQueries(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, _ := newExtractor(t, st)

	j := job(t,
		speaker("one"), matched(branchA, 0.3),
		speaker("two"), matched(branchB, 0.3),
		speaker("three"), matched(branchC, 0),
		speaker("four"), matched("r1", 0.3),
	)
	res, err := ext.Process(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, 3, res.DecisionPoints)

	assert.Equal(t, 1, st.Queries("BranchesByIDs"))
	assert.Equal(t, 1, st.Queries("BranchesByParents"))
	assert.LessOrEqual(t, st.Queries("PromptsByIDs"), 2)
}

func TestProcess_StoreErrorLeavesNothing(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	st.Err = errors.New("db down")
	_, err := ext.Process(context.Background(), job(t, speaker("x"), matched(branchA, 0.3)))
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(layout.Root, "en"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcess_Cancelled(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ext.Process(ctx, job(t, speaker("x"), matched(branchA, 0.3)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, layout.IsComplete("en", "asst", "call"))
}

func TestProcess_Rerun(t *testing.T) {
	st := memstore.New()
	seedGraph(st)
	ext, layout := newExtractor(t, st)
	j := job(t, speaker("x"), matched(branchA, 0.3))

	_, err := ext.Process(context.Background(), j)
	require.NoError(t, err)
	_, err = ext.Process(context.Background(), j)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(layout.Root, "en", "asst"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSkipCountsAdd(t *testing.T) {
	a := SkipCounts{Seen: 1, Sentinel: 2}
	a.Add(SkipCounts{Seen: 3, Empty: 1})
	assert.Equal(t, SkipCounts{Seen: 4, Sentinel: 2, Empty: 1}, a)
}
