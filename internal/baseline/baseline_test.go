package baseline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/pathminer/internal/dataset"
	"github.com/MikeSquared-Agency/pathminer/internal/graph"
	"github.com/MikeSquared-Agency/pathminer/internal/memstore"
	"github.com/MikeSquared-Agency/pathminer/internal/prompt"
	"github.com/MikeSquared-Agency/pathminer/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidateSet(ids ...string) dataset.CandidateSet {
	cs := dataset.NewCandidateSet(len(ids))
	for _, id := range ids {
		cs.Add(id, "up "+id, "aa "+id, nil)
	}
	return *cs
}

type fixture struct {
	st          *memstore.Store
	dataDir     string
	transcripts string
	out         string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{st: memstore.New(), dataDir: t.TempDir(), transcripts: t.TempDir(), out: t.TempDir()}

	f.st.AddSibling("n1", "p1", "a1", "")
	f.st.AddSibling("n1", "p2", "a2", "")
	f.st.AddSibling("n2", "p3", "a3", "q3")
	f.st.AddPrompt(prompt.Prompt{ID: "p1", Text: "Yes"})
	f.st.AddPrompt(prompt.Prompt{ID: "p2", Text: "No"})
	f.st.AddPrompt(prompt.Prompt{ID: "p3", Text: "Maybe"})
	f.st.AddAnswer("a1", "Great")
	f.st.AddAnswer("a2", "Too bad")
	f.st.AddAnswer("a3", "Let me explain")
	f.st.AddQuestion("q3", "Shall I go on?")

	turns := []map[string]any{
		{"role": "ASSISTANT", "text": "Hello"},
		{"role": "SPEAKER", "text": "yes"},
		{"role": "ASSISTANT", "text": "Great", "matching": map[string]any{"conv_path_id": "n1_p1_a1_", "distance": 0.2}},
		{"role": "SPEAKER", "text": "maybe"},
		{"role": "ASSISTANT", "text": "Let me explain", "matching": map[string]any{"conv_path_id": "n2_p3_a3_q3", "distance": 0.1}},
	}
	data, err := json.Marshal(turns)
	require.NoError(t, err)
	path := filepath.Join(f.transcripts, "asst", "call.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	w := dataset.NewWriter(f.dataDir)
	s, err := w.Begin("en", "asst", "call")
	require.NoError(t, err)
	dps := []dataset.DecisionPoint{
		{AssistantID: "asst", CallID: "call", Language: "en", UserText: "yes", UserTextIdx: 1, Candidates: candidateSet("n1_p1_a1_", "n1_p2_a2_")},
		{AssistantID: "asst", CallID: "call", Language: "en", UserText: "maybe", UserTextIdx: 3, Candidates: candidateSet("n2_p3_a3_q3")},
		{AssistantID: "asst", CallID: "call", Language: "en", UserText: "what", UserTextIdx: 3, Candidates: candidateSet("n9_p9_a9_")},
	}
	for i, dp := range dps {
		require.NoError(t, s.WriteDecisionPoint(i, dp))
	}
	require.NoError(t, s.Commit([]dataset.ConversationLine{{Role: "SPEAKER", Text: "yes"}}))
	return f
}

func (f *fixture) runner() *Runner {
	cfg := Config{DatasetDir: f.dataDir, TranscriptsDir: f.transcripts, OutputDir: f.out, Workers: 2}
	return NewRunner(cfg, graph.NewReader(f.st), f.st, nil, nil, nil, discardLogger())
}

func readOutput(t *testing.T, path string) dataset.BaselineOutput {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out dataset.BaselineOutput
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestRun(t *testing.T) {
	f := newFixture(t)

	report, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Discovered)
	assert.Equal(t, 2, report.FilesWritten)
	assert.Equal(t, 1, report.Failed)

	layout := dataset.Layout{Root: f.out}
	assert.Equal(t, dataset.BaselineOutput{BranchID: "n1_p1_a1_", Prompt: "Yes", Answer: "Great", FollowUp: ""},
		readOutput(t, layout.DecisionPointPath("en", "asst", "call", 0)))
	assert.Equal(t, dataset.BaselineOutput{BranchID: "n2_p3_a3_q3", Prompt: "Maybe", Answer: "Let me explain", FollowUp: "Shall I go on?"},
		readOutput(t, layout.DecisionPointPath("en", "asst", "call", 1)))
	assert.NoFileExists(t, layout.DecisionPointPath("en", "asst", "call", 2))

	assert.Equal(t, 1, f.st.Queries("BranchesByIDs"))
}

func TestRunSkipsExisting(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner().Run(context.Background())
	require.NoError(t, err)

	report, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.FilesWritten)
}

func TestRunMissingTranscript(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.transcripts, "asst", "call.json")))

	report, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Failed)
	assert.Len(t, report.Errors, 1)
}

func TestRunMissingDataset(t *testing.T) {
	st := memstore.New()
	cfg := Config{DatasetDir: filepath.Join(t.TempDir(), "missing"), TranscriptsDir: t.TempDir(), OutputDir: t.TempDir()}
	r := NewRunner(cfg, graph.NewReader(st), st, nil, nil, nil, discardLogger())

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Discovered)
	assert.Zero(t, report.Failed)
}

func TestSelectedBranch(t *testing.T) {
	raw, err := transcript.Decode([]byte(`[
		{"role":"SPEAKER","text":"a"},
		{"role":"ASSISTANT","text":"x","matching":{"conv_path_id":"n10_p1_a1_","distance":0.1}},
		{"role":"ASSISTANT","text":"y","matching":{"conv_path_id":"n1_p1_a1_","distance":0.1}},
		{"role":"ASSISTANT","text":"z","matching":{"conv_path_id":"n1_p2_a2_","distance":0.1}}
	]`))
	require.NoError(t, err)

	dp := dataset.DecisionPoint{UserTextIdx: 0, Candidates: candidateSet("n1_p1_a1_", "n1_p2_a2_")}
	id, ok := selectedBranch(dp, raw)
	require.True(t, ok)
	assert.Equal(t, "n1_p1_a1_", id, "n10 shares the textual prefix but not the parent")

	dp.UserTextIdx = 2
	id, ok = selectedBranch(dp, raw)
	require.True(t, ok)
	assert.Equal(t, "n1_p2_a2_", id)

	dp.UserTextIdx = 3
	_, ok = selectedBranch(dp, raw)
	assert.False(t, ok)
}

func TestSelectedBranchNeedsOnlyBranchID(t *testing.T) {
	raw, err := transcript.Decode([]byte(`[
		{"role":"SPEAKER","text":"a"},
		{"role":"ASSISTANT","text":null,"matching":{"conv_path_id":"n1_p1_a1_","distance":0.1}},
		{"role":"ASSISTANT","text":"z","matching":{"conv_path_id":"n1_p2_a2_","distance":0.1}}
	]`))
	require.NoError(t, err)

	dp := dataset.DecisionPoint{UserTextIdx: 0, Candidates: candidateSet("n1_p1_a1_", "n1_p2_a2_")}
	id, ok := selectedBranch(dp, raw)
	require.True(t, ok)
	assert.Equal(t, "n1_p1_a1_", id)

	raw, err = transcript.Decode([]byte(`[
		{"role":"SPEAKER","text":"a"},
		{"role":"ASSISTANT","text":"y","matching":{"conv_path_id":"n1_p2_a2_"}},
		{"role":"ASSISTANT","text":"z","matching":{"conv_path_id":"n1_p1_a1_","distance":0.1}}
	]`))
	require.NoError(t, err)
	id, ok = selectedBranch(dp, raw)
	require.True(t, ok)
	assert.Equal(t, "n1_p2_a2_", id, "a missing distance does not hide the selection")
}
