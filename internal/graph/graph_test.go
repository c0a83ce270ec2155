package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/pathminer/internal/graph"
	"github.com/MikeSquared-Agency/pathminer/internal/memstore"
)

func TestParseBranchID(t *testing.T) {
	k, err := graph.ParseBranchID("n1_p1_a1_q1")
	require.NoError(t, err)
	assert.Equal(t, graph.BranchKey{ParentNodeID: "n1", PromptID: "p1", AnswerID: "a1", QuestionID: "q1"}, k)

	k, err = graph.ParseBranchID("n1_p1_a1_")
	require.NoError(t, err)
	assert.Empty(t, k.QuestionID)

	k, err = graph.ParseBranchID("n1_p1_a1")
	require.NoError(t, err)
	assert.Equal(t, graph.BranchKey{ParentNodeID: "n1", PromptID: "p1", AnswerID: "a1"}, k)

	for _, bad := range []string{"", "n1_p1", "n1_p1_a1_q1_x", "_p1_a1_q1", "n1__a1_q1", "n1_p1_"} {
		_, err := graph.ParseBranchID(bad)
		assert.True(t, errors.Is(err, graph.ErrMalformedBranchID), "id %q", bad)
	}
}

func TestPromptIDOfAndParentOf(t *testing.T) {
	p, err := graph.PromptIDOf("n1_p7_a1_q1")
	require.NoError(t, err)
	assert.Equal(t, "p7", p)

	parent, err := graph.ParentOf("n1_p7_a1_q1")
	require.NoError(t, err)
	assert.Equal(t, "n1", parent)
}

func TestDepth(t *testing.T) {
	parent := "n1"
	assert.Equal(t, 1, graph.Branch{ID: "root"}.Depth())
	assert.Equal(t, 2, graph.Branch{ID: "b", ParentNodeID: &parent}.Depth())
}

func TestDepth2ByID(t *testing.T) {
	st := memstore.New()
	st.AddBranch("root1", "", "p0", "a0", "")
	b1 := st.AddSibling("n1", "p1", "a1", "q1")
	st.AddSibling("n1", "p2", "a2", "")

	r := graph.NewReader(st)
	got, err := r.Depth2ByID(context.Background(), []string{"root1", b1.ID, b1.ID, "unknown"})
	require.NoError(t, err)

	assert.Len(t, got, 1)
	assert.Contains(t, got, b1.ID)
	assert.Equal(t, 1, st.Queries("BranchesByIDs"))
}

func TestDepth2ByIDEmpty(t *testing.T) {
	st := memstore.New()
	r := graph.NewReader(st)

	got, err := r.Depth2ByID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, st.Queries("BranchesByIDs"))
}

func TestByID(t *testing.T) {
	st := memstore.New()
	st.AddBranch("root1", "", "p0", "a0", "")
	b1 := st.AddSibling("n1", "p1", "a1", "q1")

	got, err := graph.NewReader(st).ByID(context.Background(), []string{"root1", b1.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, got["root1"].Depth())
	assert.Equal(t, 1, st.Queries("BranchesByIDs"))
}

func TestSiblingsByParent(t *testing.T) {
	st := memstore.New()
	st.AddBranch("root1", "", "p0", "a0", "")
	a := st.AddSibling("n1", "p1", "a1", "q1")
	b := st.AddSibling("n1", "p2", "a2", "")
	c := st.AddSibling("n2", "p3", "a3", "")
	st.AddSibling("n3", "p4", "a4", "")

	r := graph.NewReader(st)
	got, err := r.SiblingsByParent(context.Background(), []graph.Branch{a, c, b})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, []graph.Branch{a, b}, got["n1"])
	assert.Equal(t, []graph.Branch{c}, got["n2"])
	assert.Equal(t, 1, st.Queries("BranchesByParents"))
}

func TestSiblingsByParentRootsOnly(t *testing.T) {
	st := memstore.New()
	root := st.AddBranch("root1", "", "p0", "a0", "")

	r := graph.NewReader(st)
	got, err := r.SiblingsByParent(context.Background(), []graph.Branch{root})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, st.Queries("BranchesByParents"))
}

func TestDistinct(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, graph.Distinct([]string{"c", "a", "", "b", "a"}))
	assert.Empty(t, graph.Distinct(nil))
}
