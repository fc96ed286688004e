package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraph_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  *Definition
	}{
		{"nil definition", nil},
		{
			"no start node",
			&Definition{
				Nodes: []Node{{ID: "a", Kind: NodeProcess}, {ID: "end", Kind: NodeEnd}},
				Edges: []Edge{{ID: "e1", Source: "a", Target: "end"}},
			},
		},
		{
			"two start nodes",
			&Definition{
				Nodes: []Node{{ID: "s1", Kind: NodeStart}, {ID: "s2", Kind: NodeStart}, {ID: "end", Kind: NodeEnd}},
				Edges: []Edge{{ID: "e1", Source: "s1", Target: "end"}, {ID: "e2", Source: "s2", Target: "end"}},
			},
		},
		{
			"dangling target",
			&Definition{
				Nodes: []Node{{ID: "start", Kind: NodeStart}, {ID: "end", Kind: NodeEnd}},
				Edges: []Edge{{ID: "e1", Source: "start", Target: "end"}, {ID: "e2", Source: "start", Target: "ghost"}},
			},
		},
		{
			"dangling source",
			&Definition{
				Nodes: []Node{{ID: "start", Kind: NodeStart}, {ID: "end", Kind: NodeEnd}},
				Edges: []Edge{{ID: "e1", Source: "start", Target: "end"}, {ID: "e2", Source: "ghost", Target: "end"}},
			},
		},
		{
			"duplicate node id",
			&Definition{
				Nodes: []Node{{ID: "start", Kind: NodeStart}, {ID: "a", Kind: NodeProcess}, {ID: "a", Kind: NodeEnd}},
				Edges: []Edge{{ID: "e1", Source: "start", Target: "a"}},
			},
		},
		{
			"empty node id",
			&Definition{
				Nodes: []Node{{ID: "start", Kind: NodeStart}, {Kind: NodeEnd}},
			},
		},
		{
			"end not reachable",
			&Definition{
				Nodes: []Node{{ID: "start", Kind: NodeStart}, {ID: "a", Kind: NodeProcess}, {ID: "end", Kind: NodeEnd}},
				Edges: []Edge{{ID: "e1", Source: "start", Target: "a"}, {ID: "e2", Source: "end", Target: "a"}},
			},
		},
		{
			"no end node",
			&Definition{
				Nodes: []Node{{ID: "start", Kind: NodeStart}, {ID: "a", Kind: NodeProcess}},
				Edges: []Edge{{ID: "e1", Source: "start", Target: "a"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGraph(tt.def)
			assert.ErrorIs(t, err, ErrInvalidGraph)
			assert.Nil(t, g)
		})
	}
}

func TestNewGraph_AllowsCyclesAndUnreachableNodes(t *testing.T) {
	def := &Definition{
		ID: "loops",
		Nodes: []Node{
			{ID: "start", Kind: NodeStart},
			{ID: "work", Kind: NodeProcess},
			{ID: "check", Kind: NodeDecision},
			{ID: "reference", Kind: NodeData},
			{ID: "end", Kind: NodeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "work"},
			{ID: "e2", Source: "work", Target: "check"},
			{ID: "e3", Source: "check", Target: "work", Kind: EdgeFeedback},
			{ID: "e4", Source: "check", Target: "end"},
			{ID: "e5", Source: "reference", Target: "work", Kind: EdgeDataflow},
		},
	}

	g, err := NewGraph(def)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Len())
}

func TestGraph_Queries(t *testing.T) {
	g, err := NewGraph(SampleDefinition())
	require.NoError(t, err)

	start, ok := g.Start()
	require.True(t, ok)
	assert.Equal(t, "start", start.ID)

	n, ok := g.FindNode("triage")
	require.True(t, ok)
	assert.Equal(t, NodeDecision, n.Kind)
	assert.True(t, n.IsCritical())

	_, ok = g.FindNode("nope")
	assert.False(t, ok)

	var processIDs []string
	for _, n := range g.NodesByKind(NodeProcess) {
		processIDs = append(processIDs, n.ID)
	}
	assert.Equal(t, []string{"intake", "treatment", "review"}, processIDs)
	assert.Len(t, g.NodesByKind(NodeEnd), 1)

	var targets []string
	for _, e := range g.EdgesFrom("triage") {
		targets = append(targets, e.Target)
	}
	assert.Equal(t, []string{"treatment", "review"}, targets)
	assert.Empty(t, g.EdgesFrom("discharge"))

	e, ok := g.EdgeBetween("review", "treatment")
	require.True(t, ok)
	assert.Equal(t, EdgeFeedback, e.Kind)
	_, ok = g.EdgeBetween("start", "discharge")
	assert.False(t, ok)
}

func TestGraph_EdgeBetweenPrefersDefinitionOrder(t *testing.T) {
	def := linearDefinition()
	def.Edges = append(def.Edges, Edge{ID: "e3", Source: "a", Target: "end", RequiresValidation: true})

	g, err := NewGraph(def)
	require.NoError(t, err)
	e, ok := g.EdgeBetween("a", "end")
	require.True(t, ok)
	assert.Equal(t, "e2", e.ID)
}

func TestSampleDefinition_IsValid(t *testing.T) {
	def := SampleDefinition()
	g, err := NewGraph(def)
	require.NoError(t, err)

	var critical int
	for _, n := range def.Nodes {
		if n.IsCritical() {
			critical++
		}
	}
	assert.Equal(t, 3, critical)
	assert.Equal(t, SampleWorkflowID, g.Definition().ID)
}
