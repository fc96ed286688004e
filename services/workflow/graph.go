package workflow

// Graph is a validated, read-only view over a Definition. It is safe to share
// between any number of engines.
type Graph struct {
	def      *Definition
	index    map[string]int
	outgoing map[string][]int // source node ID -> edge positions
	start    int
}

// NewGraph validates the definition and builds its lookup tables.
// It fails with ErrInvalidGraph when the definition has no start node, more than
// one start node, duplicate node IDs, a dangling edge, or no end node reachable
// from the start node.
func NewGraph(def *Definition) (*Graph, error) {
	if def == nil {
		return nil, invalidGraph("nil definition")
	}

	g := &Graph{
		def:      def,
		index:    make(map[string]int, len(def.Nodes)),
		outgoing: buildEdgeMap(def.Edges),
		start:    -1,
	}

	for i, n := range def.Nodes {
		if n.ID == "" {
			return nil, invalidGraph("node at position %d has no id", i)
		}
		if _, dup := g.index[n.ID]; dup {
			return nil, invalidGraph("duplicate node id %q", n.ID)
		}
		g.index[n.ID] = i
		if n.Kind == NodeStart {
			if g.start >= 0 {
				return nil, invalidGraph("more than one start node (%q, %q)", def.Nodes[g.start].ID, n.ID)
			}
			g.start = i
		}
	}
	if g.start < 0 {
		return nil, invalidGraph("no start node")
	}

	for _, e := range def.Edges {
		if _, ok := g.index[e.Source]; !ok {
			return nil, invalidGraph("edge %q references unknown source %q", e.ID, e.Source)
		}
		if _, ok := g.index[e.Target]; !ok {
			return nil, invalidGraph("edge %q references unknown target %q", e.ID, e.Target)
		}
	}

	if !g.endReachable() {
		return nil, invalidGraph("no end node reachable from start %q", def.Nodes[g.start].ID)
	}
	return g, nil
}

// endReachable walks edges forward from the start node.
func (g *Graph) endReachable() bool {
	seen := make([]bool, len(g.def.Nodes))
	queue := []int{g.start}
	seen[g.start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node := g.def.Nodes[cur]
		if node.Kind == NodeEnd {
			return true
		}
		for _, ei := range g.outgoing[node.ID] {
			next := g.index[g.def.Edges[ei].Target]
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Definition returns the underlying definition. Callers must not mutate it.
func (g *Graph) Definition() *Definition { return g.def }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.def.Nodes) }

// Start returns the start node.
func (g *Graph) Start() (Node, bool) {
	if g.start < 0 {
		return Node{}, false
	}
	return g.def.Nodes[g.start], true
}

// FindNode looks a node up by ID.
func (g *Graph) FindNode(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.def.Nodes[i], true
}

func (g *Graph) indexOf(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

func (g *Graph) node(i int) Node { return g.def.Nodes[i] }

// NodesByKind returns the nodes of the given kind in definition order.
func (g *Graph) NodesByKind(kind NodeKind) []Node {
	var out []Node
	for _, n := range g.def.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// EdgesFrom returns the outgoing edges of a node in definition order.
func (g *Graph) EdgesFrom(nodeID string) []Edge {
	positions := g.outgoing[nodeID]
	out := make([]Edge, 0, len(positions))
	for _, ei := range positions {
		out = append(out, g.def.Edges[ei])
	}
	return out
}

// EdgeBetween returns the first edge from source to target, if any.
func (g *Graph) EdgeBetween(source, target string) (Edge, bool) {
	for _, ei := range g.outgoing[source] {
		if g.def.Edges[ei].Target == target {
			return g.def.Edges[ei], true
		}
	}
	return Edge{}, false
}

func buildEdgeMap(edges []Edge) map[string][]int {
	m := make(map[string][]int)
	for i, edge := range edges {
		m[edge.Source] = append(m[edge.Source], i)
	}
	return m
}
