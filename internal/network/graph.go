package network

// Arc is one directed adjacency entry.
type Arc struct {
	To int
	// Edge is the street edge index, or -1 for a demand connector.
	Edge   int
	Cost   float64
	Length float64
}

// Graph is the routable form of a working network. Streets are traversable
// in both directions; each demand node is joined to its attached street
// node by a connector arc whose cost is the straight-line distance.
type Graph struct {
	Nodes []Node
	Edges []Edge
	Adj   [][]Arc
}

func buildGraph(s *Snapshot) *Graph {
	g := &Graph{
		Nodes: s.Nodes,
		Edges: s.Edges,
		Adj:   make([][]Arc, len(s.Nodes)),
	}
	for i, e := range s.Edges {
		g.Adj[e.From] = append(g.Adj[e.From], Arc{To: e.To, Edge: i, Cost: e.Cost, Length: e.Length})
		g.Adj[e.To] = append(g.Adj[e.To], Arc{To: e.From, Edge: i, Cost: e.Cost, Length: e.Length})
	}
	for _, n := range s.Nodes {
		if n.Kind == KindStreet || n.Attached < 0 {
			continue
		}
		d := s.Distance(n.Point, s.Nodes[n.Attached].Point)
		g.Adj[n.ID] = append(g.Adj[n.ID], Arc{To: n.Attached, Edge: -1, Cost: d, Length: d})
		g.Adj[n.Attached] = append(g.Adj[n.Attached], Arc{To: n.ID, Edge: -1, Cost: d, Length: d})
	}
	return g
}

// Role returns the IDs of nodes of the given kind, in node order.
func (g *Graph) Role(kind string) []int {
	var ids []int
	for _, n := range g.Nodes {
		if n.Kind == kind {
			ids = append(ids, n.ID)
		}
	}
	return ids
}
