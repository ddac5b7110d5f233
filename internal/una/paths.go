package una

import (
	"container/heap"
	"math"
	"sort"

	"github.com/unaflow/unaflow/internal/network"
)

// tree is a shortest-path tree rooted at one origin, cut at a radius.
type tree struct {
	dist     []float64
	prevNode []int
	prevEdge []int // street edge used to reach the node, -1 for connectors
}

// shortestPaths runs Dijkstra from src over arc costs, settling nothing
// farther than radius. Demand nodes other than src are reachable but never
// expanded, so paths do not shortcut through another origin's connector.
func shortestPaths(g *network.Graph, src int, radius float64) *tree {
	n := len(g.Nodes)
	t := &tree{
		dist:     make([]float64, n),
		prevNode: make([]int, n),
		prevEdge: make([]int, n),
	}
	for i := range t.dist {
		t.dist[i] = math.Inf(1)
		t.prevNode[i] = -1
		t.prevEdge[i] = -1
	}
	t.dist[src] = 0

	pq := &queue{{node: src}}
	for pq.Len() > 0 {
		it := heap.Pop(pq).(item)
		if it.dist > t.dist[it.node] {
			continue
		}
		if it.node != src && g.Nodes[it.node].Kind != network.KindStreet {
			continue
		}
		for _, a := range g.Adj[it.node] {
			d := it.dist + a.Cost
			if d > radius || d >= t.dist[a.To] {
				continue
			}
			t.dist[a.To] = d
			t.prevNode[a.To] = it.node
			t.prevEdge[a.To] = a.Edge
			heap.Push(pq, item{node: a.To, dist: d})
		}
	}
	return t
}

// edges walks back from dst to the root and returns the street edges used.
func (t *tree) edges(dst int) []int {
	var out []int
	for v := dst; t.prevNode[v] >= 0; v = t.prevNode[v] {
		if e := t.prevEdge[v]; e >= 0 {
			out = append(out, e)
		}
	}
	return out
}

// reached is one destination within the radius.
type reached struct {
	pos  int // index into the destination node list
	node int
	dist float64
}

// reachable lists the destinations t reaches, nearest first.
func (t *tree) reachable(dests []int) []reached {
	var out []reached
	for i, id := range dests {
		if d := t.dist[id]; !math.IsInf(d, 1) {
			out = append(out, reached{pos: i, node: id, dist: d})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].dist < out[b].dist })
	return out
}

type item struct {
	node int
	dist float64
}

type queue []item

func (q queue) Len() int            { return len(q) }
func (q queue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) { *q = append(*q, x.(item)) }
func (q *queue) Pop() interface{} {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
