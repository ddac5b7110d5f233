// Package network derives routable street topology from a line layer and
// carries the per-pairing working copy that demand nodes are injected into.
//
// A Snapshot is the clean topology: street nodes and edges only. A Working
// network starts as a deep copy of a Snapshot, gains origin and destination
// nodes, and is materialized into a Graph before any computation reads it.
package network

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/faults"
	"github.com/unaflow/unaflow/internal/layer"
)

// Node kinds.
const (
	KindStreet = "street"
)

// Node is a network vertex. Street nodes come from line endpoints; demand
// nodes are injected per pairing and attach to their nearest street node.
type Node struct {
	ID     int
	Point  orb.Point
	Kind   string // KindStreet, constants.RoleOrigin or constants.RoleDestination
	Weight float64

	// SourceID is the feature index in the source layer (-1 for street nodes).
	SourceID int
	// Attached is the street node a demand node connects to (-1 for street nodes).
	Attached int

	Tags map[string]string
}

// Edge is one street segment between two nodes.
type Edge struct {
	ID       int
	From, To int
	Length   float64
	Cost     float64
	// Parent is the feature index of the street the edge was cut from.
	Parent int
}

// BuildOptions configures topology derivation.
type BuildOptions struct {
	// CostAttribute names the street attribute used as edge cost.
	// Empty means geometric length.
	CostAttribute string

	// SnappingTolerance merges endpoints closer than this into one node.
	SnappingTolerance float64

	// DiscardRedundant keeps only the cheapest of parallel edges.
	DiscardRedundant bool
}

// Snapshot is a clean network topology with no demand nodes.
type Snapshot struct {
	SourceLayer   string
	CostAttribute string
	Geographic    bool // lengths are haversine meters rather than planar units

	Nodes []Node
	Edges []Edge
}

// Build derives a Snapshot from the line features of streets.
func Build(streets *layer.Layer, opts BuildOptions) (*Snapshot, error) {
	if opts.CostAttribute != "" && !streets.HasAttribute(opts.CostAttribute) {
		return nil, faults.New(faults.Configuration, "build network",
			"cost attribute %q not found on layer %s", opts.CostAttribute, streets.Name)
	}
	tol := opts.SnappingTolerance
	if tol <= 0 {
		tol = constants.DefaultSnappingTolerance
	}

	s := &Snapshot{
		SourceLayer:   streets.Name,
		CostAttribute: opts.CostAttribute,
		Geographic:    streets.CRS == constants.GeographicCRS,
	}
	// Grid cells of side tol. A point merges with any node within tol, so the
	// neighbouring cells are searched as well.
	cells := make(map[[2]int64][]int)
	nodeAt := func(p orb.Point) int {
		cx, cy := int64(math.Floor(p[0]/tol)), int64(math.Floor(p[1]/tol))
		best, bestDist := -1, math.Inf(1)
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, id := range cells[[2]int64{cx + dx, cy + dy}] {
					if d := planar.Distance(p, s.Nodes[id].Point); d <= tol && d < bestDist {
						best, bestDist = id, d
					}
				}
			}
		}
		if best >= 0 {
			return best
		}
		id := len(s.Nodes)
		s.Nodes = append(s.Nodes, Node{ID: id, Point: p, Kind: KindStreet, SourceID: -1, Attached: -1})
		key := [2]int64{cx, cy}
		cells[key] = append(cells[key], id)
		return id
	}

	cheapest := make(map[[2]int]int)
	for fi, f := range streets.Features {
		for _, ls := range lineStrings(f.Geometry) {
			if len(ls) < 2 {
				continue
			}
			from, to := nodeAt(ls[0]), nodeAt(ls[len(ls)-1])
			if from == to {
				continue
			}
			length := s.length(ls)
			cost := length
			if opts.CostAttribute != "" {
				v, ok := streets.Float(fi, opts.CostAttribute)
				if !ok {
					return nil, faults.New(faults.Configuration, "build network",
						"street %d has no numeric %q", fi, opts.CostAttribute)
				}
				cost = v
			}
			e := Edge{ID: len(s.Edges), From: from, To: to, Length: length, Cost: cost, Parent: fi}

			if opts.DiscardRedundant {
				key := [2]int{min(from, to), max(from, to)}
				if prev, ok := cheapest[key]; ok {
					if cost < s.Edges[prev].Cost {
						e.ID = prev
						s.Edges[prev] = e
					}
					continue
				}
				cheapest[key] = e.ID
			}
			s.Edges = append(s.Edges, e)
		}
	}
	if len(s.Edges) == 0 {
		return nil, fmt.Errorf("build network: layer %s has no usable line features", streets.Name)
	}
	return s, nil
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.Nodes = cloneNodes(s.Nodes)
	out.Edges = append([]Edge(nil), s.Edges...)
	return &out
}

// Distance measures between two points in the snapshot's units.
func (s *Snapshot) Distance(a, b orb.Point) float64 {
	if s.Geographic {
		return geo.Distance(a, b)
	}
	return planar.Distance(a, b)
}

func (s *Snapshot) length(ls orb.LineString) float64 {
	if s.Geographic {
		return geo.Length(ls)
	}
	return planar.Length(ls)
}

func cloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		if n.Tags != nil {
			tags := make(map[string]string, len(n.Tags))
			for k, v := range n.Tags {
				tags[k] = v
			}
			n.Tags = tags
		}
		out[i] = n
	}
	return out
}

func lineStrings(g orb.Geometry) []orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}
	case orb.MultiLineString:
		return v
	}
	return nil
}
