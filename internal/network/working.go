package network

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/unaflow/unaflow/internal/faults"
	"github.com/unaflow/unaflow/internal/layer"
)

// ErrGraphStale is returned by Working.Graph when nodes changed since the
// last Materialize.
var ErrGraphStale = errors.New("network graph is stale: materialize after injecting or rebuilding")

// TurnParams configures the turn penalty applied during routing.
type TurnParams struct {
	Enabled bool
	// Penalty is added for each turn sharper than ThresholdDegrees.
	Penalty          float64
	ThresholdDegrees float64
}

// Working is the live network of one pairing.
type Working struct {
	snap  *Snapshot
	Turns TurnParams

	graph *Graph
	stale bool
}

// NewWorking seeds a working network from s. The caller hands over
// ownership of s; pass a clone when s is shared.
func NewWorking(s *Snapshot) *Working {
	return &Working{snap: s, stale: true}
}

// Snapshot exposes the underlying topology, demand nodes included.
func (w *Working) Snapshot() *Snapshot { return w.snap }

// Nodes returns the node table.
func (w *Working) Nodes() []Node { return w.snap.Nodes }

// Edges returns the street edges.
func (w *Working) Edges() []Edge { return w.snap.Edges }

// RestoreNodes replaces the node table with clean's, discarding demand
// nodes and any marks left by the previous pairing.
func (w *Working) RestoreNodes(clean *Snapshot) {
	w.snap.Nodes = clean.Nodes
	w.stale = true
}

// ClearDemand drops injected demand nodes in place.
func (w *Working) ClearDemand() {
	keep := w.snap.Nodes[:0]
	for _, n := range w.snap.Nodes {
		if n.Kind == KindStreet {
			keep = append(keep, n)
		}
	}
	w.snap.Nodes = keep
	w.stale = true
}

// SetTurnParameters records the turn penalty configuration.
func (w *Working) SetTurnParameters(p TurnParams) {
	w.Turns = p
}

// Inject adds one demand node per feature of l, tagged with role. When
// weightAttr is empty every node weighs 1; otherwise the weight is read
// from that attribute and features with no value weigh 0.
func (w *Working) Inject(l *layer.Layer, role, weightAttr string) error {
	if weightAttr != "" && !l.HasAttribute(weightAttr) {
		return faults.New(faults.Configuration, "inject "+role,
			"weight attribute %q not found on layer %s", weightAttr, l.Name)
	}
	for i, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		weight := 1.0
		if weightAttr != "" {
			weight, _ = l.Float(i, weightAttr)
		}
		p := anchor(f.Geometry)
		w.snap.Nodes = append(w.snap.Nodes, Node{
			ID:       len(w.snap.Nodes),
			Point:    p,
			Kind:     role,
			Weight:   weight,
			SourceID: i,
			Attached: w.nearestStreet(p),
		})
	}
	w.stale = true
	return nil
}

// DemandNodes returns the injected nodes with the given role.
func (w *Working) DemandNodes(role string) []Node {
	var out []Node
	for _, n := range w.snap.Nodes {
		if n.Kind == role {
			out = append(out, n)
		}
	}
	return out
}

// Materialize (re)builds the routable graph from the current node table.
func (w *Working) Materialize() *Graph {
	w.graph = buildGraph(w.snap)
	w.stale = false
	return w.graph
}

// Graph returns the materialized graph, or ErrGraphStale.
func (w *Working) Graph() (*Graph, error) {
	if w.stale || w.graph == nil {
		return nil, ErrGraphStale
	}
	return w.graph, nil
}

func (w *Working) nearestStreet(p orb.Point) int {
	best, bestDist := -1, 0.0
	for _, n := range w.snap.Nodes {
		if n.Kind != KindStreet {
			continue
		}
		d := w.snap.Distance(p, n.Point)
		if best < 0 || d < bestDist {
			best, bestDist = n.ID, d
		}
	}
	return best
}

// anchor is the point a feature attaches to the network from.
func anchor(g orb.Geometry) orb.Point {
	if p, ok := g.(orb.Point); ok {
		return p
	}
	return g.Bound().Center()
}

func (w *Working) String() string {
	return fmt.Sprintf("network{nodes:%d edges:%d stale:%t}", len(w.snap.Nodes), len(w.snap.Edges), w.stale)
}
