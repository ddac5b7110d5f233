package network

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/faults"
	"github.com/unaflow/unaflow/internal/layer"
)

// streetsLayer is a planar "L" of two streets plus a parallel duplicate of
// the first one that is twice as expensive.
func streetsLayer(t *testing.T) *layer.Layer {
	t.Helper()
	mk := func(ls orb.LineString, cost float64) *geojson.Feature {
		f := geojson.NewFeature(ls)
		f.Properties["slope_cost"] = cost
		return f
	}
	return layer.New(constants.StreetLayerName, "EPSG:3857", []*geojson.Feature{
		mk(orb.LineString{{0, 0}, {100, 0}}, 10),
		mk(orb.LineString{{100, 0.000001}, {100, 50}}, 5),
		mk(orb.LineString{{0, 0}, {50, 20}, {100, 0}}, 20),
	})
}

func pointsLayer(name string, attr string, pts ...orb.Point) *layer.Layer {
	features := make([]*geojson.Feature, len(pts))
	for i, p := range pts {
		f := geojson.NewFeature(p)
		f.Properties[attr] = float64(10 * (i + 1))
		features[i] = f
	}
	return layer.New(name, "EPSG:3857", features)
}

func TestBuild(t *testing.T) {
	s, err := Build(streetsLayer(t), BuildOptions{SnappingTolerance: 0.00001})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(s.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3 (endpoint snapping)", len(s.Nodes))
	}
	if len(s.Edges) != 3 {
		t.Errorf("edges = %d, want 3 with parallel edges kept", len(s.Edges))
	}
	if s.Edges[0].Cost != 100 {
		t.Errorf("geometric cost = %v, want 100", s.Edges[0].Cost)
	}
	if s.Geographic {
		t.Error("EPSG:3857 layer should use planar lengths")
	}
}

func TestBuild_CostAttributeAndDiscard(t *testing.T) {
	s, err := Build(streetsLayer(t), BuildOptions{CostAttribute: "slope_cost", DiscardRedundant: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(s.Edges) != 2 {
		t.Fatalf("edges = %d, want 2 after discarding the redundant parallel edge", len(s.Edges))
	}
	if s.Edges[0].Cost != 10 {
		t.Errorf("kept edge cost = %v, want the cheaper 10", s.Edges[0].Cost)
	}
}

func TestBuild_UnknownCostAttribute(t *testing.T) {
	_, err := Build(streetsLayer(t), BuildOptions{CostAttribute: "width"})
	if !faults.Is(err, faults.Configuration) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestBuild_SnapsAcrossCellBoundary(t *testing.T) {
	tests := []struct {
		name      string
		a, b      orb.Point
		wantNodes int
	}{
		{"straddling endpoints 2e-7 apart", orb.Point{100, 0.0000049}, orb.Point{100, 0.0000051}, 3},
		{"diagonal neighbour cell", orb.Point{99.999999, -0.000001}, orb.Point{100.000001, 0.000001}, 3},
		{"beyond tolerance", orb.Point{100, 0}, orb.Point{100, 0.00002}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streets := layer.New(constants.StreetLayerName, "EPSG:3857", []*geojson.Feature{
				geojson.NewFeature(orb.LineString{{0, 0}, tt.a}),
				geojson.NewFeature(orb.LineString{tt.b, {100, 50}}),
			})
			s, err := Build(streets, BuildOptions{SnappingTolerance: 0.00001})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if len(s.Nodes) != tt.wantNodes {
				t.Errorf("nodes = %d, want %d", len(s.Nodes), tt.wantNodes)
			}
		})
	}
}

func TestCacheIsolation(t *testing.T) {
	s, err := Build(streetsLayer(t), BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var c Cache
	if c.Has() || c.Restore() != nil {
		t.Fatal("empty cache should restore nil")
	}
	c.Store(s)
	s.Nodes[0].Tags = map[string]string{"after": "store"}

	restored := c.Restore()
	if restored.Nodes[0].Tags != nil {
		t.Error("mutating the built snapshot leaked into the cache")
	}
	restored.Nodes[1].Tags = map[string]string{"x": "y"}
	if c.Peek().Nodes[1].Tags != nil {
		t.Error("mutating a restored copy leaked into the cache")
	}
}

func TestInject_CountWeights(t *testing.T) {
	s, err := Build(streetsLayer(t), BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorking(s.Clone())
	homes := pointsLayer("homes", "population", orb.Point{1, 1}, orb.Point{99, 49})

	if err := w.Inject(homes, constants.RoleOrigin, ""); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	origins := w.DemandNodes(constants.RoleOrigin)
	if len(origins) != 2 {
		t.Fatalf("origins = %d, want 2", len(origins))
	}
	for _, n := range origins {
		if n.Weight != 1 {
			t.Errorf("count weight = %v, want 1 regardless of population", n.Weight)
		}
	}
	if origins[0].Attached != 0 {
		t.Errorf("origin 0 attached to %d, want street node 0", origins[0].Attached)
	}
	if origins[1].SourceID != 1 {
		t.Errorf("SourceID = %d, want 1", origins[1].SourceID)
	}
}

func TestInject_AttributeWeights(t *testing.T) {
	s, _ := Build(streetsLayer(t), BuildOptions{})
	w := NewWorking(s)
	parks := pointsLayer("parks", "area", orb.Point{50, 0})

	if err := w.Inject(parks, constants.RoleDestination, "area"); err != nil {
		t.Fatal(err)
	}
	if got := w.DemandNodes(constants.RoleDestination)[0].Weight; got != 10 {
		t.Errorf("weight = %v, want 10", got)
	}
	if err := w.Inject(parks, constants.RoleDestination, "visitors"); !faults.Is(err, faults.Configuration) {
		t.Errorf("expected ConfigurationError for unknown weight attribute, got %v", err)
	}
}

func TestMaterialize(t *testing.T) {
	s, _ := Build(streetsLayer(t), BuildOptions{})
	w := NewWorking(s)

	if _, err := w.Graph(); !errors.Is(err, ErrGraphStale) {
		t.Fatalf("fresh network should be stale, got %v", err)
	}
	w.Materialize()
	if _, err := w.Graph(); err != nil {
		t.Fatalf("Graph after Materialize: %v", err)
	}

	if err := w.Inject(pointsLayer("homes", "p", orb.Point{0, 3}), constants.RoleOrigin, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Graph(); !errors.Is(err, ErrGraphStale) {
		t.Fatal("injection must invalidate the graph")
	}

	g := w.Materialize()
	origin := g.Role(constants.RoleOrigin)
	if len(origin) != 1 {
		t.Fatalf("origin ids = %v", origin)
	}
	arcs := g.Adj[origin[0]]
	if len(arcs) != 1 || arcs[0].Edge != -1 || arcs[0].Cost != 3 {
		t.Errorf("connector arcs = %+v, want one connector of cost 3", arcs)
	}
}

func TestClearDemandAndRestore(t *testing.T) {
	s, _ := Build(streetsLayer(t), BuildOptions{})
	var c Cache
	c.Store(s)
	w := NewWorking(c.Restore())
	streetCount := len(w.Nodes())

	_ = w.Inject(pointsLayer("homes", "p", orb.Point{0, 3}), constants.RoleOrigin, "")
	w.ClearDemand()
	if len(w.Nodes()) != streetCount {
		t.Errorf("ClearDemand left %d nodes, want %d", len(w.Nodes()), streetCount)
	}

	_ = w.Inject(pointsLayer("homes", "p", orb.Point{0, 3}), constants.RoleOrigin, "")
	w.RestoreNodes(c.Restore())
	if len(w.Nodes()) != streetCount {
		t.Errorf("RestoreNodes left %d nodes, want %d", len(w.Nodes()), streetCount)
	}
}
