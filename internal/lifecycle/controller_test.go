package lifecycle

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/faults"
	"github.com/unaflow/unaflow/internal/layer"
	"github.com/unaflow/unaflow/internal/pairing"
	"github.com/unaflow/unaflow/internal/telemetry"
)

const mercatorCRS = `"crs": {"type": "name", "properties": {"name": "EPSG:3857"}},`

// A 100x100 square of four streets.
const streetsJSON = `{"type": "FeatureCollection", ` + mercatorCRS + ` "features": [
  {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0,0],[100,0]]}, "properties": {"slope_cost": 10}},
  {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[100,0],[100,100]]}, "properties": {"slope_cost": 30}},
  {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0,0],[0,100]]}, "properties": {"slope_cost": 20}},
  {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0,100],[100,100]]}, "properties": {"slope_cost": 10}}
]}`

const homesJSON = `{"type": "FeatureCollection", ` + mercatorCRS + ` "features": [
  {"type": "Feature", "geometry": {"type": "Point", "coordinates": [10,5]}, "properties": {"population": 12}},
  {"type": "Feature", "geometry": {"type": "Point", "coordinates": [90,95]}, "properties": {"population": 30}}
]}`

const parksJSON = `{"type": "FeatureCollection", ` + mercatorCRS + ` "features": [
  {"type": "Feature", "geometry": {"type": "Point", "coordinates": [100,50]}, "properties": {"area": 4000}}
]}`

func writeData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"streets.geojson":   streetsJSON,
		"streets_b.geojson": streetsJSON,
		"homes.geojson":     homesJSON,
		"parks.geojson":     parksJSON,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func row(i int, flow string, cost pairing.CostSpec) pairing.Record {
	return pairing.Record{
		Index:       i,
		FlowName:    flow,
		Origin:      pairing.LayerRef{Name: "homes", File: "homes.geojson", Weight: pairing.Count()},
		Destination: pairing.LayerRef{Name: "parks", File: "parks.geojson", Weight: pairing.WeightBy("area")},
		Network:     pairing.NetworkRef{File: "streets.geojson", Cost: cost},
		TurnPenalty: 30, TurnThreshold: 45,
		Radius: 800, Detour: 1.15,
	}
}

func newController(t *testing.T, wf constants.Workflow) (*Controller, *telemetry.Log) {
	t.Helper()
	log := telemetry.New(2, telemetry.WithOutput(io.Discard))
	c := NewController(Config{
		Workflow:  wf,
		DataDir:   writeData(t),
		Layers:    layer.NewRegistry(),
		Telemetry: log,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return c, log
}

func TestDecide(t *testing.T) {
	base := row(0, "a", pairing.Geometric())
	sameNet := row(1, "b", pairing.Geometric())
	otherCost := row(1, "b", pairing.CostBy("slope_cost"))
	otherFile := row(1, "b", pairing.Geometric())
	otherFile.Network.File = "streets_b.geojson"

	tests := []struct {
		name string
		wf   constants.Workflow
		idx  int
		prev *pairing.Record
		cur  pairing.Record
		want Action
	}{
		{"first row flow", constants.WorkflowFlow, 0, nil, base, Rebuild},
		{"first row knn", constants.WorkflowAccessibility, 0, nil, base, Rebuild},
		{"same network flow", constants.WorkflowFlow, 1, &base, sameNet, RestoreClean},
		{"same network knn", constants.WorkflowAccessibility, 1, &base, sameNet, RestoreClean},
		{"cost changed flow", constants.WorkflowFlow, 1, &base, otherCost, Rebuild},
		{"cost changed knn", constants.WorkflowAccessibility, 1, &base, otherCost, Rebuild},
		{"file changed flow", constants.WorkflowFlow, 1, &base, otherFile, RestoreClean},
		{"file changed knn", constants.WorkflowAccessibility, 1, &base, otherFile, Rebuild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.wf, tt.idx, tt.prev, tt.cur); got != tt.want {
				t.Errorf("Decide = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrepare_RestoresCachedSnapshot(t *testing.T) {
	for _, wf := range []constants.Workflow{constants.WorkflowFlow, constants.WorkflowAccessibility} {
		t.Run(wf.String(), func(t *testing.T) {
			c, log := newController(t, wf)
			first := row(0, "walk", pairing.Geometric())
			second := row(1, "walk_again", pairing.Geometric())

			if _, err := c.Prepare(nil, first); err != nil {
				t.Fatalf("Prepare row 0: %v", err)
			}
			// Mark the clean snapshot. A rebuild would lose the mark.
			c.cache.Peek().Nodes[0].Tags = map[string]string{"marker": "clean"}

			w, err := c.Prepare(&first, second)
			if err != nil {
				t.Fatalf("Prepare row 1: %v", err)
			}
			if got := w.Nodes()[0].Tags["marker"]; got != "clean" {
				t.Errorf("marker = %q, want the restored snapshot's mark", got)
			}
			if c.Rebuilds() != 1 {
				t.Errorf("rebuilds = %d, want 1", c.Rebuilds())
			}
			if n := log.Count(constants.EventTopologyCreated); n != 1 {
				t.Errorf("topology events = %d, want 1", n)
			}
			if n := len(w.DemandNodes(constants.RoleOrigin)); n != 2 {
				t.Errorf("origins = %d, want 2 (previous pairing's nodes discarded)", n)
			}
			if _, err := w.Graph(); err != nil {
				t.Errorf("graph should be materialized: %v", err)
			}

			w.Nodes()[1].Tags = map[string]string{"dirty": "yes"}
			if c.cache.Peek().Nodes[1].Tags != nil {
				t.Error("mutating the working network leaked into the cache")
			}
		})
	}
}

func TestPrepare_CostChangeRebuilds(t *testing.T) {
	c, log := newController(t, constants.WorkflowFlow)
	first := row(0, "walk", pairing.Geometric())
	second := row(1, "climb", pairing.CostBy("slope_cost"))

	if _, err := c.Prepare(nil, first); err != nil {
		t.Fatal(err)
	}
	c.cache.Peek().Nodes[0].Tags = map[string]string{"marker": "clean"}

	w, err := c.Prepare(&first, second)
	if err != nil {
		t.Fatal(err)
	}
	if w.Nodes()[0].Tags != nil {
		t.Error("rebuilt network should not carry the old snapshot's mark")
	}
	if c.Rebuilds() != 2 || log.Count(constants.EventTopologyCreated) != 2 {
		t.Errorf("rebuilds = %d, topology events = %d, want 2/2", c.Rebuilds(), log.Count(constants.EventTopologyCreated))
	}
	if w.Edges()[0].Cost != 10 {
		t.Errorf("edge cost = %v, want slope_cost 10", w.Edges()[0].Cost)
	}
}

func TestApply_KeepAsIsRetainsDemand(t *testing.T) {
	c, _ := newController(t, constants.WorkflowFlow)
	first := row(0, "walk", pairing.Geometric())
	if _, err := c.Prepare(nil, first); err != nil {
		t.Fatal(err)
	}
	second := row(1, "walk_again", pairing.Geometric())

	if err := c.Apply(KeepAsIs, second); err != nil {
		t.Fatalf("Apply(KeepAsIs): %v", err)
	}
	if n := len(c.working.DemandNodes(constants.RoleOrigin)); n != 2 {
		t.Errorf("KeepAsIs origins = %d, want the previous pairing's 2", n)
	}

	if err := c.Apply(RestoreClean, second); err != nil {
		t.Fatalf("Apply(RestoreClean): %v", err)
	}
	if n := len(c.working.DemandNodes(constants.RoleOrigin)); n != 0 {
		t.Errorf("RestoreClean origins = %d, want 0", n)
	}
	if _, err := c.working.Graph(); err == nil {
		t.Error("restored network must be re-materialized before use")
	}
}

func TestApply_WithoutState(t *testing.T) {
	c, _ := newController(t, constants.WorkflowFlow)
	r := row(1, "walk", pairing.Geometric())
	if err := c.Apply(RestoreClean, r); err == nil {
		t.Error("RestoreClean with an empty cache should fail")
	}
	if err := c.Apply(KeepAsIs, r); err == nil {
		t.Error("KeepAsIs with no working network should fail")
	}
	if err := c.Apply(Rebuild, r); err == nil {
		t.Error("Rebuild before the street layer is loaded should fail")
	}
}

func TestPrepare_Weights(t *testing.T) {
	c, _ := newController(t, constants.WorkflowFlow)
	r := row(0, "walk", pairing.Geometric())
	w, err := c.Prepare(nil, r)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range w.DemandNodes(constants.RoleOrigin) {
		if n.Weight != 1 {
			t.Errorf("Count origin weight = %v, want 1 despite population", n.Weight)
		}
	}
	if got := w.DemandNodes(constants.RoleDestination)[0].Weight; got != 4000 {
		t.Errorf("destination weight = %v, want area 4000", got)
	}

	next := row(1, "walk_pop", pairing.Geometric())
	next.Origin.Weight = pairing.WeightBy("population")
	w, err = c.Prepare(&r, next)
	if err != nil {
		t.Fatal(err)
	}
	origins := w.DemandNodes(constants.RoleOrigin)
	if origins[0].Weight != 12 || origins[1].Weight != 30 {
		t.Errorf("population weights = %v/%v, want 12/30", origins[0].Weight, origins[1].Weight)
	}
}

func TestPrepare_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pairing.Record)
		kind   faults.Kind
	}{
		{"missing network file", func(r *pairing.Record) { r.Network.File = "nowhere.geojson" }, faults.ResourceNotFound},
		{"missing origin file", func(r *pairing.Record) { r.Origin.File = "nowhere.geojson" }, faults.ResourceNotFound},
		{"unknown cost attribute", func(r *pairing.Record) { r.Network.Cost = pairing.CostBy("width") }, faults.Configuration},
		{"unknown weight attribute", func(r *pairing.Record) { r.Destination.Weight = pairing.WeightBy("visitors") }, faults.Configuration},
		{"escaping file name", func(r *pairing.Record) { r.Origin.File = "../homes.geojson" }, faults.Configuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newController(t, constants.WorkflowFlow)
			r := row(0, "walk", pairing.Geometric())
			tt.mutate(&r)
			_, err := c.Prepare(nil, r)
			if !faults.Is(err, tt.kind) {
				t.Errorf("error = %v (kind %q), want kind %q", err, faults.KindOf(err), tt.kind)
			}
		})
	}
}

func TestPrepare_NetworkFileChange(t *testing.T) {
	tests := []struct {
		wf           constants.Workflow
		wantLoads    int
		wantRebuilds int
	}{
		{constants.WorkflowAccessibility, 2, 2},
		{constants.WorkflowFlow, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.wf.String(), func(t *testing.T) {
			c, log := newController(t, tt.wf)
			first := row(0, "walk", pairing.Geometric())
			second := row(1, "walk_b", pairing.Geometric())
			second.Network.File = "streets_b.geojson"

			if _, err := c.Prepare(nil, first); err != nil {
				t.Fatal(err)
			}
			if _, err := c.Prepare(&first, second); err != nil {
				t.Fatal(err)
			}
			loads := 0
			for _, e := range log.Events() {
				if strings.HasPrefix(e.Event, "network file loaded,") {
					loads++
				}
			}
			if loads != tt.wantLoads {
				t.Errorf("street loads = %d, want %d", loads, tt.wantLoads)
			}
			if c.Rebuilds() != tt.wantRebuilds {
				t.Errorf("rebuilds = %d, want %d", c.Rebuilds(), tt.wantRebuilds)
			}
		})
	}
}

func TestPrepare_SharedLayersLoadOnce(t *testing.T) {
	c, log := newController(t, constants.WorkflowFlow)
	first := row(0, "walk", pairing.Geometric())
	second := row(1, "walk_again", pairing.Geometric())
	if _, err := c.Prepare(nil, first); err != nil {
		t.Fatal(err)
	}
	homes := c.cfg.Layers.Get("homes")
	if _, err := c.Prepare(&first, second); err != nil {
		t.Fatal(err)
	}
	if c.cfg.Layers.Get("homes") != homes {
		t.Error("registered layer should be reused, not reloaded")
	}
	want := "homes file homes.geojson Loaded, Projection: EPSG:3857"
	if n := log.Count(want); n != 1 {
		t.Errorf("%q logged %d times, want 1", want, n)
	}
}

func TestPrepare_TurnParameters(t *testing.T) {
	tests := []struct {
		wf          constants.Workflow
		turns       bool
		wantEnabled bool
		wantPenalty float64
	}{
		{constants.WorkflowFlow, false, false, 30},
		{constants.WorkflowFlow, true, true, 30},
		{constants.WorkflowAccessibility, false, false, 0},
		{constants.WorkflowAccessibility, true, true, 30},
	}
	for _, tt := range tests {
		c, _ := newController(t, tt.wf)
		r := row(0, "walk", pairing.Geometric())
		r.Turns = tt.turns
		w, err := c.Prepare(nil, r)
		if err != nil {
			t.Fatal(err)
		}
		if w.Turns.Enabled != tt.wantEnabled || w.Turns.Penalty != tt.wantPenalty {
			t.Errorf("%s turns=%v: params = %+v", tt.wf, tt.turns, w.Turns)
		}
	}
}
