package render

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/layer"
	"github.com/unaflow/unaflow/internal/network"
)

var (
	streetColor      = rgba{0, 255, 255, 40}
	originColor      = rgba{128, 0, 128, 255}
	destinationColor = rgba{220, 20, 60, 255}
	connectorColor   = rgba{255, 255, 255, 160}

	// flowRamp colours positive flow by quintile, lowest first.
	flowRamp = []rgba{
		{255, 255, 178, 255},
		{254, 204, 92, 255},
		{253, 141, 60, 255},
		{240, 59, 32, 255},
		{189, 0, 38, 255},
	}
)

// DiagnosticsMap overlays the streets, edges carrying positive flow, the
// demand nodes of w and the connector from each demand node to the street
// node it attaches to.
func DiagnosticsMap(streets *layer.Layer, column string, w *network.Working) ([]byte, error) {
	if !streets.HasAttribute(column) {
		return nil, fmt.Errorf("diagnostics map: column %q not found on %s", column, streets.Name)
	}

	base, err := streets.Geographic()
	if err != nil {
		return nil, err
	}
	all := geojson.NewFeatureCollection()
	for _, f := range base.Features {
		nf := geojson.NewFeature(f.Geometry)
		nf.Properties["__color__"] = streetColor
		all.Append(nf)
	}

	flow, err := flowFeatures(base, column)
	if err != nil {
		return nil, err
	}
	demand, err := demandFeatures(streets.CRS, w)
	if err != nil {
		return nil, err
	}

	v := view{Zoom: constants.ViewZoomAdjust}
	if b, ok := bounds(all); ok {
		v = fitView(b)
	}
	spec := deckSpec{
		View: v,
		Layers: []deckLayer{
			{ID: "streets", Type: "geojson", Data: all, Opacity: 0.1},
			{ID: "flow", Type: "geojson", Data: flow, Opacity: 1, Pickable: true},
			{ID: "demand", Type: "geojson", Data: demand, Opacity: 1, Pickable: true},
		},
		Tooltip: &tooltip{
			HTML:  "<b>" + column + ":</b> {__text__}",
			Style: map[string]string{"backgroundColor": "steelblue", "color": "white"},
		},
	}
	return page(column+" diagnostics", "#000000", spec)
}

// flowFeatures keeps features with positive flow, widened by min-max
// scaled flow and coloured by quintile.
func flowFeatures(l *layer.Layer, column string) (*geojson.FeatureCollection, error) {
	type kept struct {
		g orb.Geometry
		v float64
	}
	var rows []kept
	for i, f := range l.Features {
		v, ok := l.Float(i, column)
		if ok && v > 0 && f.Geometry != nil {
			rows = append(rows, kept{f.Geometry, v})
		}
	}
	fc := geojson.NewFeatureCollection()
	if len(rows) == 0 {
		return fc, nil
	}

	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.v
	}
	sort.Float64s(values)
	lo, hi := values[0], values[len(values)-1]

	for _, r := range rows {
		width := constants.FlowWidthFloor
		if hi > lo {
			width = ((r.v-lo)/(hi-lo) + 0.1) * 5
		}
		nf := geojson.NewFeature(r.g)
		nf.Properties["__width__"] = width
		nf.Properties["__color__"] = flowRamp[quantileBucket(values, r.v, len(flowRamp))]
		nf.Properties["__text__"] = fmt.Sprintf("%.2f", r.v)
		fc.Append(nf)
	}
	return fc, nil
}

// quantileBucket places v among sorted into one of n equal-count buckets.
func quantileBucket(sorted []float64, v float64, n int) int {
	rank := sort.SearchFloat64s(sorted, v)
	b := rank * n / len(sorted)
	return int(math.Min(float64(b), float64(n-1)))
}

// demandFeatures draws every demand node and its connector line, in crs,
// then reprojects them.
func demandFeatures(crs string, w *network.Working) (*geojson.FeatureCollection, error) {
	var features []*geojson.Feature
	if w != nil {
		nodes := w.Nodes()
		for _, n := range nodes {
			if n.Kind == network.KindStreet {
				continue
			}
			color := originColor
			if n.Kind == constants.RoleDestination {
				color = destinationColor
			}
			pt := geojson.NewFeature(n.Point)
			pt.Properties["__color__"] = color
			pt.Properties["__text__"] = fmt.Sprintf("%s %d (weight %g)", n.Kind, n.SourceID, n.Weight)
			features = append(features, pt)

			if n.Attached < 0 {
				continue
			}
			line := geojson.NewFeature(orb.LineString{n.Point, nodes[n.Attached].Point})
			line.Properties["__color__"] = connectorColor
			line.Properties["__width__"] = 1.0
			features = append(features, line)
		}
	}
	geo, err := layer.New("demand", crs, features).Geographic()
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	fc.Features = geo.Features
	return fc, nil
}
