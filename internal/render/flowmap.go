package render

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/layer"
)

var (
	darkColor  = opaque(constants.DarkFlowColor)
	lightColor = opaque(constants.LightFlowColor)
)

// FlowMapOptions configures FlowMap.
type FlowMapOptions struct {
	// MaxFlow scales line widths. Zero means the observed maximum.
	MaxFlow float64
	Dark    bool
}

// LineWidth maps a flow value onto a rendered width. Zero-flow features
// keep the floor width.
func LineWidth(v, maxFlow float64) float64 {
	if maxFlow <= 0 {
		return constants.FlowWidthFloor
	}
	return v/maxFlow*constants.FlowWidthScale + constants.FlowWidthFloor
}

// FlowMap renders column of l as a flow-weighted line map. Features with an
// undefined flow are left out.
func FlowMap(l *layer.Layer, column string, opts FlowMapOptions) ([]byte, error) {
	if !l.HasAttribute(column) {
		return nil, fmt.Errorf("flow map: column %q not found on %s", column, l.Name)
	}
	geo, err := l.Geographic()
	if err != nil {
		return nil, err
	}

	type kept struct {
		f *geojson.Feature
		v float64
	}
	var rows []kept
	observed := 0.0
	for i, f := range geo.Features {
		v, ok := geo.Float(i, column)
		if !ok || math.IsNaN(v) || f.Geometry == nil {
			continue
		}
		rows = append(rows, kept{f, v})
		observed = math.Max(observed, v)
	}
	maxFlow := opts.MaxFlow
	if maxFlow <= 0 {
		maxFlow = observed
	}

	color, background, style := lightColor, "#ffffff", LightNoLabels
	if opts.Dark {
		color, background, style = darkColor, "#000000", DarkNoLabels
	}

	fc := geojson.NewFeatureCollection()
	labels := make([]label, 0, len(rows))
	for _, r := range rows {
		text := humanize.Comma(int64(r.v))
		nf := geojson.NewFeature(r.f.Geometry)
		nf.Properties["__width__"] = LineWidth(r.v, maxFlow)
		nf.Properties["__color__"] = color
		nf.Properties["__text__"] = text
		fc.Append(nf)

		c := centroid(r.f.Geometry)
		labels = append(labels, label{Position: [2]float64{c.X(), c.Y()}, Text: text, Color: color})
	}

	v := view{Zoom: constants.ViewZoomAdjust}
	if b, ok := bounds(fc); ok {
		v = fitView(b)
	}

	spec := deckSpec{
		MapStyle: style,
		View:     v,
		Layers: []deckLayer{
			{ID: "flow", Type: "geojson", Data: fc, Opacity: 1, Pickable: true},
			{ID: "labels", Type: "text", Data: labels, Opacity: 1, Background: rgba{0, 0, 0, 0}},
		},
		Tooltip: &tooltip{
			HTML:  "<b>" + column + ":</b> {__text__}",
			Style: map[string]string{"backgroundColor": "steelblue", "color": "white"},
		},
	}
	return page(fmt.Sprintf("%s flow", column), background, spec)
}

func centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}
