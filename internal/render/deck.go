// Package render draws flow and diagnostics maps as standalone deck.gl HTML
// pages and serves finished run folders for viewing.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sugawarayuuta/sonnet"

	"github.com/unaflow/unaflow/internal/constants"
)

// Basemap styles.
const (
	DarkNoLabels  = "https://basemaps.cartocdn.com/gl/dark-matter-nolabels-gl-style/style.json"
	LightNoLabels = "https://basemaps.cartocdn.com/gl/positron-nolabels-gl-style/style.json"
)

type rgba [4]int

func opaque(c [3]int) rgba { return rgba{c[0], c[1], c[2], 255} }

type view struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Zoom      float64 `json:"zoom"`
	Pitch     float64 `json:"pitch"`
	Bearing   float64 `json:"bearing"`
}

type deckLayer struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"` // "geojson" or "text"
	Data       any     `json:"data"`
	Opacity    float64 `json:"opacity"`
	Pickable   bool    `json:"pickable"`
	Background rgba    `json:"background,omitempty"`
}

type label struct {
	Position [2]float64 `json:"position"`
	Text     string     `json:"text"`
	Color    rgba       `json:"color"`
}

type tooltip struct {
	HTML  string            `json:"html"`
	Style map[string]string `json:"style"`
}

type deckSpec struct {
	MapStyle string      `json:"mapStyle,omitempty"`
	View     view        `json:"view"`
	Layers   []deckLayer `json:"layers"`
	Tooltip  *tooltip    `json:"tooltip,omitempty"`
}

type pageData struct {
	Title      string
	Basemap    bool
	Background string
	Spec       template.JS
}

// page executes the deck template around spec.
func page(title, background string, spec deckSpec) ([]byte, error) {
	raw, err := sonnet.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal map: %w", err)
	}
	// Inline script content: turn <, > and & into unicode escapes.
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, raw)

	src, err := templates.ReadFile("templates/deck.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	tmpl, err := template.New("deck").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var out bytes.Buffer
	err = tmpl.Execute(&out, pageData{
		Title:      title,
		Basemap:    spec.MapStyle != "",
		Background: background,
		Spec:       template.JS(escaped.String()), // #nosec G203 -- HTML-escaped JSON
	})
	if err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return out.Bytes(), nil
}

// fitView centers on b and picks the zoom at which b spans the viewport,
// then adds constants.ViewZoomAdjust.
func fitView(b orb.Bound) view {
	c := b.Center()
	span := math.Max(b.Right()-b.Left(), b.Top()-b.Bottom())
	zoom := 15.0
	if span > 0 {
		zoom = math.Log2(360 / span)
	}
	zoom = math.Max(0, math.Min(zoom, 20))
	return view{Longitude: c.X(), Latitude: c.Y(), Zoom: zoom + constants.ViewZoomAdjust}
}

// bounds unions the bounds of every feature geometry.
func bounds(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var b orb.Bound
	ok := false
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !ok {
			b, ok = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, ok
}
