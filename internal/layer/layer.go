// Package layer holds vector layers loaded from GeoJSON and the run-wide
// registry that shares them across pairings.
package layer

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/faults"
)

// Layer is a named collection of features plus the CRS they are expressed in.
type Layer struct {
	Name   string
	Source string
	CRS    string

	Features []*geojson.Feature

	// columns keeps attribute names in first-seen order for tabular output.
	columns []string
}

// New creates a layer from features, recording attribute order.
func New(name, crs string, features []*geojson.Feature) *Layer {
	l := &Layer{Name: name, CRS: NormalizeCRS(crs), Features: features}
	seen := make(map[string]bool)
	for _, f := range features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		for _, k := range sortedKeys(f.Properties) {
			if !seen[k] {
				seen[k] = true
				l.columns = append(l.columns, k)
			}
		}
	}
	return l
}

// Load reads a GeoJSON FeatureCollection from path.
func Load(name, path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, faults.Wrap(faults.ResourceNotFound, "load layer "+name, err)
		}
		return nil, fmt.Errorf("read layer %s: %w", name, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse layer %s: %w", name, err)
	}
	l := New(name, crsMember(fc.ExtraMembers), fc.Features)
	l.Source = path
	return l, nil
}

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.Features) }

// HasAttribute reports whether any feature carries attr.
func (l *Layer) HasAttribute(attr string) bool {
	for _, c := range l.columns {
		if c == attr {
			return true
		}
	}
	return false
}

// Float returns feature i's attr as a number. Missing, null and non-numeric
// values report ok=false.
func (l *Layer) Float(i int, attr string) (float64, bool) {
	v, exists := l.Features[i].Properties[attr]
	if !exists || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Column returns attr for every feature; missing values are NaN.
func (l *Layer) Column(attr string) []float64 {
	out := make([]float64, len(l.Features))
	for i := range l.Features {
		v, ok := l.Float(i, attr)
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// SetColumn writes values onto attr. NaN values are stored as null.
func (l *Layer) SetColumn(attr string, values []float64) error {
	if len(values) != len(l.Features) {
		return fmt.Errorf("column %s: %d values for %d features", attr, len(values), len(l.Features))
	}
	for i, f := range l.Features {
		if math.IsNaN(values[i]) {
			f.Properties[attr] = nil
			continue
		}
		f.Properties[attr] = values[i]
	}
	if !l.HasAttribute(attr) {
		l.columns = append(l.columns, attr)
	}
	return nil
}

// Clone deep-copies the layer.
func (l *Layer) Clone() *Layer {
	features := make([]*geojson.Feature, len(l.Features))
	for i, f := range l.Features {
		nf := geojson.NewFeature(orb.Clone(f.Geometry))
		nf.ID = f.ID
		nf.Properties = f.Properties.Clone()
		features[i] = nf
	}
	return &Layer{
		Name:     l.Name,
		Source:   l.Source,
		CRS:      l.CRS,
		Features: features,
		columns:  append([]string(nil), l.columns...),
	}
}

// Geographic returns a copy of l in EPSG:4326. Layers already in a
// geographic CRS are cloned unchanged.
func (l *Layer) Geographic() (*Layer, error) {
	out := l.Clone()
	switch l.CRS {
	case constants.GeographicCRS, "OGC:CRS84", "":
		out.CRS = constants.GeographicCRS
		return out, nil
	case "EPSG:3857", "EPSG:900913":
		for _, f := range out.Features {
			f.Geometry = project.Geometry(f.Geometry, project.Mercator.ToWGS84)
		}
		out.CRS = constants.GeographicCRS
		return out, nil
	}
	return nil, faults.New(faults.Configuration, "reproject "+l.Name, "unsupported CRS %q", l.CRS)
}

// NormalizeCRS maps the common spellings of a CRS name to "AUTH:CODE".
// An empty name means the GeoJSON default, EPSG:4326.
func NormalizeCRS(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return constants.GeographicCRS
	}
	upper := strings.ToUpper(name)
	switch {
	case strings.HasSuffix(upper, "CRS84"):
		return constants.GeographicCRS
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:"):
		parts := strings.Split(upper, ":")
		return parts[4] + ":" + parts[len(parts)-1]
	}
	return upper
}

// crsMember extracts the legacy named CRS from a FeatureCollection.
func crsMember(extra geojson.Properties) string {
	crs, ok := extra["crs"].(map[string]interface{})
	if !ok {
		return ""
	}
	props, ok := crs["properties"].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := props["name"].(string)
	return name
}
