package layer

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// WriteGeoJSON writes l as a FeatureCollection, tagging the CRS when it is
// not the GeoJSON default.
func (l *Layer) WriteGeoJSON(path string) error {
	fc := geojson.NewFeatureCollection()
	fc.Features = l.Features
	if l.CRS != "" && l.CRS != "EPSG:4326" {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]interface{}{
				"type":       "name",
				"properties": map[string]interface{}{"name": l.CRS},
			},
		}
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal layer %s: %w", l.Name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write layer %s: %w", l.Name, err)
	}
	return nil
}

// WriteCSV writes one row per feature: the feature index, every attribute
// column and the geometry as WKT.
func (l *Layer) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{""}, l.columns...)
	header = append(header, "geometry")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(header))
	for i, feat := range l.Features {
		row[0] = strconv.Itoa(i)
		for j, col := range l.columns {
			row[j+1] = formatCell(feat.Properties[col])
		}
		row[len(row)-1] = ""
		if feat.Geometry != nil {
			row[len(row)-1] = wkt.MarshalString(feat.Geometry)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	}
	return fmt.Sprint(v)
}

func sortedKeys(p geojson.Properties) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
