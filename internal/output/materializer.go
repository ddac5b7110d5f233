// Package output writes per-pairing and run-level artifacts into the run
// folder.
package output

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/unaflow/unaflow/internal/compute"
	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/layer"
	"github.com/unaflow/unaflow/internal/network"
	"github.com/unaflow/unaflow/internal/pairing"
	"github.com/unaflow/unaflow/internal/pathutil"
	"github.com/unaflow/unaflow/internal/render"
	"github.com/unaflow/unaflow/internal/telemetry"
)

// Artifact file names.
const (
	FlowMapDark         = "flow_map_dark.html"
	FlowMapLight        = "flow_map_light.html"
	DiagnosticsMap      = "flow_map.html"
	BetweennessSoFar    = "betweenness_record_so_far"
	BetweennessRecord   = "betweenness_record"
	OriginRecord        = "origin_record"
	TimeLog             = "time_log.csv"
	TotalKNNAccess      = "total_knn_access"
	NormalizedKNNAccess = "normalized_knn_access"
)

const (
	geoJSONExt = ".geoJSON"
	csvExt     = ".csv"
	dirPerm    = 0o755
)

// SaveFlags selects the optional per-pairing artifacts. The time log is
// always written.
type SaveFlags struct {
	FlowMap        bool `yaml:"flow_map"`
	DiagnosticsMap bool `yaml:"diagnostics_map"`
	FlowGeoJSON    bool `yaml:"flow_geojson"`
	FlowCSV        bool `yaml:"flow_csv"`
	OriginGeoJSON  bool `yaml:"origin_geojson"`
	OriginCSV      bool `yaml:"origin_csv"`
}

// DefaultSaveFlags writes both flow maps and the GeoJSON records.
func DefaultSaveFlags() SaveFlags {
	return SaveFlags{FlowMap: true, FlowGeoJSON: true, OriginGeoJSON: true}
}

// Materializer persists run results under root.
type Materializer struct {
	root   string
	save   SaveFlags
	layers *layer.Registry
	log    *telemetry.Log
	logger *slog.Logger
}

// New creates a materializer writing under root.
func New(root string, save SaveFlags, layers *layer.Registry, log *telemetry.Log, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{root: root, save: save, layers: layers, log: log, logger: logger}
}

// PairingEnd writes the artifacts of one flow pairing into its own folder
// and returns that folder.
func (m *Materializer) PairingEnd(r pairing.Record, w *network.Working) (string, error) {
	dir, err := pathutil.Child(m.root, r.DirName())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create pairing folder: %w", err)
	}

	streets := m.layers.Get(constants.StreetLayerName)
	if streets == nil {
		return "", fmt.Errorf("pairing %s: street layer not loaded", r.FlowName)
	}
	column := compute.FlowColumns(r).Betweenness

	if m.save.FlowMap {
		for _, v := range []struct {
			name string
			dark bool
		}{{FlowMapDark, true}, {FlowMapLight, false}} {
			html, err := render.FlowMap(streets, column, render.FlowMapOptions{Dark: v.dark})
			if err != nil {
				return "", fmt.Errorf("render %s: %w", v.name, err)
			}
			if err := writeFile(filepath.Join(dir, v.name), html); err != nil {
				return "", err
			}
		}
	}
	if m.save.DiagnosticsMap {
		html, err := render.DiagnosticsMap(streets, column, w)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", DiagnosticsMap, err)
		}
		if err := writeFile(filepath.Join(dir, DiagnosticsMap), html); err != nil {
			return "", err
		}
	}

	if err := m.writeLayer(streets, dir, BetweennessSoFar, m.save.FlowGeoJSON, m.save.FlowCSV); err != nil {
		return "", err
	}
	if origins := m.layers.Get(r.Origin.Name); origins != nil {
		name := fmt.Sprintf("%s_(%s)", OriginRecord, r.Origin.Name)
		if err := m.writeLayer(origins, dir, name, m.save.OriginGeoJSON, m.save.OriginCSV); err != nil {
			return "", err
		}
	}

	if err := m.log.WriteCSV(filepath.Join(dir, TimeLog)); err != nil {
		return "", err
	}
	m.log.Log(constants.EventOutputSaved, &r)
	m.logger.Debug("pairing output written", "flow", r.FlowName, "dir", pathutil.RedactPath(dir))
	return dir, nil
}

// SimulationEnd writes the run-level flow artifacts.
func (m *Materializer) SimulationEnd() error {
	if err := m.log.WriteCSV(filepath.Join(m.root, TimeLog)); err != nil {
		return err
	}
	streets := m.layers.Get(constants.StreetLayerName)
	if streets == nil {
		return fmt.Errorf("simulation end: street layer not loaded")
	}
	if err := m.writeLayer(streets, m.root, BetweennessRecord, true, true); err != nil {
		return err
	}
	m.log.Log(constants.EventSimulationOutputSaved, nil)
	return nil
}

// AccessibilityPairing snapshots the origin layer of r at the run root.
func (m *Materializer) AccessibilityPairing(r pairing.Record) error {
	origins := m.layers.Get(r.Origin.Name)
	if origins == nil {
		return fmt.Errorf("accessibility %s: origin layer %s not loaded", r.FlowName, r.Origin.Name)
	}
	if err := origins.WriteCSV(filepath.Join(m.root, OriginRecord+csvExt)); err != nil {
		return err
	}
	m.log.Log(constants.EventAccessibility, &r)
	return nil
}

// AccessibilityEnd totals the KNN access of every flow on originName,
// min-max normalizes the total, and writes the run-level origin record.
func (m *Materializer) AccessibilityEnd(originName string, flowNames []string) error {
	origins := m.layers.Get(originName)
	if origins == nil {
		return fmt.Errorf("accessibility end: origin layer %s not loaded", originName)
	}
	total := TotalAccess(origins, flowNames)
	if err := origins.SetColumn(TotalKNNAccess, total); err != nil {
		return err
	}
	if err := origins.SetColumn(NormalizedKNNAccess, Normalize(total)); err != nil {
		return err
	}
	if err := m.writeLayer(origins, m.root, OriginRecord, true, true); err != nil {
		return err
	}
	if err := m.log.WriteCSV(filepath.Join(m.root, TimeLog)); err != nil {
		return err
	}
	m.log.Log(constants.EventAccessibilitySaved, nil)
	return nil
}

// FlushTimeLog writes the time log to the run root. Used on failure.
func (m *Materializer) FlushTimeLog() error {
	if err := os.MkdirAll(m.root, dirPerm); err != nil {
		return fmt.Errorf("create run folder: %w", err)
	}
	return m.log.WriteCSV(filepath.Join(m.root, TimeLog))
}

// TotalAccess sums each flow's KNN access column per feature. Missing
// values count as zero.
func TotalAccess(l *layer.Layer, flowNames []string) []float64 {
	total := make([]float64, l.Len())
	for _, flow := range flowNames {
		col := compute.KNNAccessColumn(flow)
		for i := range total {
			if v, ok := l.Float(i, col); ok {
				total[i] += v
			}
		}
	}
	return total
}

// Normalize min-max scales values into [0, 1]. A zero range maps every
// value to 0.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if hi == lo {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

func (m *Materializer) writeLayer(l *layer.Layer, dir, name string, geo, csv bool) error {
	if geo {
		if err := l.WriteGeoJSON(filepath.Join(dir, name+geoJSONExt)); err != nil {
			return err
		}
	}
	if csv {
		if err := l.WriteCSV(filepath.Join(dir, name+csvExt)); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
