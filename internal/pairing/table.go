package pairing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/faults"
)

// Required columns of a pairing table, in canonical order.
var RequiredColumns = []string{
	"Flow_Name",
	"Origin_Name", "Origin_File", "Origin_Weight",
	"Destination_Name", "Destination_File", "Destination_Weight",
	"Network_File", "Network_Cost",
	"Turn_Penalty", "Turn_Threshold", "Turns",
	"Radius", "Detour",
	"Decay", "Decay_Mode", "Beta",
	"Closest_destination", "Elastic_Weights",
	"KNN_Weight", "Plateau",
}

// ExposureColumn is the optional path-exposure column.
const ExposureColumn = "Exposure_Attribute"

// Table is an immutable, ordered pairing table.
type Table struct {
	records []Record
}

// NewTable builds a table from records, renumbering Index by position and
// rejecting duplicate flow names.
func NewTable(records []Record) (*Table, error) {
	seen := make(map[string]int, len(records))
	out := make([]Record, len(records))
	for i, r := range records {
		if r.FlowName == "" {
			return nil, faults.New(faults.Configuration, "pairing table", "row %d: Flow_Name is empty", i+1)
		}
		if prev, dup := seen[r.FlowName]; dup {
			return nil, faults.New(faults.Configuration, "pairing table",
				"row %d: duplicate Flow_Name %q (first seen on row %d)", i+1, r.FlowName, prev+1)
		}
		seen[r.FlowName] = i
		r.KNNWeight = append([]float64(nil), r.KNNWeight...)
		r.Index = i
		out[i] = r
	}
	return &Table{records: out}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.records) }

// At returns a copy of row i.
func (t *Table) At(i int) Record {
	r := t.records[i]
	r.KNNWeight = append([]float64(nil), r.KNNWeight...)
	return r
}

// Records returns a copy of all rows.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.records))
	for i := range t.records {
		out[i] = t.At(i)
	}
	return out
}

// FlowNames returns the flow names in table order.
func (t *Table) FlowNames() []string {
	names := make([]string, len(t.records))
	for i, r := range t.records {
		names[i] = r.FlowName
	}
	return names
}

// Load reads a pairing table from a CSV file.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, faults.Wrap(faults.ResourceNotFound, "open pairing table", err)
		}
		return nil, fmt.Errorf("open pairing table: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a pairing table from CSV. The first row is the header. A
// leading unnamed index column (as written by dataframe exports) is ignored.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, faults.New(faults.Configuration, "pairing table", "empty file")
	}
	if err != nil {
		return nil, faults.Wrap(faults.Configuration, "pairing table header", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, faults.New(faults.Configuration, "pairing table", "missing required columns: %s", strings.Join(missing, ", "))
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, faults.Wrap(faults.Configuration, fmt.Sprintf("pairing table line %d", line), err)
		}
		rec, err := parseRow(rowReader{cols: cols, row: row})
		if err != nil {
			return nil, faults.Wrap(faults.Configuration, fmt.Sprintf("pairing table line %d", line), err)
		}
		records = append(records, rec)
	}
	return NewTable(records)
}

type rowReader struct {
	cols map[string]int
	row  []string
}

func (rr rowReader) str(col string) string {
	i, ok := rr.cols[col]
	if !ok || i >= len(rr.row) {
		return ""
	}
	return strings.TrimSpace(rr.row[i])
}

func (rr rowReader) float(col string) (float64, error) {
	s := rr.str(col)
	if s == "" {
		return 0, fmt.Errorf("%s is empty", col)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", col, err)
	}
	return v, nil
}

func (rr rowReader) bool(col string) (bool, error) {
	v, err := ParseBool(rr.str(col))
	if err != nil {
		return false, fmt.Errorf("%s: %w", col, err)
	}
	return v, nil
}

func parseRow(rr rowReader) (Record, error) {
	rec := Record{
		FlowName:  rr.str("Flow_Name"),
		DecayMode: rr.str("Decay_Mode"),
		Origin: LayerRef{
			Name:   rr.str("Origin_Name"),
			File:   rr.str("Origin_File"),
			Weight: parseWeight(rr.str("Origin_Weight")),
		},
		Destination: LayerRef{
			Name:   rr.str("Destination_Name"),
			File:   rr.str("Destination_File"),
			Weight: parseWeight(rr.str("Destination_Weight")),
		},
		Network: NetworkRef{
			File: rr.str("Network_File"),
			Cost: parseCost(rr.str("Network_Cost")),
		},
		ExposureAttribute: rr.str(ExposureColumn),
	}
	if rec.Origin.Name == "" || rec.Destination.Name == "" {
		return Record{}, fmt.Errorf("Origin_Name and Destination_Name are required")
	}
	if rec.Network.File == "" {
		return Record{}, fmt.Errorf("Network_File is required")
	}

	var err error
	floats := []struct {
		col string
		dst *float64
	}{
		{"Turn_Penalty", &rec.TurnPenalty},
		{"Turn_Threshold", &rec.TurnThreshold},
		{"Radius", &rec.Radius},
		{"Detour", &rec.Detour},
		{"Beta", &rec.Beta},
		{"Plateau", &rec.Plateau},
	}
	for _, f := range floats {
		if *f.dst, err = rr.float(f.col); err != nil {
			return Record{}, err
		}
	}

	bools := []struct {
		col string
		dst *bool
	}{
		{"Turns", &rec.Turns},
		{"Decay", &rec.Decay},
		{"Closest_destination", &rec.ClosestDestination},
		{"Elastic_Weights", &rec.ElasticWeights},
	}
	for _, b := range bools {
		if *b.dst, err = rr.bool(b.col); err != nil {
			return Record{}, err
		}
	}

	if rec.KNNWeight, err = ParseWeights(rr.str("KNN_Weight")); err != nil {
		return Record{}, fmt.Errorf("KNN_Weight: %w", err)
	}
	return rec, nil
}

func parseWeight(s string) WeightSpec {
	if s == constants.CountWeight || s == "" {
		return Count()
	}
	return WeightBy(s)
}

func parseCost(s string) CostSpec {
	if s == constants.GeometricCost || s == "" {
		return Geometric()
	}
	return CostBy(s)
}

// ParseBool accepts true/false, 1/0, yes/no and t/f in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y", "1.0":
		return true, nil
	case "false", "f", "0", "no", "n", "0.0", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// ParseWeights parses a KNN weight list written as "[0.5, 0.3, 0.2]",
// "0.5;0.3;0.2" or a single number. An empty cell yields no weights.
func ParseWeights(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
