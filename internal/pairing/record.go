// Package pairing parses the pairing table that drives a batch run.
//
// A pairing table is a CSV file where each row names an origin layer, a
// destination layer, a street network and the parameters of one flow or
// accessibility computation. Sentinel cells ("Geometric", "Count") are turned
// into tagged specs at parse time so nothing downstream compares strings.
package pairing

import "fmt"

// CostMode selects how network edges are weighted.
type CostMode int

const (
	// CostGeometric weights edges by their geometric length.
	CostGeometric CostMode = iota
	// CostAttribute weights edges by a named street attribute.
	CostAttribute
)

// CostSpec is the tagged form of the Network_Cost column.
type CostSpec struct {
	Mode      CostMode
	Attribute string // set only when Mode == CostAttribute
}

// Geometric returns the cost spec for geometric edge length.
func Geometric() CostSpec { return CostSpec{Mode: CostGeometric} }

// CostBy returns a cost spec reading edge cost from attr.
func CostBy(attr string) CostSpec { return CostSpec{Mode: CostAttribute, Attribute: attr} }

func (c CostSpec) String() string {
	if c.Mode == CostGeometric {
		return "geometric"
	}
	return "attribute:" + c.Attribute
}

// WeightMode selects how demand nodes are weighted.
type WeightMode int

const (
	// WeightCount gives every feature a unit weight.
	WeightCount WeightMode = iota
	// WeightAttribute reads the weight from a named feature attribute.
	WeightAttribute
)

// WeightSpec is the tagged form of the Origin_Weight/Destination_Weight columns.
type WeightSpec struct {
	Mode      WeightMode
	Attribute string // set only when Mode == WeightAttribute
}

// Count returns the unit weight spec.
func Count() WeightSpec { return WeightSpec{Mode: WeightCount} }

// WeightBy returns a weight spec reading from attr.
func WeightBy(attr string) WeightSpec { return WeightSpec{Mode: WeightAttribute, Attribute: attr} }

func (w WeightSpec) String() string {
	if w.Mode == WeightCount {
		return "count"
	}
	return "attribute:" + w.Attribute
}

// LayerRef points at an origin or destination layer.
type LayerRef struct {
	Name   string     // registry name, shared across pairings
	File   string     // source file relative to the data folder
	Weight WeightSpec // demand weight of each feature
}

// NetworkRef points at the street network a pairing runs on.
type NetworkRef struct {
	File string
	Cost CostSpec
}

// Record is one row of the pairing table.
type Record struct {
	// Index is the 0-based row position in the table.
	Index int

	FlowName    string
	Origin      LayerRef
	Destination LayerRef
	Network     NetworkRef

	TurnPenalty   float64 // penalty added to a turn sharper than TurnThreshold
	TurnThreshold float64 // degrees
	Turns         bool    // turn penalty enabled

	Radius float64
	Detour float64

	Decay     bool
	DecayMode string
	Beta      float64

	ClosestDestination bool
	ElasticWeights     bool

	KNNWeight []float64
	Plateau   float64

	// ExposureAttribute is the street attribute accumulated along paths.
	// Empty when the column is absent or the cell is blank.
	ExposureAttribute string
}

// HasExposure reports whether the row requests path exposure.
func (r Record) HasExposure() bool { return r.ExposureAttribute != "" }

// Label is the human-readable progress label "(index/total) flow_name".
func (r Record) Label(total int) string {
	return fmt.Sprintf("(%d/%d) %s", r.Index+1, total, r.FlowName)
}

// DirName is the per-pairing output folder name.
func (r Record) DirName() string {
	return fmt.Sprintf("%s_O(%s)_D(%s)", r.FlowName, r.Origin.Name, r.Destination.Name)
}
