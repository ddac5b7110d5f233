// Package compute turns a pairing into one call against a flow or
// accessibility computation service.
//
// The service is an external collaborator: it receives the materialized
// graph and the layers to write into, and mutates those layers in place.
// The Invoker owns everything between a pairing.Record and that call:
// decay suppression under elastic weights, the worker count, and the names
// of the result columns.
package compute

import (
	"context"

	"github.com/unaflow/unaflow/internal/layer"
	"github.com/unaflow/unaflow/internal/network"
)

// Service computes flow and accessibility metrics over a working network.
// Implementations write results onto the request's layers and return an
// error for invalid configuration.
type Service interface {
	Betweenness(ctx context.Context, req BetweennessRequest) error
	Accessibility(ctx context.Context, req AccessibilityRequest) error
}

// Params is shared by both computations.
type Params struct {
	Radius float64
	Beta   float64

	// Workers bounds how many origins are processed in parallel. Always >= 1.
	Workers int

	KNNWeight []float64
	Plateau   float64

	// TurnPenalty asks the service to apply Turns to routing.
	TurnPenalty bool
	Turns       network.TurnParams
}

// BetweennessColumns names the attributes Betweenness writes. Empty names
// are not written.
type BetweennessColumns struct {
	Betweenness   string // on the street layer
	Reach         string // on the origin layer
	Gravity       string // on the origin layer
	ElasticWeight string // on the origin layer
	Exposure      string // on the origin layer
}

// BetweennessRequest is one flow simulation call.
type BetweennessRequest struct {
	Graph        *network.Graph
	Streets      *layer.Layer
	Origins      *layer.Layer
	Destinations *layer.Layer

	Params
	Detour             float64
	Decay              bool
	DecayMode          string
	ClosestDestination bool
	ElasticWeights     bool
	ExposureAttribute  string

	Columns BetweennessColumns
}

// AccessibilityColumns names the attributes Accessibility writes on the
// origin layer.
type AccessibilityColumns struct {
	Reach     string
	Gravity   string
	KNNAccess string
}

// AccessibilityRequest is one KNN accessibility call.
type AccessibilityRequest struct {
	Graph        *network.Graph
	Origins      *layer.Layer
	Destinations *layer.Layer

	Params
	// Alpha is the exponent applied to destination weights.
	Alpha float64

	Columns AccessibilityColumns
}
