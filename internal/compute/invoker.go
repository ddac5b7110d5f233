package compute

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/faults"
	"github.com/unaflow/unaflow/internal/layer"
	"github.com/unaflow/unaflow/internal/network"
	"github.com/unaflow/unaflow/internal/pairing"
)

// Invoker maps pairings onto Service calls.
type Invoker struct {
	svc    Service
	cores  int
	layers *layer.Registry
	logger *slog.Logger
}

// NewInvoker creates an invoker requesting at most cores workers per call.
func NewInvoker(svc Service, cores int, layers *layer.Registry, logger *slog.Logger) *Invoker {
	if cores < 1 {
		cores = constants.DefaultCores
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{svc: svc, cores: cores, layers: layers, logger: logger}
}

// Workers is the parallelism requested for a pairing: the configured core
// count capped by the number of origin features, and never below one.
func Workers(cores, origins int) int {
	n := min(cores, origins)
	if n < 1 {
		return 1
	}
	return n
}

// EffectiveDecay reports whether the service should apply decay. Elastic
// weights already fold decay into origin weights, so decay is switched off.
func EffectiveDecay(r pairing.Record) bool {
	return r.Decay && !r.ElasticWeights
}

// FlowColumns derives the flow workflow's result column names.
func FlowColumns(r pairing.Record) BetweennessColumns {
	cols := BetweennessColumns{
		Betweenness: r.FlowName,
		Reach:       "reach_" + r.FlowName,
		Gravity:     "gravity_" + r.FlowName,
	}
	if r.ElasticWeights {
		cols.ElasticWeight = "elastic_weight_" + r.FlowName
	}
	if r.HasExposure() {
		cols.Exposure = "exposure_" + r.FlowName
	}
	return cols
}

// KNNColumns derives the accessibility workflow's result column names.
func KNNColumns(r pairing.Record) AccessibilityColumns {
	return AccessibilityColumns{
		Reach:     r.FlowName + "_reach",
		Gravity:   r.FlowName + "_gravity",
		KNNAccess: r.FlowName + "_knn_access",
	}
}

// KNNAccessColumn is the column Accessibility writes KNN access into.
func KNNAccessColumn(flowName string) string { return flowName + "_knn_access" }

// BetweennessRequest builds the flow call for r over w.
func (iv *Invoker) BetweennessRequest(w *network.Working, r pairing.Record) (BetweennessRequest, error) {
	g, origins, dests, err := iv.inputs(w, r)
	if err != nil {
		return BetweennessRequest{}, err
	}
	return BetweennessRequest{
		Graph:              g,
		Streets:            iv.layers.Get(constants.StreetLayerName),
		Origins:            origins,
		Destinations:       dests,
		Params:             iv.params(w, r, origins),
		Detour:             r.Detour,
		Decay:              EffectiveDecay(r),
		DecayMode:          r.DecayMode,
		ClosestDestination: r.ClosestDestination,
		ElasticWeights:     r.ElasticWeights,
		ExposureAttribute:  r.ExposureAttribute,
		Columns:            FlowColumns(r),
	}, nil
}

// AccessibilityRequest builds the KNN call for r over w.
func (iv *Invoker) AccessibilityRequest(w *network.Working, r pairing.Record) (AccessibilityRequest, error) {
	g, origins, dests, err := iv.inputs(w, r)
	if err != nil {
		return AccessibilityRequest{}, err
	}
	return AccessibilityRequest{
		Graph:        g,
		Origins:      origins,
		Destinations: dests,
		Params:       iv.params(w, r, origins),
		Alpha:        1,
		Columns:      KNNColumns(r),
	}, nil
}

// Betweenness runs the flow computation for r. Errors from the service are
// returned as ComputationFailure with the cause preserved.
func (iv *Invoker) Betweenness(ctx context.Context, w *network.Working, r pairing.Record) error {
	req, err := iv.BetweennessRequest(w, r)
	if err != nil {
		return err
	}
	iv.logger.Debug("computing betweenness", "flow", r.FlowName, "workers", req.Workers, "decay", req.Decay)
	if err := iv.svc.Betweenness(ctx, req); err != nil {
		return &faults.Error{Kind: faults.ComputationFailure, Op: "betweenness " + r.FlowName, Err: err}
	}
	return nil
}

// Accessibility runs the KNN accessibility computation for r.
func (iv *Invoker) Accessibility(ctx context.Context, w *network.Working, r pairing.Record) error {
	req, err := iv.AccessibilityRequest(w, r)
	if err != nil {
		return err
	}
	iv.logger.Debug("computing accessibility", "flow", r.FlowName, "workers", req.Workers)
	if err := iv.svc.Accessibility(ctx, req); err != nil {
		return &faults.Error{Kind: faults.ComputationFailure, Op: "accessibility " + r.FlowName, Err: err}
	}
	return nil
}

func (iv *Invoker) inputs(w *network.Working, r pairing.Record) (*network.Graph, *layer.Layer, *layer.Layer, error) {
	g, err := w.Graph()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("compute %s: %w", r.FlowName, err)
	}
	origins := iv.layers.Get(r.Origin.Name)
	dests := iv.layers.Get(r.Destination.Name)
	if origins == nil || dests == nil {
		return nil, nil, nil, fmt.Errorf("compute %s: origin or destination layer not loaded", r.FlowName)
	}
	return g, origins, dests, nil
}

func (iv *Invoker) params(w *network.Working, r pairing.Record, origins *layer.Layer) Params {
	return Params{
		Radius:      r.Radius,
		Beta:        r.Beta,
		Workers:     Workers(iv.cores, origins.Len()),
		KNNWeight:   append([]float64(nil), r.KNNWeight...),
		Plateau:     r.Plateau,
		TurnPenalty: r.Turns,
		Turns:       w.Turns,
	}
}
