// Package una is the reference flow and accessibility computation service.
//
// Routing is Dijkstra over the materialized graph, bounded by the search
// radius. Trips follow the single shortest path; the detour ratio is
// validated but alternative paths are not enumerated, and turn penalties
// are not modeled.
package una

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/unaflow/unaflow/internal/compute"
	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/faults"
	"github.com/unaflow/unaflow/internal/layer"
	"github.com/unaflow/unaflow/internal/network"
)

// Decay modes.
const (
	DecayExponent = "exponent"
	DecayPower    = "power"
)

// Service implements compute.Service.
type Service struct {
	logger *slog.Logger
}

var _ compute.Service = (*Service)(nil)

// New creates a service.
func New(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// originResult is what one origin contributes.
type originResult struct {
	source   int // feature index on the origin layer
	reach    float64
	gravity  float64
	knn      float64
	elastic  float64
	exposure float64
	edgeFlow map[int]float64
}

// Betweenness distributes each origin's weight over its reachable
// destinations and accumulates trips onto street edges.
func (s *Service) Betweenness(ctx context.Context, req compute.BetweennessRequest) error {
	if err := validate(req.Params); err != nil {
		return err
	}
	if req.Detour < 1 {
		return faults.New(faults.Configuration, "betweenness", "detour ratio %v is below 1", req.Detour)
	}
	if req.Streets == nil {
		return fmt.Errorf("betweenness: no street layer")
	}
	if req.ExposureAttribute != "" && !req.Streets.HasAttribute(req.ExposureAttribute) {
		return faults.New(faults.Configuration, "betweenness", "exposure attribute %q not found on streets", req.ExposureAttribute)
	}
	if req.TurnPenalty {
		s.logger.Debug("turn penalties are not modeled by the reference service")
	}

	g := req.Graph
	var edgeExposure []float64
	if req.ExposureAttribute != "" {
		edgeExposure = make([]float64, len(g.Edges))
		for i, e := range g.Edges {
			v, _ := req.Streets.Float(e.Parent, req.ExposureAttribute)
			edgeExposure[i] = v * e.Length
		}
	}

	dests := g.Role(constants.RoleDestination)
	knnTotal := sum(req.KNNWeight)

	results, err := forEachOrigin(ctx, g, req.Workers, func(o network.Node) originResult {
		t := shortestPaths(g, o.ID, req.Radius)
		near := t.reachable(dests)
		res := originResult{source: o.SourceID, edgeFlow: make(map[int]float64)}

		res.reach, res.gravity = reachGravity(g, near, req.Beta, 1)
		res.knn = knnAccess(near, req.KNNWeight, req.Plateau, req.Beta)

		weight := o.Weight
		if req.ElasticWeights {
			if knnTotal > 0 {
				weight *= math.Min(1, res.knn/knnTotal)
			}
			res.elastic = weight
		}

		shares := tripShares(g, near, req)
		var tripSum, exposureSum float64
		for i, r := range near {
			trips := weight * shares[i]
			if trips == 0 {
				continue
			}
			var pathExposure float64
			for _, e := range t.edges(r.node) {
				res.edgeFlow[e] += trips
				if edgeExposure != nil {
					pathExposure += edgeExposure[e]
				}
			}
			tripSum += trips
			exposureSum += trips * pathExposure
		}
		if tripSum > 0 {
			res.exposure = exposureSum / tripSum
		}
		return res
	})
	if err != nil {
		return err
	}

	flow := make([]float64, req.Streets.Len())
	for _, res := range results {
		for e, v := range res.edgeFlow {
			flow[g.Edges[e].Parent] += v
		}
	}
	if err := req.Streets.SetColumn(req.Columns.Betweenness, flow); err != nil {
		return err
	}

	cols := []originColumn{
		{req.Columns.Reach, func(r originResult) float64 { return r.reach }},
		{req.Columns.Gravity, func(r originResult) float64 { return r.gravity }},
		{req.Columns.ElasticWeight, func(r originResult) float64 { return r.elastic }},
		{req.Columns.Exposure, func(r originResult) float64 { return r.exposure }},
	}
	return writeOriginColumns(req.Origins, results, cols)
}

// Accessibility computes reach, gravity and KNN access per origin.
func (s *Service) Accessibility(ctx context.Context, req compute.AccessibilityRequest) error {
	if err := validate(req.Params); err != nil {
		return err
	}
	if req.TurnPenalty {
		s.logger.Debug("turn penalties are not modeled by the reference service")
	}
	g := req.Graph
	dests := g.Role(constants.RoleDestination)

	results, err := forEachOrigin(ctx, g, req.Workers, func(o network.Node) originResult {
		near := shortestPaths(g, o.ID, req.Radius).reachable(dests)
		res := originResult{source: o.SourceID}
		res.reach, res.gravity = reachGravity(g, near, req.Beta, req.Alpha)
		res.knn = knnAccess(near, req.KNNWeight, req.Plateau, req.Beta)
		return res
	})
	if err != nil {
		return err
	}

	cols := []originColumn{
		{req.Columns.Reach, func(r originResult) float64 { return r.reach }},
		{req.Columns.Gravity, func(r originResult) float64 { return r.gravity }},
		{req.Columns.KNNAccess, func(r originResult) float64 { return r.knn }},
	}
	return writeOriginColumns(req.Origins, results, cols)
}

func validate(p compute.Params) error {
	switch {
	case p.Radius <= 0 || math.IsNaN(p.Radius):
		return faults.New(faults.Configuration, "validate", "search radius %v must be positive", p.Radius)
	case p.Beta < 0 || math.IsNaN(p.Beta):
		return faults.New(faults.Configuration, "validate", "beta %v must not be negative", p.Beta)
	case p.Workers < 1:
		return faults.New(faults.Configuration, "validate", "workers %d must be at least 1", p.Workers)
	}
	return nil
}

// forEachOrigin runs fn for every origin node with at most workers in
// flight. Results come back in origin node order.
func forEachOrigin(ctx context.Context, g *network.Graph, workers int, fn func(network.Node) originResult) ([]originResult, error) {
	origins := g.Role(constants.RoleOrigin)
	results := make([]originResult, len(origins))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, id := range origins {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = fn(g.Nodes[id])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func reachGravity(g *network.Graph, near []reached, beta, alpha float64) (reach, gravity float64) {
	for _, r := range near {
		w := g.Nodes[r.node].Weight
		reach += w
		gravity += math.Pow(w, alpha) * math.Exp(-beta*r.dist)
	}
	return reach, gravity
}

// knnAccess sums weights[k] over the k-th nearest destinations. Inside the
// plateau distance a destination counts fully; beyond it, exponentially less.
func knnAccess(near []reached, weights []float64, plateau, beta float64) float64 {
	var access float64
	for k, w := range weights {
		if k >= len(near) {
			break
		}
		d := near[k].dist
		if d <= plateau {
			access += w
			continue
		}
		access += w * math.Exp(-beta*(d-plateau))
	}
	return access
}

// tripShares splits one origin's trips across near.
func tripShares(g *network.Graph, near []reached, req compute.BetweennessRequest) []float64 {
	shares := make([]float64, len(near))
	if len(near) == 0 {
		return shares
	}
	if req.ClosestDestination {
		shares[0] = 1
		return shares
	}
	var total float64
	for i, r := range near {
		a := g.Nodes[r.node].Weight
		if req.Decay {
			a *= decay(req.DecayMode, req.Beta, r.dist)
		}
		shares[i] = a
		total += a
	}
	if total == 0 {
		return make([]float64, len(near))
	}
	for i := range shares {
		shares[i] /= total
	}
	return shares
}

func decay(mode string, beta, d float64) float64 {
	if mode == DecayPower {
		if d <= 1 {
			return 1
		}
		return math.Pow(d, -beta)
	}
	return math.Exp(-beta * d)
}

type originColumn struct {
	name string
	get  func(originResult) float64
}

// writeOriginColumns writes every named column in order. Origin features
// without a demand node are left NaN.
func writeOriginColumns(origins *layer.Layer, results []originResult, cols []originColumn) error {
	for _, c := range cols {
		if c.name == "" {
			continue
		}
		values := make([]float64, origins.Len())
		for i := range values {
			values[i] = math.NaN()
		}
		for _, r := range results {
			values[r.source] = c.get(r)
		}
		if err := origins.SetColumn(c.name, values); err != nil {
			return err
		}
	}
	return nil
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}
