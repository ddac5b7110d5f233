package lifecycle

import (
	"fmt"
	"log/slog"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/layer"
	"github.com/unaflow/unaflow/internal/logging"
	"github.com/unaflow/unaflow/internal/network"
	"github.com/unaflow/unaflow/internal/pairing"
	"github.com/unaflow/unaflow/internal/pathutil"
	"github.com/unaflow/unaflow/internal/telemetry"
)

// Config wires a Controller into a run.
type Config struct {
	Workflow constants.Workflow
	DataDir  string
	RunID    string

	Layers    *layer.Registry
	Telemetry *telemetry.Log
	Decisions *logging.DecisionLogger
	Logger    *slog.Logger

	// SnappingTolerance merges street endpoints closer than this.
	SnappingTolerance float64
	// DiscardRedundant drops parallel edges in the flow workflow. The
	// accessibility workflow always discards them.
	DiscardRedundant bool
}

// Controller carries network state across the pairings of one run.
// Not safe for concurrent use; pairings are processed one at a time.
type Controller struct {
	cfg Config

	cache   network.Cache
	working *network.Working

	streetsFile string
	rebuilds    int
}

// NewController creates a controller. Layers and Telemetry are required.
func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SnappingTolerance <= 0 {
		cfg.SnappingTolerance = constants.DefaultSnappingTolerance
	}
	return &Controller{cfg: cfg}
}

// Rebuilds returns how many times topology was derived from the street layer.
func (c *Controller) Rebuilds() int { return c.rebuilds }

// Prepare readies the working network for cur: it loads the street layer
// when needed, applies the decided transition, sets turn parameters,
// injects origin and destination nodes and materializes the graph.
func (c *Controller) Prepare(prev *pairing.Record, cur pairing.Record) (*network.Working, error) {
	if err := c.loadStreets(prev, cur); err != nil {
		return nil, err
	}

	action, reason := decide(c.cfg.Workflow, cur.Index, prev, cur)
	if err := c.Apply(action, cur); err != nil {
		return nil, err
	}
	c.setTurns(cur)

	if err := c.loadLayer(cur.Origin, cur); err != nil {
		return nil, err
	}
	if err := c.loadLayer(cur.Destination, cur); err != nil {
		return nil, err
	}
	if err := c.working.Inject(c.cfg.Layers.Get(cur.Origin.Name), constants.RoleOrigin, weightAttribute(cur.Origin.Weight)); err != nil {
		return nil, err
	}
	if err := c.working.Inject(c.cfg.Layers.Get(cur.Destination.Name), constants.RoleDestination, weightAttribute(cur.Destination.Weight)); err != nil {
		return nil, err
	}
	c.cfg.Telemetry.Log(constants.EventDemandInserted, &cur)

	c.working.Materialize()
	c.cfg.Telemetry.Log(constants.EventGraphCreated, &cur)

	snap := c.working.Snapshot()
	c.cfg.Decisions.Log(logging.Decision{
		RunID:    c.cfg.RunID,
		FlowName: cur.FlowName,
		Pairing:  cur.Index,
		Action:   action.String(),
		Reason:   reason,
		Cost:     cur.Network.Cost.String(),
		Nodes:    len(snap.Nodes),
		Edges:    len(snap.Edges),
		Origins:  len(c.working.DemandNodes(constants.RoleOrigin)),
		Dests:    len(c.working.DemandNodes(constants.RoleDestination)),
	})
	c.cfg.Logger.Debug("network prepared", "flow", cur.FlowName, "action", action, "reason", reason, "network", c.working)
	return c.working, nil
}

// Apply executes one transition. Prepare calls it with the decided action;
// it is exported so KeepAsIs can be forced.
func (c *Controller) Apply(action Action, cur pairing.Record) error {
	switch action {
	case Rebuild:
		streets := c.cfg.Layers.Get(constants.StreetLayerName)
		if streets == nil {
			return fmt.Errorf("rebuild network for %s: street layer not loaded", cur.FlowName)
		}
		snap, err := network.Build(streets, network.BuildOptions{
			CostAttribute:     costAttribute(cur.Network.Cost),
			SnappingTolerance: c.cfg.SnappingTolerance,
			DiscardRedundant:  c.cfg.Workflow == constants.WorkflowAccessibility || c.cfg.DiscardRedundant,
		})
		if err != nil {
			return err
		}
		c.cache.Store(snap)
		c.working = network.NewWorking(c.cache.Restore())
		c.rebuilds++
		c.cfg.Telemetry.Log(constants.EventTopologyCreated, &cur)

	case RestoreClean:
		clean := c.cache.Restore()
		if clean == nil {
			return fmt.Errorf("restore network for %s: no cached snapshot", cur.FlowName)
		}
		if c.working == nil {
			c.working = network.NewWorking(clean)
		} else {
			c.working.RestoreNodes(clean)
		}

	case KeepAsIs:
		if c.working == nil {
			return fmt.Errorf("keep network for %s: no working network", cur.FlowName)
		}

	default:
		return fmt.Errorf("unknown network action %d", action)
	}
	return nil
}

// loadStreets puts the street layer in the registry. The accessibility
// workflow reloads it whenever Network_File changes. The flow workflow keeps
// the first one because it accumulates every pairing's betweenness.
func (c *Controller) loadStreets(prev *pairing.Record, cur pairing.Record) error {
	reload := !c.cfg.Layers.Has(constants.StreetLayerName) ||
		(c.cfg.Workflow == constants.WorkflowAccessibility && cur.Network.File != c.streetsFile)
	if !reload {
		if prev != nil && NetworkFileChanged(prev, cur) {
			c.cfg.Logger.Warn("network file changed mid-run; flow workflow keeps the first street layer",
				"flow", cur.FlowName, "kept", c.streetsFile, "ignored", cur.Network.File)
		}
		return nil
	}

	path, err := pathutil.DataFile(c.cfg.DataDir, cur.Network.File)
	if err != nil {
		return err
	}
	streets, err := layer.Load(constants.StreetLayerName, path)
	if err != nil {
		return err
	}
	c.cfg.Layers.Put(constants.StreetLayerName, streets)
	c.streetsFile = cur.Network.File
	c.cfg.Telemetry.Log(fmt.Sprintf(constants.EventNetworkLoaded, streets.CRS), &cur)
	return nil
}

// loadLayer loads ref into the registry unless a layer of that name is
// already there. Registered layers are shared, not copied.
func (c *Controller) loadLayer(ref pairing.LayerRef, cur pairing.Record) error {
	if c.cfg.Layers.Has(ref.Name) {
		return nil
	}
	path, err := pathutil.DataFile(c.cfg.DataDir, ref.File)
	if err != nil {
		return err
	}
	l, err := layer.Load(ref.Name, path)
	if err != nil {
		return err
	}
	c.cfg.Layers.Put(ref.Name, l)
	c.cfg.Telemetry.Log(fmt.Sprintf(constants.EventLayerLoaded, ref.Name, ref.File, l.CRS), &cur)
	return nil
}

func (c *Controller) setTurns(cur pairing.Record) {
	if c.cfg.Workflow == constants.WorkflowAccessibility && !cur.Turns {
		c.working.SetTurnParameters(network.TurnParams{})
		return
	}
	c.working.SetTurnParameters(network.TurnParams{
		Enabled:          cur.Turns,
		Penalty:          cur.TurnPenalty,
		ThresholdDegrees: cur.TurnThreshold,
	})
}

func costAttribute(c pairing.CostSpec) string {
	if c.Mode == pairing.CostGeometric {
		return ""
	}
	return c.Attribute
}

func weightAttribute(w pairing.WeightSpec) string {
	if w.Mode == pairing.WeightCount {
		return ""
	}
	return w.Attribute
}
