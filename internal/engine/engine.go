// Package engine drives a pairing table through the network lifecycle,
// the computation service and the output materializer, one row at a time.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unaflow/unaflow/internal/compute"
	"github.com/unaflow/unaflow/internal/config"
	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/layer"
	"github.com/unaflow/unaflow/internal/lifecycle"
	"github.com/unaflow/unaflow/internal/logging"
	"github.com/unaflow/unaflow/internal/output"
	"github.com/unaflow/unaflow/internal/pairing"
	"github.com/unaflow/unaflow/internal/pathutil"
	"github.com/unaflow/unaflow/internal/publish"
	"github.com/unaflow/unaflow/internal/telemetry"
	"github.com/unaflow/unaflow/internal/una"
)

// LedgerFile is the telemetry archive written when output.ledger is set.
const LedgerFile = "run_ledger.db"

// Mirror uploads a finished run folder.
type Mirror interface {
	Mirror(ctx context.Context, root, runID string) (publish.Summary, error)
}

// Options configures one run.
type Options struct {
	City      string
	DataDir   string
	OutputDir string
	// Pairings is the pairing table file, resolved against DataDir.
	// Empty means the workflow's default file name.
	Pairings string
	// Cores overrides Config.Cores when positive.
	Cores int

	Config *config.UnaflowConfig

	// Service defaults to the reference una service.
	Service compute.Service
	// Mirror defaults to a publisher built from Config.Publish when
	// publishing is enabled.
	Mirror Mirror

	Logger *slog.Logger
	// Stdout receives the telemetry progress lines (default os.Stdout).
	Stdout io.Writer
	// Now replaces time.Now for folder naming and telemetry.
	Now func() time.Time
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	OutputDir string
	Pairings  int
	Rebuilds  int
	Events    []telemetry.Event
	Published *publish.Summary
}

// RunContext is the state owned by one run and shared by its components.
type RunContext struct {
	RunID     string
	Workflow  constants.Workflow
	DataDir   string
	OutputDir string

	Table     *pairing.Table
	Layers    *layer.Registry
	Lifecycle *lifecycle.Controller
	Telemetry *telemetry.Log
	Invoker   *compute.Invoker
	Output    *output.Materializer

	cfg       *config.UnaflowConfig
	logger    *slog.Logger
	decisions *logging.DecisionLogger
	ledger    *telemetry.Ledger
}

// NewRunContext resolves paths, reads the pairing table and wires the
// components of a run. The output folder is created.
func NewRunContext(ctx context.Context, wf constants.Workflow, opts Options) (*RunContext, error) {
	if !wf.Valid() {
		return nil, fmt.Errorf("unknown workflow %q", wf)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	dataDir, outputDir, err := ResolvePaths(wf, opts.City, opts.DataDir, opts.OutputDir, now())
	if err != nil {
		return nil, err
	}
	name := opts.Pairings
	if name == "" {
		name = wf.DefaultPairingsFile()
	}
	tablePath, err := pathutil.DataFile(dataDir, name)
	if err != nil {
		return nil, err
	}
	table, err := pairing.Load(tablePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}

	rc := &RunContext{
		RunID:     uuid.NewString(),
		Workflow:  wf,
		DataDir:   dataDir,
		OutputDir: outputDir,
		Table:     table,
		Layers:    layer.NewRegistry(),
		cfg:       cfg,
		logger:    logger.With("run", wf.String()),
	}

	logOpts := []telemetry.Option{
		telemetry.WithClock(now),
		telemetry.WithOutput(stdout),
		telemetry.WithLogger(logger),
	}
	if cfg.Output.Ledger {
		ld, err := telemetry.OpenLedger(ctx, filepath.Join(outputDir, LedgerFile), rc.RunID, wf.String(), constants.Version)
		if err != nil {
			return nil, err
		}
		rc.ledger = ld
		rc.logger.Debug("telemetry ledger opened", "path", pathutil.RedactPath(ld.Path()))
		logOpts = append(logOpts, telemetry.WithLedger(ld))
	}
	rc.Telemetry = telemetry.New(table.Len(), logOpts...)
	rc.decisions = logging.NewDecisionLogger(outputDir, cfg.Logging.Level)

	rc.Lifecycle = lifecycle.NewController(lifecycle.Config{
		Workflow:          wf,
		DataDir:           dataDir,
		RunID:             rc.RunID,
		Layers:            rc.Layers,
		Telemetry:         rc.Telemetry,
		Decisions:         rc.decisions,
		Logger:            rc.logger,
		SnappingTolerance: cfg.Network.SnappingTolerance,
		DiscardRedundant:  cfg.Network.DiscardRedundant,
	})

	svc := opts.Service
	if svc == nil {
		svc = una.New(rc.logger)
	}
	cores := cfg.Cores
	if opts.Cores > 0 {
		cores = opts.Cores
	}
	rc.Invoker = compute.NewInvoker(svc, cores, rc.Layers, rc.logger)
	rc.Output = output.New(outputDir, cfg.Output.SaveFlags, rc.Layers, rc.Telemetry, rc.logger)
	return rc, nil
}

// Close releases the decision log and the ledger.
func (rc *RunContext) Close() error {
	rc.decisions.Close()
	if rc.ledger != nil {
		return rc.ledger.Close()
	}
	return nil
}

// logStart records the version, runtime and dependency events.
func (rc *RunContext) logStart() {
	rc.Telemetry.Log(fmt.Sprintf(constants.EventSimulationStarted, constants.Version, constants.ReleaseDate), nil)
	rc.Telemetry.Log(fmt.Sprintf(constants.EventRuntime, runtime.Version(), runtime.GOOS, runtime.GOARCH), nil)
	rc.Telemetry.Log(fmt.Sprintf(constants.EventDependencies, dependencies()), nil)
}

// dependencies lists the module requirements compiled into the binary.
func dependencies() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || len(info.Deps) == 0 {
		return "unknown"
	}
	deps := make([]string, 0, len(info.Deps))
	for _, d := range info.Deps {
		deps = append(deps, d.Path+" "+d.Version)
	}
	return strings.Join(deps, ", ")
}

// RunFlowSimulation runs the betweenness flow workflow.
func RunFlowSimulation(ctx context.Context, opts Options) (*Result, error) {
	return run(ctx, constants.WorkflowFlow, opts, func(rc *RunContext) error {
		var prev *pairing.Record
		for _, cur := range rc.Table.Records() {
			w, err := rc.Lifecycle.Prepare(prev, cur)
			if err != nil {
				return fmt.Errorf("pairing %s: %w", cur.FlowName, err)
			}
			if err := rc.Invoker.Betweenness(ctx, w, cur); err != nil {
				return fmt.Errorf("pairing %s: %w", cur.FlowName, err)
			}
			rc.Telemetry.Log(constants.EventBetweenness, &cur)
			if _, err := rc.Output.PairingEnd(cur, w); err != nil {
				return fmt.Errorf("pairing %s: %w", cur.FlowName, err)
			}
			prev = &cur
		}
		return rc.Output.SimulationEnd()
	})
}

// RunAccessibility runs the KNN accessibility workflow. Run-level totals
// are written onto the origin layer of the last pairing.
func RunAccessibility(ctx context.Context, opts Options) (*Result, error) {
	return run(ctx, constants.WorkflowAccessibility, opts, func(rc *RunContext) error {
		var prev *pairing.Record
		for _, cur := range rc.Table.Records() {
			w, err := rc.Lifecycle.Prepare(prev, cur)
			if err != nil {
				return fmt.Errorf("pairing %s: %w", cur.FlowName, err)
			}
			if err := rc.Invoker.Accessibility(ctx, w, cur); err != nil {
				return fmt.Errorf("pairing %s: %w", cur.FlowName, err)
			}
			if err := rc.Output.AccessibilityPairing(cur); err != nil {
				return fmt.Errorf("pairing %s: %w", cur.FlowName, err)
			}
			prev = &cur
		}
		if prev == nil {
			return nil
		}
		return rc.Output.AccessibilityEnd(prev.Origin.Name, rc.Table.FlowNames())
	})
}

func run(ctx context.Context, wf constants.Workflow, opts Options, body func(*RunContext) error) (*Result, error) {
	rc, err := NewRunContext(ctx, wf, opts)
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: rc.RunID, OutputDir: rc.OutputDir, Pairings: rc.Table.Len()}
	rc.logger.Info("run started",
		"run_id", rc.RunID,
		"pairings", rc.Table.Len(),
		"data", pathutil.RedactPath(rc.DataDir),
		"output", pathutil.RedactPath(rc.OutputDir))
	rc.logStart()

	runErr := body(rc)
	rc.logger.Debug("layers loaded", "layers", rc.Layers.Names())
	res.Rebuilds = rc.Lifecycle.Rebuilds()
	res.Events = rc.Telemetry.Events()
	if runErr != nil {
		if err := rc.Output.FlushTimeLog(); err != nil {
			rc.logger.Warn("time log not flushed", "error", err)
		}
		rc.Close()
		return res, runErr
	}
	if err := rc.Close(); err != nil {
		return res, fmt.Errorf("close run: %w", err)
	}

	mirror, err := rc.mirror(opts)
	if err != nil {
		return res, err
	}
	if mirror != nil {
		sum, err := mirror.Mirror(ctx, rc.OutputDir, rc.RunID)
		if err != nil {
			return res, fmt.Errorf("publish run: %w", err)
		}
		res.Published = &sum
	}
	rc.logger.Info("run finished", "run_id", rc.RunID, "rebuilds", res.Rebuilds, "events", len(res.Events))
	return res, nil
}

func (rc *RunContext) mirror(opts Options) (Mirror, error) {
	if opts.Mirror != nil {
		return opts.Mirror, nil
	}
	if !rc.cfg.Publish.Enabled {
		return nil, nil
	}
	return publish.New(rc.cfg.Publish, rc.logger)
}
