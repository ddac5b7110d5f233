package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unaflow/unaflow/internal/config"
	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/engine"
	"github.com/unaflow/unaflow/internal/logging"
)

func newFlowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Run the betweenness flow simulation",
		Long: `Run the betweenness flow simulation over every row of the pairing table.

Examples:
  unaflow flow --city Boston
  unaflow flow --data ./data --output ./runs/today --cores 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, constants.WorkflowFlow)
		},
	}
	addRunFlags(cmd, constants.WorkflowFlow)
	return cmd
}

func newKNNCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knn",
		Short: "Run the KNN accessibility workflow",
		Long: `Run the KNN accessibility workflow over every row of the pairing table.

The origin layer of the last row receives total_knn_access and
normalized_knn_access columns summed over every flow.

Examples:
  unaflow knn --city Boston
  unaflow knn --data ./data --output ./runs/knn`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, constants.WorkflowAccessibility)
		},
	}
	addRunFlags(cmd, constants.WorkflowAccessibility)
	return cmd
}

func addRunFlags(cmd *cobra.Command, wf constants.Workflow) {
	cmd.Flags().String("city", "", "City folder under ./Cities")
	cmd.Flags().String("data", "", "Data folder (default Cities/<city>/Data)")
	cmd.Flags().String("output", "", fmt.Sprintf("Output folder (default Cities/<city>/%s/<start time>)", wf.OutputSubdir()))
	cmd.Flags().String("pairings", wf.DefaultPairingsFile(), "Pairing table file inside the data folder")
	cmd.Flags().Int("cores", 0, "Worker cap for the computation (default from config)")
	cmd.Flags().Bool("open", false, "Open the run folder in a browser when done")
}

// loadConfig loads the effective configuration and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.UnaflowConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runWorkflow(cmd *cobra.Command, wf constants.Workflow) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	city, _ := cmd.Flags().GetString("city")
	data, _ := cmd.Flags().GetString("data")
	out, _ := cmd.Flags().GetString("output")
	pairings, _ := cmd.Flags().GetString("pairings")
	cores, _ := cmd.Flags().GetInt("cores")
	open, _ := cmd.Flags().GetBool("open")
	jsonOut, _ := cmd.Flags().GetBool("json")

	opts := engine.Options{
		City:      city,
		DataDir:   data,
		OutputDir: out,
		Pairings:  pairings,
		Cores:     cores,
		Config:    cfg,
		Logger:    logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
		Stdout:    cmd.OutOrStdout(),
	}
	if jsonOut {
		// Keep stdout for the JSON summary.
		opts.Stdout = cmd.ErrOrStderr()
	}

	run := engine.RunFlowSimulation
	if wf == constants.WorkflowAccessibility {
		run = engine.RunAccessibility
	}
	res, err := run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if jsonOut {
		summary := map[string]interface{}{
			"run_id":   res.RunID,
			"workflow": wf.String(),
			"output":   res.OutputDir,
			"pairings": res.Pairings,
			"rebuilds": res.Rebuilds,
			"events":   len(res.Events),
		}
		if res.Published != nil {
			summary["published"] = res.Published
		}
		json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "\nRun %s finished: %d pairings, output in %s\n", res.RunID, res.Pairings, res.OutputDir)
	}

	if open {
		return serveRun(cmd, res.OutputDir, "", true)
	}
	return nil
}
