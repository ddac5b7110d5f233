package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unaflow/unaflow/internal/faults"
	"github.com/unaflow/unaflow/internal/pairing"
	"github.com/unaflow/unaflow/internal/pathutil"
)

// fileCheck is one layer file named by the pairing table.
type fileCheck struct {
	Flow  string `json:"flow"`
	Role  string `json:"role"`
	File  string `json:"file"`
	Found bool   `json:"found"`
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pairings.csv>",
		Short: "Check a pairing table without running it",
		Long: `Parse a pairing table and report its rows. With --data, also check
that every network, origin and destination file it names exists.

Examples:
  unaflow validate Cities/Boston/Data/pairings.csv
  unaflow validate pairings.csv --data Cities/Boston/Data`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dataDir, _ := cmd.Flags().GetString("data")

			table, err := pairing.Load(args[0])
			if err != nil {
				return fmt.Errorf("invalid pairing table: %w", err)
			}

			var checks []fileCheck
			if dataDir != "" {
				checks, err = checkFiles(table, dataDir)
				if err != nil {
					return err
				}
			}
			missing := 0
			for _, c := range checks {
				if !c.Found {
					missing++
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				json.NewEncoder(out).Encode(map[string]interface{}{
					"rows":    table.Len(),
					"flows":   table.FlowNames(),
					"files":   checks,
					"missing": missing,
				})
			} else {
				fmt.Fprintf(out, "%d pairings: ", table.Len())
				for i, name := range table.FlowNames() {
					if i > 0 {
						fmt.Fprint(out, ", ")
					}
					fmt.Fprint(out, name)
				}
				fmt.Fprintln(out)
				for _, c := range checks {
					if !c.Found {
						fmt.Fprintf(out, "  missing %s file for %s: %s\n", c.Role, c.Flow, c.File)
					}
				}
			}

			if missing > 0 {
				return faults.New(faults.ResourceNotFound, "validate", "%d file(s) not found", missing)
			}
			return nil
		},
	}
	cmd.Flags().String("data", "", "Data folder to check the named files against")
	return cmd
}

// checkFiles resolves every file of table against dataDir, once per file.
func checkFiles(table *pairing.Table, dataDir string) ([]fileCheck, error) {
	var checks []fileCheck
	seen := map[string]bool{}
	for _, r := range table.Records() {
		for _, f := range []struct{ role, name string }{
			{"network", r.Network.File},
			{"origin", r.Origin.File},
			{"destination", r.Destination.File},
		} {
			if seen[f.name] {
				continue
			}
			seen[f.name] = true
			path, err := pathutil.DataFile(dataDir, f.name)
			if err != nil {
				return nil, fmt.Errorf("%s file for %s: %w", f.role, r.FlowName, err)
			}
			_, statErr := os.Stat(path)
			checks = append(checks, fileCheck{Flow: r.FlowName, Role: f.role, File: f.name, Found: statErr == nil})
		}
	}
	return checks, nil
}
