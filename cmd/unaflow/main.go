package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unaflow/unaflow/internal/constants"
)

// Set at build time with -ldflags "-X main.commit=... -X main.date=...".
var (
	version = constants.Version
	commit  = "none"
	date    = constants.ReleaseDate
)

func main() {
	rootCmd := newRootCmd()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "unaflow",
		Short: "Pairing-table runs of network flow and accessibility",
		Long: `unaflow runs batches of urban network analyses described by a pairing table.

Each row pairs an origin layer with a destination layer over a street
network. The flow workflow estimates pedestrian betweenness flows; the
knn workflow estimates KNN accessibility for every origin.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newFlowCmd(),
		newKNNCmd(),
		newValidateCmd(),
		newConfigCmd(),
		newViewCmd(),
	)
	return rootCmd
}
