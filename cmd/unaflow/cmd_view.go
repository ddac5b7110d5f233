package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unaflow/unaflow/internal/render"
)

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <run folder>",
		Short: "Serve the maps of a finished run",
		Long: `Serve the flow maps of a finished run on a local port and open them
in the default browser. Stop with Ctrl+C.

Examples:
  unaflow view "Cities/Boston/Simulations/2026-03-09 14-05"
  unaflow view ./runs/today --addr localhost:8080 --no-open`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			return serveRun(cmd, args[0], addr, !noOpen)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default a free localhost port)")
	cmd.Flags().Bool("no-open", false, "Do not open a browser")
	return cmd
}

// serveRun blocks serving root until the command context is cancelled.
func serveRun(cmd *cobra.Command, root, addr string, openBrowser bool) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("run folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("run folder: %s is not a directory", root)
	}

	v := render.NewViewer(root)
	errCh := make(chan error, 1)
	go func() { errCh <- v.ListenAndServe(cmd.Context(), addr) }()

	url, err := waitForAddr(v, errCh)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s at %s (Ctrl+C to stop)\n", root, url)
	if openBrowser {
		if err := render.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\n", err)
		}
	}
	return <-errCh
}

// waitForAddr waits until v reports its listen address or fails to start.
func waitForAddr(v *render.Viewer, errCh <-chan error) (string, error) {
	deadline := time.After(5 * time.Second)
	for {
		if addr := v.Addr(); addr != "" {
			return "http://" + addr + "/", nil
		}
		select {
		case err := <-errCh:
			if err == nil {
				err = fmt.Errorf("viewer stopped before listening")
			}
			return "", err
		case <-deadline:
			return "", fmt.Errorf("viewer did not start")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
