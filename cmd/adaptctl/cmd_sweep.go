package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Drop sessions idle for longer than store.idle_ttl_minutes",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Sweep(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "swept %d idle sessions\n", n)
	return nil
}
