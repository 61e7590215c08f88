package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-form/internal/replay"
)

var replayFlags struct {
	fixture string
	jsonOut bool
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded fixture on a fake clock and check expectations",
	RunE:  runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayFlags.fixture, "fixture", "", "path to fixture JSON (required)")
	f.BoolVar(&replayFlags.jsonOut, "json", false, "print the summary as JSON")

	_ = replayCmd.MarkFlagRequired("fixture")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	fix, err := replay.LoadFixture(replayFlags.fixture)
	if err != nil {
		return err
	}
	results := replay.Replay(cmd.Context(), fix.ToSteps(), fix.ToReplayConfig())
	summary := replay.Summarize(results)
	mismatches := replay.Check(results, fix.ExpectedResults)

	out := cmd.OutOrStdout()
	if replayFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		if fix.Description != "" {
			fmt.Fprintf(out, "Fixture: %s\n\n", fix.Description)
		}
		fmt.Fprintf(out, "%-8s  %-10s  %-12s  %8s  %8s  %s\n", "Step", "Session", "Action", "Admitted", "Fallback", "Audit")
		fmt.Fprintf(out, "%-8s+-%-10s+-%-12s+-%8s+-%8s+-%s\n", "--------", "----------", "------------", "--------", "--------", "-----")
		for _, r := range results {
			admitted, fallback, audit := "-", "-", "-"
			if r.Decision != nil {
				admitted = fmt.Sprintf("%d", len(r.Decision.Candidates))
				fallback = fmt.Sprintf("%t", r.Decision.FallbackUsed)
			}
			if r.Eval != nil {
				audit = "pass"
				if !r.Eval.Passed {
					audit = "FAIL " + r.Eval.Reason
				}
			}
			fmt.Fprintf(out, "%-8s  %-10s  %-12s  %8s  %8s  %s\n", r.StepID, r.SessionID, r.Action, admitted, fallback, audit)
		}
		fmt.Fprintf(out, "\nsteps=%d admitted=%d fallback=%d cooldown=%d cap=%d exhausted=%d audit_failures=%d errors=%d\n",
			summary.TotalSteps, summary.Admitted, summary.FallbackUsed, summary.CooldownBlocks,
			summary.CapBlocks, summary.Exhausted, summary.AuditFailures, summary.Errors)
	}

	for _, m := range mismatches {
		fmt.Fprintln(cmd.ErrOrStderr(), m.String())
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d expectation mismatches", len(mismatches))
	}
	if summary.AuditFailures > 0 {
		return fmt.Errorf("%d audit failures", summary.AuditFailures)
	}
	return nil
}
