package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
)

var decideFlags struct {
	input  string
	pretty bool
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide a JSON array of batches and print the decisions",
	Long:  "Reads a JSON array of {session_id, form_id, events} batches from\n--input (or stdin with \"-\") and prints one result per batch in order.",
	RunE:  runDecide,
}

func init() {
	f := decideCmd.Flags()
	f.StringVar(&decideFlags.input, "input", "-", "batch file, or - for stdin")
	f.BoolVar(&decideFlags.pretty, "pretty", false, "indent JSON output")
}

type decideResult struct {
	SessionID string `json:"session_id"`
	Decision  any    `json:"decision,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runDecide(cmd *cobra.Command, _ []string) error {
	batches, err := readBatches(cmd.InOrStdin(), decideFlags.input)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	results := a.DecideBatch(cmd.Context(), batches)
	out := make([]decideResult, len(results))
	for i, r := range results {
		out[i].SessionID = batches[i].SessionID
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			continue
		}
		out[i].Decision = r.Decision
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if decideFlags.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func readBatches(stdin io.Reader, path string) ([]behavior.Batch, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read batches: %w", err)
	}
	var batches []behavior.Batch
	if err := json.Unmarshal(data, &batches); err != nil {
		return nil, fmt.Errorf("parse batches: %w", err)
	}
	return batches, nil
}
