package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-form/internal/logging"
	"github.com/danielpatrickdp/adaptive-form/internal/session"
)

var inspectFlags struct {
	session  string
	limit    int
	sessions bool
	jsonOut  bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show recent decisions or session state from the SQLite store",
	RunE:  runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.StringVar(&inspectFlags.session, "session", "", "only show this session")
	f.IntVar(&inspectFlags.limit, "limit", 20, "show N most recent decisions")
	f.BoolVar(&inspectFlags.sessions, "sessions", false, "list session rate-limit state instead of decisions")
	f.BoolVar(&inspectFlags.jsonOut, "json", false, "output as JSON instead of table")
}

func runInspect(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, ok := a.Store.(*session.SQLiteStore)
	if !ok {
		return errors.New("inspect needs store.driver=sqlite with a store.path")
	}
	if inspectFlags.sessions {
		return printSessions(cmd, store)
	}
	if err := logging.EnsureSchema(a.DB()); err != nil {
		return err
	}
	rows, err := logging.RecentDecisions(a.DB(), inspectFlags.session, inspectFlags.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if inspectFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no decisions found")
		return nil
	}

	fmt.Fprintf(out, "%-12s  %-12s  %-12s  %8s  %8s  %8s  %s\n",
		"Decision", "Session", "Class", "Admitted", "Fallback", "Ms", "Time")
	fmt.Fprintf(out, "%-12s+-%-12s+-%-12s+-%8s+-%8s+-%8s+-%s\n",
		"------------", "------------", "------------", "--------", "--------", "--------", "--------------------")
	for _, r := range rows {
		fmt.Fprintf(out, "%-12s  %-12s  %-12s  %8d  %8t  %8.1f  %s\n",
			truncate(r.DecisionID, 12), truncate(r.SessionID, 12), r.UserClass,
			r.Admitted, r.FallbackUsed, r.TotalMs, formatTime(r.CreatedAt))
	}
	return nil
}

func printSessions(cmd *cobra.Command, store *session.SQLiteStore) error {
	states, err := store.List(cmd.Context(), inspectFlags.limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if inspectFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(states)
	}
	fmt.Fprintf(out, "%-24s  %6s  %-20s  %s\n", "Session", "Issued", "Cooldown Until", "Updated")
	for _, st := range states {
		fmt.Fprintf(out, "%-24s  %6d  %-20s  %s\n", truncate(st.SessionID, 24), st.IssuedCount,
			formatTime(st.CooldownUntil), formatTime(st.UpdatedAt))
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
