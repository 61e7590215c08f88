package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-form/internal/fallback"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the fallback rules in priority order",
	RunE:  runRules,
}

func runRules(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rules, err := fallback.LoadRules(cfg.Fallback.RulesFile)
	if err != nil {
		return err
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	out := cmd.OutOrStdout()
	source := cfg.Fallback.RulesFile
	if source == "" {
		source = "built-in"
	}
	fmt.Fprintf(out, "Rules (%s):\n", source)
	for _, r := range rules {
		fmt.Fprintf(out, "  %4d  %s\n", r.Priority, r.Name)
	}
	return nil
}
