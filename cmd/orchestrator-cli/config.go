package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aiia-labs/orchestrator"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := orchestrator.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := orchestrator.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}
			cfg.Normalize()

			out := cmd.OutOrStdout()
			ids := make([]string, len(cfg.Models))
			for i, m := range cfg.Models {
				ids[i] = m.ID
			}
			fmt.Fprintln(out, "✓ Config is valid")
			fmt.Fprintf(out, "  Models:    %s\n", strings.Join(ids, ", "))
			fmt.Fprintf(out, "  Cache:     %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL())
			fmt.Fprintf(out, "  Breaker:   %d failures, %s cooldown\n", cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown())
			fmt.Fprintf(out, "  Race:      top %d\n", cfg.Dispatch.RaceWidth)
			return nil
		},
	}
}

func newModelsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model registry in dispatch tie-break order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPROVIDER\tPRIORITY\tWEIGHT")
			for _, m := range cfg.Models {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\n", m.ID, m.Provider, m.Priority, m.Weight)
			}
			return tw.Flush()
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which providers are live and which are simulated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, err := g.open()
			if err != nil {
				return err
			}
			defer orch.Close()

			st := orch.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mode: %s\n", st.Mode)
			for _, p := range st.Providers {
				fmt.Fprintf(out, "  %-10s %s\n", p.Provider, p.Backend)
			}
			return nil
		},
	}
}
