package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the prompt cache",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache entry count",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				orch, err := g.open()
				if err != nil {
					return err
				}
				defer orch.Close()
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(orch.CacheStats(cmd.Context()))
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Delete expired entries now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				orch, err := g.open()
				if err != nil {
					return err
				}
				defer orch.Close()
				n, ok := orch.SweepCache(cmd.Context())
				if !ok {
					return fmt.Errorf("cache sweep did not run")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired entries\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every cached response",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				orch, err := g.open()
				if err != nil {
					return err
				}
				defer orch.Close()
				if err := orch.ClearCache(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
				return nil
			},
		},
	)
	return cmd
}
