package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aiia-labs/orchestrator"
)

func newCompleteCmd(g *globalFlags) *cobra.Command {
	var (
		noCache    bool
		sequential bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "complete <prompt>",
		Short: "Run one completion through the orchestrator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := g.open()
			if err != nil {
				return err
			}
			defer orch.Close()

			opts := orchestrator.Options{
				UseCache: orchestrator.Bool(!noCache),
				Race:     orchestrator.Bool(!sequential),
			}
			res, err := orch.GetCompletion(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(out, res.Content)
			fmt.Fprintf(out, "\n(model %s via %s, %s, %dms, cached=%t)\n",
				res.ModelID, res.Provider, res.Mode, res.LatencyMs, res.Cached)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the prompt cache")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "skip the race and walk models in score order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
