// Package main provides orchestrator-cli, a command-line tool for inspecting
// configuration, running one-off completions and maintaining the prompt cache.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiia-labs/orchestrator"
	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "orchestrator-cli",
		Short:         "Command line tool for the LLM orchestrator",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.SetupWriter(cmd.ErrOrStderr(), g.logLevel, "text")
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (overrides AIIA_CONFIG)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newValidateCmd(),
		newModelsCmd(g),
		newStatusCmd(g),
		newCompleteCmd(g),
		newCacheCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves configuration the same way the server does, with
// --config taking precedence over AIIA_CONFIG.
func (g *globalFlags) loadConfig() (orchestrator.Config, error) {
	getenv := os.Getenv
	if g.configPath != "" {
		getenv = func(key string) string {
			if key == "AIIA_CONFIG" {
				return g.configPath
			}
			return os.Getenv(key)
		}
	}
	return orchestrator.FromEnv(getenv)
}

func (g *globalFlags) open(opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(cfg, opts...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "orchestrator-cli %s\n", version.String())
		},
	}
}
