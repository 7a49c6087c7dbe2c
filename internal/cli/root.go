// Package cli implements Forge's command surface: run (execute a DAG
// manifest), phase (execute a single phase), factory (start the
// orchestration service), status (query a running Factory instance), and
// init (scaffold project configuration). It is grounded on agentium's
// internal/cli/root.go cobra+viper wiring, generalized from session/VM
// provisioning flags to the phase/DAG/team execution surface.
package cli

import (
	"fmt"
	"os"

	"github.com/forgehq/forge/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Forge - autonomous coding-agent orchestrator",
	Long: `Forge drives an external language-model CLI through a sequence of
engineering phases defined in a project manifest, supervising each
invocation, detecting stalls and blockers, and coordinating parallel phase
execution across a dependency graph.

Example:
  forge run phases.yaml --max-parallel 4
  forge factory --addr :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .forge.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(2)
		}
		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".forge")
	}

	viper.SetEnvPrefix("FORGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// Exit codes.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitMisconfigured = 2
	ExitCancelled     = 3
)
