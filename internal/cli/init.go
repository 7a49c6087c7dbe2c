package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	forgeagent "github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/scanner"
)

var (
	initForce bool
	initYes   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .forge.yaml and a starter phase manifest",
	Long: `Init scans the current directory for its language, build system, and
test/lint commands, then writes a .forge.yaml config and a phases.json
manifest with one starter phase, both ready to edit before the first run.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing .forge.yaml / phases.json")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "skip the interactive agent prompt and accept defaults")
	rootCmd.AddCommand(initCmd)
}

const forgeConfigTemplate = `project:
  name: %s
  repository: ""

session:
  agent: %s

run:
  max_parallel: 2
  fail_fast: false
  stall_window: 3
  blocker_threshold: 2
  iteration_timeout_secs: 600
  agent_task_timeout_secs: 1800
`

const forgeManifestTemplate = `[
  {
    "number": "01",
    "name": "Bootstrap",
    "promise": "BOOTSTRAP_COMPLETE",
    "budget": 10
  }
]
`

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitFailure)
	}

	info, err := scanner.New(cwd).Scan()
	if err != nil {
		fmt.Fprintln(os.Stderr, "scan error:", err)
		return exitErr(ExitFailure)
	}

	cfgPath := filepath.Join(cwd, ".forge.yaml")
	manifestPath := filepath.Join(cwd, "phases.json")

	if !initForce {
		for _, p := range []string{cfgPath, manifestPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p)
			}
		}
	}

	agentName, err := chooseAgent()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitFailure)
	}

	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf(forgeConfigTemplate, info.Name, agentName)), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitFailure)
	}
	if err := os.WriteFile(manifestPath, []byte(forgeManifestTemplate), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitFailure)
	}

	fmt.Printf("Detected %s project", info.Name)
	if info.BuildSystem != "" {
		fmt.Printf(" (build: %s)", info.BuildSystem)
	}
	fmt.Println()
	fmt.Println("Wrote", cfgPath)
	fmt.Println("Wrote", manifestPath)
	return nil
}

const defaultAgentName = "claude-code"

// chooseAgent prompts for the default agent adapter when running
// interactively, and falls back to defaultAgentName under --yes or when no
// terminal is attached.
func chooseAgent() (string, error) {
	choices := forgeagent.List()
	if initYes || len(choices) == 0 {
		return defaultAgentName, nil
	}
	sort.Strings(choices)

	options := make([]huh.Option[string], 0, len(choices))
	for _, name := range choices {
		options = append(options, huh.NewOption(name, name))
	}

	selected := defaultAgentName
	if !contains(choices, selected) {
		selected = choices[0]
	}

	err := huh.NewSelect[string]().
		Title("Default agent adapter").
		Options(options...).
		Value(&selected).
		Run()
	if err != nil {
		return defaultAgentName, nil
	}
	return selected, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
