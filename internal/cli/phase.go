package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/phase"
	"github.com/forgehq/forge/internal/routing"
	"github.com/forgehq/forge/internal/tracker"
)

var (
	phaseAgent   string
	phaseWorkDir string
)

var phaseCmd = &cobra.Command{
	Use:   "phase <manifest> <phase-id>",
	Short: "Execute a single phase from a manifest",
	Long: `Phase loads a manifest, finds the named phase, and drives it to
completion in isolation — useful for iterating on one phase's prompt or
budget without running the whole graph.`,
	Args: cobra.ExactArgs(2),
	RunE: runPhase,
}

func init() {
	phaseCmd.Flags().StringVar(&phaseAgent, "agent", "", "agent adapter to use (default from config)")
	phaseCmd.Flags().StringVar(&phaseWorkDir, "workdir", ".", "working directory the agent operates in")
	rootCmd.AddCommand(phaseCmd)
}

func runPhase(cmd *cobra.Command, args []string) error {
	manifestPath, phaseID := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return exitErr(ExitMisconfigured)
	}
	if cfg.Run.StallWindow == 0 {
		cfg.Run.StallWindow = tracker.DefaultStallWindow
	}
	if cfg.Run.BlockerThreshold == 0 {
		cfg.Run.BlockerThreshold = tracker.DefaultBlockerThreshold
	}

	phases, err := loadManifest(manifestPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitMisconfigured)
	}

	var target *phase.Phase
	for i := range phases {
		if phases[i].ID == phaseID {
			target = &phases[i]
			break
		}
	}
	if target == nil {
		fmt.Fprintf(os.Stderr, "phase %q not found in %s\n", phaseID, manifestPath)
		return exitErr(ExitMisconfigured)
	}
	if err := target.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "phase error:", err)
		return exitErr(ExitMisconfigured)
	}

	workDir, err := filepath.Abs(phaseWorkDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitMisconfigured)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defaultAgent := phaseAgent
	if defaultAgent == "" {
		defaultAgent = cfg.Session.Agent
	}
	router := routing.NewRouter(&cfg.Routing)
	agentName := resolveAgent(router, phaseID, phaseAgent, defaultAgent)

	sink := newProgressSink(viper.GetBool("verbose"))
	tracer := buildTracer(ctx, cfg, log.New(os.Stderr, "", log.LstdFlags))
	exec, err := buildExecutor(cfg, agentName, workDir, sink, tracer)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agent error:", err)
		return exitErr(ExitMisconfigured)
	}

	tr := tracker.New(cfg.Run.StallWindow, cfg.Run.BlockerThreshold)
	result := exec.Run(ctx, *target, tr, time.Now)

	fmt.Printf("%-20s %-10s %s\n", result.PhaseID, result.Outcome, result.Diagnosis)

	return exitErr(exitCodeFor(ctx, result.Outcome != phase.OutcomeSuccess))
}
