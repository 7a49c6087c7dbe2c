package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/dag"
	"github.com/forgehq/forge/internal/phase"
	"github.com/forgehq/forge/internal/routing"
	"github.com/forgehq/forge/internal/statelog"
)

var (
	runMaxParallel int
	runFailFast    bool
	runAgent       string
	runWorkDir     string
	runResume      bool
)

var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Execute a phase manifest as a DAG",
	Long: `Run loads a phase manifest, builds its dependency graph, and dispatches
ready phases wave by wave, each phase driven to completion by the Phase
Executor. Progress is checkpointed to an on-disk state log so an interrupted
run can resume with --resume.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "maximum phases dispatched concurrently (default from config)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "abort remaining phases on first failure")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "agent adapter to use (default from config)")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", ".", "working directory the agent operates in")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume from the manifest's state log, skipping completed phases")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return exitErr(ExitMisconfigured)
	}

	if runMaxParallel > 0 {
		cfg.Run.MaxParallel = runMaxParallel
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.Run.FailFast = runFailFast
	}
	if cfg.Run.MaxParallel == 0 {
		cfg.Run.MaxParallel = 1
	}
	if cfg.Run.StallWindow == 0 {
		cfg.Run.StallWindow = 3
	}
	if cfg.Run.BlockerThreshold == 0 {
		cfg.Run.BlockerThreshold = 2
	}

	if err := cfg.Run.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return exitErr(ExitMisconfigured)
	}

	phases, err := loadManifest(manifestPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitMisconfigured)
	}

	graph, err := dag.NewGraph(phases)
	if err != nil {
		fmt.Fprintln(os.Stderr, "manifest error:", err)
		return exitErr(ExitMisconfigured)
	}

	statePath := manifestPath + ".state.jsonl"
	var resume map[string]phase.Status
	if runResume {
		resume, err = statelog.ReadLatest(statePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "state log error:", err)
			return exitErr(ExitMisconfigured)
		}
	} else if err := statelog.Truncate(statePath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "state log error:", err)
		return exitErr(ExitMisconfigured)
	}

	slog, err := statelog.Open(statePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state log error:", err)
		return exitErr(ExitFailure)
	}
	defer slog.Close()

	workDir, err := filepath.Abs(runWorkDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitMisconfigured)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sink := newProgressSink(viper.GetBool("verbose"))
	tracer := buildTracer(ctx, cfg, log.New(os.Stderr, "", log.LstdFlags))
	defaultAgent := runAgent
	if defaultAgent == "" {
		defaultAgent = cfg.Session.Agent
	}
	exec, err := buildExecutor(cfg, defaultAgent, workDir, sink, tracer)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agent error:", err)
		return exitErr(ExitMisconfigured)
	}

	router := routing.NewRouter(&cfg.Routing)
	var runner dag.PhaseRunner = exec
	if router.IsConfigured() {
		runner = newRoutedRunner(cfg, workDir, sink, tracer, router, exec, defaultAgent)
	}

	results, allOK := dag.NewScheduler(graph).Run(ctx, dag.Options{
		MaxParallel: cfg.Run.MaxParallel,
		FailFast:    cfg.Run.FailFast,
		Runner:      runner,
		Checkpoint:  statelog.Checkpointer{Log: slog},
		Sink:        waveSink{sink},
		Resume:      resume,
	})

	for _, id := range graph.Order() {
		r, ok := results[id]
		if !ok {
			continue
		}
		fmt.Printf("%-20s %-10s %s\n", id, r.Outcome, r.Diagnosis)
	}

	return exitErr(exitCodeFor(ctx, !allOK))
}

// exitErr translates an exit code into the error cobra surfaces, letting
// main map it back to os.Exit without cobra itself printing usage noise on
// a normal failure path.
func exitErr(code int) error {
	if code == ExitSuccess {
		return nil
	}
	return exitCodeError(code)
}

type exitCodeError int

func (e exitCodeError) Error() string { return fmt.Sprintf("exit %d", int(e)) }

// ExitCode extracts the process exit code intended for an error returned by
// a command's RunE, defaulting to ExitFailure for any other error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if e, ok := err.(exitCodeError); ok {
		return int(e)
	}
	return ExitFailure
}

// NeedsDiagnostic reports whether err still needs to be printed by the
// caller: commands that return an exitCodeError have already printed their
// own diagnostic before returning it.
func NeedsDiagnostic(err error) bool {
	if err == nil {
		return false
	}
	_, isExitCode := err.(exitCodeError)
	return !isExitCode
}
