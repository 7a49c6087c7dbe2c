package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	forgeagent "github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/factory"
	"github.com/forgehq/forge/internal/gitcollab"
	"github.com/forgehq/forge/internal/planner"
	"github.com/forgehq/forge/internal/routing"
	"github.com/forgehq/forge/internal/security"
	"github.com/forgehq/forge/internal/team"
	"github.com/forgehq/forge/internal/workspace"
)

var (
	factoryAddr    string
	factoryWorkDir string
	factoryAgent   string
)

var factoryCmd = &cobra.Command{
	Use:   "factory",
	Short: "Run the orchestration service",
	Long: `Factory starts the HTTP/WebSocket service that accepts issues, plans
them into an agent team, runs every wave to completion, merges worktree
branches, and streams progress events to subscribers.`,
	RunE: runFactory,
}

func init() {
	factoryCmd.Flags().StringVar(&factoryAddr, "addr", ":8080", "address to listen on")
	factoryCmd.Flags().StringVar(&factoryWorkDir, "workdir", ".", "project working directory teams operate in")
	factoryCmd.Flags().StringVar(&factoryAgent, "agent", "", "agent adapter to use for planning and tasks (default from config)")
	rootCmd.AddCommand(factoryCmd)
}

func runFactory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return exitErr(ExitMisconfigured)
	}

	agentName := factoryAgent
	if agentName == "" {
		agentName = cfg.Session.Agent
	}

	workDir, err := filepath.Abs(factoryWorkDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr(ExitMisconfigured)
	}

	launcher, err := buildLauncher(cfg, agentName, "", workDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agent error:", err)
		return exitErr(ExitMisconfigured)
	}

	var gitCollaborator team.GitCollaborator
	if cfg.GitHub.AppID != 0 {
		gitCollaborator = &gitcollab.Collaborator{
			AppID:          cfg.GitHub.AppID,
			InstallationID: cfg.GitHub.InstallationID,
			Repo:           cfg.Project.Repository,
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	tracer := buildTracer(ctx, cfg, logger)

	router := routing.NewRouter(&cfg.Routing)
	var runner team.TaskRunner = launcher
	if router.IsConfigured() {
		runner = newRoutedTaskRunner(cfg, workDir, router, agentName, launcher)
	}

	srv := factory.NewServer(&factory.Config{
		Planner:     &planner.LLMPlanner{Launcher: launcher},
		Runner:      runner,
		Workspace:   &workspace.Manager{ProjectPath: workDir, BaseDir: filepath.Join(workDir, ".forge-worktrees"), Security: security.DefaultContainerSecurityOptions()},
		Git:         gitCollaborator,
		ProjectPath: workDir,
		Tracer:      tracer,
	})

	httpSrv := &http.Server{Addr: factoryAddr, Handler: srv}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "forge factory listening on %s\n", factoryAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "server error:", err)
			_ = tracer.Stop(context.Background())
			return exitErr(ExitFailure)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "shutdown error:", err)
			_ = tracer.Stop(context.Background())
			return exitErr(ExitFailure)
		}
	}

	_ = tracer.Stop(context.Background())
	return nil
}

// routedTaskRunner dispatches each AgentTask to the agent adapter
// routing.Router resolves for the task's role (uppercased, matching the
// config loader's override-key normalization), building one agent.Launcher
// per distinct resolved adapter and caching it for reuse. A role with no
// override runs on the pre-built default launcher.
type routedTaskRunner struct {
	cfg     *config.Config
	workDir string
	router  *routing.Router
	def     *forgeagent.Launcher
	defName string

	mu    sync.Mutex
	cache map[string]*forgeagent.Launcher
}

func newRoutedTaskRunner(cfg *config.Config, workDir string, router *routing.Router, defName string, def *forgeagent.Launcher) *routedTaskRunner {
	return &routedTaskRunner{
		cfg: cfg, workDir: workDir, router: router, def: def, defName: defName,
		cache: map[string]*forgeagent.Launcher{defName: def},
	}
}

func (r *routedTaskRunner) RunTask(ctx context.Context, task *team.AgentTask) ([]string, error) {
	modelCfg := r.router.ModelForPhase(strings.ToUpper(string(task.Role)))
	adapter := modelCfg.Adapter
	if adapter == "" || adapter == r.defName {
		return r.def.RunTask(ctx, task)
	}

	launcher, err := r.launcherFor(adapter, modelCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("routing: resolve agent %q for task role %s: %w", adapter, task.Role, err)
	}
	return launcher.RunTask(ctx, task)
}

func (r *routedTaskRunner) launcherFor(adapter, model string) (*forgeagent.Launcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.cache[adapter]; ok {
		return l, nil
	}
	l, err := buildLauncher(r.cfg, adapter, model, r.workDir)
	if err != nil {
		return nil, err
	}
	r.cache[adapter] = l
	return l, nil
}

var _ team.TaskRunner = (*routedTaskRunner)(nil)
