package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	forgeagent "github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/agent/event"
	"github.com/forgehq/forge/internal/cloud/gcp"
	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/dag"
	"github.com/forgehq/forge/internal/executor"
	"github.com/forgehq/forge/internal/manifest"
	"github.com/forgehq/forge/internal/observability"
	"github.com/forgehq/forge/internal/phase"
	"github.com/forgehq/forge/internal/routing"
)

// loadManifest reads and parses a phase manifest file.
func loadManifest(path string) ([]phase.Phase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	phases, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return phases, nil
}

// buildLauncher resolves agentName through the adapter registry and wires it
// into a fresh agent.Launcher rooted at workDir, with audit logging attached
// whenever the workdir is writable.
func buildLauncher(cfg *config.Config, agentName, model, workDir string) (*forgeagent.Launcher, error) {
	ag, err := forgeagent.Get(agentName)
	if err != nil {
		return nil, fmt.Errorf("resolve agent %q: %w", agentName, err)
	}

	session := &forgeagent.Session{
		ID:         fmt.Sprintf("forge-%s", uuid.New().String()[:8]),
		Repository: cfg.Project.Repository,
		WorkDir:    workDir,
	}
	if model != "" {
		session.IterationContext = &forgeagent.IterationContext{ModelOverride: model}
	}

	launcher := &forgeagent.Launcher{
		Agent:   ag,
		Runner:  forgeagent.DockerRunner{WorkDir: workDir},
		Session: session,
	}
	if auditSink, err := event.NewFileSink(filepath.Join(workDir, ".forge-audit.jsonl")); err == nil {
		launcher.AuditSink = auditSink
	}
	return launcher, nil
}

// buildExecutor resolves the configured agent adapter and wires it through
// agent.Launcher into a fresh Executor sized from cfg.Run.
func buildExecutor(cfg *config.Config, agentName, workDir string, sink executor.Sink, tracer observability.Tracer) (*executor.Executor, error) {
	if agentName == "" {
		agentName = cfg.Session.Agent
	}
	launcher, err := buildLauncher(cfg, agentName, "", workDir)
	if err != nil {
		return nil, err
	}

	return executor.New(&executor.Config{
		Launcher:         launcher,
		Sink:             sink,
		IterationTimeout: time.Duration(cfg.Run.IterationTimeoutSecs) * time.Second,
		StallWindow:      cfg.Run.StallWindow,
		BlockerThreshold: cfg.Run.BlockerThreshold,
		PivotPrompt:      cfg.Run.PivotPrompt,
		Tracer:           tracer,
	}), nil
}

// buildTracer constructs the observability tracer that phase and agent-team
// execution trace through. It checks LANGFUSE_PUBLIC_KEY/LANGFUSE_SECRET_KEY
// first, then falls back to fetching the keys named by cfg.Langfuse's secret
// paths from GCP Secret Manager; any missing or unreachable credential
// source just falls back to a no-op tracer rather than failing the command.
func buildTracer(ctx context.Context, cfg *config.Config, logger *log.Logger) observability.Tracer {
	if os.Getenv("LANGFUSE_ENABLED") == "false" {
		return &observability.NoOpTracer{}
	}

	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")

	if publicKey == "" || secretKey == "" {
		pubPath := cfg.Langfuse.PublicKeySecret
		secPath := cfg.Langfuse.SecretKeySecret
		if pubPath == "" || secPath == "" {
			return &observability.NoOpTracer{}
		}

		client, err := gcp.NewSecretManagerClient(ctx)
		if err != nil {
			logger.Printf("Langfuse: secret manager unavailable: %v", err)
			return &observability.NoOpTracer{}
		}
		defer func() { _ = client.Close() }()

		publicKey, err = client.FetchSecret(ctx, pubPath)
		if err != nil {
			logger.Printf("Langfuse: failed to fetch public key from %s: %v", pubPath, err)
			return &observability.NoOpTracer{}
		}
		secretKey, err = client.FetchSecret(ctx, secPath)
		if err != nil {
			logger.Printf("Langfuse: failed to fetch secret key from %s: %v", secPath, err)
			return &observability.NoOpTracer{}
		}
		publicKey = strings.TrimSpace(publicKey)
		secretKey = strings.TrimSpace(secretKey)
	}

	if publicKey == "" || secretKey == "" {
		return &observability.NoOpTracer{}
	}

	baseURL := os.Getenv("LANGFUSE_BASE_URL")
	if baseURL == "" {
		baseURL = cfg.Langfuse.BaseURL
	}

	tracer := observability.NewLangfuseTracer(observability.LangfuseConfig{
		PublicKey: publicKey,
		SecretKey: secretKey,
		BaseURL:   baseURL,
	}, logger)
	logger.Printf("Langfuse: tracer initialized (base_url=%s)", tracer.BaseURL())
	return tracer
}

// resolveAgent returns the agent adapter name for phaseID: an explicit
// router override for the phase wins, then the --agent flag, then
// cfg.Session.Agent. Override keys are matched uppercase, mirroring
// config.normalizeRoutingKeys.
func resolveAgent(router *routing.Router, phaseID, flagAgent, defaultAgent string) string {
	if router != nil {
		if cfg := router.ModelForPhase(strings.ToUpper(phaseID)); cfg.Adapter != "" {
			return cfg.Adapter
		}
	}
	if flagAgent != "" {
		return flagAgent
	}
	return defaultAgent
}

// routedRunner adapts dag.PhaseRunner so the DAG Scheduler dispatches each
// phase to the agent/model routing.Router resolves for it, building one
// Executor per distinct resolved adapter and caching it for reuse across
// phases. Phases with no override fall back to a pre-built default
// Executor, so an unknown --agent still fails fast at startup instead of
// lazily mid-run.
type routedRunner struct {
	cfg     *config.Config
	workDir string
	sink    executor.Sink
	tracer  observability.Tracer
	router  *routing.Router
	def     *executor.Executor
	defName string

	mu    sync.Mutex
	cache map[string]*executor.Executor
}

func newRoutedRunner(cfg *config.Config, workDir string, sink executor.Sink, tracer observability.Tracer, router *routing.Router, def *executor.Executor, defName string) *routedRunner {
	return &routedRunner{
		cfg: cfg, workDir: workDir, sink: sink, tracer: tracer,
		router: router, def: def, defName: defName,
		cache: map[string]*executor.Executor{defName: def},
	}
}

func (r *routedRunner) RunPhase(ctx context.Context, p phase.Phase) phase.Result {
	cfg := r.router.ModelForPhase(strings.ToUpper(p.ID))
	adapter := cfg.Adapter
	if adapter == "" || adapter == r.defName {
		return r.def.RunPhase(ctx, p)
	}

	exec, err := r.executorFor(adapter, cfg.Model)
	if err != nil {
		return phase.Failure(p.ID, 0, 0, fmt.Sprintf("routing: resolve agent %q for phase %s: %v", adapter, p.ID, err))
	}
	return exec.RunPhase(ctx, p)
}

func (r *routedRunner) executorFor(adapter, model string) (*executor.Executor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exec, ok := r.cache[adapter]; ok {
		return exec, nil
	}
	launcher, err := buildLauncher(r.cfg, adapter, model, r.workDir)
	if err != nil {
		return nil, err
	}
	exec := executor.New(&executor.Config{
		Launcher:         launcher,
		Sink:             r.sink,
		IterationTimeout: time.Duration(r.cfg.Run.IterationTimeoutSecs) * time.Second,
		StallWindow:      r.cfg.Run.StallWindow,
		BlockerThreshold: r.cfg.Run.BlockerThreshold,
		PivotPrompt:      r.cfg.Run.PivotPrompt,
		Tracer:           r.tracer,
	})
	r.cache[adapter] = exec
	return exec, nil
}

var _ dag.PhaseRunner = (*routedRunner)(nil)

// exitCodeFor maps a run's terminal condition to the CLI exit codes.
func exitCodeFor(ctx context.Context, anyFailed bool) int {
	if ctx.Err() != nil {
		return ExitCancelled
	}
	if anyFailed {
		return ExitFailure
	}
	return ExitSuccess
}
