package team

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forgehq/forge/internal/observability"
)

// Verifier runs one verification-wave check (test/build or browser) in the
// shared workspace and reports its result.
type Verifier interface {
	Verify(ctx context.Context, team *AgentTeam, projectPath string) (kind string, passed bool, summary string, artefacts []string)
}

// VisualVerifier is the optional capability a Verifier implements to mark
// itself as a browser-driven check. RunVerification skips these when the
// team's plan set SkipVisualVerification, instead of running every
// configured verifier unconditionally.
type VisualVerifier interface {
	Verifier
	Visual() bool
}

// Config bundles an Executor's collaborators and tunables.
type Config struct {
	Runner      TaskRunner
	Workspace   WorkspaceManager
	Git         GitCollaborator
	Sink        Sink
	Verifiers   []Verifier // conditional ones are skipped per AgentTeam.SkipVisualVerification
	ProjectPath string

	// Tracer receives one trace per run, one span per task, and the task's
	// agent invocation recorded as a generation; nil falls back to a no-op
	// tracer.
	Tracer observability.Tracer
}

func (c *Config) sink() Sink {
	if c.Sink == nil {
		return NoopSink{}
	}
	return c.Sink
}

func (c *Config) tracer() observability.Tracer {
	if c.Tracer == nil {
		return &observability.NoOpTracer{}
	}
	return c.Tracer
}

// Executor drives one AgentTeam's waves to completion.
type Executor struct {
	cfg *Config
}

// New creates an Executor from cfg.
func New(cfg *Config) *Executor {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Executor{cfg: cfg}
}

// Run executes every wave of team in order, merging worktree branches
// between waves. It returns nil on full success, or the first encountered
// error (including *MergeConflictError) otherwise.
func (e *Executor) Run(ctx context.Context, team *AgentTeam, integrationBranch string, issue Issue) error {
	sink := e.cfg.sink()
	tracer := e.cfg.tracer()

	sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventTeamCreated, Content: team.PlanSummary})
	trace := tracer.StartTrace(team.RunID, observability.TraceOptions{Workflow: team.PlanSummary, SessionID: team.ID})

	maxWave := team.MaxWave()
	for wave := 0; wave <= maxWave; wave++ {
		tasks := team.TasksInWave(wave)
		if len(tasks) == 0 {
			continue
		}

		if err := e.runWave(ctx, team, tasks, wave, integrationBranch, trace); err != nil {
			sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventPipelineFailed, Content: err.Error()})
			tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "failed"})
			return err
		}
	}

	sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventPipelineComplete})
	tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "completed"})
	return nil
}

// runWave dispatches all tasks in one wave concurrently, awaits them,
// merges any worktree branches, and reports the wave's outcome.
func (e *Executor) runWave(ctx context.Context, team *AgentTeam, tasks []*AgentTask, wave int, integrationBranch string, trace observability.TraceContext) error {
	sink := e.cfg.sink()

	taskIDs := make([]string, len(tasks))
	for i, t := range tasks {
		taskIDs[i] = t.ID
	}
	sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventWaveStarted, Wave: wave, Content: fmt.Sprintf("%v", taskIDs)})

	if err := e.prepareWorkspaces(ctx, tasks, integrationBranch); err != nil {
		return err
	}

	var g errgroup.Group
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			e.runTask(ctx, team, t, trace)
			return nil
		})
	}
	_ = g.Wait()

	successCount, failCount := 0, 0
	for _, t := range tasks {
		if t.Status == TaskCompleted {
			successCount++
		} else {
			failCount++
		}
	}
	sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventWaveCompleted, Wave: wave, SuccessCount: successCount, FailCount: failCount})

	if failCount > 0 {
		return fmt.Errorf("wave %d: %d of %d tasks failed", wave, failCount, len(tasks))
	}

	if usesWorktree(tasks) {
		if err := e.mergeWave(ctx, team, tasks, integrationBranch); err != nil {
			return err
		}
	}

	return nil
}

func usesWorktree(tasks []*AgentTask) bool {
	for _, t := range tasks {
		if t.Isolation == IsolationWorktree {
			return true
		}
	}
	return false
}

func (e *Executor) prepareWorkspaces(ctx context.Context, tasks []*AgentTask, integrationBranch string) error {
	if e.cfg.Workspace == nil {
		return nil
	}
	for _, t := range tasks {
		path, branch, err := e.cfg.Workspace.Prepare(ctx, t, integrationBranch)
		if err != nil {
			return fmt.Errorf("prepare workspace for task %s: %w", t.ID, err)
		}
		t.WorkspacePath = path
		t.BranchName = branch
	}
	return nil
}

func (e *Executor) runTask(ctx context.Context, team *AgentTeam, t *AgentTask, trace observability.TraceContext) {
	sink := e.cfg.sink()
	tracer := e.cfg.tracer()
	t.Status = TaskRunning
	t.StartedAt = time.Now()
	sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, TaskID: t.ID, Kind: EventTaskStarted})

	span := tracer.StartPhase(trace, string(t.Role)+":"+t.Name, observability.SpanOptions{
		Metadata: map[string]string{"task_id": t.ID, "wave": fmt.Sprint(t.Wave)},
	})

	taskCtx, cancel := context.WithTimeout(ctx, DefaultTaskTimeout)
	defer cancel()

	lines, err := e.cfg.Runner.RunTask(taskCtx, t)
	classifyAndEmit(sink, team.RunID, t.ID, lines)

	genStatus := "completed"
	if err != nil {
		genStatus = "error"
	}
	tracer.RecordGeneration(span, observability.GenerationInput{
		Name:   string(t.Role),
		Input:  t.Description,
		Output: strings.Join(lines, "\n"),
		Status: genStatus,
	})

	t.CompletedAt = time.Now()
	durationMs := t.CompletedAt.Sub(t.StartedAt).Milliseconds()

	if err != nil {
		t.Status = TaskFailed
		t.Error = err.Error()
		sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, TaskID: t.ID, Kind: EventTaskFailed, Content: err.Error()})
		tracer.EndPhase(span, "failed", durationMs)
		return
	}

	t.Status = TaskCompleted
	sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, TaskID: t.ID, Kind: EventTaskCompleted})
	tracer.EndPhase(span, "completed", durationMs)
}

// mergeWave integrates each worktree-isolated task's branch into the
// integration branch in declaration order
func (e *Executor) mergeWave(ctx context.Context, team *AgentTeam, tasks []*AgentTask, integrationBranch string) error {
	sink := e.cfg.sink()
	sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventMergeStarted})

	for _, t := range tasks {
		if t.Isolation != IsolationWorktree {
			continue
		}
		if e.cfg.Git == nil {
			continue
		}
		if checker, ok := e.cfg.Workspace.(DirtyChecker); ok && !checker.Dirty(t.ID) {
			sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, TaskID: t.ID, Kind: EventMergeSkipped})
			if e.cfg.Workspace != nil {
				_ = e.cfg.Workspace.Cleanup(ctx, t)
			}
			continue
		}
		err := e.cfg.Git.Merge(ctx, e.cfg.ProjectPath, integrationBranch, t.BranchName)
		if err != nil {
			if conflict, ok := err.(*MergeConflictError); ok {
				sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventMergeConflict, Content: fmt.Sprintf("%v", conflict.Files)})
			}
			return fmt.Errorf("merge task %s: %w", t.ID, err)
		}
		if e.cfg.Workspace != nil {
			_ = e.cfg.Workspace.Cleanup(ctx, t)
		}
	}

	sink.Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventMergeCompleted})
	return nil
}

// RunVerification executes the verification wave: every configured
// verifier runs concurrently against the shared workspace, except
// VisualVerifiers, which are skipped when team.SkipVisualVerification is
// set. It returns false if any verifier that ran reports a failing result.
func (e *Executor) RunVerification(ctx context.Context, team *AgentTeam) bool {
	verifiers := e.activeVerifiers(team)
	if len(verifiers) == 0 {
		return true
	}
	sink := e.cfg.sink()

	var g errgroup.Group
	var mu sync.Mutex
	allPassed := true

	for _, v := range verifiers {
		v := v
		g.Go(func() error {
			kind, passed, summary, artefacts := v.Verify(ctx, team, e.cfg.ProjectPath)
			sink.Emit(Event{
				RunID: team.RunID, TeamID: team.ID, Kind: EventVerification,
				VerificationType: kind, Passed: passed, Content: summary, Artefacts: artefacts,
			})
			mu.Lock()
			if !passed {
				allPassed = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return allPassed
}

// activeVerifiers drops every VisualVerifier from the configured list when
// the team's plan requested skip_visual_verification.
func (e *Executor) activeVerifiers(team *AgentTeam) []Verifier {
	if !team.SkipVisualVerification {
		return e.cfg.Verifiers
	}
	active := make([]Verifier, 0, len(e.cfg.Verifiers))
	for _, v := range e.cfg.Verifiers {
		if visual, ok := v.(VisualVerifier); ok && visual.Visual() {
			continue
		}
		active = append(active, v)
	}
	return active
}

// RequestPullRequest opens the run's pull request via the configured git
// collaborator once every wave and the verification wave have passed. It is
// a no-op returning ("", nil) when no GitCollaborator is configured.
func (e *Executor) RequestPullRequest(ctx context.Context, team *AgentTeam, integrationBranch string, issue Issue) (string, error) {
	if e.cfg.Git == nil {
		return "", nil
	}
	url, err := e.cfg.Git.CreatePullRequest(ctx, e.cfg.ProjectPath, integrationBranch, issue)
	if err != nil {
		return "", fmt.Errorf("create pull request: %w", err)
	}
	e.cfg.sink().Emit(Event{RunID: team.RunID, TeamID: team.ID, Kind: EventPullRequest, Content: url})
	return url, nil
}
