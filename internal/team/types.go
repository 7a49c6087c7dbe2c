// Package team implements the Agent-Team Executor: plans an issue
// into parallel AgentTasks grouped by wave, runs each wave with optional
// workspace isolation, merges worktree branches between waves, runs a final
// verification wave, and streams events to subscribers. It is grounded on
// agentium's internal/controller/subtask.go and orchestrator.go task-plan
// shape, replaced here with a wave/isolation/verification model.
package team

import "time"

// Strategy is the planner's chosen decomposition approach.
type Strategy string

const (
	StrategyParallel     Strategy = "parallel"
	StrategySequential   Strategy = "sequential"
	StrategyWavePipeline Strategy = "wave-pipeline"
	StrategyAdaptive     Strategy = "adaptive"
)

// Isolation is how a task's workspace is isolated from other tasks in the
// same wave.
type Isolation string

const (
	IsolationWorktree  Isolation = "worktree"
	IsolationContainer Isolation = "container"
	IsolationHybrid    Isolation = "hybrid"
	IsolationShared    Isolation = "shared"
)

// Role is the agent persona a task is assigned.
type Role string

const (
	RolePlanner         Role = "planner"
	RoleCoder           Role = "coder"
	RoleTester          Role = "tester"
	RoleReviewer        Role = "reviewer"
	RoleBrowserVerifier Role = "browser-verifier"
	RoleTestVerifier    Role = "test-verifier"
)

// TaskStatus is the lifecycle state of one AgentTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Issue is the unit of work a Team decomposes.
type Issue struct {
	Title       string
	Description string
	Labels      []string
}

// AgentTeam is the per-run plan materialised from the Planner's output.
type AgentTeam struct {
	ID          string
	RunID       string
	Strategy    Strategy
	Isolation   Isolation
	PlanSummary string
	Tasks       []*AgentTask

	// SkipVisualVerification carries the Plan's flag of the same name
	// through to the verification wave, which skips any VisualVerifier
	// when set.
	SkipVisualVerification bool
}

// AgentTask is one planned unit of parallel work within a team.
type AgentTask struct {
	ID          string
	TeamID      string
	Name        string
	Description string
	Role        Role
	Wave        int
	DependsOn   []string // persisted task ids, translated from plan indices
	Status      TaskStatus
	Isolation   Isolation
	WorkspacePath string
	BranchName    string
	StartedAt     time.Time
	CompletedAt   time.Time
	Error         string
}

// MaxWave returns the highest wave number assigned to any task, or -1 if
// there are no tasks.
func (t *AgentTeam) MaxWave() int {
	max := -1
	for _, task := range t.Tasks {
		if task.Wave > max {
			max = task.Wave
		}
	}
	return max
}

// TasksInWave returns every task assigned to wave, in declaration order.
func (t *AgentTeam) TasksInWave(wave int) []*AgentTask {
	var out []*AgentTask
	for _, task := range t.Tasks {
		if task.Wave == wave {
			out = append(out, task)
		}
	}
	return out
}

// PlannedTask is one task as returned by the Planner, before id
// materialisation — DependsOn here holds indices into the plan's task
// array, not persisted ids.
type PlannedTask struct {
	Name        string
	Role        Role
	Wave        int
	Description string
	Isolation   Isolation
	DependsOn   []int
}

// Plan is the Planner collaborator's structured output.
type Plan struct {
	Strategy               Strategy
	Isolation              Isolation
	Tasks                  []PlannedTask
	SkipVisualVerification bool
}

// FallbackPlan synthesises the single-sequential-coder plan used when the
// Planner fails (timeout, invalid JSON, empty task list).
func FallbackPlan(issue Issue) Plan {
	return Plan{
		Strategy:  StrategySequential,
		Isolation: IsolationShared,
		Tasks: []PlannedTask{{
			Name:        "Implement",
			Role:        RoleCoder,
			Wave:        0,
			Description: "Implement: " + issue.Title + "\n\n" + issue.Description,
			Isolation:   IsolationShared,
		}},
		SkipVisualVerification: true,
	}
}
