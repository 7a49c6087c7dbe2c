// Package phase holds the shared data model for a unit of engineering work:
// Phase, PhaseStatus, and PhaseResult. It is grounded on agentium's
// internal/controller.TaskPhase/TaskState shape, generalized from agentium's
// fixed PLAN/IMPLEMENT/DOCS/VERIFY vocabulary to Forge's manifest-defined,
// arbitrarily-named phases with explicit dependency ids.
package phase

import "fmt"

// Phase is a unit of engineering work identified by a stable string id (e.g.
// "01", "02.1" for a sub-phase spawned at runtime).
type Phase struct {
	ID         string
	Name       string
	Promise    string
	Budget     int
	PhaseType  string
	DependsOn  []string

	// ParentID is set on sub-phases spawned at runtime via SpawnSubPhase; it
	// is empty for top-level phases declared in the manifest.
	ParentID string
}

// Validate checks the invariants required at load time: a positive budget
// and a non-empty id/promise. Dependency existence and acyclicity are
// whole-graph properties checked by the dag package, not per-phase here.
func (p Phase) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("phase has empty id")
	}
	if p.Promise == "" {
		return fmt.Errorf("phase %s: promise is required", p.ID)
	}
	if p.Budget <= 0 {
		return fmt.Errorf("phase %s: budget must be positive, got %d", p.ID, p.Budget)
	}
	return nil
}

// Status is a tagged variant over the phase lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status never transitions further.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// Outcome is the binary result carried by a PhaseResult.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Result is produced per phase on completion (success or terminal failure).
type Result struct {
	PhaseID           string
	Outcome           Outcome
	Diagnosis         string // populated only on Failure
	IterationsConsumed int
	WallTime           float64 // seconds
	FileChangeSummary  string
}

// Success builds a successful Result.
func Success(phaseID string, iterations int, wallTime float64, fileChangeSummary string) Result {
	return Result{
		PhaseID:            phaseID,
		Outcome:            OutcomeSuccess,
		IterationsConsumed: iterations,
		WallTime:           wallTime,
		FileChangeSummary:  fileChangeSummary,
	}
}

// Failure builds a failed Result carrying a human-readable diagnosis.
func Failure(phaseID string, iterations int, wallTime float64, diagnosis string) Result {
	return Result{
		PhaseID:            phaseID,
		Outcome:            OutcomeFailure,
		Diagnosis:          diagnosis,
		IterationsConsumed: iterations,
		WallTime:           wallTime,
	}
}
