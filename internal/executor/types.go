// Package executor implements the Phase Executor: the component that
// drives one phase to a definite result by repeatedly invoking the agent CLI,
// feeding back pivots and blockers, enforcing the iteration budget, and
// recursing into sub-phases. It is grounded on the iteration loop shape of
// agentium's internal/controller/phase_loop.go (runPhaseLoop), replacing its
// GitHub-issue/reviewer/judge machinery with a signal-driven Decide step.
package executor

import (
	"context"
	"time"

	"github.com/forgehq/forge/internal/observability"
)

// AgentLauncher is the external collaborator that actually runs the agent CLI
// child process for one iteration. Concrete
// implementations live in internal/agent; the executor only depends on this
// narrow interface, consistent with the agent CLI being deliberately out of
// the core's scope.
type AgentLauncher interface {
	// Invoke runs one iteration with the given prompt and returns the
	// streamed output lines in emission order.
	Invoke(ctx context.Context, prompt string, iteration int) ([]string, error)
}

// EventKind enumerates the kinds of events the executor emits to its sink.
type EventKind string

const (
	EventProgress       EventKind = "progress"
	EventBlocker        EventKind = "blocker"
	EventPivot          EventKind = "pivot"
	EventOutput         EventKind = "output"
	EventThinking       EventKind = "thinking"
	EventAction         EventKind = "action"
	EventErrorKind      EventKind = "error"
	EventPhaseStarted   EventKind = "phase_started"
	EventPhaseCompleted EventKind = "phase_completed"
	EventPhaseFailed    EventKind = "phase_failed"
	EventSubPhaseSpawn  EventKind = "subphase_spawned"
)

// Event is a single progress notification emitted during phase execution.
type Event struct {
	PhaseID   string
	Iteration int
	Kind      EventKind
	Content   string
	Metadata  map[string]string
	Timestamp time.Time
}

// Sink receives events as the executor produces them. Implementations MUST
// NOT block the executor for long; a slow sink should buffer internally.
type Sink interface {
	Emit(Event)
}

// NoopSink discards every event; useful as a default when no subscriber sink
// is wired.
type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// Config bundles an executor's external dependencies and tunables.
type Config struct {
	Launcher AgentLauncher
	Sink     Sink

	// IterationTimeout bounds a single agent invocation's wall time.
	IterationTimeout time.Duration

	// MaxRetries is the bounded retry count for a nonzero agent exit
	// before the iteration counts as failed.
	MaxRetries int

	// ExtraContext is the opaque skills/context section appended to every
	// prompt, supplied by collaborators outside the core.
	ExtraContext string

	// StallWindow and BlockerThreshold size the tracker RunPhase builds for
	// each dispatched phase; zero falls back to the tracker package's
	// defaults.
	StallWindow      int
	BlockerThreshold int

	// PivotPrompt overrides the default "STRATEGY CHANGE" directive header
	// injected into the next prompt after a pivot signal; empty keeps the default text.
	PivotPrompt string

	// Tracer receives a trace spanning the phase and one span per iteration,
	// with the iteration's agent invocation recorded as a generation; nil
	// falls back to a no-op tracer.
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

func (c *Config) iterationTimeout() time.Duration {
	if c.IterationTimeout <= 0 {
		return 10 * time.Minute
	}
	return c.IterationTimeout
}

func (c *Config) maxRetries() int {
	if c.MaxRetries < 0 {
		return 1
	}
	return c.MaxRetries
}
