package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forgehq/forge/internal/dag"
	"github.com/forgehq/forge/internal/observability"
	"github.com/forgehq/forge/internal/phase"
	"github.com/forgehq/forge/internal/signal"
	"github.com/forgehq/forge/internal/tracker"
)

var _ dag.PhaseRunner = (*Executor)(nil)

// Executor drives phases to completion. A single Executor value may be
// reused across phases; it holds no per-phase state itself.
type Executor struct {
	cfg *Config
}

// New creates an Executor from the given configuration.
func New(cfg *Config) *Executor {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Executor{cfg: cfg}
}

// Run drives p to a definite Result, sharing tr with any sub-phases it
// spawns so stall/blocker diagnosis state carries across the recursion per
// sub-phase semantics. now is injected so tests can control wall-time
// measurement deterministically.
func (e *Executor) Run(ctx context.Context, p phase.Phase, tr *tracker.Tracker, now func() time.Time) phase.Result {
	if now == nil {
		now = time.Now
	}
	start := now()
	sink := e.cfg.sink()
	tracer := e.cfg.tracer()

	sink.Emit(Event{PhaseID: p.ID, Kind: EventPhaseStarted, Timestamp: now()})
	trace := tracer.StartTrace(p.ID, observability.TraceOptions{Workflow: p.Name})

	var (
		feedback     string
		pendingPivot string
		subCount     int
		lastErrNote  string
	)

	for iteration := 1; ; iteration++ {
		select {
		case <-ctx.Done():
			tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "cancelled"})
			return phase.Result{PhaseID: p.ID, Outcome: phase.OutcomeFailure, Diagnosis: "cancelled", IterationsConsumed: iteration - 1, WallTime: elapsed(start, now)}
		default:
		}

		span := tracer.StartPhase(trace, p.Name, observability.SpanOptions{Iteration: iteration, MaxIterations: p.Budget})
		iterStart := now()

		prompt := buildPrompt(p, iteration, feedback, e.cfg.ExtraContext)
		lines, errNote := e.invoke(ctx, prompt, iteration)
		if errNote != "" {
			lastErrNote = errNote
		}

		genStatus := "completed"
		if errNote != "" {
			genStatus = "error"
		}
		tracer.RecordGeneration(span, observability.GenerationInput{
			Name:       "Worker",
			Input:      prompt,
			Output:     strings.Join(lines, "\n"),
			Status:     genStatus,
			DurationMs: now().Sub(iterStart).Milliseconds(),
		})

		is := signal.Extract(lines)
		e.emitSignals(sink, p.ID, iteration, is, now)

		result, done := e.decide(p, tr, is, iteration, &feedback, &pendingPivot, &subCount, sink, ctx, now)

		spanStatus := "completed"
		if done && result.Outcome == phase.OutcomeFailure {
			spanStatus = "failed"
		}
		tracer.EndPhase(span, spanStatus, now().Sub(iterStart).Milliseconds())

		if done {
			result.WallTime = elapsed(start, now)
			if result.Outcome == phase.OutcomeFailure && lastErrNote != "" {
				result.Diagnosis = fmt.Sprintf("%s (last agent error: %s)", result.Diagnosis, lastErrNote)
			}
			if result.Outcome == phase.OutcomeSuccess {
				sink.Emit(Event{PhaseID: p.ID, Iteration: iteration, Kind: EventPhaseCompleted, Timestamp: now()})
				tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "completed"})
			} else {
				sink.Emit(Event{PhaseID: p.ID, Iteration: iteration, Kind: EventPhaseFailed, Content: result.Diagnosis, Timestamp: now()})
				tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "failed"})
			}
			return result
		}
	}
}

// RunPhase adapts Run to the dag.PhaseRunner interface (RunPhase(ctx, p)
// phase.Result) the DAG Scheduler depends on: it builds a fresh tracker
// sized from the executor's own configuration and uses the wall clock, so
// each dispatched phase gets independent stall/blocker history.
func (e *Executor) RunPhase(ctx context.Context, p phase.Phase) phase.Result {
	tr := tracker.New(e.cfg.StallWindow, e.cfg.BlockerThreshold)
	return e.Run(ctx, p, tr, time.Now)
}

// decide implements the Deciding branch priority chain. Exactly one
// branch fires per iteration. It returns (result, true) when the phase has
// reached a terminal outcome, or (zero, false) to continue iterating — in
// which case *feedback has been updated for the next iteration's prompt.
func (e *Executor) decide(
	p phase.Phase,
	tr *tracker.Tracker,
	is signal.IterationSignals,
	iteration int,
	feedback *string,
	pendingPivot *string,
	subCount *int,
	sink Sink,
	ctx context.Context,
	now func() time.Time,
) (phase.Result, bool) {
	// 1. Promise match.
	if token, ok := is.PromiseToken(); ok && token == p.Promise {
		return phase.Success(p.ID, iteration, 0, ""), true
	}

	pct, hasPct := is.LatestProgress()
	var pctPtr *int
	if hasPct {
		pctPtr = &pct
	}

	// 2. Stall.
	if tr.Record(iteration, pctPtr) {
		diag := fmt.Sprintf("Stalled at %d%%: no progress for %d consecutive iterations", pct, tr.StallWindow)
		return phase.Failure(p.ID, iteration, 0, diag), true
	}

	// 3. Blocker escalation.
	if desc, escalated := tr.RecordBlockers(is); escalated {
		diag := fmt.Sprintf("Unresolved blocker after %d iterations: %q", tr.BlockerThreshold, desc)
		return phase.Failure(p.ID, iteration, 0, diag), true
	}

	// 4. Pivot.
	if approach, ok := is.LatestPivot(); ok {
		sink.Emit(Event{PhaseID: p.ID, Iteration: iteration, Kind: EventPivot, Content: approach, Timestamp: now()})
		*feedback = buildFeedback(is, approach, e.cfg.PivotPrompt)
		*pendingPivot = ""
		return phase.Result{}, false
	}

	// 5. Spawn sub-phase, budget permitting.
	if spawns := is.SpawnSubPhases(); len(spawns) > 0 {
		remaining := p.Budget - iteration
		for _, sp := range spawns {
			if remaining < sp.SpawnBudget {
				continue
			}
			*subCount++
			subPhase := phase.Phase{
				ID:       fmt.Sprintf("%s.%d", p.ID, *subCount),
				Name:     sp.SpawnName,
				Promise:  sp.SpawnPromise,
				Budget:   sp.SpawnBudget,
				ParentID: p.ID,
			}
			sink.Emit(Event{PhaseID: p.ID, Iteration: iteration, Kind: EventSubPhaseSpawn, Content: subPhase.ID, Timestamp: now()})
			subResult := e.Run(ctx, subPhase, tr, now)
			remaining -= subResult.IterationsConsumed
			if subResult.Outcome == phase.OutcomeFailure && remaining <= 0 {
				return phase.Failure(p.ID, iteration+subResult.IterationsConsumed, 0, subResult.Diagnosis), true
			}
		}
		*feedback = buildFeedback(is, "", "")
		return phase.Result{}, false
	}

	// 6. Continue with default feedback.
	if iteration < p.Budget {
		*feedback = buildFeedback(is, "", "")
		return phase.Result{}, false
	}

	// 7. Budget exhausted.
	return phase.Failure(p.ID, iteration, 0, tr.FailureDiagnosis(pctPtr)), true
}

// invoke runs one iteration via the launcher with a bounded wall timeout and
// a bounded retry count on error. On exhausted retries it returns an empty
// line set plus a short diagnostic note instead of failing the phase
// outright — the Decide step treats the iteration like one with no signals.
func (e *Executor) invoke(ctx context.Context, prompt string, iteration int) ([]string, string) {
	attempts := e.cfg.maxRetries() + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		ictx, cancel := context.WithTimeout(ctx, e.cfg.iterationTimeout())
		lines, err := e.cfg.Launcher.Invoke(ictx, prompt, iteration)
		cancel()
		if err == nil {
			return lines, ""
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, ""
	}
	return nil, lastErr.Error()
}

func (e *Executor) emitSignals(sink Sink, phaseID string, iteration int, is signal.IterationSignals, now func() time.Time) {
	for _, s := range is.Signals {
		switch s.Kind {
		case signal.KindProgress:
			sink.Emit(Event{PhaseID: phaseID, Iteration: iteration, Kind: EventProgress, Content: fmt.Sprintf("%d%%", s.Percent), Timestamp: now()})
		case signal.KindBlocker:
			sink.Emit(Event{PhaseID: phaseID, Iteration: iteration, Kind: EventBlocker, Content: s.Description, Timestamp: now()})
		}
	}
	for _, ev := range is.Events {
		switch ev.Type {
		case signal.EventThinking:
			sink.Emit(Event{PhaseID: phaseID, Iteration: iteration, Kind: EventThinking, Content: ev.Content, Timestamp: now()})
		case signal.EventAction:
			sink.Emit(Event{PhaseID: phaseID, Iteration: iteration, Kind: EventAction, Content: ev.Content, Timestamp: now()})
		case signal.EventOutput:
			sink.Emit(Event{PhaseID: phaseID, Iteration: iteration, Kind: EventOutput, Content: ev.Content, Timestamp: now()})
		case signal.EventError:
			sink.Emit(Event{PhaseID: phaseID, Iteration: iteration, Kind: EventErrorKind, Content: ev.Content, Timestamp: now()})
		}
	}
}

func elapsed(start time.Time, now func() time.Time) float64 {
	return now().Sub(start).Seconds()
}
