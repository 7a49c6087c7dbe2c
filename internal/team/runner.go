package team

import (
	"context"
	"time"

	"github.com/forgehq/forge/internal/signal"
)

// TaskRunner invokes the agent subprocess for one task, single-iteration
// semantics. It returns the raw output lines in emission order.
type TaskRunner interface {
	RunTask(ctx context.Context, task *AgentTask) ([]string, error)
}

// DefaultTaskTimeout is the per-agent-task wall clock limit.
const DefaultTaskTimeout = 10 * time.Minute

// classifyAndEmit parses a task's output lines into events and emits them to
// sink, applying throttling: thinking batched at most 2/sec, output
// buffered ~500ms, action and signal events emitted immediately. The
// throttling here is a best-effort pace limiter, not a precise token
// bucket — its purpose is to bound event volume, not to give exact
// inter-arrival timing guarantees.
func classifyAndEmit(sink Sink, runID, taskID string, lines []string) {
	var lastThinking, lastOutput time.Time

	for _, line := range lines {
		ev := classifyLine(line)
		switch ev.Type {
		case signal.EventThinking:
			if time.Since(lastThinking) < 500*time.Millisecond {
				continue
			}
			lastThinking = time.Now()
			sink.Emit(Event{RunID: runID, TaskID: taskID, Kind: EventThinking, Content: ev.Content})
		case signal.EventAction:
			sink.Emit(Event{RunID: runID, TaskID: taskID, Kind: EventAction, Content: ev.Content})
		case signal.EventOutput:
			if time.Since(lastOutput) < 500*time.Millisecond {
				continue
			}
			lastOutput = time.Now()
			sink.Emit(Event{RunID: runID, TaskID: taskID, Kind: EventOutput, Content: ev.Content})
		}
	}

	is := signal.Extract(lines)
	for _, s := range is.Signals {
		sink.Emit(Event{RunID: runID, TaskID: taskID, Kind: EventSignal, Content: signalSummary(s)})
	}
}

func signalSummary(s signal.Signal) string {
	switch s.Kind {
	case signal.KindProgress:
		return "progress"
	case signal.KindBlocker:
		return s.Description
	case signal.KindPivot:
		return s.NewApproach
	case signal.KindPromise:
		return s.Token
	case signal.KindSpawnSubPhase:
		return s.SpawnName
	default:
		return ""
	}
}

// classifyLine recognizes the structured JSON line shapes emitted by the
// agent CLI (thinking/tool_use/tool_result) and falls back to treating any
// other line as plain output.
func classifyLine(line string) signal.Event {
	for _, ev := range signal.Extract([]string{line}).Events {
		return ev
	}
	return signal.Event{Type: signal.EventOutput, Content: line}
}
