package cli

import (
	"fmt"
	"os"

	"github.com/forgehq/forge/internal/dag"
	"github.com/forgehq/forge/internal/executor"
)

// progressSink prints phase-level events to stderr. It implements both
// executor.Sink and dag.EventSink through separate methods since Go forbids
// overloading Emit by parameter type on one receiver.
type progressSink struct {
	verbose bool
}

func newProgressSink(verbose bool) *progressSink {
	return &progressSink{verbose: verbose}
}

// Emit satisfies executor.Sink.
func (p *progressSink) Emit(e executor.Event) {
	if !p.verbose {
		switch e.Kind {
		case executor.EventPhaseStarted, executor.EventPhaseCompleted, executor.EventPhaseFailed, executor.EventPivot, executor.EventBlocker:
		default:
			return
		}
	}
	fmt.Fprintf(os.Stderr, "[%s] iter %d %s %s\n", e.PhaseID, e.Iteration, e.Kind, e.Content)
}

// waveSink adapts progressSink's output to dag.EventSink so forge run can
// report wave-level dispatch events on the same stream.
type waveSink struct {
	*progressSink
}

func (w waveSink) Emit(e dag.WaveEvent) {
	diag := ""
	if e.Result != nil {
		diag = e.Result.Diagnosis
	}
	fmt.Fprintf(os.Stderr, "[%s] %s %s\n", e.PhaseID, e.Kind, diag)
}
