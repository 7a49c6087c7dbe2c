package factory

import (
	"time"

	"github.com/forgehq/forge/internal/dag"
	"github.com/forgehq/forge/internal/phase"
)

// DAGSink adapts the event Hub to dag.EventSink, so a `forge run` invocation
// against a phase manifest can publish the same pipeline_phase_* messages a
// Factory-mode issue run would, over the one Hub.
type DAGSink struct {
	Hub   *Hub
	RunID string
}

func (s DAGSink) Emit(e dag.WaveEvent) {
	msg := Message{
		RunID:     s.RunID,
		Phase:     e.PhaseID,
		Timestamp: time.Now(),
	}
	switch e.Kind {
	case "phase_dispatched":
		msg.Kind = MsgPipelinePhaseStarted
	case "phase_completed":
		msg.Kind = MsgPipelinePhaseDone
		msg.Success = e.Result != nil && e.Result.Outcome == phase.OutcomeSuccess
	case "phase_failed":
		msg.Kind = MsgPipelinePhaseDone
		msg.Success = false
		if e.Result != nil {
			msg.Error = e.Result.Diagnosis
		}
	case "phase_skipped":
		msg.Kind = MsgPipelinePhaseDone
		msg.Success = false
		msg.Error = "skipped"
	default:
		msg.Kind = MessageKind(e.Kind)
	}
	s.Hub.Broadcast(msg)
}
