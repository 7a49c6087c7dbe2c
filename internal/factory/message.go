package factory

import (
	"time"

	"github.com/forgehq/forge/internal/team"
)

// MessageKind enumerates the Factory-mode event channel's message kinds
// (the table in "Event channel (Factory mode)"). The pipeline-level
// kinds are emitted directly by this package; the team/wave/task/verify
// kinds are relayed from internal/team's Event stream.
type MessageKind string

const (
	MsgPipelineStarted      MessageKind = "pipeline_started"
	MsgPipelineProgress     MessageKind = "pipeline_progress"
	MsgPipelineCompleted    MessageKind = "pipeline_completed"
	MsgPipelineFailed       MessageKind = "pipeline_failed"
	MsgPipelinePhaseStarted MessageKind = "pipeline_phase_started"
	MsgPipelinePhaseDone    MessageKind = "pipeline_phase_completed"
)

var teamKindToMessageKind = map[team.EventKind]MessageKind{
	team.EventTeamCreated:      "team_created",
	team.EventWaveStarted:      "wave_started",
	team.EventWaveCompleted:    "wave_completed",
	team.EventTaskStarted:      "agent_task_started",
	team.EventTaskCompleted:    "agent_task_completed",
	team.EventTaskFailed:       "agent_task_failed",
	team.EventThinking:         "agent_thinking",
	team.EventAction:           "agent_action",
	team.EventOutput:           "agent_output",
	team.EventSignal:           "agent_signal",
	team.EventMergeStarted:     "merge_started",
	team.EventMergeSkipped:     "merge_skipped",
	team.EventMergeCompleted:   "merge_completed",
	team.EventMergeConflict:    "merge_conflict",
	team.EventVerification:     "verification_result",
	team.EventPullRequest:      "pull_request_created",
	team.EventPipelineComplete: "pipeline_completed",
	team.EventPipelineFailed:   "pipeline_failed",
}

// Message is the wire shape published over the websocket event channel.
// Every message carries RunID for subscriber-side correlation; the rest of
// the fields are populated according to Kind, mirroring the payload each
// event kind carries.
type Message struct {
	RunID     string            `json:"run_id"`
	Kind      MessageKind       `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	TeamID    string            `json:"team_id,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
	Wave      int               `json:"wave,omitempty"`
	Phase     string            `json:"phase,omitempty"`
	Iteration int               `json:"iteration,omitempty"`
	Percent   int               `json:"percent,omitempty"`
	Success   bool              `json:"success,omitempty"`
	Passed    bool              `json:"passed,omitempty"`
	Strategy  string            `json:"strategy,omitempty"`
	Isolation string            `json:"isolation,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Content   string            `json:"content,omitempty"`
	Error     string            `json:"error,omitempty"`
	VerifType string            `json:"verification_type,omitempty"`
	Artefacts []string          `json:"artefacts,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Counts    map[string]int    `json:"counts,omitempty"`
}

// fromTeamEvent converts a team.Event into the Factory wire Message,
// tagging it with the owning run id.
func fromTeamEvent(runID string, e team.Event) Message {
	kind, ok := teamKindToMessageKind[e.Kind]
	if !ok {
		kind = MessageKind(e.Kind)
	}
	msg := Message{
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now(),
		TeamID:    e.TeamID,
		TaskID:    e.TaskID,
		Wave:      e.Wave,
		Content:   e.Content,
		Metadata:  e.Metadata,
		Passed:    e.Passed,
		VerifType: e.VerificationType,
		Artefacts: e.Artefacts,
	}
	if e.SuccessCount > 0 || e.FailCount > 0 {
		msg.Counts = map[string]int{"success": e.SuccessCount, "fail": e.FailCount}
	}
	return msg
}
