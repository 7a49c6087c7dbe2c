// Package signal converts raw agent output lines into a typed stream of
// signals and auxiliary events. It is grounded on the regex-tag parsing idiom
// of agentium's internal/memory/signals.go, generalized from the fixed
// AGENTIUM_MEMORY line prefix to Forge's inline <tag>...</tag> vocabulary.
package signal

// Kind enumerates the closed set of signal variants the extractor can emit.
type Kind string

const (
	KindProgress       Kind = "progress"
	KindBlocker        Kind = "blocker"
	KindPivot          Kind = "pivot"
	KindPromise        Kind = "promise"
	KindSpawnSubPhase  Kind = "spawn_subphase"
)

// Signal is a single tagged value extracted from one line of agent output.
type Signal struct {
	Kind Kind

	// Progress
	Percent int

	// Blocker
	Description  string
	Acknowledged bool

	// Pivot
	NewApproach string

	// Promise
	Token string

	// SpawnSubPhase
	SpawnName      string
	SpawnPromise   string
	SpawnBudget    int
	SpawnReasoning string
}

// EventType enumerates the non-signal event kinds produced alongside signals.
// These matter to the Agent-Team Executor for streaming to subscribers;
// the Iteration Tracker ignores them entirely.
type EventType string

const (
	EventThinking EventType = "thinking"
	EventAction   EventType = "action"
	EventOutput   EventType = "output"
	EventError    EventType = "error"
)

// Event is a non-signal observation derived from one line of agent output.
type Event struct {
	Type     EventType
	Content  string
	Metadata map[string]string
}

// IterationSignals holds every signal and event produced by one agent
// invocation, in the textual order they were emitted, plus the indexed
// accessors the Phase Executor and Iteration Tracker consult.
type IterationSignals struct {
	Signals []Signal
	Events  []Event
}

// LatestProgress returns the last Progress signal's percent in this
// iteration, and whether one was present. Only the latest progress value
// within an iteration is what the tracker records.
func (is IterationSignals) LatestProgress() (int, bool) {
	found := false
	pct := 0
	for _, s := range is.Signals {
		if s.Kind == KindProgress {
			pct = s.Percent
			found = true
		}
	}
	return pct, found
}

// LatestPivot returns the last Pivot signal's new-approach text, if any.
func (is IterationSignals) LatestPivot() (string, bool) {
	found := false
	approach := ""
	for _, s := range is.Signals {
		if s.Kind == KindPivot {
			approach = s.NewApproach
			found = true
		}
	}
	return approach, found
}

// UnacknowledgedBlockers returns all Blocker signals from this iteration that
// are not marked acknowledged, in emission order.
func (is IterationSignals) UnacknowledgedBlockers() []Signal {
	var out []Signal
	for _, s := range is.Signals {
		if s.Kind == KindBlocker && !s.Acknowledged {
			out = append(out, s)
		}
	}
	return out
}

// PromiseToken returns the token carried by the last Promise signal seen, if
// any. The executor is responsible for comparing it to the phase's configured
// promise case-sensitively.
func (is IterationSignals) PromiseToken() (string, bool) {
	found := false
	token := ""
	for _, s := range is.Signals {
		if s.Kind == KindPromise {
			token = s.Token
			found = true
		}
	}
	return token, found
}

// SpawnSubPhases returns every well-formed SpawnSubPhase signal emitted this
// iteration, in emission order.
func (is IterationSignals) SpawnSubPhases() []Signal {
	var out []Signal
	for _, s := range is.Signals {
		if s.Kind == KindSpawnSubPhase {
			out = append(out, s)
		}
	}
	return out
}
