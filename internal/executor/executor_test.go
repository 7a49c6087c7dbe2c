package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forgehq/forge/internal/phase"
	"github.com/forgehq/forge/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLauncher replays one canned output per iteration, in order. The
// last entry repeats once the script is exhausted.
type scriptedLauncher struct {
	script [][]string
	calls  int
	errOn  map[int]error
}

func (s *scriptedLauncher) Invoke(ctx context.Context, prompt string, iteration int) ([]string, error) {
	s.calls++
	if s.errOn != nil {
		if err, ok := s.errOn[iteration]; ok {
			return nil, err
		}
	}
	idx := iteration - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return s.script[idx], nil
}

func fixedNow() func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestRunSucceedsOnPromiseMatch(t *testing.T) {
	launcher := &scriptedLauncher{script: [][]string{
		{"<progress>40%</progress>"},
		{"<promise>DONE</promise>"},
	}}
	e := New(&Config{Launcher: launcher})
	p := phase.Phase{ID: "01", Name: "implement", Promise: "DONE", Budget: 5}
	tr := tracker.New(3, 2)

	result := e.Run(context.Background(), p, tr, fixedNow())

	require.Equal(t, phase.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.IterationsConsumed)
}

func TestRunDetectsStall(t *testing.T) {
	launcher := &scriptedLauncher{script: [][]string{
		{"<progress>50%</progress>"},
		{"<progress>50%</progress>"},
		{"<progress>50%</progress>"},
	}}
	e := New(&Config{Launcher: launcher})
	p := phase.Phase{ID: "01", Name: "implement", Promise: "DONE", Budget: 10}
	tr := tracker.New(3, 2)

	result := e.Run(context.Background(), p, tr, fixedNow())

	require.Equal(t, phase.OutcomeFailure, result.Outcome)
	assert.Equal(t, "Stalled at 50%: no progress for 3 consecutive iterations", result.Diagnosis)
	assert.Equal(t, 3, result.IterationsConsumed)
}

func TestRunEscalatesUnresolvedBlocker(t *testing.T) {
	launcher := &scriptedLauncher{script: [][]string{
		{`<blocker>Need API key</blocker>`},
		{`<blocker>Need API key</blocker>`},
	}}
	e := New(&Config{Launcher: launcher})
	p := phase.Phase{ID: "01", Name: "implement", Promise: "DONE", Budget: 10}
	tr := tracker.New(3, 2)

	result := e.Run(context.Background(), p, tr, fixedNow())

	require.Equal(t, phase.OutcomeFailure, result.Outcome)
	assert.Equal(t, `Unresolved blocker after 2 iterations: "Need API key"`, result.Diagnosis)
}

func TestRunInjectsPivotThenSucceeds(t *testing.T) {
	launcher := &scriptedLauncher{script: [][]string{
		{"<progress>30%</progress>"},
		{`<pivot>switch to a simpler data structure</pivot>`},
		{"<promise>DONE</promise>"},
	}}
	e := New(&Config{Launcher: launcher})
	p := phase.Phase{ID: "01", Name: "implement", Promise: "DONE", Budget: 10}
	tr := tracker.New(3, 2)

	result := e.Run(context.Background(), p, tr, fixedNow())

	require.Equal(t, phase.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 3, result.IterationsConsumed)
}

func TestRunFailsOnBudgetExhaustion(t *testing.T) {
	launcher := &scriptedLauncher{script: [][]string{
		{"<progress>20%</progress>"},
		{"<progress>45%</progress>"},
		{"<progress>80%</progress>"},
	}}
	e := New(&Config{Launcher: launcher})
	p := phase.Phase{ID: "01", Name: "implement", Promise: "DONE", Budget: 3}
	tr := tracker.New(3, 2)

	result := e.Run(context.Background(), p, tr, fixedNow())

	require.Equal(t, phase.OutcomeFailure, result.Outcome)
	assert.Contains(t, result.Diagnosis, "budget exhausted: last reported progress: 80%")
	assert.Equal(t, 3, result.IterationsConsumed)
}

func TestRunRetriesOnAgentError(t *testing.T) {
	launcher := &scriptedLauncher{
		script: [][]string{{"<promise>DONE</promise>"}},
		errOn:  map[int]error{1: errors.New("exit status 1")},
	}
	e := New(&Config{Launcher: launcher, MaxRetries: 1})
	p := phase.Phase{ID: "01", Name: "implement", Promise: "DONE", Budget: 5}
	tr := tracker.New(3, 2)

	result := e.Run(context.Background(), p, tr, fixedNow())

	require.Equal(t, phase.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, launcher.calls)
}

func TestRunSpawnsSubPhaseAndContinues(t *testing.T) {
	launcher := &scriptedLauncher{script: [][]string{
		{`<spawn_subphase>{"name":"fix flaky test","promise":"FIXED","budget":2,"reasoning":"isolated failure"}</spawn_subphase>`},
		{"<promise>SUBDONE</promise>"},
		{"<promise>DONE</promise>"},
	}}
	e := New(&Config{Launcher: launcher})
	p := phase.Phase{ID: "01", Name: "implement", Promise: "DONE", Budget: 10}
	tr := tracker.New(3, 2)

	result := e.Run(context.Background(), p, tr, fixedNow())

	require.Equal(t, phase.OutcomeSuccess, result.Outcome)
}

type countingSink struct {
	events []Event
}

func (c *countingSink) Emit(e Event) { c.events = append(c.events, e) }

func TestRunEmitsLifecycleEvents(t *testing.T) {
	launcher := &scriptedLauncher{script: [][]string{{"<promise>DONE</promise>"}}}
	sink := &countingSink{}
	e := New(&Config{Launcher: launcher, Sink: sink})
	p := phase.Phase{ID: "01", Name: "implement", Promise: "DONE", Budget: 5}
	tr := tracker.New(3, 2)

	e.Run(context.Background(), p, tr, fixedNow())

	require.NotEmpty(t, sink.events)
	assert.Equal(t, EventPhaseStarted, sink.events[0].Kind)
	assert.Equal(t, EventPhaseCompleted, sink.events[len(sink.events)-1].Kind)
}
