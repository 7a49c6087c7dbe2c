package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractProgress(t *testing.T) {
	is := Extract([]string{"<progress>42%</progress>"})
	pct, ok := is.LatestProgress()
	require.True(t, ok)
	assert.Equal(t, 42, pct)
}

func TestExtractProgressCapsAt100(t *testing.T) {
	is := Extract([]string{"<progress>250%</progress>"})
	pct, ok := is.LatestProgress()
	require.True(t, ok)
	assert.Equal(t, 100, pct)
}

func TestExtractProgressLatestWins(t *testing.T) {
	is := Extract([]string{"<progress>10%</progress>", "<progress>90%</progress>"})
	pct, ok := is.LatestProgress()
	require.True(t, ok)
	assert.Equal(t, 90, pct)
	require.Len(t, is.Signals, 2)
}

func TestExtractUnclosedTagExtendsToEndOfLine(t *testing.T) {
	is := Extract([]string{"<blocker>Need API key for billing"})
	require.Len(t, is.Signals, 1)
	assert.Equal(t, "Need API key for billing", is.Signals[0].Description)
}

func TestExtractMultipleSignalsPerLineInOrder(t *testing.T) {
	is := Extract([]string{"<progress>50%</progress> then <pivot>Use SQLite</pivot>"})
	require.Len(t, is.Signals, 2)
	assert.Equal(t, KindProgress, is.Signals[0].Kind)
	assert.Equal(t, KindPivot, is.Signals[1].Kind)
}

func TestExtractBlockerAlwaysUnacknowledged(t *testing.T) {
	is := Extract([]string{"<blocker>missing credentials</blocker>"})
	blockers := is.UnacknowledgedBlockers()
	require.Len(t, blockers, 1)
	assert.False(t, blockers[0].Acknowledged)
}

func TestExtractPromiseToken(t *testing.T) {
	is := Extract([]string{"<promise>DONE</promise>"})
	token, ok := is.PromiseToken()
	require.True(t, ok)
	assert.Equal(t, "DONE", token)
}

func TestExtractSpawnSubPhaseWellFormed(t *testing.T) {
	is := Extract([]string{`<spawn_subphase>{"name":"extra-tests","promise":"TESTED","budget":3,"reasoning":"coverage gap"}</spawn_subphase>`})
	spawns := is.SpawnSubPhases()
	require.Len(t, spawns, 1)
	assert.Equal(t, "extra-tests", spawns[0].SpawnName)
	assert.Equal(t, "TESTED", spawns[0].SpawnPromise)
	assert.Equal(t, 3, spawns[0].SpawnBudget)
}

func TestExtractSpawnSubPhaseMalformedEmitsErrorEvent(t *testing.T) {
	is := Extract([]string{`<spawn_subphase>{not json}</spawn_subphase>`})
	assert.Empty(t, is.SpawnSubPhases())
	require.Len(t, is.Events, 1)
	assert.Equal(t, EventError, is.Events[0].Type)
}

func TestExtractStructuredLines(t *testing.T) {
	is := Extract([]string{
		`{"type":"thinking","content":"considering approach"}`,
		`{"type":"tool_use","tool":"Edit","content":"main.go"}`,
	})
	require.Len(t, is.Events, 2)
	assert.Equal(t, EventThinking, is.Events[0].Type)
	assert.Equal(t, EventAction, is.Events[1].Type)
}

func TestExtractPlainTextIsOutputEvent(t *testing.T) {
	is := Extract([]string{"Running the test suite now..."})
	require.Len(t, is.Events, 1)
	assert.Equal(t, EventOutput, is.Events[0].Type)
}

func TestExtractNeverFailsOnGarbage(t *testing.T) {
	is := Extract([]string{"{not even close to json", "<progress>abc%</progress>", ""})
	_ = is // must not panic
}

func TestExtractRoundTrip(t *testing.T) {
	original := []Signal{
		{Kind: KindProgress, Percent: 30},
		{Kind: KindBlocker, Description: "needs review"},
		{Kind: KindPivot, NewApproach: "switch to polling"},
		{Kind: KindPromise, Token: "DONE"},
	}
	rendered := Render(original)
	got := Extract(rendered)
	require.Len(t, got.Signals, len(original))
	for i := range original {
		assert.Equal(t, original[i].Kind, got.Signals[i].Kind)
	}
}
