// Package tracker implements the per-phase Iteration Tracker: the component
// that decides, after each iteration, whether a phase should continue, stop
// for a stall, or escalate a recurring unresolved blocker. It is grounded on
// the accumulate-then-prune idiom of agentium's internal/memory/store.go
// (Update/resolvePending/prune) and the stall/blocker bookkeeping embedded in
// agentium's internal/controller/phase_loop.go, generalized into a standalone
// component, kept separate from the executor that drives it.
package tracker

import (
	"fmt"

	"github.com/forgehq/forge/internal/signal"
)

// DefaultStallWindow and DefaultBlockerThreshold are the defaults applied
// when a caller passes a non-positive value to New.
const (
	DefaultStallWindow      = 3
	DefaultBlockerThreshold = 2
)

type progressEntry struct {
	iteration int
	percent   *int
}

// Tracker accumulates progress and blocker observations for one phase (and,
// for sub-phases, the parent phase whose tracker state they share).
type Tracker struct {
	StallWindow      int
	BlockerThreshold int

	progressHistory []progressEntry
	blockerCounts    map[string]int
}

// New creates a Tracker with the given thresholds. A non-positive value falls
// back to the package default.
func New(stallWindow, blockerThreshold int) *Tracker {
	if stallWindow <= 0 {
		stallWindow = DefaultStallWindow
	}
	if blockerThreshold <= 0 {
		blockerThreshold = DefaultBlockerThreshold
	}
	return &Tracker{
		StallWindow:      stallWindow,
		BlockerThreshold: blockerThreshold,
		blockerCounts:    make(map[string]int),
	}
}

// Record appends the iteration's latest progress percent (nil if none was
// emitted) to the progress history and reports whether the last StallWindow
// entries are all present and equal. Calling Record again for the same
// iteration number replaces the previous entry instead of appending a
// second one, keeping stall detection idempotent within an iteration.
func (t *Tracker) Record(iteration int, percent *int) bool {
	if n := len(t.progressHistory); n > 0 && t.progressHistory[n-1].iteration == iteration {
		t.progressHistory[n-1].percent = percent
	} else {
		t.progressHistory = append(t.progressHistory, progressEntry{iteration: iteration, percent: percent})
	}
	stalled, _, _ := t.StalledAt()
	return stalled
}

// StalledAt reports the percent and consecutive-iteration count of the
// current trailing stall, if the last StallWindow recorded entries are all
// present and equal.
func (t *Tracker) StalledAt() (pct int, count int, ok bool) {
	n := len(t.progressHistory)
	if n == 0 {
		return 0, 0, false
	}
	last := t.progressHistory[n-1].percent
	if last == nil {
		return 0, 0, false
	}
	count = 0
	for i := n - 1; i >= 0; i-- {
		p := t.progressHistory[i].percent
		if p == nil || *p != *last {
			break
		}
		count++
	}
	if count >= t.StallWindow {
		return *last, count, true
	}
	return 0, 0, false
}

// RecordBlockers increments the consecutive-iteration count of every
// unacknowledged blocker description present this iteration, drops any
// description absent this iteration (decay), and reports the first
// description (in emission order) whose count reached BlockerThreshold.
//
// After this call, the set of tracked descriptions is exactly the set of
// unacknowledged blocker descriptions seen this iteration.
func (t *Tracker) RecordBlockers(is signal.IterationSignals) (string, bool) {
	current := is.UnacknowledgedBlockers()

	next := make(map[string]int, len(current))
	var escalated string
	found := false
	for _, b := range current {
		desc := b.Description
		if _, seenAlready := next[desc]; seenAlready {
			continue
		}
		count := t.blockerCounts[desc] + 1
		next[desc] = count
		if !found && count >= t.BlockerThreshold {
			escalated = desc
			found = true
		}
	}
	t.blockerCounts = next
	return escalated, found
}

// UnresolvedBlockerCount returns how many distinct blocker descriptions are
// currently tracked (i.e. were present in the most recent RecordBlockers
// call).
func (t *Tracker) UnresolvedBlockerCount() int {
	return len(t.blockerCounts)
}

// FailureDiagnosis composes a human-readable diagnosis for budget exhaustion
// from the latest progress, the unresolved blocker count, and the current
// stall state, prefixed with "budget exhausted: ". When none of those
// observations carries information, it falls back to a scope-too-large
// message.
func (t *Tracker) FailureDiagnosis(latestPct *int) string {
	var parts []string

	if latestPct != nil {
		parts = append(parts, fmt.Sprintf("last reported progress: %d%%", *latestPct))
	} else {
		parts = append(parts, "no progress signals emitted")
	}

	if n := t.UnresolvedBlockerCount(); n > 0 {
		noun := "blocker"
		if n != 1 {
			noun = "blockers"
		}
		parts = append(parts, fmt.Sprintf("%d unresolved %s", n, noun))
	}

	if pct, count, ok := t.StalledAt(); ok {
		parts = append(parts, fmt.Sprintf("stalled at %d%% for %d consecutive iterations", pct, count))
	}

	if latestPct == nil && t.UnresolvedBlockerCount() == 0 {
		if _, _, stalled := t.StalledAt(); !stalled {
			return "budget exhausted: possible scope too large for the iteration budget"
		}
	}

	result := "budget exhausted: "
	for i, p := range parts {
		if i > 0 {
			result += ", "
		}
		result += p
	}
	return result
}
