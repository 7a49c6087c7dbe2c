package signal

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// tag patterns use non-greedy capture terminated by either the matching
// close tag or end-of-line, so an open tag without a matching close tag
// extends to end of line, without backreferences (Go's RE2 engine has
// none). Each pattern is scoped to one tag name.
var (
	progressPattern = regexp.MustCompile(`(?m)<progress>(\d+)%(.*?)(?:</progress>|$)`)
	blockerPattern   = regexp.MustCompile(`(?m)<blocker>(.*?)(?:</blocker>|$)`)
	pivotPattern     = regexp.MustCompile(`(?m)<pivot>(.*?)(?:</pivot>|$)`)
	promisePattern   = regexp.MustCompile(`(?m)<promise>(.*?)(?:</promise>|$)`)
	spawnPattern     = regexp.MustCompile(`(?m)<spawn_subphase>(.*?)(?:</spawn_subphase>|$)`)
)

// spawnSubPhasePayload is the expected JSON shape inside <spawn_subphase>.
type spawnSubPhasePayload struct {
	Name      string `json:"name"`
	Promise   string `json:"promise"`
	Budget    int    `json:"budget"`
	Reasoning string `json:"reasoning"`
}

// structuredLine is the JSON shape of a structured output line.
type structuredLine struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Tool    string `json:"tool"`
}

type tagMatch struct {
	start int
	kind  Kind
	body  string
	extra string // progress: free text after percent
}

// Extract converts an ordered sequence of raw agent output lines into an
// IterationSignals value. It is a pure function of its input and never fails:
// unparseable lines degrade to a plain Output event.
func Extract(lines []string) IterationSignals {
	var out IterationSignals
	for _, line := range lines {
		sigs, evs := parseLine(line)
		out.Signals = append(out.Signals, sigs...)
		out.Events = append(out.Events, evs...)
	}
	return out
}

func parseLine(line string) ([]Signal, []Event) {
	if sigs, evs, handled := tryStructuredLine(line); handled {
		return sigs, evs
	}

	matches := collectTagMatches(line)
	if len(matches) == 0 {
		if strings.TrimSpace(line) == "" {
			return nil, nil
		}
		return nil, []Event{{Type: EventOutput, Content: line}}
	}

	var sigs []Signal
	var evs []Event
	for _, m := range matches {
		switch m.kind {
		case KindProgress:
			pct, err := strconv.Atoi(m.body)
			if err != nil {
				continue
			}
			if pct > 100 {
				pct = 100
			}
			sigs = append(sigs, Signal{Kind: KindProgress, Percent: pct})
		case KindBlocker:
			sigs = append(sigs, Signal{Kind: KindBlocker, Description: strings.TrimSpace(m.body), Acknowledged: false})
		case KindPivot:
			sigs = append(sigs, Signal{Kind: KindPivot, NewApproach: strings.TrimSpace(m.body)})
		case KindPromise:
			sigs = append(sigs, Signal{Kind: KindPromise, Token: strings.TrimSpace(m.body)})
		case KindSpawnSubPhase:
			var payload spawnSubPhasePayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(m.body)), &payload); err != nil {
				evs = append(evs, Event{Type: EventError, Content: fmt.Sprintf("malformed spawn_subphase JSON: %v", err)})
				continue
			}
			sigs = append(sigs, Signal{
				Kind:           KindSpawnSubPhase,
				SpawnName:      payload.Name,
				SpawnPromise:   payload.Promise,
				SpawnBudget:    payload.Budget,
				SpawnReasoning: payload.Reasoning,
			})
		}
	}
	return sigs, evs
}

// collectTagMatches finds every recognised tag occurrence in line and
// returns them ordered by their starting offset, so multiple signals on one
// line are emitted in textual order regardless of tag type.
func collectTagMatches(line string) []tagMatch {
	var matches []tagMatch

	for _, idx := range progressPattern.FindAllStringSubmatchIndex(line, -1) {
		matches = append(matches, tagMatch{
			start: idx[0],
			kind:  KindProgress,
			body:  line[idx[2]:idx[3]],
			extra: line[idx[4]:idx[5]],
		})
	}
	for _, idx := range blockerPattern.FindAllStringSubmatchIndex(line, -1) {
		matches = append(matches, tagMatch{start: idx[0], kind: KindBlocker, body: line[idx[2]:idx[3]]})
	}
	for _, idx := range pivotPattern.FindAllStringSubmatchIndex(line, -1) {
		matches = append(matches, tagMatch{start: idx[0], kind: KindPivot, body: line[idx[2]:idx[3]]})
	}
	for _, idx := range promisePattern.FindAllStringSubmatchIndex(line, -1) {
		matches = append(matches, tagMatch{start: idx[0], kind: KindPromise, body: line[idx[2]:idx[3]]})
	}
	for _, idx := range spawnPattern.FindAllStringSubmatchIndex(line, -1) {
		matches = append(matches, tagMatch{start: idx[0], kind: KindSpawnSubPhase, body: line[idx[2]:idx[3]]})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	return matches
}

// tryStructuredLine recognises a bare JSON object line of the form
// {"type":"thinking"|"tool_use"|"tool_result",...}
// not valid structured JSON fall through to tag scanning.
func tryStructuredLine(line string) ([]Signal, []Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, nil, false
	}

	var sl structuredLine
	if err := json.Unmarshal([]byte(trimmed), &sl); err != nil {
		return nil, nil, false
	}

	switch sl.Type {
	case "thinking":
		return nil, []Event{{Type: EventThinking, Content: sl.Content}}, true
	case "tool_use", "tool_result":
		content := sl.Content
		if sl.Tool != "" {
			content = sl.Tool + ": " + content
		}
		return nil, []Event{{Type: EventAction, Content: content}}, true
	default:
		return nil, nil, false
	}
}

// Render is the canonical rendering used by round-trip tests: it emits one
// line per signal using only the recognised closed-tag forms, such that
// Extract(Render(signals)) reconstructs the same signal sequence.
func Render(signals []Signal) []string {
	lines := make([]string, 0, len(signals))
	for _, s := range signals {
		switch s.Kind {
		case KindProgress:
			lines = append(lines, fmt.Sprintf("<progress>%d%%</progress>", s.Percent))
		case KindBlocker:
			lines = append(lines, fmt.Sprintf("<blocker>%s</blocker>", s.Description))
		case KindPivot:
			lines = append(lines, fmt.Sprintf("<pivot>%s</pivot>", s.NewApproach))
		case KindPromise:
			lines = append(lines, fmt.Sprintf("<promise>%s</promise>", s.Token))
		case KindSpawnSubPhase:
			payload := spawnSubPhasePayload{
				Name:      s.SpawnName,
				Promise:   s.SpawnPromise,
				Budget:    s.SpawnBudget,
				Reasoning: s.SpawnReasoning,
			}
			body, _ := json.Marshal(payload)
			lines = append(lines, fmt.Sprintf("<spawn_subphase>%s</spawn_subphase>", body))
		}
	}
	return lines
}
