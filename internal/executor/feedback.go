package executor

import (
	"fmt"
	"strings"

	"github.com/forgehq/forge/internal/phase"
	"github.com/forgehq/forge/internal/signal"
	"github.com/forgehq/forge/internal/template"
)

// pivotTemplate is the Mustache-style directive injected into the next
// iteration's prompt after a pivot signal. The directive header is
// substitutable so a caller-supplied PivotPrompt still renders through the
// same template engine as the default.
const pivotTemplate = "\n## {{directive}}\nYou must change your approach: {{pivot}}\n"

// buildFeedback renders the ordered feedback sections fed into the next
// iteration's prompt. The STRATEGY CHANGE section appears iff pivot is
// non-empty, and is never folded into the progress recap — requires
// pivot injection to happen exactly once, as an imperative directive.
func buildFeedback(is signal.IterationSignals, pivot, pivotDirective string) string {
	var b strings.Builder

	b.WriteString("## PROGRESS FROM LAST ITERATION\n")
	if pct, ok := is.LatestProgress(); ok {
		fmt.Fprintf(&b, "Progress: %d%%\n", pct)
	} else {
		b.WriteString("No progress signal was emitted last iteration.\n")
	}

	if blockers := is.UnacknowledgedBlockers(); len(blockers) > 0 {
		b.WriteString("\n## OPEN BLOCKERS\n")
		for _, bl := range blockers {
			fmt.Fprintf(&b, "- %s\n", bl.Description)
		}
	}

	if pivot != "" {
		if pivotDirective == "" {
			pivotDirective = "STRATEGY CHANGE"
		}
		vars := template.MergeVariables(map[string]string{
			"directive": pivotDirective,
			"pivot":     pivot,
		}, nil)
		b.WriteString(template.RenderPrompt(pivotTemplate, vars))
	}

	return b.String()
}

// buildPrompt assembles the full phase prompt in the order specifies:
// orchestration header, phase description, promise token, remaining budget,
// accumulated feedback, then the opaque skills/context section.
func buildPrompt(p phase.Phase, iteration int, feedback, extraContext string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# FORGE PHASE %s: %s\n\n", p.ID, p.Name)
	fmt.Fprintf(&b, "Emit <promise>%s</promise> when this phase is complete.\n", p.Promise)
	remaining := p.Budget - iteration + 1
	fmt.Fprintf(&b, "Iteration %d of %d (budget remaining: %d).\n\n", iteration, p.Budget, remaining)

	if feedback != "" {
		b.WriteString(feedback)
		b.WriteString("\n")
	}

	if extraContext != "" {
		b.WriteString(extraContext)
	}

	return b.String()
}
