// Package planner implements team.Planner by asking an agent CLI to
// decompose an issue into a JSON task plan. It is grounded on
// internal/signal's "parse structured signals out of free-form agent
// output" idiom: the planning prompt asks for a single fenced JSON object,
// and the last one found in the transcript is taken as the answer.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/team"
)

// LLMPlanner asks the wrapped agent launcher to decompose an issue into a
// team.Plan. A malformed or missing JSON response is surfaced as an error so
// the caller (team.PlanOrFallback) substitutes the single-coder fallback
// plan rather than running with a corrupt one.
type LLMPlanner struct {
	Launcher *agent.Launcher
}

var _ team.Planner = (*LLMPlanner)(nil)

type planTaskJSON struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Wave        int    `json:"wave"`
	Description string `json:"description"`
	Isolation   string `json:"isolation"`
	DependsOn   []int  `json:"depends_on"`
}

type planJSON struct {
	Strategy               string         `json:"strategy"`
	Isolation              string         `json:"isolation"`
	SkipVisualVerification bool           `json:"skip_visual_verification"`
	Tasks                  []planTaskJSON `json:"tasks"`
}

// Plan satisfies team.Planner.
func (p *LLMPlanner) Plan(ctx context.Context, issue team.Issue, repo team.RepoContext) (team.Plan, error) {
	prompt := buildPlanningPrompt(issue, repo)
	lines, err := p.Launcher.Invoke(ctx, prompt, 1)
	if err != nil {
		return team.Plan{}, fmt.Errorf("planning invocation: %w", err)
	}

	raw, ok := lastJSONObject(lines)
	if !ok {
		return team.Plan{}, fmt.Errorf("no JSON plan found in planner output")
	}

	var parsed planJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return team.Plan{}, fmt.Errorf("parse plan JSON: %w", err)
	}
	if len(parsed.Tasks) == 0 {
		return team.Plan{}, fmt.Errorf("plan has no tasks")
	}

	tasks := make([]team.PlannedTask, len(parsed.Tasks))
	for i, t := range parsed.Tasks {
		tasks[i] = team.PlannedTask{
			Name:        t.Name,
			Role:        team.Role(t.Role),
			Wave:        t.Wave,
			Description: t.Description,
			Isolation:   team.Isolation(t.Isolation),
			DependsOn:   t.DependsOn,
		}
	}

	return team.Plan{
		Strategy:               team.Strategy(parsed.Strategy),
		Isolation:              team.Isolation(parsed.Isolation),
		Tasks:                  tasks,
		SkipVisualVerification: parsed.SkipVisualVerification,
	}, nil
}

func buildPlanningPrompt(issue team.Issue, repo team.RepoContext) string {
	var b strings.Builder
	b.WriteString("# TEAM PLANNING\n\n")
	fmt.Fprintf(&b, "Issue: %s\n\n%s\n\n", issue.Title, issue.Description)
	if len(repo.TopLevelFiles) > 0 {
		fmt.Fprintf(&b, "Top-level files: %s\n", strings.Join(repo.TopLevelFiles, ", "))
	}
	if len(repo.RecentCommits) > 0 {
		fmt.Fprintf(&b, "Recent commits: %s\n", strings.Join(repo.RecentCommits, "; "))
	}
	b.WriteString("\nDecompose this issue into a task plan. Respond with exactly one JSON object:\n")
	b.WriteString(`{"strategy":"parallel|sequential|wave-pipeline|adaptive","isolation":"worktree|container|hybrid|shared",` +
		`"skip_visual_verification":false,"tasks":[{"name":"","role":"coder|tester|reviewer|browser-verifier|test-verifier",` +
		`"wave":0,"description":"","isolation":"worktree|container|hybrid|shared","depends_on":[]}]}` + "\n")
	return b.String()
}

// lastJSONObject returns the last line across lines that parses as a
// balanced-brace JSON object, tolerating surrounding prose on the same
// transcript.
func lastJSONObject(lines []string) (string, bool) {
	var found string
	var ok bool
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
			found = trimmed
			ok = true
		}
	}
	return found, ok
}
