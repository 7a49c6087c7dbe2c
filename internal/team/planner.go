package team

import (
	"context"
	"strconv"
)

// RepoContext is the brief repository context handed to the Planner: a
// top-level file list and recent commit subjects.
type RepoContext struct {
	TopLevelFiles  []string
	RecentCommits  []string
}

// Planner decomposes an issue into a Plan. Concrete implementations invoke
// an LLM; tests and the fallback path use canned/synthesised plans.
type Planner interface {
	Plan(ctx context.Context, issue Issue, repo RepoContext) (Plan, error)
}

// PlanOrFallback calls planner and, on any failure or degenerate plan
// (empty task list), returns FallbackPlan(issue) instead.
func PlanOrFallback(ctx context.Context, planner Planner, issue Issue, repo RepoContext) Plan {
	if planner == nil {
		return FallbackPlan(issue)
	}
	plan, err := planner.Plan(ctx, issue, repo)
	if err != nil || len(plan.Tasks) == 0 {
		return FallbackPlan(issue)
	}
	return plan
}

// Materialize persists a Plan into an AgentTeam, translating each task's
// depends_on plan-array indices into persisted task ids. Invalid indices
// (out of range or negative) are dropped silently
// depends-on-translation rule. idFactory mints a fresh task id per task.
func Materialize(teamID, runID string, plan Plan, idFactory func(index int) string) *AgentTeam {
	team := &AgentTeam{
		ID:                     teamID,
		RunID:                  runID,
		Strategy:               plan.Strategy,
		Isolation:              plan.Isolation,
		PlanSummary:            summarize(plan),
		SkipVisualVerification: plan.SkipVisualVerification,
	}

	ids := make([]string, len(plan.Tasks))
	for i := range plan.Tasks {
		ids[i] = idFactory(i)
	}

	for i, pt := range plan.Tasks {
		task := &AgentTask{
			ID:          ids[i],
			TeamID:      teamID,
			Name:        pt.Name,
			Description: pt.Description,
			Role:        pt.Role,
			Wave:        pt.Wave,
			Status:      TaskPending,
			Isolation:   pt.Isolation,
		}
		for _, idx := range pt.DependsOn {
			if idx < 0 || idx >= len(ids) {
				continue
			}
			task.DependsOn = append(task.DependsOn, ids[idx])
		}
		team.Tasks = append(team.Tasks, task)
	}

	return team
}

func summarize(plan Plan) string {
	if len(plan.Tasks) == 0 {
		return "empty plan"
	}
	if len(plan.Tasks) == 1 {
		return plan.Tasks[0].Name
	}
	return plan.Tasks[0].Name + " + " + strconv.Itoa(len(plan.Tasks)-1) + " more"
}
