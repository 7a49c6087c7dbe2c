package team

import "context"

// WorkspaceManager prepares and tears down per-task workspaces. Worktree
// isolation gets a dedicated git worktree branched from the run's
// integration branch; container and hybrid isolation provision their own
// sandboxes; shared isolation returns the run's single shared path.
// Concrete implementations live in internal/workspace.
type WorkspaceManager interface {
	// Prepare returns the workspace path and (for worktree isolation) the
	// branch name a task should work on.
	Prepare(ctx context.Context, task *AgentTask, integrationBranch string) (path, branch string, err error)

	// Cleanup removes a task's isolated workspace. Safe to call on a
	// shared-isolation task (no-op).
	Cleanup(ctx context.Context, task *AgentTask) error
}

// DirtyChecker is an optional capability a WorkspaceManager may implement to
// report whether a task's workspace saw any filesystem activity since it was
// prepared. The executor uses it to skip merging a worktree-isolated task
// that never wrote anything, rather than running a no-op git merge.
type DirtyChecker interface {
	Dirty(taskID string) bool
}

// GitCollaborator performs the git operations the executor needs: merging a
// worktree branch back into the integration branch, and opening the final
// pull request. Concrete implementations live in internal/gitcollab.
type GitCollaborator interface {
	// Merge integrates branch into integrationBranch at projectPath. On a
	// conflict it returns a *MergeConflictError listing the conflicting
	// files rather than a bare error.
	Merge(ctx context.Context, projectPath, integrationBranch, branch string) error

	// CreatePullRequest opens the PR for the run's integration branch once
	// all waves and verification have passed.
	CreatePullRequest(ctx context.Context, projectPath, integrationBranch string, issue Issue) (url string, err error)
}

// MergeConflictError carries the conflicting file list requires on
// the MergeConflict broadcast.
type MergeConflictError struct {
	Files []string
}

func (e *MergeConflictError) Error() string {
	return "merge conflict"
}
