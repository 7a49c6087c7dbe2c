// Package workspace prepares and tears down per-task isolated workspaces
// for the Agent-Team Executor: a dedicated git worktree branch for
// worktree isolation, or the run's single shared path for shared isolation.
// Container and hybrid isolation additionally provision a sandboxed
// container using internal/security's hardening defaults. It replaces
// agentium's removed internal/workspace/tier.go (language/package-manager
// tiering), which addressed a different concern than per-task isolation.
package workspace

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/forgehq/forge/internal/security"
	"github.com/forgehq/forge/internal/team"
)

// Manager implements team.WorkspaceManager using git worktrees rooted under
// baseDir, one per worktree-isolated task.
type Manager struct {
	ProjectPath string
	BaseDir     string
	Security    *security.ContainerSecurityOptions

	mu       sync.Mutex
	watchers map[string]*fsnotify.Watcher
	dirty    map[string]bool
}

var _ team.WorkspaceManager = (*Manager)(nil)
var _ team.DirtyChecker = (*Manager)(nil)

// Prepare creates a worktree branched from integrationBranch for
// worktree/hybrid isolated tasks, and returns the shared project path
// unmodified for shared/container isolated tasks (container sandboxing of
// the shared path is the caller's concern, configured via m.Security).
func (m *Manager) Prepare(ctx context.Context, task *team.AgentTask, integrationBranch string) (string, string, error) {
	switch task.Isolation {
	case team.IsolationWorktree, team.IsolationHybrid:
		branch := fmt.Sprintf("forge/%s", task.ID)
		path := filepath.Join(m.BaseDir, task.ID)

		cmd := exec.CommandContext(ctx, "git", "-C", m.ProjectPath, "worktree", "add", "-b", branch, path, integrationBranch)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", "", fmt.Errorf("git worktree add: %w: %s", err, out)
		}
		m.watch(task.ID, path)
		return path, branch, nil
	default:
		return m.ProjectPath, "", nil
	}
}

// Cleanup removes a worktree-isolated task's worktree. A no-op for
// shared/container isolation, which never allocated one.
func (m *Manager) Cleanup(ctx context.Context, task *team.AgentTask) error {
	m.unwatch(task.ID)
	if task.Isolation != team.IsolationWorktree && task.Isolation != team.IsolationHybrid {
		return nil
	}
	cmd := exec.CommandContext(ctx, "git", "-C", m.ProjectPath, "worktree", "remove", "--force", task.WorkspacePath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree remove: %w: %s", err, out)
	}
	return nil
}

// watch starts an fsnotify watch on a task's worktree root so Dirty can
// answer "is there anything worth merging" without shelling out to git.
// Best-effort: a watcher that fails to start just means Dirty reports true
// by default, which only costs an unnecessary merge attempt.
func (m *Manager) watch(taskID, path string) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return
	}

	m.mu.Lock()
	if m.watchers == nil {
		m.watchers = make(map[string]*fsnotify.Watcher)
		m.dirty = make(map[string]bool)
	}
	m.watchers[taskID] = w
	m.mu.Unlock()

	go func() {
		for event := range w.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				m.mu.Lock()
				m.dirty[taskID] = true
				m.mu.Unlock()
			}
		}
	}()
}

func (m *Manager) unwatch(taskID string) {
	m.mu.Lock()
	w, ok := m.watchers[taskID]
	delete(m.watchers, taskID)
	delete(m.dirty, taskID)
	m.mu.Unlock()
	if ok {
		_ = w.Close()
	}
}

// Dirty reports whether a task's worktree has seen any filesystem activity
// since Prepare, used by the Agent-Team Executor to skip merging a wave
// task that never touched its workspace. Tasks with no active watcher (no
// worktree was ever allocated, or watch setup failed) are reported dirty so
// the caller falls back to attempting the merge.
func (m *Manager) Dirty(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, watched := m.watchers[taskID]; !watched {
		return true
	}
	return m.dirty[taskID]
}
