package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgehq/forge/internal/team"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.email", "forge@example.com")
	run("config", "user.name", "forge")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestManagerPrepareWorktreeCreatesBranch(t *testing.T) {
	requireGit(t)
	repo := newTestRepo(t)
	m := &Manager{ProjectPath: repo, BaseDir: filepath.Join(repo, ".forge-worktrees")}

	task := &team.AgentTask{ID: "task-1", Isolation: team.IsolationWorktree}
	path, branch, err := m.Prepare(context.Background(), task, "main")
	require.NoError(t, err)
	require.Equal(t, "forge/task-1", branch)
	require.DirExists(t, path)

	task.WorkspacePath = path
	require.NoError(t, m.Cleanup(context.Background(), task))
	require.NoDirExists(t, path)
}

func TestManagerPrepareSharedReturnsProjectPathUnmodified(t *testing.T) {
	requireGit(t)
	repo := newTestRepo(t)
	m := &Manager{ProjectPath: repo, BaseDir: filepath.Join(repo, ".forge-worktrees")}

	task := &team.AgentTask{ID: "task-2", Isolation: team.IsolationShared}
	path, branch, err := m.Prepare(context.Background(), task, "main")
	require.NoError(t, err)
	require.Equal(t, repo, path)
	require.Empty(t, branch)
}

func TestManagerCleanupNoopForSharedIsolation(t *testing.T) {
	requireGit(t)
	repo := newTestRepo(t)
	m := &Manager{ProjectPath: repo, BaseDir: filepath.Join(repo, ".forge-worktrees")}

	task := &team.AgentTask{ID: "task-3", Isolation: team.IsolationContainer}
	require.NoError(t, m.Cleanup(context.Background(), task))
}

func TestManagerPrepareHybridBehavesLikeWorktree(t *testing.T) {
	requireGit(t)
	repo := newTestRepo(t)
	m := &Manager{ProjectPath: repo, BaseDir: filepath.Join(repo, ".forge-worktrees")}

	task := &team.AgentTask{ID: "task-4", Isolation: team.IsolationHybrid}
	path, branch, err := m.Prepare(context.Background(), task, "main")
	require.NoError(t, err)
	require.Equal(t, "forge/task-4", branch)
	require.DirExists(t, path)
}

func TestManagerDirtyReportsTrueForUnwatchedTask(t *testing.T) {
	m := &Manager{}
	require.True(t, m.Dirty("never-prepared"))
}

func TestManagerDirtyTracksWorktreeWrites(t *testing.T) {
	requireGit(t)
	repo := newTestRepo(t)
	m := &Manager{ProjectPath: repo, BaseDir: filepath.Join(repo, ".forge-worktrees")}

	task := &team.AgentTask{ID: "task-5", Isolation: team.IsolationWorktree}
	path, _, err := m.Prepare(context.Background(), task, "main")
	require.NoError(t, err)
	task.WorkspacePath = path

	require.False(t, m.Dirty(task.ID))

	require.NoError(t, os.WriteFile(filepath.Join(path, "scratch.txt"), []byte("work"), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !m.Dirty(task.ID) {
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, m.Dirty(task.ID))

	require.NoError(t, m.Cleanup(context.Background(), task))
	require.True(t, m.Dirty(task.ID))
}
