package agent

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/forgehq/forge/internal/executor"
	"github.com/forgehq/forge/internal/team"
)

// ContainerRunner runs one containerized agent invocation to completion and
// returns its captured stdout/stderr and exit code. The default
// implementation shells out to `docker run`; tests substitute a fake.
type ContainerRunner interface {
	Run(ctx context.Context, image string, env map[string]string, cmd []string, stdin string) (stdout, stderr string, exitCode int, err error)
}

// DockerRunner is the default ContainerRunner, grounded on agentium's
// removed internal/controller/docker.go `docker run --rm` invocation shape.
type DockerRunner struct {
	WorkDir string
}

// Run invokes `docker run --rm -v <workdir>:/workspace -w /workspace <env...> <image> <cmd...>`,
// piping stdin if non-empty.
func (d DockerRunner) Run(ctx context.Context, image string, env map[string]string, cmd []string, stdin string) (string, string, int, error) {
	args := []string{"run", "--rm", "-i"}
	if d.WorkDir != "" {
		args = append(args, "-v", d.WorkDir+":/workspace", "-w", "/workspace")
	}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, image)
	args = append(args, cmd...)

	execCmd := exec.CommandContext(ctx, "docker", args...)
	if stdin != "" {
		execCmd.Stdin = strings.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf strings.Builder
	execCmd.Stdout = &stdoutBuf
	execCmd.Stderr = &stderrBuf

	err := execCmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}

// Launcher adapts an Agent + ContainerRunner pair into the line-streaming
// invocation contract internal/executor.AgentLauncher and internal/team's
// TaskRunner both expect, bridging agentium's container-exec-then-parse
// adapter model onto a per-iteration line stream.
// AuditSink receives one raw audit record per agent invocation, independent
// of the executor/team progress event streams. internal/agent/event.FileSink
// satisfies this structurally via its WriteAudit method, without this
// package needing to import that one.
type AuditSink interface {
	WriteAudit(sessionID string, iteration int, agentName, kind, summary, content string) error
}

type Launcher struct {
	Agent   Agent
	Runner  ContainerRunner
	Session *Session

	// AuditSink, if set, receives one raw record per invocation for
	// offline debugging and audit trails.
	AuditSink AuditSink
}

func (l *Launcher) audit(iteration int, kind, summary, content string) {
	if l.AuditSink == nil {
		return
	}
	_ = l.AuditSink.WriteAudit(l.Session.ID, iteration, l.Agent.Name(), kind, summary, content)
}

// Invoke satisfies executor.AgentLauncher: runs one container invocation for
// iteration, building the prompt/env/command via the wrapped Agent, and
// splits the captured output into lines in emission order.
func (l *Launcher) Invoke(ctx context.Context, prompt string, iteration int) ([]string, error) {
	session := *l.Session
	session.Prompt = prompt

	env := l.Agent.BuildEnv(&session, iteration)
	cmd := l.Agent.BuildCommand(&session, iteration)

	var stdin string
	if sp, ok := l.Agent.(StdinPromptProvider); ok {
		stdin = sp.GetStdinPrompt(&session, iteration)
	}
	if stdin == "" {
		stdin = l.Agent.BuildPrompt(&session, iteration)
	}

	stdout, stderr, exitCode, err := l.Runner.Run(ctx, l.Agent.ContainerImage(), env, cmd, stdin)
	if err != nil {
		return nil, fmt.Errorf("run %s container: %w", l.Agent.Name(), err)
	}

	result, parseErr := l.Agent.ParseOutput(exitCode, stdout, stderr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse %s output: %w", l.Agent.Name(), parseErr)
	}
	if exitCode != 0 {
		l.audit(iteration, "error", fmt.Sprintf("exit %d", exitCode), stderr)
		return splitLines(stdout), fmt.Errorf("%s exited %d: %s", l.Agent.Name(), exitCode, result.Error)
	}
	l.audit(iteration, "text", truncateSummary(result.RawTextContent), result.RawTextContent)

	text := result.RawTextContent
	if text == "" {
		text = stdout
	}
	return splitLines(text), nil
}

// RunTask satisfies team.TaskRunner: the agent is invoked exactly once per
// task, using the task's description as the prompt.
func (l *Launcher) RunTask(ctx context.Context, task *team.AgentTask) ([]string, error) {
	return l.Invoke(ctx, task.Description, 1)
}

var (
	_ team.TaskRunner        = (*Launcher)(nil)
	_ executor.AgentLauncher = (*Launcher)(nil)
)

const maxAuditSummaryLen = 200

// truncateSummary mirrors internal/agent/event.TruncateSummary without
// importing that package, keeping the audit summary short enough for a
// one-line log view.
func truncateSummary(content string) string {
	if len(content) <= maxAuditSummaryLen {
		return content
	}
	return content[:maxAuditSummaryLen-3] + "..."
}

func splitLines(text string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
