// Package forgelog provides the ambient dual local+cloud logger every Forge
// component logs through. It is grounded on the shape of agentium's (now
// removed) internal/controller/logging.go, which paired a local stderr
// writer with internal/cloud/gcp.CloudLogger so that a single log call
// produced both a human-readable local line and a structured Cloud Logging
// entry when a cloud sink is configured.
package forgelog

import (
	"fmt"
	"log"
	"os"

	"github.com/forgehq/forge/internal/cloud/gcp"
)

// Logger pairs a local *log.Logger with an optional cloud sink. The cloud
// sink is nil in local/CLI runs and wired in Factory-mode deployments.
type Logger struct {
	local *log.Logger
	cloud gcp.LoggerInterface
	component string
}

// New creates a Logger that always writes locally to stderr, and additionally
// to cloud if non-nil.
func New(component string, cloud gcp.LoggerInterface) *Logger {
	return &Logger{
		local:     log.New(os.Stderr, "", log.LstdFlags),
		cloud:     cloud,
		component: component,
	}
}

func (l *Logger) prefix() string {
	if l.component == "" {
		return ""
	}
	return "[" + l.component + "] "
}

// Info logs at informational severity.
func (l *Logger) Info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.local.Print(l.prefix() + msg)
	if l.cloud != nil {
		l.cloud.LogInfo(msg)
	}
}

// Warn logs at warning severity.
func (l *Logger) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.local.Print(l.prefix() + "WARN: " + msg)
	if l.cloud != nil {
		l.cloud.LogWarning(msg)
	}
}

// Error logs at error severity.
func (l *Logger) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.local.Print(l.prefix() + "ERROR: " + msg)
	if l.cloud != nil {
		l.cloud.LogError(msg)
	}
}

// WithIteration tags subsequent cloud log entries with an iteration number,
// mirroring agentium's per-iteration log correlation.
func (l *Logger) WithIteration(iteration int) *Logger {
	if l.cloud != nil {
		l.cloud.SetIteration(iteration)
	}
	return l
}

// Close flushes and closes the cloud sink, if any.
func (l *Logger) Close() error {
	if l.cloud == nil {
		return nil
	}
	if err := l.cloud.Flush(); err != nil {
		return err
	}
	return l.cloud.Close()
}
