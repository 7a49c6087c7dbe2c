// Package statelog implements the append-only phase state log: a durable record of {phase_id, sub_phase_id?,
// iteration, status, timestamp} entries that lets a restarted run skip
// phases already completed. It is grounded on the JSONL append-only idiom
// of agentium's internal/agent/event.FileSink, generalized from per-agent
// events to per-phase checkpoints.
package statelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/forgehq/forge/internal/phase"
)

// Entry is one durable checkpoint record.
type Entry struct {
	PhaseID    string      `json:"phase_id"`
	SubPhaseID string      `json:"sub_phase_id,omitempty"`
	Iteration  int         `json:"iteration"`
	Status     phase.Status `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Log is an append-only NDJSON state log. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// Open opens (creating if absent) the state log at path for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open state log: %w", err)
	}
	return &Log{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one entry and flushes immediately — checkpoints must be
// durable before the scheduler proceeds to dispatch dependents.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal state entry: %w", err)
	}
	if _, err := l.w.Write(line); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// Checkpointer adapts Log to dag.Checkpoint without importing the dag
// package here, keeping statelog a leaf dependency.
type Checkpointer struct {
	Log *Log
}

// Record implements dag.Checkpoint.
func (c Checkpointer) Record(phaseID string, status phase.Status, result *phase.Result) {
	iteration := 0
	if result != nil {
		iteration = result.IterationsConsumed
	}
	_ = c.Log.Append(Entry{PhaseID: topLevelID(phaseID), SubPhaseID: subPhaseID(phaseID), Iteration: iteration, Status: status, Timestamp: time.Now()})
}

// topLevelID and subPhaseID split a full phase id like "05.1" into its
// parent id "05" and sub-phase id "05.1". Sub-phase entries use a
// distinguished full_phase_id while the parent id remains the bare id.
func topLevelID(fullID string) string {
	for i, r := range fullID {
		if r == '.' {
			return fullID[:i]
		}
	}
	return fullID
}

func subPhaseID(fullID string) string {
	if topLevelID(fullID) == fullID {
		return ""
	}
	return fullID
}

// ReadLatest scans every entry in path and reconstructs the latest status
// per top-level phase id. A parent phase is considered Completed only when
// the parent's own entry (not a sub-phase entry) recorded Completed.
func ReadLatest(path string) (map[string]phase.Status, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]phase.Status{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open state log: %w", err)
	}
	defer f.Close()

	latest := make(map[string]phase.Status)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if e.SubPhaseID != "" {
			continue // sub-phase entries never settle the parent's status
		}
		latest[e.PhaseID] = e.Status
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan state log: %w", err)
	}
	return latest, nil
}

// Truncate resets the state log to empty.
func Truncate(path string) error {
	return os.Truncate(path, 0)
}
