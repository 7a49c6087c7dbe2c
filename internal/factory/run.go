// Package factory is the thin reference host for Factory mode: a
// net/http + gorilla/websocket service that decomposes submitted issues
// into agent teams via internal/team, and republishes the resulting event
// stream to subscribers. The core (internal/team, internal/executor,
// internal/dag) treats this transport only as a collaborator behind
// narrow interfaces, per the HTTP/WebSocket layer being out of the core's
// scope; this package is the swappable default implementation.
package factory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgehq/forge/internal/team"
)

// RunStatus mirrors the PipelineRun status tags.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is a PipelineRun: the Factory-mode record of one issue decomposed
// into an agent team and driven to completion.
type Run struct {
	mu sync.RWMutex

	ID      int64
	IssueID string
	Status  RunStatus

	Phase     int
	Iteration int
	Summary   string
	Error     string
	Branch    string
	PRURL     string
	TeamID    string

	Issue team.Issue

	CreatedAt time.Time
}

func (r *Run) snapshot() Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Run{
		ID:        r.ID,
		IssueID:   r.IssueID,
		Status:    r.Status,
		Phase:     r.Phase,
		Iteration: r.Iteration,
		Summary:   r.Summary,
		Error:     r.Error,
		Branch:    r.Branch,
		PRURL:     r.PRURL,
		TeamID:    r.TeamID,
		Issue:     r.Issue,
		CreatedAt: r.CreatedAt,
	}
}

func (r *Run) setStatus(s RunStatus) {
	r.mu.Lock()
	r.Status = s
	r.mu.Unlock()
}

func (r *Run) setError(msg string) {
	r.mu.Lock()
	r.Status = RunFailed
	r.Error = msg
	r.mu.Unlock()
}

func (r *Run) setTeamID(id string) {
	r.mu.Lock()
	r.TeamID = id
	r.mu.Unlock()
}

func (r *Run) setPRURL(url string) {
	r.mu.Lock()
	r.PRURL = url
	r.mu.Unlock()
}

// Store holds every PipelineRun created this process lifetime. It is an
// in-memory reference implementation; a production deployment would back
// this with durable storage, which is explicitly out of the core's scope.
type Store struct {
	mu   sync.RWMutex
	runs map[int64]*Run
	next int64
}

// NewStore creates an empty run store.
func NewStore() *Store {
	return &Store{runs: make(map[int64]*Run)}
}

// Create allocates a new Queued run for issue.
func (s *Store) Create(issue team.Issue) *Run {
	id := atomic.AddInt64(&s.next, 1)
	run := &Run{
		ID:        id,
		IssueID:   issue.Title,
		Status:    RunQueued,
		Issue:     issue,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()
	return run
}

// Get returns the run with the given id, if it exists.
func (s *Store) Get(id int64) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// List returns a snapshot of every run, most recently created first.
func (s *Store) List() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r.snapshot())
	}
	return out
}
