package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/forgehq/forge/internal/observability"
	"github.com/forgehq/forge/internal/team"
)

// Config bundles the collaborators a Server needs to decompose and run an
// issue once submitted. Planner may be nil, in which case every issue uses
// team.FallbackPlan.
type Config struct {
	Planner           team.Planner
	Runner            team.TaskRunner
	Workspace         team.WorkspaceManager
	Git               team.GitCollaborator
	Verifiers         []team.Verifier
	ProjectPath       string
	IntegrationBranch func(runID int64) string

	// Tracer is shared across every run's team.Executor so the trace
	// hierarchy spans the whole server process rather than one per run.
	Tracer observability.Tracer
}

func (c *Config) integrationBranch(id int64) string {
	if c.IntegrationBranch != nil {
		return c.IntegrationBranch(id)
	}
	return fmt.Sprintf("forge/run-%d", id)
}

// Server is the reference Factory-mode HTTP host: it accepts issues, plans
// and runs an agent team per issue via internal/team, and republishes the
// resulting events to websocket subscribers through a shared Hub.
type Server struct {
	cfg   *Config
	store *Store
	hub   *Hub
	mux   *http.ServeMux

	upgrader websocket.Upgrader
}

// NewServer builds a Server with routes registered on its own ServeMux.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	s := &Server{
		cfg:   cfg,
		store: NewStore(),
		hub:   NewHub(),
		mux:   http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Hub exposes the server's event hub, e.g. so a `forge run` CLI invocation
// sharing this process can attach a DAGSink to the same subscriber pool.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /issues", s.handleSubmitIssue)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /runs/{id}/events", s.handleStreamEvents)
}

type submitIssueRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
}

func (s *Server) handleSubmitIssue(w http.ResponseWriter, r *http.Request) {
	var req submitIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid issue payload", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	issue := team.Issue{Title: req.Title, Description: req.Description, Labels: req.Labels}
	run := s.store.Create(issue)

	s.hub.Broadcast(Message{RunID: fmt.Sprint(run.ID), Kind: MsgPipelineStarted, Timestamp: time.Now(), Summary: req.Title})

	go s.drive(run, issue)

	respondJSON(w, http.StatusAccepted, run.snapshot())
}

// drive plans, materializes, and executes the agent team for one run, then
// runs verification and records the terminal status. It runs on its own
// goroutine detached from the originating request.
func (s *Server) drive(run *Run, issue team.Issue) {
	ctx := context.Background()
	run.setStatus(RunRunning)

	plan := team.PlanOrFallback(ctx, s.cfg.Planner, issue, team.RepoContext{})
	teamID := uuid.New().String()
	runIDStr := fmt.Sprint(run.ID)

	var taskSeq int64
	idFactory := func(index int) string {
		n := atomic.AddInt64(&taskSeq, 1)
		return fmt.Sprintf("%s-task-%d", teamID, n)
	}

	at := team.Materialize(teamID, runIDStr, plan, idFactory)
	run.setTeamID(teamID)

	integrationBranch := s.cfg.integrationBranch(run.ID)
	executor := team.New(&team.Config{
		Runner:      s.cfg.Runner,
		Workspace:   s.cfg.Workspace,
		Git:         s.cfg.Git,
		Sink:        hubSink{hub: s.hub},
		Verifiers:   s.cfg.Verifiers,
		ProjectPath: s.cfg.ProjectPath,
		Tracer:      s.cfg.Tracer,
	})

	if err := executor.Run(ctx, at, integrationBranch, issue); err != nil {
		run.setError(err.Error())
		return
	}

	if !executor.RunVerification(ctx, at) {
		run.setError("verification failed")
		return
	}

	if url, err := executor.RequestPullRequest(ctx, at, integrationBranch, issue); err != nil {
		run.setError(err.Error())
		return
	} else if url != "" {
		run.setPRURL(url)
	}

	run.setStatus(RunCompleted)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	run, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, run.snapshot())
}

// handleStreamEvents upgrades to a websocket and relays every hub message
// whose run_id matches the path, until the client disconnects.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if _, err := parseRunID(runID); err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	for data := range ch {
		var msg Message
		if err := json.Unmarshal(data, &msg); err == nil && msg.RunID != runID {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func parseRunID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
