package dag

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/forgehq/forge/internal/phase"
)

// PhaseRunner drives a single phase to completion. The scheduler depends
// only on this narrow interface; internal/executor.Executor.Run satisfies it
// once adapted by the caller.
type PhaseRunner interface {
	RunPhase(ctx context.Context, p phase.Phase) phase.Result
}

// Checkpoint receives a durable state entry after every Completed/Failed/
// Skipped transition. Implementations
// live in internal/statelog.
type Checkpoint interface {
	Record(phaseID string, status phase.Status, result *phase.Result)
}

// NoopCheckpoint discards every checkpoint write.
type NoopCheckpoint struct{}

func (NoopCheckpoint) Record(string, phase.Status, *phase.Result) {}

// WaveEvent is broadcast around wave and phase lifecycle transitions for
// subscribers (CLI progress output, Factory event hub).
type WaveEvent struct {
	Kind    string // "phase_dispatched", "phase_completed", "phase_failed", "phase_skipped"
	PhaseID string
	Result  *phase.Result
}

// EventSink receives WaveEvents as the scheduler produces them.
type EventSink interface {
	Emit(WaveEvent)
}

// NoopEventSink discards every event.
type NoopEventSink struct{}

func (NoopEventSink) Emit(WaveEvent) {}

// Options configures one Scheduler.Run invocation.
type Options struct {
	MaxParallel int
	FailFast    bool
	Runner      PhaseRunner
	Checkpoint  Checkpoint
	Sink        EventSink

	// Resume seeds phases already Completed on a prior run (read from the
	// on-disk state log by the caller).
	Resume map[string]phase.Status
}

func (o *Options) maxParallel() int64 {
	if o.MaxParallel < 1 {
		return 1
	}
	return int64(o.MaxParallel)
}

func (o *Options) checkpoint() Checkpoint {
	if o.Checkpoint == nil {
		return NoopCheckpoint{}
	}
	return o.Checkpoint
}

func (o *Options) sink() EventSink {
	if o.Sink == nil {
		return NoopEventSink{}
	}
	return o.Sink
}

// Scheduler executes a Graph honoring depends_on edges with bounded
// concurrency.
type Scheduler struct {
	graph *Graph
}

// NewScheduler builds a Scheduler over a validated Graph.
func NewScheduler(g *Graph) *Scheduler {
	return &Scheduler{graph: g}
}

// Run executes the full ready-set loop to completion (or to fail-fast exit)
// and returns the results keyed by phase id plus the aggregate outcome.
func (s *Scheduler) Run(ctx context.Context, opts Options) (map[string]phase.Result, bool) {
	status := make(map[string]phase.Status, len(s.graph.order))
	results := make(map[string]phase.Result, len(s.graph.order))

	for _, id := range s.graph.order {
		if opts.Resume != nil && opts.Resume[id] == phase.StatusCompleted {
			status[id] = phase.StatusCompleted
			continue
		}
		status[id] = phase.StatusPending
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		resultsCh = make(chan phase.Result)
		cancelled bool
	)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(opts.maxParallel())
	sink := opts.sink()
	checkpoint := opts.checkpoint()

	dispatch := func() {
		mu.Lock()
		ready := s.graph.ReadySet(status)
		for _, id := range ready {
			if err := sem.Acquire(runCtx, 1); err != nil {
				continue
			}
			status[id] = phase.StatusRunning
			sink.Emit(WaveEvent{Kind: "phase_dispatched", PhaseID: id})
			p := s.graph.phases[id]
			wg.Add(1)
			go func(p phase.Phase) {
				defer wg.Done()
				defer sem.Release(1)
				result := opts.Runner.RunPhase(runCtx, p)
				select {
				case resultsCh <- result:
				case <-runCtx.Done():
				}
			}(p)
		}
		mu.Unlock()
	}

	running := func() int {
		n := 0
		for _, st := range status {
			if st == phase.StatusRunning {
				n++
			}
		}
		return n
	}

	dispatch()

	for {
		mu.Lock()
		anyRunning := running() > 0
		anyReady := len(s.graph.ReadySet(status)) > 0
		mu.Unlock()

		if !anyRunning && !anyReady {
			break
		}

		result := <-resultsCh

		mu.Lock()
		results[result.PhaseID] = result
		if result.Outcome == phase.OutcomeSuccess {
			status[result.PhaseID] = phase.StatusCompleted
			sink.Emit(WaveEvent{Kind: "phase_completed", PhaseID: result.PhaseID, Result: &result})
			checkpoint.Record(result.PhaseID, phase.StatusCompleted, &result)
		} else {
			status[result.PhaseID] = phase.StatusFailed
			sink.Emit(WaveEvent{Kind: "phase_failed", PhaseID: result.PhaseID, Result: &result})
			checkpoint.Record(result.PhaseID, phase.StatusFailed, &result)

			if opts.FailFast {
				cancelled = true
				cancel()
				s.skipRemaining(status, sink, checkpoint)
			} else {
				s.skipDownstream(result.PhaseID, status, sink, checkpoint)
			}
		}
		mu.Unlock()

		if cancelled {
			break
		}
		dispatch()
	}

	wg.Wait()

	allSuccess := true
	for _, id := range s.graph.order {
		st := status[id]
		if st != phase.StatusCompleted {
			allSuccess = false
		}
		if st == phase.StatusSkipped {
			if _, ok := results[id]; !ok {
				results[id] = phase.Result{PhaseID: id, Outcome: phase.OutcomeFailure, Diagnosis: "skipped: upstream phase failed"}
			}
		}
	}

	return results, allSuccess
}

// skipRemaining marks every still-Pending or still-Running phase Skipped,
// used on fail-fast abort.
func (s *Scheduler) skipRemaining(status map[string]phase.Status, sink EventSink, cp Checkpoint) {
	for _, id := range s.graph.order {
		if status[id] == phase.StatusPending {
			status[id] = phase.StatusSkipped
			sink.Emit(WaveEvent{Kind: "phase_skipped", PhaseID: id})
			cp.Record(id, phase.StatusSkipped, nil)
		}
	}
}

// skipDownstream transitively marks every Pending phase reachable from a
// failed phase as Skipped, used under fail_fast=false.
func (s *Scheduler) skipDownstream(failedID string, status map[string]phase.Status, sink EventSink, cp Checkpoint) {
	for _, id := range s.graph.DownstreamClosure(failedID) {
		if status[id] == phase.StatusPending {
			status[id] = phase.StatusSkipped
			sink.Emit(WaveEvent{Kind: "phase_skipped", PhaseID: id})
			cp.Record(id, phase.StatusSkipped, nil)
		}
	}
}
