package executor

import (
	"context"
	"sync"
	"time"

	"github.com/waivern/orchestrator/types"
)

// scheduler drives one ExecutionPlan to quiescence using a
// bounded-concurrency dispatch loop: a semaphore caps nodes in the
// running state, and a ready queue admits a node only once every
// predecessor has reached a terminal state. The admission algorithm is
// a single BFS over dag.Edges per node completion, generalized from the
// teacher's fan-out dispatch loop (semaphore + worker-done signal +
// non-blocking queue drain) from "dispatch independent child runs" to
// "dispatch DAG nodes whose predecessors are all done."
type scheduler struct {
	exec *Executor
	plan *types.ExecutionPlan
	runID string

	mu       sync.Mutex
	status   map[string]types.NodeStatus
	indegree map[string]int
	results  map[string]types.ArtifactResult
}

func newScheduler(exec *Executor, plan *types.ExecutionPlan, runID string) *scheduler {
	s := &scheduler{
		exec:     exec,
		plan:     plan,
		runID:    runID,
		status:   make(map[string]types.NodeStatus, len(plan.DAG.Nodes)),
		indegree: make(map[string]int, len(plan.DAG.Nodes)),
		results:  make(map[string]types.ArtifactResult, len(plan.DAG.Nodes)),
	}
	for _, id := range plan.DAG.Nodes {
		s.status[id] = types.NodeStatusPending
		s.indegree[id] = len(plan.DAG.Predecessors[id])
	}
	return s
}

// run dispatches nodes until every node reaches a terminal state or ctx
// is cancelled, and returns the final per-node results.
func (s *scheduler) run(ctx context.Context, maxConcurrency int) map[string]types.ArtifactResult {
	sem := make(chan struct{}, maxConcurrency)
	done := make(chan string, len(s.plan.DAG.Nodes))
	var wg sync.WaitGroup

	var queue []string
	s.mu.Lock()
	for _, id := range s.plan.DAG.Nodes {
		if s.indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	s.mu.Unlock()

	dispatch := func(id string) {
		s.mu.Lock()
		s.status[id] = types.NodeStatusRunning
		s.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.runOne(ctx, id)
			select {
			case done <- id:
			default:
			}
		}()
	}

	remaining := len(s.plan.DAG.Nodes)
	for remaining > 0 {
		for len(queue) > 0 {
			select {
			case sem <- struct{}{}:
				id := queue[0]
				queue = queue[1:]
				dispatch(id)
			case <-ctx.Done():
				wg.Wait()
				s.finalizeCancelled()
				return s.snapshotResults()
			default:
				goto awaitCompletion
			}
		}

	awaitCompletion:
		select {
		case id := <-done:
			remaining--
			ready, skipped := s.onNodeFinished(id)
			remaining -= skipped
			queue = append(queue, ready...)
		case <-ctx.Done():
			wg.Wait()
			s.finalizeCancelled()
			return s.snapshotResults()
		}
	}

	wg.Wait()
	return s.snapshotResults()
}

// runOne executes one node's production step end-to-end: producing the
// message, enforcing its schema, persisting it on success, and
// recording its ArtifactResult. It does not touch s.status for
// dependents — that is onNodeFinished's job, called by the caller after
// this returns.
func (s *scheduler) runOne(ctx context.Context, id string) {
	start := time.Now()
	a := s.plan.Runbook.Artifacts[id]

	pctx := s.exec.newProducerContext(ctx, s.runID, id)
	msg, err := s.exec.produceNode(ctx, pctx, s.plan, s.runID, id)

	duration := time.Since(start).Seconds()

	if err != nil {
		s.recordTerminal(id, types.NodeStatusFailed, types.ArtifactResult{
			ArtifactID:      id,
			Success:         false,
			Error:           err.Error(),
			DurationSeconds: duration,
			Origin:          deriveOrigin(id, s.plan.ReversedAliases),
			Alias:           s.plan.ReversedAliases[id],
		})
		s.exec.metrics.IncNodeFailed()
		if kind, ok := types.KindOf(err); ok && kind == types.ErrStoreError {
			s.exec.cancelWithReason(err)
		}
		return
	}

	msg.Extensions.Execution = types.ExecutionContext{
		Status:          types.StatusSuccess,
		DurationSeconds: duration,
		Origin:          deriveOrigin(id, s.plan.ReversedAliases),
		Alias:           s.plan.ReversedAliases[id],
		Cost:            msg.Extensions.Execution.Cost,
	}

	if saveErr := s.exec.store.SaveArtifact(ctx, s.runID, id, msg); saveErr != nil {
		s.exec.metrics.IncStoreWriteFailure()
		s.recordTerminal(id, types.NodeStatusFailed, types.ArtifactResult{
			ArtifactID:      id,
			Success:         false,
			Error:           saveErr.Error(),
			DurationSeconds: duration,
			Origin:          deriveOrigin(id, s.plan.ReversedAliases),
			Alias:           s.plan.ReversedAliases[id],
		})
		s.exec.metrics.IncNodeFailed()
		s.exec.cancelWithReason(saveErr)
		return
	}
	s.exec.metrics.IncStoreWriteSuccess()

	if exceeded := s.exec.accountant.Add(msg.Extensions.Execution.Cost); exceeded {
		s.exec.cancelWithReason(budgetExceededErr())
	}

	result := types.ArtifactResult{
		ArtifactID:      id,
		Success:         true,
		DurationSeconds: duration,
		Origin:          deriveOrigin(id, s.plan.ReversedAliases),
		Alias:           s.plan.ReversedAliases[id],
	}
	if a.Output {
		m := msg
		result.Message = &m
	}
	s.recordTerminal(id, types.NodeStatusSuccess, result)
	s.exec.metrics.IncNodeSucceeded()

	s.persistState(ctx)
}

func (s *scheduler) recordTerminal(id string, status types.NodeStatus, result types.ArtifactResult) {
	s.mu.Lock()
	s.status[id] = status
	s.results[id] = result
	s.mu.Unlock()
}

// onNodeFinished advances the scheduler past id's completion: it
// propagates skip status to every descendant reachable only through
// failed/skipped predecessors, and returns the ids newly admitted to
// the ready queue (every predecessor of that id has reached success)
// together with the number of nodes it newly marked skipped.
func (s *scheduler) onNodeFinished(id string) ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []string
	skipped := 0
	frontier := []string{id}
	for len(frontier) > 0 {
		u := frontier[0]
		frontier = frontier[1:]
		uStatus := s.status[u]
		for _, v := range s.plan.DAG.Edges[u] {
			if s.status[v] != types.NodeStatusPending {
				continue
			}
			if uStatus == types.NodeStatusFailed || uStatus == types.NodeStatusSkipped {
				s.status[v] = types.NodeStatusSkipped
				skipped++
				frontier = append(frontier, v)
				continue
			}
			s.indegree[v]--
			if s.indegree[v] == 0 {
				ready = append(ready, v)
			}
		}
	}
	return ready, skipped
}

// finalizeCancelled marks every node that never reached a terminal
// state as failed with the cancellation reason, per the timeout/budget
// exceeded contract: pending and running nodes become failed, not
// skipped.
func (s *scheduler) finalizeCancelled() {
	reason := s.exec.cancelReason()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.plan.DAG.Nodes {
		if s.status[id] == types.NodeStatusSuccess || s.status[id] == types.NodeStatusFailed || s.status[id] == types.NodeStatusSkipped {
			continue
		}
		s.status[id] = types.NodeStatusFailed
		s.results[id] = types.ArtifactResult{
			ArtifactID: id,
			Success:    false,
			Error:      reason,
			Origin:     deriveOrigin(id, s.plan.ReversedAliases),
			Alias:      s.plan.ReversedAliases[id],
		}
		s.exec.metrics.IncNodeFailed()
	}
}

func (s *scheduler) snapshotResults() map[string]types.ArtifactResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.ArtifactResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	// Any node that is skipped but never produced a result entry (no
	// downstream failure task ran to record one) gets one here.
	for _, id := range s.plan.DAG.Nodes {
		if _, ok := out[id]; ok {
			continue
		}
		if s.status[id] == types.NodeStatusSkipped {
			out[id] = types.ArtifactResult{
				ArtifactID: id,
				Success:    false,
				Origin:     deriveOrigin(id, s.plan.ReversedAliases),
				Alias:      s.plan.ReversedAliases[id],
			}
			s.exec.metrics.IncNodeSkipped()
		}
	}
	return out
}

func (s *scheduler) snapshotStatus() map[string]types.NodeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.NodeStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// persistState writes an execution state snapshot to the store. Errors
// are logged, not fatal — state persistence is for inspection/resume,
// not correctness of the current run's results.
func (s *scheduler) persistState(ctx context.Context) {
	s.mu.Lock()
	nodes := make(map[string]types.NodeStatus, len(s.status))
	for k, v := range s.status {
		nodes[k] = v
	}
	s.mu.Unlock()

	state := types.ExecutionState{
		Nodes:       nodes,
		StartedAt:   s.exec.startedAt,
		LastUpdated: time.Now(),
	}
	if err := s.exec.store.SaveExecutionState(ctx, s.runID, state); err != nil {
		s.exec.logger.Warn("failed to persist execution state", map[string]any{"error": err.Error()})
	}
}
