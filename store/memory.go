package store

import (
	"context"
	"sync"

	"github.com/waivern/orchestrator/types"
)

// Memory is an in-process ArtifactStore backend, intended for tests and
// single-process runs that never need the artifacts to outlive the
// process. One instance is safe to share across concurrent runs — state
// is keyed by run_id internally.
type Memory struct {
	mu      sync.RWMutex
	runs    map[string]*memoryRun
}

type memoryRun struct {
	artifacts map[string]types.Message
	state     *types.ExecutionState
	meta      *types.RunMetadata
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]*memoryRun)}
}

func (m *Memory) run(runID string, create bool) *memoryRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		if !create {
			return nil
		}
		r = &memoryRun{artifacts: make(map[string]types.Message)}
		m.runs[runID] = r
	}
	return r
}

func (m *Memory) SaveArtifact(_ context.Context, runID, id string, msg types.Message) error {
	if err := SanitizeKey(runID); err != nil {
		return storeErr("save_artifact", err)
	}
	if err := SanitizeKey(id); err != nil {
		return storeErr("save_artifact", err)
	}
	r := m.run(runID, true)
	m.mu.Lock()
	defer m.mu.Unlock()
	r.artifacts[id] = msg.Clone()
	return nil
}

func (m *Memory) GetArtifact(_ context.Context, runID, id string) (types.Message, error) {
	r := m.run(runID, false)
	if r == nil {
		return types.Message{}, notFound(runID, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := r.artifacts[id]
	if !ok {
		return types.Message{}, notFound(runID, id)
	}
	return msg, nil
}

func (m *Memory) ArtifactExists(_ context.Context, runID, id string) (bool, error) {
	r := m.run(runID, false)
	if r == nil {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := r.artifacts[id]
	return ok, nil
}

func (m *Memory) DeleteArtifact(_ context.Context, runID, id string) error {
	r := m.run(runID, false)
	if r == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(r.artifacts, id)
	return nil
}

func (m *Memory) ListArtifacts(_ context.Context, runID string) ([]string, error) {
	r := m.run(runID, false)
	if r == nil {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(r.artifacts))
	for id := range r.artifacts {
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) ClearArtifacts(_ context.Context, runID string) error {
	r := m.run(runID, false)
	if r == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.artifacts = make(map[string]types.Message)
	return nil
}

func (m *Memory) SaveExecutionState(_ context.Context, runID string, state types.ExecutionState) error {
	r := m.run(runID, true)
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := state
	r.state = &cp
	return nil
}

func (m *Memory) LoadExecutionState(_ context.Context, runID string) (types.ExecutionState, error) {
	r := m.run(runID, false)
	if r == nil || r.state == nil {
		return types.ExecutionState{}, notFound(runID, "_system/state")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *r.state, nil
}

func (m *Memory) SaveRunMetadata(_ context.Context, runID string, meta types.RunMetadata) error {
	r := m.run(runID, true)
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := meta
	r.meta = &cp
	return nil
}

func (m *Memory) LoadRunMetadata(_ context.Context, runID string) (types.RunMetadata, error) {
	r := m.run(runID, false)
	if r == nil || r.meta == nil {
		return types.RunMetadata{}, notFound(runID, "_system/run")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *r.meta, nil
}

func (m *Memory) ListRuns(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.runs))
	for id := range m.runs {
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
