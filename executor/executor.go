// Package executor implements the second engine stage: driving an
// already-planned ExecutionPlan to terminal state against an artifact
// store, per spec.md §4.3.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waivern/orchestrator/log"
	"github.com/waivern/orchestrator/metrics"
	"github.com/waivern/orchestrator/notify"
	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/store"
	"github.com/waivern/orchestrator/types"
)

// Executor drives one ExecutionPlan to completion. Per §5's
// shared-resource policy, an Executor instance is scoped to a single
// run — construct a fresh one per Run call; factory and store are the
// only collaborators shared safely across runs.
type Executor struct {
	factory  producer.Factory
	store    store.ArtifactStore
	metrics  *metrics.Collector
	logger   *log.Logger
	notifier notify.Notifier

	accountant CostAccountant
	startedAt  time.Time

	cancelFn context.CancelFunc
	reasonMu sync.Mutex
	reason   error
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithMetrics attaches a metrics.Collector. Nil-safe if omitted — all
// Collector methods tolerate a nil receiver.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithCostAccountant overrides the default cost accountant, which is
// otherwise derived from the plan's runbook config.cost_limit (or a
// no-op if unset) at the start of Run.
func WithCostAccountant(a CostAccountant) Option {
	return func(e *Executor) { e.accountant = a }
}

// WithNotifier attaches a notify.Notifier that is published to,
// best-effort, once the run reaches a terminal RunResult. A publish
// failure is logged and never changes the run's outcome.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

// New constructs an Executor. factory resolves connector/processor
// producers; st is the artifact store the run persists to.
func New(factory producer.Factory, st store.ArtifactStore, opts ...Option) *Executor {
	e := &Executor{factory: factory, store: st}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives plan to quiescence and returns the final RunResult. A
// fresh run_id (UUID) is generated at entry, per §3's lifecycle rule.
func (e *Executor) Run(ctx context.Context, plan *types.ExecutionPlan) (*types.RunResult, error) {
	runID := uuid.New().String()
	e.startedAt = time.Now()
	runMeta := types.RunMeta{RunID: runID, Attempt: 1, StartedAt: e.startedAt}
	e.logger = log.NewLogger(&runMeta)

	if e.accountant == nil {
		if plan.Runbook.Config.CostLimit > 0 {
			e.accountant = NewBudgetAccountant(plan.Runbook.Config.CostLimit)
		} else {
			e.accountant = noopAccountant{}
		}
	}

	e.metrics.IncRunStarted()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancelFn = cancel
	defer cancel()

	if plan.Runbook.Config.TimeoutSeconds > 0 {
		timer := time.AfterFunc(time.Duration(plan.Runbook.Config.TimeoutSeconds)*time.Second, func() {
			e.cancelWithReason(timeoutErr())
		})
		defer timer.Stop()
	}

	meta := types.RunMetadata{
		RunID:       runID,
		RunbookName: plan.Runbook.Name,
		StartedAt:   e.startedAt,
		Status:      types.RunStatusRunning,
	}
	if err := e.store.SaveRunMetadata(ctx, runID, meta); err != nil {
		e.logger.Error("failed to save initial run metadata", map[string]any{"error": err.Error()})
	}

	maxConcurrency := plan.Runbook.Config.EffectiveMaxConcurrency()
	sched := newScheduler(e, plan, runID)
	results := sched.run(runCtx, maxConcurrency)
	status := sched.snapshotStatus()

	total := time.Since(e.startedAt).Seconds()
	runResult := buildRunResult(runID, e.startedAt, total, plan.Runbook.Artifacts, results, status)

	if reason := e.cancelCause(); reason != nil {
		e.logger.Warn("run cancelled", map[string]any{"reason": reason.Error()})
		if kind, ok := types.KindOf(reason); ok && kind == types.ErrTimeout && runResult.Status != types.RunStatusSuccess {
			runResult.Status = types.RunStatusTimeout
		}
	}

	switch runResult.Status {
	case types.RunStatusSuccess:
		e.metrics.IncRunCompleted()
	case types.RunStatusPartial:
		e.metrics.IncRunPartial()
	case types.RunStatusTimeout:
		e.metrics.IncRunTimedOut()
	default:
		e.metrics.IncRunFailed()
	}

	finishedAt := time.Now()
	meta.FinishedAt = &finishedAt
	meta.Status = runResult.Status
	if err := e.store.SaveRunMetadata(ctx, runID, meta); err != nil {
		e.logger.Error("failed to save final run metadata", map[string]any{"error": err.Error()})
	}

	e.notifyCompletion(ctx, plan.Runbook.Name, runResult)

	return runResult, nil
}

// notifyCompletion publishes a run-completion event on a best-effort
// basis. A nil notifier is a no-op; a publish error is logged, never
// surfaced to the caller — notification is not part of the run's
// success criteria.
func (e *Executor) notifyCompletion(ctx context.Context, runbookName string, result *types.RunResult) {
	if e.notifier == nil {
		return
	}
	event := notify.EventFromResult(runbookName, result)
	if err := e.notifier.Publish(ctx, event); err != nil {
		e.logger.Warn("run completion notification failed", map[string]any{"error": err.Error()})
	}
}

func (e *Executor) newProducerContext(ctx context.Context, runID, artifactID string) producer.Context {
	return producer.Context{
		RunID:        runID,
		ArtifactID:   artifactID,
		Cancellation: ctx.Done(),
	}
}

// cancelWithReason records the first cancellation cause and cancels the
// run's context. Subsequent calls are no-ops (first cause wins).
func (e *Executor) cancelWithReason(cause error) {
	e.reasonMu.Lock()
	if e.reason == nil {
		e.reason = cause
	}
	e.reasonMu.Unlock()
	if e.cancelFn != nil {
		e.cancelFn()
	}
}

// cancelReason returns a human-readable cancellation reason, used as
// the Error string for nodes that never got to run.
func (e *Executor) cancelReason() string {
	e.reasonMu.Lock()
	defer e.reasonMu.Unlock()
	if e.reason == nil {
		return "run cancelled"
	}
	return e.reason.Error()
}

// cancelCause returns the recorded cancellation cause, or nil if the
// run was never cancelled.
func (e *Executor) cancelCause() error {
	e.reasonMu.Lock()
	defer e.reasonMu.Unlock()
	return e.reason
}
