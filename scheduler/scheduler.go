package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/contextcollector"
	"github.com/taskforge/conductor/lockmgr"
	"github.com/taskforge/conductor/reviewer"
	"github.com/taskforge/conductor/sandbox"
	"github.com/taskforge/conductor/tasktree"
	"github.com/taskforge/conductor/worker"
	"github.com/taskforge/conductor/worker/summary"
)

// workerRunner is the subset of worker.Runner the scheduler depends on,
// extracted so tests can drive the dispatch loop with a fake rather than a
// real agent.Runner and mock LLM client.
type workerRunner interface {
	Run(ctx context.Context, req worker.Request) summary.Summary
}

// reviewerRunner is the subset of reviewer.Runner the scheduler depends on.
type reviewerRunner interface {
	Review(ctx context.Context, req reviewer.Request) (*tasktree.Review, error)
}

var (
	_ workerRunner   = (*worker.Runner)(nil)
	_ reviewerRunner = (*reviewer.Runner)(nil)
)

// Scheduler drives one blueprint's task tree to completion: it computes the
// ready set, bounds concurrent dispatch, and carries each dispatched task
// through context assembly, sandboxed execution, review, and sync-back.
// Grounded on taskdispatcher.Component's dispatchWithDependencies loop
// (semaphore, completion channel, running-set guard), driving tasktree.Tree
// directly instead of a parallel dependency graph.
type Scheduler struct {
	mu   sync.Mutex
	tree *tasktree.Tree
	bp   *blueprint.Blueprint

	cfg       Config
	collector *contextcollector.Collector
	worker    workerRunner
	reviewer  reviewerRunner
	locks     *lockmgr.Manager
	logger    *slog.Logger
	metrics   *metrics

	sem      chan struct{}
	events   chan Event
	resumeCh chan struct{}
	paused   atomic.Bool
	hardStop atomic.Bool

	// summaries holds each approved task's worker execution summary, keyed
	// by task id, so a dependent task's context can be built with real
	// dependency output (spec.md §3/§4.4). Only approved tasks are
	// recorded: "for each upstream task that finished successfully."
	summaries map[string]summary.Summary
}

// New builds a Scheduler over an already-validated tree. reg may be nil, in
// which case metrics register against prometheus.DefaultRegisterer.
func New(
	cfg Config,
	tree *tasktree.Tree,
	bp *blueprint.Blueprint,
	collector *contextcollector.Collector,
	w workerRunner,
	rv reviewerRunner,
	locks *lockmgr.Manager,
	logger *slog.Logger,
	reg prometheus.Registerer,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Scheduler{
		tree:      tree,
		bp:        bp,
		cfg:       cfg,
		collector: collector,
		worker:    w,
		reviewer:  rv,
		locks:     locks,
		logger:    logger,
		metrics:   newMetrics(reg),
		sem:       make(chan struct{}, cfg.concurrencyLimit()),
		events:    make(chan Event, 64),
		resumeCh:  make(chan struct{}, 1),
		summaries: make(map[string]summary.Summary),
	}
}

// Events returns the scheduler's event stream. It closes when Run returns.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Pause stops the dispatch of new tasks; tasks already running continue to
// completion. Resume re-evaluates the ready set and dispatches again.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
}

// Resume clears a pause and nudges the dispatch loop to recompute the ready
// set, in case tasks became ready while paused.
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	select {
	case s.resumeCh <- struct{}{}:
	default:
	}
}

// Cancel cancels one task (and cascades to its dependents) if taskID is
// non-empty, or signals a hard stop of the whole run when taskID is empty.
// A hard stop does not kill in-flight agent calls; it stops new dispatch and
// lets Run return once in-flight work drains.
func (s *Scheduler) Cancel(taskID string) error {
	if taskID == "" {
		s.hardStop.Store(true)
		s.Resume() // wake a paused drain loop so it observes the stop
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.tree.Find(taskID)
	if !ok {
		return fmt.Errorf("scheduler: cancel: %w: %s", tasktree.ErrNotFound, taskID)
	}
	if terminal(n.Status) {
		return nil
	}
	if err := s.tree.UpdateStatus(taskID, tasktree.StatusCancelled); err != nil {
		return err
	}
	s.emitLocked(Event{Kind: EventCancelled, TaskID: taskID})
	s.cascadeCancel(taskID)
	return nil
}

// Run drives the dispatch loop to completion: every node reaches a terminal
// status, or ctx is cancelled. It blocks until the run ends and returns the
// accumulated report. The event stream closes when Run returns.
func (s *Scheduler) Run(ctx context.Context) AggregateReport {
	defer close(s.events)

	var (
		wg          sync.WaitGroup
		report      AggregateReport
		completedCh = make(chan string, 64)
		done        = make(chan struct{})
		runningMu   sync.Mutex
		running     = make(map[string]bool)
	)

	dispatchReady := func(ready []*tasktree.Node) {
		if s.paused.Load() || s.hardStop.Load() {
			return
		}
		for _, n := range ready {
			runningMu.Lock()
			if running[n.ID] {
				runningMu.Unlock()
				continue
			}
			running[n.ID] = true
			runningMu.Unlock()

			wg.Add(1)
			go s.runTaskAsync(ctx, n, &wg, completedCh)
		}
	}

	s.mu.Lock()
	initialReady := s.tree.ReadySet()
	s.mu.Unlock()
	dispatchReady(initialReady)

	go s.drainCompletions(ctx, done, completedCh, dispatchReady, &report)

	select {
	case <-ctx.Done():
		wg.Wait()
	case <-done:
		wg.Wait()
	}

	return report
}

func (s *Scheduler) drainCompletions(
	ctx context.Context,
	done chan struct{},
	completedCh <-chan string,
	dispatchReady func([]*tasktree.Node),
	report *AggregateReport,
) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resumeCh:
			if s.hardStop.Load() {
				// Run's wg.Wait covers whatever is still in flight.
				return
			}
			s.mu.Lock()
			ready := s.tree.ReadySet()
			s.mu.Unlock()
			dispatchReady(ready)
		case taskID, ok := <-completedCh:
			if !ok {
				return
			}

			s.mu.Lock()
			if n, ok := s.tree.Find(taskID); ok && terminal(n.Status) {
				report.record(eventKindForStatus(n.Status))
			}
			finished := s.hardStop.Load() || s.allTerminalOrUnreachableLocked()
			var newlyReady []*tasktree.Node
			if !finished {
				newlyReady = s.tree.ReadySet()
			}
			s.mu.Unlock()

			if finished {
				return
			}
			dispatchReady(newlyReady)
		}
	}
}

func eventKindForStatus(status tasktree.Status) EventKind {
	switch status {
	case tasktree.StatusApproved:
		return EventApproved
	case tasktree.StatusRejected:
		return EventRejected
	case tasktree.StatusCancelled:
		return EventCancelled
	default:
		return EventError
	}
}

// allTerminalOrUnreachable reports whether every node in the tree has
// reached a terminal status. A node blocked on a dependency that will never
// be approved counts only once cascadeCancel has cancelled it. Locks
// internally.
func (s *Scheduler) allTerminalOrUnreachable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allTerminalOrUnreachableLocked()
}

func (s *Scheduler) allTerminalOrUnreachableLocked() bool {
	for _, n := range s.tree.AllNodes() {
		if !terminal(n.Status) {
			return false
		}
	}
	return true
}

// cascadeCancel marks every transitive dependent of rootID as cancelled.
// Called with s.mu held. Grounded on spec's cascade-cancellation requirement:
// a rejected or cancelled ancestor can never be approved, so any task that
// depends on it (directly or through a chain) can never legally become
// ready — rather than hang forever, it is cancelled too.
func (s *Scheduler) cascadeCancel(rootID string) {
	cancelled := map[string]bool{rootID: true}
	changed := true
	for changed {
		changed = false
		for _, n := range s.tree.AllNodes() {
			if terminal(n.Status) {
				continue
			}
			if cancelled[n.ID] {
				continue
			}
			for _, dep := range n.Dependencies {
				if cancelled[dep] {
					if err := s.tree.UpdateStatus(n.ID, tasktree.StatusCancelled); err != nil {
						s.logger.Warn("cascade cancel failed", "task_id", n.ID, "error", err)
						break
					}
					cancelled[n.ID] = true
					changed = true
					s.emitLocked(Event{Kind: EventCancelled, TaskID: n.ID, Detail: "dependency " + dep + " will never be approved"})
					break
				}
			}
		}
	}
}

// attemptOutcome is what one pass through attempt() decided.
type attemptOutcome int

const (
	outcomeApproved attemptOutcome = iota
	outcomeRejected
	outcomeRetry
)

func (s *Scheduler) runTaskAsync(ctx context.Context, n *tasktree.Node, wg *sync.WaitGroup, completedCh chan<- string) {
	defer wg.Done()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		completedCh <- n.ID
		return
	}

	s.metrics.runningGauge.Inc()
	defer s.metrics.runningGauge.Dec()

	for {
		if s.hardStop.Load() || ctx.Err() != nil {
			_ = s.Cancel(n.ID)
			break
		}
		if s.attempt(ctx, n.ID) != outcomeRetry {
			break
		}
	}
	completedCh <- n.ID
}

// attempt carries one task through a single coding/testing/review cycle:
// context assembly, sandboxed execution, sync-back, the worker's own test
// run, and (if enabled) an independent review pass. It returns whether the
// task is now approved, permanently rejected, or should be attempted again.
// Every failure path funnels through failOrRetry, which applies the task's
// retry budget and emits the terminal or retry event — attempt itself never
// returns an error to its caller.
func (s *Scheduler) attempt(ctx context.Context, taskID string) attemptOutcome {
	s.mu.Lock()
	n, ok := s.tree.Find(taskID)
	if !ok {
		s.mu.Unlock()
		return outcomeRejected
	}
	if err := s.tree.UpdateStatus(taskID, tasktree.StatusCoding); err != nil {
		s.mu.Unlock()
		s.emitLocked(Event{Kind: EventError, TaskID: taskID, Detail: err.Error()})
		return outcomeRejected
	}
	task := n.Clone()
	module := s.moduleFor(task)
	bundle := s.collector.Collect(task, classifyTaskType(task), module, s.dependencyOutputs(task))
	s.metrics.tasksDispatched.Inc()
	s.emitLocked(Event{Kind: EventDispatched, TaskID: taskID})
	s.mu.Unlock()

	sb, err := sandbox.New(s.cfg.SandboxBaseDir, workerIDFor(task), task.ID, s.cfg.ProjectPath)
	if err != nil {
		return s.failOrRetry(taskID, fmt.Errorf("create sandbox: %w", err))
	}
	defer func() {
		_ = s.locks.ReleaseAll(workerIDFor(task))
		_ = sb.Teardown()
	}()

	if _, err := sb.CopyIn(inputPaths(bundle)); err != nil {
		return s.failOrRetry(taskID, fmt.Errorf("copy in: %w", err))
	}

	sum := s.worker.Run(ctx, worker.Request{
		Task:       task,
		Bundle:     bundle,
		LastReview: task.LatestReview(),
		WorkDir:    sb.Root,
	})

	if sum.Error != "" {
		return s.failOrRetry(taskID, fmt.Errorf("worker: %s", sum.Error))
	}

	syncResult, err := sb.SyncBack(s.locks)
	if err != nil {
		return s.failOrRetry(taskID, fmt.Errorf("sync back: %w", err))
	}
	if syncResult.Conflicts > 0 {
		s.metrics.syncConflicts.Add(float64(syncResult.Conflicts))
	}
	if syncResult.Failed > 0 {
		s.metrics.lockContention.Add(float64(syncResult.Failed))
	}

	s.mu.Lock()
	_ = s.tree.UpdateStatus(taskID, tasktree.StatusTesting)
	s.mu.Unlock()

	if syncResult.Conflicts > 0 || syncResult.Failed > 0 {
		return s.failOrRetry(taskID, fmt.Errorf("sync-back: %d conflict(s), %d failure(s)", syncResult.Conflicts, syncResult.Failed))
	}

	testStatus := tasktree.StatusPassed
	if sum.TestRun != nil && !sum.TestRun.Passed {
		testStatus = tasktree.StatusTestFailed
	}
	s.mu.Lock()
	_ = s.tree.UpdateStatus(taskID, testStatus)
	s.mu.Unlock()
	if testStatus == tasktree.StatusTestFailed {
		return s.failOrRetry(taskID, fmt.Errorf("worker's own test run failed"))
	}

	if !s.cfg.ReviewerEnabled || s.reviewer == nil {
		s.approve(taskID, sum)
		return outcomeApproved
	}

	review, err := s.reviewer.Review(ctx, reviewer.Request{
		Task:    task,
		Summary: sum,
		Context: s.reviewContextFor(task),
	})
	if err != nil {
		return s.failOrRetry(taskID, fmt.Errorf("review: %w", err))
	}

	s.mu.Lock()
	_ = s.tree.RecordCheckpoint(taskID, tasktree.Checkpoint{Kind: "review", Review: review})
	s.mu.Unlock()

	if review.Verdict == tasktree.VerdictPassed {
		s.approve(taskID, sum)
		return outcomeApproved
	}
	return s.failOrRetry(taskID, fmt.Errorf("review verdict: %s", review.Verdict))
}

func (s *Scheduler) approve(taskID string, sum summary.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tree.UpdateStatus(taskID, tasktree.StatusApproved); err != nil {
		s.emitLocked(Event{Kind: EventError, TaskID: taskID, Detail: err.Error()})
		return
	}
	s.summaries[taskID] = sum
	s.metrics.tasksApproved.Inc()
	s.emitLocked(Event{Kind: EventApproved, TaskID: taskID})
}

// failOrRetry increments the task's retry count and moves it to Coding for
// another attempt if the budget allows, or to Rejected (cascading to
// dependents) otherwise. A task can fail before it ever reaches Testing
// (sandbox setup, worker error); transitionForOutcome funnels those cases
// through Testing/TestFailed first since the lifecycle graph only accepts
// TestFailed/Passed as the entry points for a retry or rejection.
func (s *Scheduler) failOrRetry(taskID string, cause error) attemptOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.tree.Find(taskID)
	if !ok {
		return outcomeRejected
	}
	n.RetryCount++
	_ = s.tree.RecordCheckpoint(taskID, tasktree.Checkpoint{Kind: "retry", Note: cause.Error()})

	maxRetries := n.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	if n.RetryCount > maxRetries {
		if err := s.transitionForOutcomeLocked(taskID, false); err != nil {
			s.emitLocked(Event{Kind: EventError, TaskID: taskID, Detail: err.Error()})
			return outcomeRejected
		}
		s.metrics.tasksRejected.Inc()
		s.emitLocked(Event{Kind: EventRejected, TaskID: taskID, Detail: cause.Error()})
		s.cascadeCancel(taskID)
		return outcomeRejected
	}

	if err := s.transitionForOutcomeLocked(taskID, true); err != nil {
		s.emitLocked(Event{Kind: EventError, TaskID: taskID, Detail: err.Error()})
		return outcomeRejected
	}
	s.emitLocked(Event{Kind: EventRetried, TaskID: taskID, Detail: cause.Error()})
	return outcomeRetry
}

// transitionForOutcomeLocked moves a task to Coding (retry) or Rejected,
// funneling through Testing -> TestFailed first when the task's current
// status is not already a legal departure point for that move. Must be
// called with s.mu held.
func (s *Scheduler) transitionForOutcomeLocked(taskID string, retry bool) error {
	n, ok := s.tree.Find(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", tasktree.ErrNotFound, taskID)
	}
	target := tasktree.StatusRejected
	if retry {
		target = tasktree.StatusCoding
	}
	if tasktree.CanTransition(n.Status, target) {
		return s.tree.UpdateStatus(taskID, target)
	}
	if n.Status == tasktree.StatusCoding {
		if err := s.tree.UpdateStatus(taskID, tasktree.StatusTesting); err != nil {
			return err
		}
	}
	if err := s.tree.UpdateStatus(taskID, tasktree.StatusTestFailed); err != nil {
		return err
	}
	return s.tree.UpdateStatus(taskID, target)
}

func (s *Scheduler) moduleFor(task *tasktree.Node) *blueprint.Module {
	if task.ModuleID == "" {
		return nil
	}
	if m, ok := s.bp.ModuleByID(task.ModuleID); ok {
		return &m
	}
	return nil
}

// dependencyOutputs returns one contextcollector.DependencyOutput per
// dependency that has already been approved, adapted from that task's
// recorded worker execution summary (spec.md §3's "for each upstream task
// that finished successfully"). A dependency that is not yet approved (or
// that this scheduler has no record of, e.g. a dangling id) is skipped
// rather than erroring — the same leniency contextcollector.Collect already
// applies to missing explicit files. Callers must already hold s.mu, the
// same convention moduleFor follows.
func (s *Scheduler) dependencyOutputs(task *tasktree.Node) []contextcollector.DependencyOutput {
	var deps []contextcollector.DependencyOutput
	for _, depID := range task.Dependencies {
		sum, ok := s.summaries[depID]
		if !ok {
			continue
		}
		dep, ok := s.tree.Find(depID)
		if !ok {
			continue
		}
		deps = append(deps, contextcollector.DependencyOutputFromSummary(dep.ID, dep.Name, sum))
	}
	return deps
}

func (s *Scheduler) reviewContextFor(task *tasktree.Node) reviewer.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	var related []reviewer.RelatedTask
	for _, depID := range task.Dependencies {
		if dep, ok := s.tree.Find(depID); ok {
			related = append(related, reviewer.RelatedTask{ID: dep.ID, Name: dep.Name, Status: dep.Status})
		}
	}

	strictness := reviewer.StrictnessNormal
	switch s.bp.Status {
	case blueprint.StatusDraft:
		strictness = reviewer.StrictnessLenient
	}

	return reviewer.Context{
		ProjectPath:  s.cfg.ProjectPath,
		IsRetry:      task.RetryCount > 0,
		Attempt:      task.RetryCount + 1,
		PriorReview:  task.LatestReview(),
		Blueprint:    s.bp.Pick(),
		RelatedTasks: related,
		Strictness:   strictness,
	}
}

func (s *Scheduler) emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case s.events <- e:
	default:
		s.logger.Warn("scheduler event stream full, dropping event", "kind", e.Kind, "task_id", e.TaskID)
	}
}

// emitLocked is emit called while s.mu is already held by the caller — it
// never blocks on s.mu itself, only on the (buffered) events channel.
func (s *Scheduler) emitLocked(e Event) {
	s.emit(e)
}

func workerIDFor(task *tasktree.Node) string {
	return "worker-" + task.ID
}

func inputPaths(bundle contextcollector.Bundle) []string {
	paths := make([]string, 0, len(bundle.Files))
	for _, f := range bundle.Files {
		if strings.HasPrefix(f.Path, "(") {
			continue // synthetic entries like "(project-structure)" are not files
		}
		paths = append(paths, f.Path)
	}
	return paths
}

// classifyTaskType infers a contextcollector.TaskType from a task's name and
// description. tasktree.Node carries no explicit type field — tasks are
// free-form enough that a fixed enum would need to be threaded through
// decomposition and granularity splitting as well — so the scheduler sniffs
// intent the same way the rest of the corpus buckets loosely-typed work:
// keyword matching over the task's own text.
func classifyTaskType(task *tasktree.Node) contextcollector.TaskType {
	text := strings.ToLower(task.Name + " " + task.Description)
	switch {
	case task.Test != nil, strings.Contains(text, "test"):
		return contextcollector.TaskTypeTest
	case strings.Contains(text, "refactor"):
		return contextcollector.TaskTypeRefactor
	case strings.Contains(text, "integrat"), strings.Contains(text, "wire"):
		return contextcollector.TaskTypeIntegrate
	case strings.Contains(text, "config"), strings.Contains(text, "setup"):
		return contextcollector.TaskTypeConfig
	case task.ModuleID != "":
		return contextcollector.TaskTypeCode
	default:
		return contextcollector.TaskTypeOther
	}
}
