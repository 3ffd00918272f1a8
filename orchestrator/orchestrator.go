// Package orchestrator is the facade external collaborators drive: it wires
// a blueprint's task tree to a scheduler, runs it to completion, and
// publishes its event stream both in-process and (optionally) onto NATS
// JetStream so a UI or history search can subscribe independently of the
// calling goroutine.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/config"
	"github.com/taskforge/conductor/contextcollector"
	"github.com/taskforge/conductor/granularity"
	"github.com/taskforge/conductor/lockmgr"
	"github.com/taskforge/conductor/reviewer"
	"github.com/taskforge/conductor/scheduler"
	"github.com/taskforge/conductor/tasktree"
	"github.com/taskforge/conductor/worker"
)

// eventSubjectPrefix is the JetStream subject prefix events are published
// under, one subject per blueprint: orchestrator.event.<blueprintID>.
const eventSubjectPrefix = "orchestrator.event"

// AdjustmentResult is what adjustGranularity returns for a dry run: the
// controller's assessment of a tree as it stands, never applied.
type AdjustmentResult = granularity.Result

// Run tracks one in-flight or completed blueprint execution.
type Run struct {
	BlueprintID string

	mu        sync.Mutex
	tree      *tasktree.Tree
	scheduler *scheduler.Scheduler
	report    scheduler.AggregateReport
	done      chan struct{}
}

// Report blocks until the run finishes and returns its aggregate report.
func (r *Run) Report() scheduler.AggregateReport {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// Pause stops new dispatch on this run; in-flight tasks continue.
func (r *Run) Pause() { r.scheduler.Pause() }

// Resume clears a pause and re-evaluates the ready set.
func (r *Run) Resume() { r.scheduler.Resume() }

// Cancel cancels one task (cascading to its dependents) or, with an empty
// id, the whole run.
func (r *Run) Cancel(taskID string) error { return r.scheduler.Cancel(taskID) }

// Orchestrator wires blueprints to schedulers and publishes their event
// streams. One Orchestrator can drive many concurrent Runs.
type Orchestrator struct {
	cfg        *config.Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metricsReg prometheus.Registerer

	mu   sync.Mutex
	runs map[string]*Run
}

// New builds an Orchestrator. natsClient may be nil, in which case events
// are only published on the in-process channel. reg may be nil, in which
// case metrics register against prometheus.DefaultRegisterer.
func New(cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger, reg prometheus.Registerer) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		natsClient: natsClient,
		logger:     logger,
		metricsReg: reg,
		runs:       make(map[string]*Run),
	}
}

// RunBlueprint validates tree (bp's requirements already decomposed into
// tasks — the orchestrator does not itself decompose a blueprint into
// tasks, that is an upstream concern), starts dispatch, and
// returns the run handle plus its in-process event channel. The channel
// closes once every task reaches a terminal status or ctx is cancelled.
func (o *Orchestrator) RunBlueprint(
	ctx context.Context,
	bp *blueprint.Blueprint,
	tree *tasktree.Tree,
	w *worker.Runner,
	rv *reviewer.Runner,
	projectPath string,
) (*Run, <-chan Event, error) {
	if err := tree.ValidateInvariants(); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: invalid task tree: %w", err)
	}

	locks, err := lockmgr.New(o.cfg.Sandbox.LockDir)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: init lock manager: %w", err)
	}
	locks.WithTimeout(o.cfg.LockTimeout())

	collector := contextcollector.New(projectPath, contextcollector.FromOrchestratorConfig(o.cfg.Context))

	var reviewerRunnerIface interface {
		Review(ctx context.Context, req reviewer.Request) (*tasktree.Review, error)
	}
	if o.cfg.Reviewer.Enabled && rv != nil {
		reviewerRunnerIface = rv
	}

	sched := scheduler.New(
		scheduler.Config{
			ConcurrencyLimit: o.cfg.Scheduler.ConcurrencyLimit,
			ProjectPath:      projectPath,
			SandboxBaseDir:   o.cfg.Sandbox.BaseDir,
			LockDir:          o.cfg.Sandbox.LockDir,
			ReviewerEnabled:  o.cfg.Reviewer.Enabled,
		},
		tree, bp, collector, w, reviewerRunnerIface, locks, o.logger, o.metricsReg,
	)

	run := &Run{
		BlueprintID: bp.ID,
		tree:        tree,
		scheduler:   sched,
		done:        make(chan struct{}),
	}
	o.mu.Lock()
	o.runs[bp.ID] = run
	o.mu.Unlock()

	out := make(chan Event, 64)
	go o.drive(ctx, run, out)

	return run, out, nil
}

// drive forwards the scheduler's event stream through translateSchedulerEvent,
// publishes each to NATS if configured, runs the scheduler to completion,
// and emits a final EventDone before closing out.
func (o *Orchestrator) drive(ctx context.Context, run *Run, out chan<- Event) {
	defer close(out)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for se := range run.scheduler.Events() {
			ev, ok := translateSchedulerEvent(run.BlueprintID, se)
			if !ok {
				continue
			}
			o.publish(ctx, ev)
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
	}()

	report := run.scheduler.Run(ctx)
	wg.Wait()

	run.mu.Lock()
	run.report = report
	run.mu.Unlock()
	close(run.done)

	done := Event{Kind: EventDone, BlueprintID: run.BlueprintID, Detail: fmt.Sprintf(
		"approved=%d rejected=%d cancelled=%d errored=%d total=%d",
		report.Approved, report.Rejected, report.Cancelled, report.Errored, report.Total,
	)}
	o.publish(ctx, done)
	select {
	case out <- done:
	case <-ctx.Done():
	}
}

// publish is a no-op when no NATS client was configured. Publish errors are
// logged, not returned: a dropped observability event never fails the run
// itself.
func (o *Orchestrator) publish(ctx context.Context, ev Event) {
	if o.natsClient == nil {
		return
	}
	baseMsg := message.NewBaseMessage(ev.Schema(), ev, "orchestrator")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		o.logger.Error("marshal orchestrator event", "error", err, "kind", ev.Kind)
		return
	}
	subject := fmt.Sprintf("%s.%s", eventSubjectPrefix, ev.BlueprintID)
	if err := o.natsClient.Publish(ctx, subject, data); err != nil {
		o.logger.Error("publish orchestrator event", "error", err, "subject", subject)
	}
}

// AdjustGranularity runs the granularity controller over tree as a dry run
// — it never mutates the tree — so a UI can preview split/merge suggestions
// and structural diagnostics before committing to them.
func (o *Orchestrator) AdjustGranularity(tree *tasktree.Tree, bp *blueprint.Blueprint) AdjustmentResult {
	cfg := granularity.FromOrchestratorConfig(o.cfg.Granularity)
	return granularity.Assess(tree, granularity.ModuleLookupFrom(bp), cfg)
}

// Pause, Resume, and Cancel look up a run by blueprint id and forward to it.
func (o *Orchestrator) Pause(blueprintID string) error {
	run, err := o.find(blueprintID)
	if err != nil {
		return err
	}
	run.Pause()
	return nil
}

func (o *Orchestrator) Resume(blueprintID string) error {
	run, err := o.find(blueprintID)
	if err != nil {
		return err
	}
	run.Resume()
	return nil
}

func (o *Orchestrator) Cancel(blueprintID, taskID string) error {
	run, err := o.find(blueprintID)
	if err != nil {
		return err
	}
	return run.Cancel(taskID)
}

func (o *Orchestrator) find(blueprintID string) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[blueprintID]
	if !ok {
		return nil, fmt.Errorf("orchestrator: no run for blueprint %s", blueprintID)
	}
	return run, nil
}
