package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/tasktree"
)

// newRootCmd builds the conductor root command: one cobra command with
// run/adjust/pause/resume/cancel subcommands dispatching to the
// orchestrator facade, the same one-root-many-subcommands shape as
// cmd/semspec's root command.
func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:     "conductor",
		Short:   "Task orchestration engine",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to orchestrator.yaml")
	root.PersistentFlags().StringVar(&flags.natsURL, "nats-url", "", "NATS server URL (default: in-process events only)")

	root.AddCommand(newRunCmd(&flags))
	root.AddCommand(newAdjustCmd(&flags))
	root.AddCommand(newControlOnlyCmd(&flags, "pause", "pause a running blueprint"))
	root.AddCommand(newControlOnlyCmd(&flags, "resume", "resume a paused blueprint"))
	root.AddCommand(newControlOnlyCmd(&flags, "cancel", "cancel a task or an entire blueprint run"))

	return root
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <blueprint.yaml> <tasks.yaml> <project-path>",
		Short: "Run a blueprint's task tree to completion",
		Long: `Run dispatches every ready task in the tree against the configured
worker and reviewer, streaming events to stdout until every task reaches a
terminal status. While the run is in flight, type pause, resume, or cancel
[task-id] on stdin and press Enter to control it interactively -- the same
REPL idiom cmd/semspec uses for its interactive mode.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), *flags, args[0], args[1], args[2])
		},
	}
}

func newAdjustCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "adjust <blueprint.yaml> <tasks.yaml>",
		Short: "Preview granularity adjustments for a task tree without applying them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdjust(cmd.Context(), *flags, args[0], args[1])
		},
	}
}

// newControlOnlyCmd registers pause/resume/cancel as named subcommands for
// interface completeness with the orchestrator facade, but this CLI has no
// persistent daemon or shared run registry across invocations -- a process
// started with `run` is the only place an in-flight Run exists. Rather than
// fabricate a control channel nothing else in this module provisions, these
// subcommands point the operator at the interactive session that actually
// holds the run.
func newControlOnlyCmd(flags *rootFlags, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <blueprint-id> [task-id]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%s must be issued as a command inside an active `conductor run` session, not as a standalone invocation", name)
		},
	}
}

func runRun(ctx context.Context, flags rootFlags, bpPath, treePath, projectPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	bp, err := blueprint.LoadFromFile(bpPath)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}

	tree, err := tasktree.LoadFromFile(treePath)
	if err != nil {
		return fmt.Errorf("load task tree: %w", err)
	}

	run, events, err := a.orchestrator.RunBlueprint(ctx, bp, tree, a.worker, a.reviewer, projectPath)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	go controlLoop(os.Stdin, a.orchestrator, bp.ID)

	for e := range events {
		fmt.Printf("[%s] %s task=%s %s\n", e.At.Format("15:04:05"), e.Kind, e.TaskID, e.Detail)
	}

	report := run.Report()
	fmt.Printf("\ndone: approved=%d rejected=%d cancelled=%d errored=%d total=%d\n",
		report.Approved, report.Rejected, report.Cancelled, report.Errored, report.Total)

	if report.Rejected > 0 || report.Errored > 0 {
		return fmt.Errorf("run finished with %d rejected and %d errored task(s)", report.Rejected, report.Errored)
	}
	return nil
}

// controlLoop reads pause/resume/cancel lines from r for the duration of a
// run, dispatching each straight into the orchestrator facade -- the
// interactive counterpart to cmd/semspec's runREPL loop. status, quit and
// exit lines are accepted and ignored.
func controlLoop(r *os.File, o orchestratorController, blueprintID string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "pause":
			err = o.Pause(blueprintID)
		case "resume":
			err = o.Resume(blueprintID)
		case "cancel":
			taskID := ""
			if len(fields) > 1 {
				taskID = fields[1]
			}
			err = o.Cancel(blueprintID, taskID)
		case "status", "quit", "exit":
			continue
		default:
			fmt.Fprintf(os.Stderr, "unrecognized command %q (pause, resume, cancel [task-id])\n", fields[0])
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", fields[0], err)
		}
	}
}

// orchestratorController is the subset of *orchestrator.Orchestrator the
// control loop depends on, extracted so it can be exercised without a real
// in-flight run in tests.
type orchestratorController interface {
	Pause(blueprintID string) error
	Resume(blueprintID string) error
	Cancel(blueprintID, taskID string) error
}

func runAdjust(ctx context.Context, flags rootFlags, bpPath, treePath string) error {
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	bp, err := blueprint.LoadFromFile(bpPath)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}
	tree, err := tasktree.LoadFromFile(treePath)
	if err != nil {
		return fmt.Errorf("load task tree: %w", err)
	}

	result := a.orchestrator.AdjustGranularity(tree, bp)

	fmt.Printf("assessed %d task(s)\n", len(result.Assessments))
	for _, issue := range result.Issues {
		fmt.Printf("  issue: %s task=%s (%s) %s\n", issue.Type, issue.TaskID, issue.Severity, issue.Detail)
	}
	for _, group := range result.MergeGroups {
		fmt.Printf("  merge candidate under %s: %d sibling(s)\n", group.Parent, len(group.Siblings))
	}
	for _, asm := range result.Assessments {
		if asm.ShouldSplit {
			fmt.Printf("  %s: score=%.1f should-split (%d suggestion(s))\n", asm.TaskID, asm.Score, len(asm.Suggestions))
		}
	}

	return nil
}
