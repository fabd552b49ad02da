// Command conductor runs a planner-produced task breakdown through the
// coordination loop: dependency-aware scheduling, external worker dispatch,
// and debounced verification gating.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aldermoor/conductor/internal/config"
	"github.com/aldermoor/conductor/internal/events"
	"github.com/aldermoor/conductor/internal/graph"
	"github.com/aldermoor/conductor/internal/plan"
	"github.com/aldermoor/conductor/internal/queue"
	"github.com/aldermoor/conductor/internal/runner"
	"github.com/aldermoor/conductor/internal/session"
	"github.com/aldermoor/conductor/internal/store"
	"github.com/aldermoor/conductor/internal/task"
	"github.com/aldermoor/conductor/internal/verify"
	"github.com/aldermoor/conductor/internal/watch"
	"github.com/aldermoor/conductor/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	planPath := flag.String("plan", "", "path to the plan file (required)")
	dbPath := flag.String("db", "", "SQLite task store path (in-memory store when empty)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *planPath == "" {
		flag.Usage()
		return fmt.Errorf("-plan is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	p, warnings, err := plan.Load(*planPath)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn("plan validation warning", "warning", w)
	}

	taskStore, closeStore, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	nodes := p.Nodes()
	g, err := graph.Build(nodes)
	if err != nil {
		return fmt.Errorf("building dependency graph: %w", err)
	}
	if order, err := g.Order(); err == nil {
		logger.Debug("planned execution order", "order", order)
	}

	for _, n := range nodes {
		if err := addTask(taskStore, n); err != nil {
			return fmt.Errorf("seeding task store: %w", err)
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	procMgr := worker.NewProcessManager()
	go func() {
		<-ctx.Done()
		if err := procMgr.KillAll(); err != nil {
			logger.Warn("failed to kill worker subprocesses", "error", err)
		}
	}()

	dispatcher, err := buildWorkers(cfg, procMgr)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	executor := verify.NewRetryExecutor(&verify.CommandExecutor{
		Command: cfg.Verification.Command,
		Args:    cfg.Verification.Args,
		ProcMgr: procMgr,
	}, verify.DefaultRetryConfig(), logger)

	gate := verify.NewGate(taskStore, executor, bus, logger, verify.Options{
		StabilityDelay: cfg.Verification.StabilityDelayDuration(),
		MaxRetries:     cfg.Verification.MaxRetries,
	})
	defer gate.Dispose()

	if cfg.Watch.Enabled {
		sink := watch.NewGateSink(gate)
		w, err := watch.New(watch.Config{ExcludeDirs: cfg.Watch.ExcludeDirs}, sink, logger)
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		defer w.Close()

		for _, n := range nodes {
			if files := n.Files(); len(files) > 0 {
				w.Register(n.ID, files)
			}
		}
		root := cfg.Watch.Root
		if root == "" {
			root = "."
		}
		if err := w.Watch(root); err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
	}

	q := queue.New(taskStore, bus, logger)
	sess := session.New(p.Goal, nodes, bus)

	r := runner.New(runner.Config{Concurrency: cfg.Runner.Concurrency}, q, gate, sess, dispatcher, bus, logger)

	logger.Info("starting execution", "session", sess.ID, "tasks", len(nodes))
	results, err := r.Run(ctx)

	progress := sess.Progress()
	logger.Info("execution finished",
		"session", sess.ID,
		"state", sess.State().String(),
		"completed", progress.Completed,
		"total", progress.Total,
		"percent", progress.Percent,
	)
	for _, res := range results {
		if !res.Success {
			logger.Warn("task did not succeed", "task", res.TaskID, "error", res.Err)
		}
	}
	return err
}

// openStore returns the configured task store and its closer.
func openStore(dbPath string) (task.Store, func(), error) {
	if dbPath == "" {
		return store.NewMemory(), func() {}, nil
	}
	s, err := store.NewSQLite(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening task store: %w", err)
	}
	return s, func() { s.Close() }, nil
}

// addTask seeds one node into whichever store implementation is in use.
func addTask(s task.Store, n *task.Node) error {
	switch st := s.(type) {
	case *store.Memory:
		return st.Add(n)
	case *store.SQLite:
		return st.Add(n)
	default:
		return fmt.Errorf("unsupported store type %T", s)
	}
}

// buildWorkers constructs the per-team worker dispatcher from config.
func buildWorkers(cfg *config.Config, procMgr *worker.ProcessManager) (*worker.TeamDispatcher, error) {
	d := worker.NewTeamDispatcher()
	for team, wc := range cfg.Teams {
		w, err := worker.NewCLIWorker(worker.Config{
			Command: wc.Command,
			Args:    wc.Args,
			WorkDir: wc.WorkDir,
		}, procMgr)
		if err != nil {
			return nil, fmt.Errorf("building worker for team %q: %w", team, err)
		}
		d.Register(task.Team(team), w)
		if team == "backend" {
			d.SetFallback(w)
		}
	}
	return d, nil
}
