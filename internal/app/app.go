// Package app wires the configuration loader, the graph builder, the
// scheduler backend and the controller into the operations the command line
// exposes. Every operation is one short-lived invocation: load, act, persist,
// exit.
package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/vk/windrose/internal/config"
	"github.com/vk/windrose/internal/controller"
	"github.com/vk/windrose/internal/ctxlog"
	"github.com/vk/windrose/internal/graph"
	"github.com/vk/windrose/internal/scheduler"
)

// LogFilename is the run-local log file inside the run directory. Every
// controller invocation appends to it, so the file accumulates the full
// history of the run across self-continuations.
const LogFilename = "windrose.log"

// Config holds the settings shared by every command.
type Config struct {
	LogLevel  string
	LogFormat string
}

// App encapsulates the application's dependencies and configuration.
type App struct {
	out    io.Writer
	cfg    Config
	loader config.Loader
}

// New creates the application with the given output stream, settings and
// configuration loader.
func New(out io.Writer, cfg Config, loader config.Loader) *App {
	return &App{out: out, cfg: cfg, loader: loader}
}

// build loads the workflow definition and compiles it into the concrete
// graph.
func (a *App) build(ctx context.Context, path string) (context.Context, *graph.Graph, error) {
	logger := newLogger(a.cfg.LogLevel, a.cfg.LogFormat, a.out)
	ctx = ctxlog.WithLogger(ctx, logger)

	wf, err := a.loader.Load(ctx, path)
	if err != nil {
		return ctx, nil, err
	}
	g, err := graph.Build(ctx, wf)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, g, nil
}

// control builds the graph plus the controller over the configured scheduler
// backend. The returned context carries a logger that also mirrors to the
// run-local log file, so the full controller history survives across
// self-continuations.
func (a *App) control(ctx context.Context, path string) (context.Context, *controller.Controller, error) {
	ctx, g, err := a.build(ctx, path)
	if err != nil {
		return ctx, nil, err
	}
	backend, err := scheduler.New(g.Scheduler)
	if err != nil {
		return ctx, nil, err
	}

	logFile := newLazyFile(filepath.Join(g.RunDir(), LogFilename))
	logger := newLogger(a.cfg.LogLevel, a.cfg.LogFormat, io.MultiWriter(a.out, logFile))
	ctx = ctxlog.WithLogger(ctx, logger)
	return ctx, controller.New(g, backend), nil
}

// Verify loads and compiles the workflow definition without touching the
// scheduler, then prints a short summary of the concrete graph.
func (a *App) Verify(ctx context.Context, path string) error {
	ctx, g, err := a.build(ctx, path)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Workflow verified.")

	tasks := g.Tasks.All()
	data := g.Data.All()
	fmt.Fprintf(a.out, "workflow %s: %d tasks, %d data items\n", g.Name, len(tasks), len(data))
	for _, t := range tasks {
		fmt.Fprintf(a.out, "  task %s (%d parents, %d children)\n", t.Label(), len(t.Parents), len(t.Children))
	}
	return nil
}

// Start begins a fresh run of the workflow.
func (a *App) Start(ctx context.Context, path string) error {
	ctx, ctrl, err := a.control(ctx, path)
	if err != nil {
		return err
	}
	return ctrl.Start(ctx)
}

// Continue performs one propagation step of an existing run. The
// self-continuation job invokes it after each scheduler round.
func (a *App) Continue(ctx context.Context, path string) error {
	ctx, ctrl, err := a.control(ctx, path)
	if err != nil {
		return err
	}
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	_, err = ctrl.Propagate(ctx)
	return err
}

// Restart resumes a stopped run by resubmitting the persisted front.
func (a *App) Restart(ctx context.Context, path string) error {
	ctx, ctrl, err := a.control(ctx, path)
	if err != nil {
		return err
	}
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	return ctrl.Restart(ctx)
}

// Stop halts an existing run, optionally leaving committed generation-0 work
// cooling down instead of canceling it.
func (a *App) Stop(ctx context.Context, path string, coolDown bool) error {
	ctx, ctrl, err := a.control(ctx, path)
	if err != nil {
		return err
	}
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	return ctrl.Stop(ctx, coolDown)
}

// Status prints the scheduler status of every fronted task of an existing
// run.
func (a *App) Status(ctx context.Context, path string) error {
	ctx, ctrl, err := a.control(ctx, path)
	if err != nil {
		return err
	}
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	reports, err := ctrl.Report(ctx)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(a.out, "no tasks in flight")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tJOBID\tRANK\tSTATUS")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Label, r.JobID, r.Rank, r.Status)
	}
	return tw.Flush()
}
