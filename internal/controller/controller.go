// Package controller drives the concrete task graph to completion against a
// batch scheduler. It keeps a bounded window of task generations ("the
// front") in flight, persists one versioned state record per task so a new
// short-lived process invocation can resume control, and implements the
// start / restart / propagate / stop transitions of the run state machine.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/vk/windrose/internal/ctxlog"
	"github.com/vk/windrose/internal/graph"
	"github.com/vk/windrose/internal/scheduler"
)

var (
	// ErrRunExists guards start against being invoked twice on the same
	// workflow directory.
	ErrRunExists = errors.New("run directory already exists")
	// ErrNoRun is returned when resuming a workflow that was never started.
	ErrNoRun = errors.New("no run state found")
	// ErrRunFailed reports that a task failed and the whole run was
	// cascade-canceled.
	ErrRunFailed = errors.New("workflow run failed")
)

// Controller is the bounded-concurrency-window state machine over one built
// graph. A Controller instance lives for a single process invocation: it
// loads persisted state, performs one transition, persists state and exits.
type Controller struct {
	g       *graph.Graph
	backend scheduler.Backend
	depth   int

	// front[k] holds the tasks currently occupying generation slot k.
	front [][]*graph.Task

	// coolDown mirrors the persisted cool-down markers, keyed by task label.
	coolDown map[string]bool
}

// New creates a controller for the given graph and scheduler backend.
func New(g *graph.Graph, backend scheduler.Backend) *Controller {
	return &Controller{
		g:        g,
		backend:  backend,
		depth:    g.FrontDepth,
		front:    make([][]*graph.Task, g.FrontDepth),
		coolDown: make(map[string]bool),
	}
}

// Front returns the tasks currently tracked in generation k.
func (c *Controller) Front(k int) []*graph.Task {
	return c.front[k]
}

// Start begins a fresh run: it refuses to overwrite an existing run record,
// seeds generation 0 with every parentless task and fills the window up to
// its depth.
func (c *Controller) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	runDir := c.g.RunDir()
	if _, err := os.Stat(filepath.Join(runDir, RunStateFilename)); err == nil {
		return fmt.Errorf("%s: %w", runDir, ErrRunExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	run := RunState{
		Version:    stateVersion,
		RunID:      uuid.NewString(),
		Workflow:   c.g.Name,
		FrontDepth: c.depth,
		CreatedAt:  time.Now().UTC(),
	}
	if err := writeStateFile(filepath.Join(runDir, RunStateFilename), run); err != nil {
		return err
	}
	logger.Info("Run started.", "workflow", c.g.Name, "run_id", run.RunID, "front_depth", c.depth)

	if err := c.initFront(ctx); err != nil {
		return err
	}
	return c.autoSubmit(ctx)
}

// initFront populates the window: generation 0 gets every task without
// parents, then each further generation gets the children whose parents all
// sit at or behind the previous one.
func (c *Controller) initFront(ctx context.Context) error {
	for _, task := range c.g.Tasks.All() {
		if len(task.Parents) == 0 {
			if err := c.submit(ctx, task, 0); err != nil {
				return err
			}
		}
	}
	for k := 0; k < c.depth-1; k++ {
		for _, task := range c.front[k] {
			for _, child := range task.Children {
				if child.Rank == c.depth && maxParentRank(child) == k {
					if err := c.submit(ctx, child, k+1); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Load reconstructs the front purely from the persisted per-task records, so
// a new process invocation resumes control without replaying the whole run.
func (c *Controller) Load(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var run RunState
	ok, err := readStateFile(filepath.Join(c.g.RunDir(), RunStateFilename), &run)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", c.g.RunDir(), ErrNoRun)
	}
	if run.FrontDepth != c.depth {
		logger.Warn("Configured front depth differs from the recorded run.",
			"configured", c.depth, "recorded", run.FrontDepth)
	}
	fronted := 0
	for _, task := range c.g.Tasks.All() {
		var st TaskState
		ok, err := readStateFile(filepath.Join(task.RunDir, TaskStateFilename), &st)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		task.JobID = st.JobID
		task.Rank = st.Rank
		c.coolDown[task.Label()] = st.CoolDown
		if st.Rank >= 0 && st.Rank < c.depth {
			c.front[st.Rank] = append(c.front[st.Rank], task)
			fronted++
		}
	}
	logger.Info("Run state loaded.", "run_id", run.RunID, "fronted_tasks", fronted)
	return nil
}

// Restart resubmits every fronted task, except a rank-0 task whose persisted
// cool-down marker is present and whose scheduler status already reads
// completed or ongoing: that task is treated as already progressing and only
// the marker is cleared.
func (c *Controller) Restart(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for k, generation := range c.front {
		for _, task := range generation {
			if k == 0 && c.coolDown[task.Label()] {
				status, err := c.backend.Status(ctx, task)
				if err != nil {
					return err
				}
				if status == scheduler.StatusCompleted || status == scheduler.StatusOngoing {
					c.coolDown[task.Label()] = false
					if err := c.persist(task); err != nil {
						return err
					}
					logger.Info("Cool-down marker cleared, task already progressing.",
						"task", task.Label(), "jobid", task.JobID, "status", status.String())
					continue
				}
			}
			c.coolDown[task.Label()] = false
			if err := c.submit(ctx, task, task.Rank); err != nil {
				return err
			}
		}
	}
	return c.autoSubmit(ctx)
}

// Propagate advances the window by one step: it retires completed
// generation-0 tasks, aborts the run when one failed, promotes later
// generations whose parents moved on and submits newly eligible children
// into the last slot. It reports whether the run should continue.
func (c *Controller) Propagate(ctx context.Context) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	// Generation 0: retire completed tasks, abort on the first failure.
	var justFinished []*graph.Task
	for _, task := range slices.Clone(c.front[0]) {
		status, err := c.backend.Status(ctx, task)
		if err != nil {
			return false, err
		}
		switch status {
		case scheduler.StatusFailed:
			logger.Error("Task failed, canceling the whole run.", "task", task.Label(), "jobid", task.JobID)
			if err := c.cancelAll(ctx); err != nil {
				return false, err
			}
			return false, fmt.Errorf("task %s: %w", task.Label(), ErrRunFailed)
		case scheduler.StatusCompleted:
			task.Rank = -1
			if err := c.persist(task); err != nil {
				return false, err
			}
			c.front[0] = remove(c.front[0], task)
			justFinished = append(justFinished, task)
			logger.Info("Task completed.", "task", task.Label(), "jobid", task.JobID)
		}
	}

	// Promote every later-generation task whose parents have all moved on.
	for k := 1; k < c.depth; k++ {
		for _, task := range slices.Clone(c.front[k]) {
			if maxParentRank(task) == k-2 {
				task.Rank = k - 1
				if err := c.persist(task); err != nil {
					return false, err
				}
				c.front[k] = remove(c.front[k], task)
				c.front[k-1] = append(c.front[k-1], task)
				logger.Info("Task promoted.", "task", task.Label(), "jobid", task.JobID, "rank", task.Rank)
			}
		}
	}

	// Submit the newly eligible children into the last slot.
	beforeLast := justFinished
	if c.depth > 1 {
		beforeLast = c.front[c.depth-2]
	}
	for _, task := range beforeLast {
		for _, child := range task.Children {
			if child.Rank == c.depth && maxParentRank(child) == c.depth-2 {
				if err := c.submit(ctx, child, c.depth-1); err != nil {
					return false, err
				}
			}
		}
	}

	if err := c.autoSubmit(ctx); err != nil {
		return false, err
	}
	if len(c.front[0]) == 0 {
		logger.Info("All tracked work resolved, run complete.")
		return false, nil
	}
	return true, nil
}

// Stop halts the run. In cancel mode every fronted task is canceled
// outright; in cool-down mode rank-0 tasks that are already completed or
// ongoing keep running behind a persisted marker, and everything else is
// canceled, so an operator can pause new submissions without killing work
// already committed to the scheduler.
func (c *Controller) Stop(ctx context.Context, coolDown bool) error {
	logger := ctxlog.FromContext(ctx)
	for k, generation := range c.front {
		for _, task := range generation {
			if coolDown && k == 0 {
				status, err := c.backend.Status(ctx, task)
				if err != nil {
					return err
				}
				if status == scheduler.StatusCompleted || status == scheduler.StatusOngoing {
					c.coolDown[task.Label()] = true
					if err := c.persist(task); err != nil {
						return err
					}
					logger.Info("Task left cooling down.", "task", task.Label(), "jobid", task.JobID)
					continue
				}
			}
			if err := c.backend.Cancel(ctx, task); err != nil {
				return err
			}
			logger.Info("Task canceled.", "task", task.Label(), "jobid", task.JobID, "rank", k)
		}
	}
	return nil
}

// Report polls the scheduler for every fronted task.
func (c *Controller) Report(ctx context.Context) ([]TaskReport, error) {
	var reports []TaskReport
	for k, generation := range c.front {
		for _, task := range generation {
			status, err := c.backend.Status(ctx, task)
			if err != nil {
				return nil, err
			}
			reports = append(reports, TaskReport{
				Label:  task.Label(),
				JobID:  task.JobID,
				Rank:   k,
				Status: status,
			})
		}
	}
	return reports, nil
}

// TaskReport is one fronted task's scheduler status, for operator-facing
// output.
type TaskReport struct {
	Label  string
	JobID  string
	Rank   int
	Status scheduler.Status
}

// submit places the task at the given rank, submits it and persists its
// state record.
func (c *Controller) submit(ctx context.Context, task *graph.Task, rank int) error {
	logger := ctxlog.FromContext(ctx)
	task.Rank = rank
	jobid, err := c.backend.Submit(ctx, task, scheduler.OutputOverwrite, scheduler.DepAllCompleted)
	if err != nil {
		return err
	}
	task.JobID = jobid
	if err := c.persist(task); err != nil {
		return err
	}
	if !slices.Contains(c.front[rank], task) {
		c.front[rank] = append(c.front[rank], task)
	}
	logger.Info("Task submitted.", "task", task.Label(), "jobid", jobid, "rank", rank)
	return nil
}

// autoSubmit (re)submits the lightweight self-continuation job as long as
// generation 0 still has work, using any-dependency semantics so it fires
// regardless of which sibling finishes first.
func (c *Controller) autoSubmit(ctx context.Context) error {
	if len(c.front[0]) == 0 {
		return nil
	}
	logger := ctxlog.FromContext(ctx)
	cont := graph.NewContinueTask(c.g.RootDir, c.g.ConfigPath, c.front[0])
	jobid, err := c.backend.Submit(ctx, cont, scheduler.OutputAppend, scheduler.DepAny)
	if err != nil {
		return err
	}
	cont.JobID = jobid
	logger.Info("Continuation job submitted.", "jobid", jobid)
	return nil
}

// cancelAll cancels every task in every tracked generation, best effort.
func (c *Controller) cancelAll(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	for k, generation := range c.front {
		for _, task := range generation {
			if err := c.backend.Cancel(ctx, task); err != nil {
				errs = append(errs, err)
				continue
			}
			logger.Info("Task canceled.", "task", task.Label(), "jobid", task.JobID, "rank", k)
		}
	}
	return errors.Join(errs...)
}

// persist writes the task's versioned state record atomically.
func (c *Controller) persist(task *graph.Task) error {
	if err := os.MkdirAll(task.RunDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir of %s: %w", task.Label(), err)
	}
	return writeStateFile(filepath.Join(task.RunDir, TaskStateFilename), TaskState{
		Version:  stateVersion,
		JobID:    task.JobID,
		Rank:     task.Rank,
		CoolDown: c.coolDown[task.Label()],
	})
}

// maxParentRank returns the highest front rank among the task's parents, or
// -1 when it has none.
func maxParentRank(task *graph.Task) int {
	maxRank := -1
	for _, parent := range task.Parents {
		if parent.Rank > maxRank {
			maxRank = parent.Rank
		}
	}
	return maxRank
}

func remove(tasks []*graph.Task, task *graph.Task) []*graph.Task {
	if i := slices.Index(tasks, task); i >= 0 {
		return slices.Delete(tasks, i, i+1)
	}
	return tasks
}
