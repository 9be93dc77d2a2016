package graph

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/windrose/internal/config"
	"github.com/vk/windrose/internal/ctxlog"
	"github.com/vk/windrose/internal/cycling"
)

// Graph is the fully unrolled and linked dependency graph of one workflow.
type Graph struct {
	Name       string
	RootDir    string
	ConfigPath string
	Scheduler  string
	FrontDepth int

	Tasks  *Store[*Task]
	Data   *Store[*Data]
	Cycles *Store[*Cycle]
}

// RunDir is the directory holding all run state of the workflow.
func (g *Graph) RunDir() string {
	return filepath.Join(g.RootDir, "run")
}

// Build unrolls the cycle x date x parameter space of the validated
// configuration into a concrete graph. It works in ordered passes so that
// forward references resolve regardless of declaration order; any dangling
// reference, axis mismatch or duplicate coordinate key aborts construction.
func Build(ctx context.Context, wf *config.Workflow) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	g := &Graph{
		Name:       wf.Name,
		RootDir:    wf.RootDir,
		ConfigPath: wf.ConfigPath,
		Scheduler:  wf.Scheduler,
		FrontDepth: wf.FrontDepth,
		Tasks:      NewStore[*Task](),
		Data:       NewStore[*Data](),
		Cycles:     NewStore[*Cycle](),
	}

	// Pass 1: available data nodes, one per parameter combination.
	for _, def := range wf.Data.Available {
		combos, err := iterCoordinates(wf, cycling.Point{}, def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("available data %q: %w", def.Name, err)
		}
		for _, coords := range combos {
			if err := g.Data.Add(NewData(def, true, coords, wf.RootDir)); err != nil {
				return nil, err
			}
		}
	}
	logger.Debug("Available data nodes created.")

	// Pass 2: generated data nodes. This pass exists purely to make forward
	// output references resolvable in pass 3 regardless of declaration order.
	for _, cycleDef := range wf.Cycles {
		for _, point := range cycleDef.Cycling.Points() {
			for _, taskRef := range cycleDef.Tasks {
				for _, outputRef := range taskRef.Outputs {
					dataDef := wf.DataByName(outputRef.Name)
					if dataDef == nil {
						return nil, fmt.Errorf("cycle %q task %q: output references undeclared data %q",
							cycleDef.Name, taskRef.Name, outputRef.Name)
					}
					combos, err := iterCoordinates(wf, point, dataDef.Parameters)
					if err != nil {
						return nil, fmt.Errorf("generated data %q: %w", dataDef.Name, err)
					}
					for _, coords := range combos {
						if err := g.Data.Add(NewData(dataDef, false, coords, wf.RootDir)); err != nil {
							return nil, err
						}
					}
				}
			}
		}
	}
	logger.Debug("Generated data nodes created.")

	// Pass 3: concrete tasks and cycles, inputs and outputs wired.
	for _, cycleDef := range wf.Cycles {
		for _, point := range cycleDef.Cycling.Points() {
			cycleCoords := Coordinates{}
			if point.Dated {
				cycleCoords[DateAxis] = DateValue(point.Begin)
			}
			cycle := &Cycle{Name: cycleDef.Name, Coordinates: cycleCoords}
			for _, taskRef := range cycleDef.Tasks {
				taskDef := wf.TaskByName(taskRef.Name)
				if taskDef == nil {
					return nil, fmt.Errorf("cycle %q references undeclared task %q", cycleDef.Name, taskRef.Name)
				}
				combos, err := iterCoordinates(wf, point, taskDef.Parameters)
				if err != nil {
					return nil, fmt.Errorf("task %q: %w", taskDef.Name, err)
				}
				for _, coords := range combos {
					task, err := g.newTask(taskDef, taskRef, point, coords)
					if err != nil {
						return nil, err
					}
					if err := g.Tasks.Add(task); err != nil {
						return nil, err
					}
					cycle.Tasks = append(cycle.Tasks, task)
				}
			}
			if err := g.Cycles.Add(cycle); err != nil {
				return nil, err
			}
		}
	}
	logger.Debug("Tasks and cycles created.", "tasks", len(g.Tasks.All()), "cycles", len(g.Cycles.All()))

	// Pass 4a: resolve the deferred wait-on specs now that all tasks exist,
	// with bidirectional bookkeeping of the waiters.
	for _, task := range g.Tasks.All() {
		for _, spec := range task.waitOnSpecs {
			targets, err := g.Tasks.IterTarget(spec, task.Coordinates)
			if err != nil {
				return nil, fmt.Errorf("task %s wait_on: %w", task.Label(), err)
			}
			for _, target := range targets {
				task.WaitOn = append(task.WaitOn, target)
				target.waiters = append(target.waiters, task)
			}
		}
	}

	// Pass 4b: derive parents and children, deduplicated by label so
	// equivalent logical tasks are never double-counted.
	for _, task := range g.Tasks.All() {
		task.linkParentsChildren()
	}
	if err := detectCycle(g.Tasks.All()); err != nil {
		return nil, err
	}
	logger.Debug("Task links derived.")

	// Resolve generated output paths eagerly, now that every task's run
	// directory and output set is known.
	for _, task := range g.Tasks.All() {
		if err := task.resolveOutputPaths(); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// newTask constructs one concrete task: dispatches on the plugin tag,
// resolves input references through the data store and binds the
// already-created generated outputs. Wait-on specs are recorded unresolved
// for pass 4.
func (g *Graph) newTask(def *config.Task, graphSpec *config.CycleTask, point cycling.Point, coords Coordinates) (*Task, error) {
	kind, ok := kindForPlugin[def.Plugin]
	if !ok {
		return nil, fmt.Errorf("task %q: plugin %q is not supported", def.Name, def.Plugin)
	}
	label := Label(def.Name, coords)
	task := &Task{
		Name:        def.Name,
		Coordinates: coords,
		Kind:        kind,
		Def:         def,
		Point:       point,
		Inputs:      make(map[string][]*Data),
		Outputs:     make(map[string][]*Data),
		JobID:       NoJobID,
		Rank:        g.FrontDepth,
		RunDir:      filepath.Join(g.RootDir, "run", label),
		waitOnSpecs: graphSpec.WaitOn,
		label:       label,
	}

	for _, inputRef := range graphSpec.Inputs {
		items, err := g.Data.IterTarget(&inputRef.TargetSpec, coords)
		if err != nil {
			return nil, fmt.Errorf("task %s input %q: %w", label, inputRef.Name, err)
		}
		for _, d := range items {
			task.Inputs[inputRef.Port] = append(task.Inputs[inputRef.Port], d)
			d.consumers = append(d.consumers, task)
		}
	}
	for _, outputRef := range graphSpec.Outputs {
		d, err := g.Data.Get(outputRef.Name, coords)
		if err != nil {
			return nil, fmt.Errorf("task %s output %q: %w", label, outputRef.Name, err)
		}
		if err := d.setOrigin(task); err != nil {
			return nil, err
		}
		task.Outputs[outputRef.Port] = append(task.Outputs[outputRef.Port], d)
	}
	for port := range task.Outputs {
		if _, clash := task.Inputs[port]; clash {
			return nil, fmt.Errorf("task %s: port %q is used as both input and output", label, port)
		}
	}
	return task, nil
}

// linkParentsChildren derives parents as the union of wait-on tasks and the
// origins of generated inputs, and children as the union of waiters and the
// consumers of generated outputs.
func (t *Task) linkParentsChildren() {
	seen := make(map[string]struct{})
	addParent := func(p *Task) {
		if _, dup := seen[p.Label()]; !dup {
			seen[p.Label()] = struct{}{}
			t.Parents = append(t.Parents, p)
		}
	}
	for _, p := range t.WaitOn {
		addParent(p)
	}
	for _, items := range t.Inputs {
		for _, d := range items {
			if origin := d.Origin(); origin != nil {
				addParent(origin)
			}
		}
	}

	seen = make(map[string]struct{})
	addChild := func(c *Task) {
		if _, dup := seen[c.Label()]; !dup {
			seen[c.Label()] = struct{}{}
			t.Children = append(t.Children, c)
		}
	}
	for _, c := range t.waiters {
		addChild(c)
	}
	for _, items := range t.Outputs {
		for _, d := range items {
			for _, c := range d.consumers {
				addChild(c)
			}
		}
	}
}

// iterCoordinates expands the Cartesian product of the referenced parameter
// axes, plus the date axis when the cycle point is dated.
func iterCoordinates(wf *config.Workflow, point cycling.Point, paramRefs []string) ([]Coordinates, error) {
	dims := make([]string, 0, len(paramRefs)+1)
	candidates := make([][]Value, 0, len(paramRefs)+1)
	for _, axis := range paramRefs {
		values, ok := wf.Parameters[axis]
		if !ok {
			return nil, fmt.Errorf("references undeclared parameter axis %q", axis)
		}
		dims = append(dims, axis)
		row := make([]Value, len(values))
		for i, v := range values {
			row[i] = ParamValue(v)
		}
		candidates = append(candidates, row)
	}
	if point.Dated {
		dims = append(dims, DateAxis)
		candidates = append(candidates, []Value{DateValue(point.Begin)})
	}
	var combos []Coordinates
	for coords := range product(dims, candidates) {
		combos = append(combos, coords)
	}
	return combos, nil
}
