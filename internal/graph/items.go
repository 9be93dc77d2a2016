package graph

import (
	"fmt"
	"path/filepath"

	"github.com/vk/windrose/internal/config"
	"github.com/vk/windrose/internal/cycling"
)

// Item is implemented by every node stored in a coordinate store.
type Item interface {
	ItemName() string
	ItemCoordinates() Coordinates
}

// NoJobID is the job id of a task that has not been submitted yet.
const NoJobID = "_NO_ID_"

// Kind is the closed set of task kinds. The configuration's plugin tag maps
// onto it via kindForPlugin.
type Kind int

const (
	// KindShell runs a user-provided shell command with port placeholders
	// substituted by the bound data paths.
	KindShell Kind = iota
	// KindContinue is the internal self-continuation job the controller
	// submits to re-invoke itself; it never appears in the graph.
	KindContinue
)

// kindForPlugin is the static dispatch table from the configuration's plugin
// tag to the task kind. Adding a task kind means adding a variant here.
var kindForPlugin = map[string]Kind{
	"shell": KindShell,
}

// Data is a data artifact node. Available data pre-exists before the
// workflow runs; generated data is produced by exactly one task.
type Data struct {
	Name        string
	Coordinates Coordinates
	Available   bool
	Type        string

	// Path is the declared location: the source path for available data,
	// the output path relative to the producing task's run directory for
	// generated data.
	Path string

	// ResolvedPath is the explicit two-state resolved location: empty until
	// resolved. Available data resolves at construction, generated data is
	// resolved eagerly by the builder once its producing task is known.
	ResolvedPath string

	origin    *Task
	consumers []*Task
}

// NewData constructs a data node from its declaration for one coordinate
// combination.
func NewData(def *config.DataItem, available bool, coords Coordinates, rootDir string) *Data {
	d := &Data{
		Name:        def.Name,
		Coordinates: coords,
		Available:   available,
		Type:        def.Type,
	}
	if available {
		d.Path = def.Src
		if filepath.IsAbs(def.Src) {
			d.ResolvedPath = def.Src
		} else {
			d.ResolvedPath = filepath.Join(rootDir, def.Src)
		}
	} else {
		d.Path = def.Path
	}
	return d
}

func (d *Data) ItemName() string             { return d.Name }
func (d *Data) ItemCoordinates() Coordinates { return d.Coordinates }

// Label returns the unique identifier of this data node.
func (d *Data) Label() string { return Label(d.Name, d.Coordinates) }

// Origin returns the task producing this generated data, or nil for
// available data.
func (d *Data) Origin() *Task { return d.origin }

// setOrigin records the producing task; a generated data node has exactly
// one.
func (d *Data) setOrigin(t *Task) error {
	if d.origin != nil {
		return fmt.Errorf("data %s is produced by both %s and %s", d.Label(), d.origin.Label(), t.Label())
	}
	d.origin = t
	return nil
}

// Task is an executable unit node.
type Task struct {
	Name        string
	Coordinates Coordinates
	Kind        Kind
	Def         *config.Task
	Point       cycling.Point

	// Inputs and Outputs map a port name (possibly empty) to the ordered
	// data bound to it. Input and output port names are disjoint.
	Inputs  map[string][]*Data
	Outputs map[string][]*Data

	// WaitOn, Parents and Children are derived task links into the shared
	// store.
	WaitOn   []*Task
	Parents  []*Task
	Children []*Task

	// JobID is assigned by the scheduler at submission. Rank is the task's
	// generation index in the controller's front window; -1 once completed,
	// the front depth while not yet fronted.
	JobID string
	Rank  int

	RunDir string

	waiters     []*Task
	waitOnSpecs []*config.TargetSpec
	label       string
}

func (t *Task) ItemName() string             { return t.Name }
func (t *Task) ItemCoordinates() Coordinates { return t.Coordinates }

// Label returns the unique identifier of this task.
func (t *Task) Label() string { return t.label }

// NewContinueTask builds the internal self-continuation task. Its parents
// are the tasks whose completion should trigger the next controller step.
func NewContinueTask(rootDir, configPath string, parents []*Task) *Task {
	return &Task{
		Name:        "windrose",
		Coordinates: Coordinates{},
		Kind:        KindContinue,
		Def:         &config.Task{Name: "windrose", Command: fmt.Sprintf("windrose continue %s", configPath)},
		Parents:     parents,
		JobID:       NoJobID,
		Rank:        -1,
		RunDir:      filepath.Join(rootDir, "run"),
		label:       "windrose",
	}
}

// ScriptLines renders the task-specific body of the submission script.
func (t *Task) ScriptLines() ([]string, error) {
	switch t.Kind {
	case KindShell:
		ports := make(map[string][]string, len(t.Inputs)+len(t.Outputs))
		for port, items := range t.Outputs {
			for _, d := range items {
				ports[port] = append(ports[port], d.ResolvedPath)
			}
		}
		for port, items := range t.Inputs {
			for _, d := range items {
				ports[port] = append(ports[port], d.ResolvedPath)
			}
		}
		line, err := resolvePorts(t.Def.Command, ports)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.Label(), err)
		}
		return []string{line}, nil
	case KindContinue:
		return []string{t.Def.Command}, nil
	default:
		return nil, fmt.Errorf("task %s: unknown task kind %d", t.Label(), t.Kind)
	}
}

// resolveOutputPaths eagerly resolves the path of every generated output once
// the task's run directory is known.
func (t *Task) resolveOutputPaths() error {
	for _, items := range t.Outputs {
		for _, d := range items {
			if d.Available {
				continue
			}
			if d.Path == "" {
				return fmt.Errorf("task %s: output data %s must declare a path", t.Label(), d.Label())
			}
			if filepath.IsAbs(d.Path) {
				d.ResolvedPath = d.Path
			} else {
				d.ResolvedPath = filepath.Join(t.RunDir, d.Path)
			}
		}
	}
	return nil
}

// Cycle holds the ordered tasks produced for one cycle point.
type Cycle struct {
	Name        string
	Coordinates Coordinates
	Tasks       []*Task
}

func (c *Cycle) ItemName() string             { return c.Name }
func (c *Cycle) ItemCoordinates() Coordinates { return c.Coordinates }

// Label returns the unique identifier of this cycle.
func (c *Cycle) Label() string { return Label(c.Name, c.Coordinates) }
