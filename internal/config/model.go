package config

import (
	"time"

	"github.com/vk/windrose/internal/cycling"
)

// Workflow is the root of the validated configuration tree.
type Workflow struct {
	Name string

	// RootDir is the directory of the workflow definition file. All relative
	// paths in the configuration resolve against it and the run directory is
	// created inside it.
	RootDir string

	// ConfigPath is the definition file (or directory) the tree was loaded
	// from, as given on the command line; the self-continuation job re-invokes
	// the controller with it.
	ConfigPath string

	// Scheduler selects the batch scheduler backend, e.g. "slurm".
	Scheduler string

	// FrontDepth is the number of task generations the controller keeps
	// simultaneously in flight.
	FrontDepth int

	// Parameters maps each declared parameter axis to its ordered value set.
	Parameters map[string][]string

	// ParameterOrder preserves the declaration order of the parameter axes
	// so coordinate expansion is deterministic.
	ParameterOrder []string

	Cycles []*Cycle
	Tasks  []*Task
	Data   *Data
}

// TaskByName returns the task definition with the given name, or nil.
func (w *Workflow) TaskByName(name string) *Task {
	for _, t := range w.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// DataByName returns the data definition with the given name, or nil.
func (w *Workflow) DataByName(name string) *DataItem {
	for _, d := range w.Data.All() {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Cycle is a named, possibly time-recurring group of tasks sharing a
// schedule.
type Cycle struct {
	Name    string
	Cycling cycling.Cycling
	Tasks   []*CycleTask
}

// CycleTask is one task reference inside a cycle, carrying the graph
// structure: which data it consumes and produces and which tasks it waits on.
type CycleTask struct {
	Name    string
	Inputs  []*InputRef
	Outputs []*OutputRef
	WaitOn  []*TargetSpec
}

// InputRef binds a target specification to an input port of the task.
type InputRef struct {
	TargetSpec
	Port string
}

// OutputRef names a generated data entity the task produces on a port. The
// port may be empty when the task's command does not address it by name.
type OutputRef struct {
	Name string
	Port string
}

// Policy selects how a parameter axis of a target is resolved.
type Policy string

const (
	// PolicySingle uses the reference's own value on that axis.
	PolicySingle Policy = "single"
	// PolicyAll fans out over every value ever observed on that axis.
	PolicyAll Policy = "all"
)

// TargetSpec addresses concrete coordinate tuples of another named node
// relative to a reference coordinate. The date selector is either empty
// (same date as the reference), an explicit date list, or a list of lags
// added to the reference date; Dates and Lags are mutually exclusive.
type TargetSpec struct {
	Name       string
	Dates      []time.Time
	Lags       []cycling.Period
	When       When
	Parameters map[string]Policy
}

// Policy returns the declared policy for the given axis, defaulting to
// PolicyAll like an absent entry in the parameters mapping.
func (s *TargetSpec) Policy(axis string) Policy {
	if p, ok := s.Parameters[axis]; ok {
		return p
	}
	return PolicyAll
}

// When restricts whether a target specification is active for a given
// reference date. The zero value is always active. At is exclusive with
// Before/After.
type When struct {
	At     *time.Time
	Before *time.Time
	After  *time.Time
}

// IsAlways reports whether the condition places no restriction at all.
func (w When) IsAlways() bool {
	return w.At == nil && w.Before == nil && w.After == nil
}

// IsActive reports whether the condition holds for the given reference date.
func (w When) IsActive(date time.Time) bool {
	if w.At != nil {
		return date.Equal(*w.At)
	}
	if w.Before != nil && !date.Before(*w.Before) {
		return false
	}
	if w.After != nil && !date.After(*w.After) {
		return false
	}
	return true
}

// Task is a task definition: the plugin tag selecting its kind, the
// parameter axes it spans and its scheduler resource request.
type Task struct {
	Name       string
	Plugin     string
	Parameters []string

	// Shell plugin fields.
	Command string
	Path    string

	Resources Resources
}

// Resources is the batch-scheduler resource request of a task. Zero or empty
// fields are omitted from the submission script.
type Resources struct {
	Account       string
	Walltime      string
	Nodes         int
	NtasksPerNode int
	CpusPerTask   int
	Uenv          string
	View          string
}

// Data groups the declared data entities by kind.
type Data struct {
	Available []*DataItem
	Generated []*DataItem
}

// All returns available then generated items.
func (d *Data) All() []*DataItem {
	all := make([]*DataItem, 0, len(d.Available)+len(d.Generated))
	all = append(all, d.Available...)
	all = append(all, d.Generated...)
	return all
}

// DataItem is one declared data entity. Available items carry Src, the
// pre-existing source path; generated items carry Path, where the producing
// task writes them (relative paths resolve against the task's run
// directory).
type DataItem struct {
	Name       string
	Type       string
	Src        string
	Path       string
	Parameters []string
}
