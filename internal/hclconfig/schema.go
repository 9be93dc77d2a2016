package hclconfig

import "github.com/hashicorp/hcl/v2"

// root is the HCL shape of one workflow definition file. Definitions may be
// split across several files of one directory; the blocks are aggregated.
type root struct {
	Workflow *workflowBlock `hcl:"workflow,block"`
	Cycles   []*cycleBlock  `hcl:"cycle,block"`
	Tasks    []*taskBlock   `hcl:"task,block"`
	Data     []*dataBlock   `hcl:"data,block"`
}

// workflowBlock carries the run-wide settings.
type workflowBlock struct {
	Name       string           `hcl:"name,label"`
	Scheduler  string           `hcl:"scheduler,optional"`
	FrontDepth int              `hcl:"front_depth,optional"`
	Parameters *parametersBlock `hcl:"parameters,block"`
}

// parametersBlock declares the parameter axes; each attribute is an axis
// name with its list of values.
type parametersBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// cycleBlock is one cycle definition. A dated cycle carries start_date,
// stop_date and period; leaving all three out makes it one-off.
type cycleBlock struct {
	Name      string            `hcl:"name,label"`
	StartDate string            `hcl:"start_date,optional"`
	StopDate  string            `hcl:"stop_date,optional"`
	Period    string            `hcl:"period,optional"`
	Tasks     []*cycleTaskBlock `hcl:"task,block"`
}

// cycleTaskBlock references a task definition and wires its graph structure.
type cycleTaskBlock struct {
	Name    string         `hcl:"name,label"`
	Inputs  []*targetBlock `hcl:"input,block"`
	Outputs []*outputBlock `hcl:"output,block"`
	WaitOn  []*targetBlock `hcl:"wait_on,block"`
}

// targetBlock addresses another named node: a data entity for inputs, a task
// for wait_on. date and lag are mutually exclusive.
type targetBlock struct {
	Name       string            `hcl:"name,label"`
	Port       string            `hcl:"port,optional"`
	Dates      []string          `hcl:"date,optional"`
	Lags       []string          `hcl:"lag,optional"`
	Parameters map[string]string `hcl:"parameters,optional"`
	When       *whenBlock        `hcl:"when,block"`
}

// outputBlock names a generated data entity the task produces.
type outputBlock struct {
	Name string `hcl:"name,label"`
	Port string `hcl:"port,optional"`
}

// whenBlock restricts when a target reference is active. at is exclusive
// with before/after.
type whenBlock struct {
	At     string `hcl:"at,optional"`
	Before string `hcl:"before,optional"`
	After  string `hcl:"after,optional"`
}

// taskBlock is a task definition: plugin tag, parameter axes and the
// scheduler resource request.
type taskBlock struct {
	Name          string   `hcl:"name,label"`
	Plugin        string   `hcl:"plugin"`
	Command       string   `hcl:"command,optional"`
	Path          string   `hcl:"path,optional"`
	Parameters    []string `hcl:"parameters,optional"`
	Account       string   `hcl:"account,optional"`
	Walltime      string   `hcl:"walltime,optional"`
	Nodes         int      `hcl:"nodes,optional"`
	NtasksPerNode int      `hcl:"ntasks_per_node,optional"`
	CpusPerTask   int      `hcl:"cpus_per_task,optional"`
	Uenv          string   `hcl:"uenv,optional"`
	View          string   `hcl:"view,optional"`
}

// dataBlock declares a data entity; the first label is the kind, "available"
// or "generated".
type dataBlock struct {
	Kind       string   `hcl:"kind,label"`
	Name       string   `hcl:"name,label"`
	Type       string   `hcl:"type,optional"`
	Src        string   `hcl:"src,optional"`
	Path       string   `hcl:"path,optional"`
	Parameters []string `hcl:"parameters,optional"`
}
