package hclconfig

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/windrose/internal/config"
	"github.com/vk/windrose/internal/cycling"
)

// translate converts the aggregated HCL schema into the format-agnostic
// configuration tree, parsing dates and ISO-8601 durations along the way.
func translate(r *root, rootDir, configPath string) (*config.Workflow, error) {
	if r.Workflow == nil {
		return nil, fmt.Errorf("workflow definition has no workflow block")
	}
	wf := &config.Workflow{
		Name:       r.Workflow.Name,
		RootDir:    rootDir,
		ConfigPath: configPath,
		Scheduler:  r.Workflow.Scheduler,
		FrontDepth: r.Workflow.FrontDepth,
		Parameters: map[string][]string{},
		Data:       &config.Data{},
	}
	if wf.Scheduler == "" {
		wf.Scheduler = "slurm"
	}
	if wf.FrontDepth == 0 {
		wf.FrontDepth = 2
	}
	if r.Workflow.Parameters != nil {
		params, order, err := decodeParameters(r.Workflow.Parameters.Body)
		if err != nil {
			return nil, err
		}
		wf.Parameters = params
		wf.ParameterOrder = order
	}

	for _, cb := range r.Cycles {
		cycle, err := translateCycle(cb)
		if err != nil {
			return nil, err
		}
		wf.Cycles = append(wf.Cycles, cycle)
	}
	for _, tb := range r.Tasks {
		wf.Tasks = append(wf.Tasks, &config.Task{
			Name:       tb.Name,
			Plugin:     tb.Plugin,
			Parameters: tb.Parameters,
			Command:    tb.Command,
			Path:       tb.Path,
			Resources: config.Resources{
				Account:       tb.Account,
				Walltime:      tb.Walltime,
				Nodes:         tb.Nodes,
				NtasksPerNode: tb.NtasksPerNode,
				CpusPerTask:   tb.CpusPerTask,
				Uenv:          tb.Uenv,
				View:          tb.View,
			},
		})
	}
	for _, db := range r.Data {
		item := &config.DataItem{
			Name:       db.Name,
			Type:       db.Type,
			Src:        db.Src,
			Path:       db.Path,
			Parameters: db.Parameters,
		}
		switch db.Kind {
		case "available":
			wf.Data.Available = append(wf.Data.Available, item)
		case "generated":
			wf.Data.Generated = append(wf.Data.Generated, item)
		default:
			return nil, fmt.Errorf("data %q: kind must be \"available\" or \"generated\", got %q", db.Name, db.Kind)
		}
	}
	return wf, nil
}

func translateCycle(cb *cycleBlock) (*config.Cycle, error) {
	cycle := &config.Cycle{Name: cb.Name}

	dated := cb.StartDate != "" || cb.StopDate != "" || cb.Period != ""
	if dated {
		if cb.StartDate == "" || cb.StopDate == "" || cb.Period == "" {
			return nil, fmt.Errorf("cycle %q: a dated cycle needs start_date, stop_date and period", cb.Name)
		}
		start, err := parseDate(cb.StartDate)
		if err != nil {
			return nil, fmt.Errorf("cycle %q start_date: %w", cb.Name, err)
		}
		stop, err := parseDate(cb.StopDate)
		if err != nil {
			return nil, fmt.Errorf("cycle %q stop_date: %w", cb.Name, err)
		}
		period, err := cycling.ParsePeriod(cb.Period)
		if err != nil {
			return nil, fmt.Errorf("cycle %q period: %w", cb.Name, err)
		}
		cycle.Cycling = cycling.DateCycling{Start: start, Stop: stop, Period: period}
	} else {
		cycle.Cycling = cycling.OneOff{}
	}

	for _, tb := range cb.Tasks {
		task := &config.CycleTask{Name: tb.Name}
		for _, in := range tb.Inputs {
			spec, err := translateTarget(in)
			if err != nil {
				return nil, fmt.Errorf("cycle %q task %q input %q: %w", cb.Name, tb.Name, in.Name, err)
			}
			task.Inputs = append(task.Inputs, &config.InputRef{TargetSpec: *spec, Port: in.Port})
		}
		for _, out := range tb.Outputs {
			task.Outputs = append(task.Outputs, &config.OutputRef{Name: out.Name, Port: out.Port})
		}
		for _, wo := range tb.WaitOn {
			spec, err := translateTarget(wo)
			if err != nil {
				return nil, fmt.Errorf("cycle %q task %q wait_on %q: %w", cb.Name, tb.Name, wo.Name, err)
			}
			task.WaitOn = append(task.WaitOn, spec)
		}
		cycle.Tasks = append(cycle.Tasks, task)
	}
	return cycle, nil
}

func translateTarget(tb *targetBlock) (*config.TargetSpec, error) {
	if len(tb.Dates) > 0 && len(tb.Lags) > 0 {
		return nil, fmt.Errorf("date and lag are mutually exclusive")
	}
	spec := &config.TargetSpec{Name: tb.Name}
	for _, s := range tb.Dates {
		date, err := parseDate(s)
		if err != nil {
			return nil, err
		}
		spec.Dates = append(spec.Dates, date)
	}
	for _, s := range tb.Lags {
		lag, err := cycling.ParsePeriod(s)
		if err != nil {
			return nil, err
		}
		spec.Lags = append(spec.Lags, lag)
	}
	if len(tb.Parameters) > 0 {
		spec.Parameters = make(map[string]config.Policy, len(tb.Parameters))
		for axis, policy := range tb.Parameters {
			switch config.Policy(policy) {
			case config.PolicySingle, config.PolicyAll:
				spec.Parameters[axis] = config.Policy(policy)
			default:
				return nil, fmt.Errorf("axis %q: policy must be \"single\" or \"all\", got %q", axis, policy)
			}
		}
	}
	if tb.When != nil {
		if tb.When.At != "" && (tb.When.Before != "" || tb.When.After != "") {
			return nil, fmt.Errorf("when: at is exclusive with before/after")
		}
		var err error
		if spec.When.At, err = parseOptionalDate(tb.When.At); err != nil {
			return nil, fmt.Errorf("when.at: %w", err)
		}
		if spec.When.Before, err = parseOptionalDate(tb.When.Before); err != nil {
			return nil, fmt.Errorf("when.before: %w", err)
		}
		if spec.When.After, err = parseOptionalDate(tb.When.After); err != nil {
			return nil, fmt.Errorf("when.after: %w", err)
		}
	}
	return spec, nil
}

// dateFormats are accepted in order; date-only forms are taken as UTC
// midnight.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// attrValueList evaluates an attribute expected to hold a list of scalars
// and renders every element to its canonical string form.
func attrValueList(attr *hcl.Attribute) ([]string, error) {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parameter axis %q: %w", attr.Name, diags)
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("parameter axis %q: value must be a list", attr.Name)
	}
	var values []string
	for it := val.ElementIterator(); it.Next(); {
		_, el := it.Element()
		str, err := convert.Convert(el, cty.String)
		if err != nil {
			return nil, fmt.Errorf("parameter axis %q: %w", attr.Name, err)
		}
		if str.IsNull() {
			return nil, fmt.Errorf("parameter axis %q: null value", attr.Name)
		}
		values = append(values, str.AsString())
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("parameter axis %q: empty value list", attr.Name)
	}
	return values, nil
}

// sortAttrsBySourceOrder orders the attribute names by their position in the
// source file, since JustAttributes returns an unordered map.
func sortAttrsBySourceOrder(names []string, attrs hcl.Attributes) {
	sort.Slice(names, func(i, j int) bool {
		ri, rj := attrs[names[i]].Range, attrs[names[j]].Range
		if ri.Filename != rj.Filename {
			return ri.Filename < rj.Filename
		}
		return ri.Start.Byte < rj.Start.Byte
	})
}
