package hclconfig

import (
	"fmt"
	"regexp"

	"github.com/vk/windrose/internal/config"
	"github.com/vk/windrose/internal/cycling"
)

var walltimePattern = regexp.MustCompile(`^\d+:[0-5]\d:[0-5]\d$`)

// validate checks the cross-references and field constraints the schema alone
// cannot express. It runs on the translated tree so every loader front end
// gets the same checks.
func validate(wf *config.Workflow) error {
	if wf.Name == "" {
		return fmt.Errorf("workflow block needs a name label")
	}
	if wf.FrontDepth < 1 {
		return fmt.Errorf("workflow %q: front_depth must be at least 1, got %d", wf.Name, wf.FrontDepth)
	}
	if len(wf.Cycles) == 0 {
		return fmt.Errorf("workflow %q: at least one cycle is required", wf.Name)
	}
	for axis, values := range wf.Parameters {
		if len(values) == 0 {
			return fmt.Errorf("parameter axis %q: empty value list", axis)
		}
		seen := make(map[string]bool, len(values))
		for _, v := range values {
			if seen[v] {
				return fmt.Errorf("parameter axis %q: duplicate value %q", axis, v)
			}
			seen[v] = true
		}
	}

	dataNames := make(map[string]*config.DataItem)
	for _, d := range wf.Data.All() {
		if _, ok := dataNames[d.Name]; ok {
			return fmt.Errorf("data %q: duplicate definition", d.Name)
		}
		dataNames[d.Name] = d
		if err := checkAxes(wf, d.Parameters); err != nil {
			return fmt.Errorf("data %q: %w", d.Name, err)
		}
	}
	for _, d := range wf.Data.Available {
		if d.Src == "" {
			return fmt.Errorf("available data %q: src is required", d.Name)
		}
	}
	for _, d := range wf.Data.Generated {
		if d.Path == "" {
			return fmt.Errorf("generated data %q: path is required", d.Name)
		}
	}

	taskDefs := make(map[string]*config.Task)
	for _, t := range wf.Tasks {
		if _, ok := taskDefs[t.Name]; ok {
			return fmt.Errorf("task %q: duplicate definition", t.Name)
		}
		taskDefs[t.Name] = t
		if err := validateTaskDef(wf, t); err != nil {
			return err
		}
	}

	// First sweep collects every task name scheduled by any cycle so that
	// wait_on may point forward across cycles.
	scheduled := make(map[string]bool)
	for _, cycle := range wf.Cycles {
		for _, ct := range cycle.Tasks {
			scheduled[ct.Name] = true
		}
	}

	cycleNames := make(map[string]bool)
	for _, cycle := range wf.Cycles {
		if cycleNames[cycle.Name] {
			return fmt.Errorf("cycle %q: duplicate definition", cycle.Name)
		}
		cycleNames[cycle.Name] = true
		if err := validateCycling(cycle); err != nil {
			return err
		}
		for _, ct := range cycle.Tasks {
			if taskDefs[ct.Name] == nil {
				return fmt.Errorf("cycle %q: task %q is not defined", cycle.Name, ct.Name)
			}
			for _, in := range ct.Inputs {
				if dataNames[in.Name] == nil {
					return fmt.Errorf("cycle %q task %q: input %q is not a defined data entity", cycle.Name, ct.Name, in.Name)
				}
				if err := validateTarget(wf, &in.TargetSpec); err != nil {
					return fmt.Errorf("cycle %q task %q input %q: %w", cycle.Name, ct.Name, in.Name, err)
				}
			}
			for _, out := range ct.Outputs {
				d := dataNames[out.Name]
				if d == nil {
					return fmt.Errorf("cycle %q task %q: output %q is not a defined data entity", cycle.Name, ct.Name, out.Name)
				}
				if isAvailable(wf, d) {
					return fmt.Errorf("cycle %q task %q: output %q refers to available data", cycle.Name, ct.Name, out.Name)
				}
			}
			for _, wo := range ct.WaitOn {
				if !scheduled[wo.Name] {
					return fmt.Errorf("cycle %q task %q: wait_on %q is not scheduled by any cycle", cycle.Name, ct.Name, wo.Name)
				}
				if err := validateTarget(wf, wo); err != nil {
					return fmt.Errorf("cycle %q task %q wait_on %q: %w", cycle.Name, ct.Name, wo.Name, err)
				}
			}
		}
	}
	return nil
}

func validateTaskDef(wf *config.Workflow, t *config.Task) error {
	if t.Plugin == "" {
		return fmt.Errorf("task %q: plugin is required", t.Name)
	}
	if t.Plugin == "shell" && t.Command == "" {
		return fmt.Errorf("task %q: shell tasks need a command", t.Name)
	}
	if err := checkAxes(wf, t.Parameters); err != nil {
		return fmt.Errorf("task %q: %w", t.Name, err)
	}
	r := t.Resources
	if r.Walltime != "" && !walltimePattern.MatchString(r.Walltime) {
		return fmt.Errorf("task %q: walltime %q is not HH:MM:SS", t.Name, r.Walltime)
	}
	if r.Nodes < 0 || r.NtasksPerNode < 0 || r.CpusPerTask < 0 {
		return fmt.Errorf("task %q: node counts must not be negative", t.Name)
	}
	return nil
}

func validateCycling(cycle *config.Cycle) error {
	dc, ok := cycle.Cycling.(cycling.DateCycling)
	if !ok {
		return nil
	}
	if !dc.Start.Before(dc.Stop) {
		return fmt.Errorf("cycle %q: start_date must lie before stop_date", cycle.Name)
	}
	if !dc.Period.AddTo(dc.Start).After(dc.Start) {
		return fmt.Errorf("cycle %q: period %s does not advance the date", cycle.Name, dc.Period)
	}
	return nil
}

func validateTarget(wf *config.Workflow, spec *config.TargetSpec) error {
	for axis := range spec.Parameters {
		if _, ok := wf.Parameters[axis]; !ok {
			return fmt.Errorf("unknown parameter axis %q", axis)
		}
	}
	return nil
}

func checkAxes(wf *config.Workflow, axes []string) error {
	for _, axis := range axes {
		if _, ok := wf.Parameters[axis]; !ok {
			return fmt.Errorf("unknown parameter axis %q", axis)
		}
	}
	return nil
}

func isAvailable(wf *config.Workflow, d *config.DataItem) bool {
	for _, a := range wf.Data.Available {
		if a == d {
			return true
		}
	}
	return false
}
