// Package hclconfig loads workflow definitions written in HCL and translates
// them into the format-agnostic, validated configuration tree of
// internal/config. It is the only package that touches raw configuration
// text.
package hclconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/windrose/internal/config"
	"github.com/vk/windrose/internal/ctxlog"
	"github.com/vk/windrose/internal/fsutil"
)

// Loader implements config.Loader for HCL definition files.
type Loader struct{}

// NewLoader creates an HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the workflow definition from path (a single .hcl file or a
// directory of .hcl files), validates it and returns the configuration tree.
func (l *Loader) Load(ctx context.Context, path string) (*config.Workflow, error) {
	logger := ctxlog.FromContext(ctx)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("workflow definition %s: %w", path, err)
	}

	var files []string
	rootDir := filepath.Dir(absPath)
	if info.IsDir() {
		rootDir = absPath
		files, err = fsutil.FindFilesByExtension(absPath, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no .hcl files found under %s", path)
		}
	} else {
		files = []string{absPath}
	}

	parser := hclparse.NewParser()
	merged := &root{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", file, diags)
		}
		var fileRoot root
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &fileRoot); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", file, diags)
		}
		if fileRoot.Workflow != nil {
			if merged.Workflow != nil {
				return nil, fmt.Errorf("%s: duplicate workflow block (already defined elsewhere)", file)
			}
			merged.Workflow = fileRoot.Workflow
		}
		merged.Cycles = append(merged.Cycles, fileRoot.Cycles...)
		merged.Tasks = append(merged.Tasks, fileRoot.Tasks...)
		merged.Data = append(merged.Data, fileRoot.Data...)
	}
	logger.Debug("Workflow definition parsed.", "files", len(files))

	wf, err := translate(merged, rootDir, absPath)
	if err != nil {
		return nil, err
	}
	if err := validate(wf); err != nil {
		return nil, err
	}
	logger.Debug("Workflow definition validated.",
		"cycles", len(wf.Cycles), "tasks", len(wf.Tasks),
		"available_data", len(wf.Data.Available), "generated_data", len(wf.Data.Generated))
	return wf, nil
}

// decodeParameters reads the parameter axes from the parameters block body:
// each attribute is an axis whose value is a list of scalars.
func decodeParameters(body hcl.Body) (map[string][]string, []string, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("parameters block: %w", diags)
	}
	params := make(map[string][]string, len(attrs))
	order := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		order = append(order, attr.Name)
	}
	// JustAttributes returns a map; sort by source position for stable order.
	sortAttrsBySourceOrder(order, attrs)
	for _, name := range order {
		values, err := attrValueList(attrs[name])
		if err != nil {
			return nil, nil, err
		}
		params[name] = values
	}
	return params, order, nil
}
