package config

import "context"

// Loader is the interface for a format-specific configuration loader. Load
// reads a workflow definition from the given path (a file or a directory of
// definition files), validates it, and translates it into the
// format-agnostic model.
type Loader interface {
	Load(ctx context.Context, path string) (*Workflow, error)
}
