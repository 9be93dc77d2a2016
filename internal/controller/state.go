package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// stateVersion versions the on-disk state records so a future controller can
// detect and migrate records written by an older one.
const stateVersion = 1

const (
	// TaskStateFilename is the per-task state record inside the task's run
	// directory. Together with the run record it is the entire durable state
	// needed to resume the controller after process exit.
	TaskStateFilename = "task_state.json"
	// RunStateFilename is the run-level record inside the run directory.
	RunStateFilename = "run_state.json"
)

// TaskState is the single versioned durable record of one task: its
// scheduler job id, its front rank and the cool-down marker.
type TaskState struct {
	Version  int    `json:"version"`
	JobID    string `json:"jobid"`
	Rank     int    `json:"rank"`
	CoolDown bool   `json:"cooldown,omitempty"`
}

// RunState identifies one run of the workflow.
type RunState struct {
	Version    int       `json:"version"`
	RunID      string    `json:"run_id"`
	Workflow   string    `json:"workflow"`
	FrontDepth int       `json:"front_depth"`
	CreatedAt  time.Time `json:"created_at"`
}

// writeStateFile writes the record atomically: to a temp file in the target
// directory, then rename, so a crash never leaves a half-written record.
func writeStateFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state record %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing state record %s: %w", path, err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state record %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state record %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state record %s: %w", path, err)
	}
	return nil
}

// readStateFile reads a state record. The second return is false when no
// record exists.
func readStateFile(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading state record %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding state record %s: %w", path, err)
	}
	return true, nil
}
