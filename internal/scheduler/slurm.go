package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/windrose/internal/ctxlog"
	"github.com/vk/windrose/internal/graph"
)

const (
	// SubmitFilename is the rendered job script inside the task run dir.
	SubmitFilename = "runscript.sh"
	// OutputFilename receives the job's combined stdout and stderr.
	OutputFilename = "job.log"
)

// runFunc executes one blocking CLI call in dir and returns its stdout.
// Injected in tests.
type runFunc func(ctx context.Context, dir, name string, args ...string) (string, error)

// Slurm drives the SLURM scheduler through sbatch, scancel and sacct.
type Slurm struct {
	run runFunc
}

// NewSlurm returns a backend invoking the real SLURM CLI.
func NewSlurm() *Slurm {
	return &Slurm{run: runCommand}
}

func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Submit prepares the task's run directory, renders the job script and
// submits it with sbatch. The returned job id is the trimmed first field of
// sbatch --parsable output.
func (s *Slurm) Submit(ctx context.Context, task *graph.Task, mode OutputMode, dep DependencyType) (string, error) {
	logger := ctxlog.FromContext(ctx)

	// The continuation task lives directly in the run directory and must
	// not wipe it; regular tasks start from a clean slate.
	if task.Kind != graph.KindContinue {
		if err := os.RemoveAll(task.RunDir); err != nil {
			return "", fmt.Errorf("cleaning run dir of %s: %w", task.Label(), err)
		}
	}
	if err := os.MkdirAll(task.RunDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir of %s: %w", task.Label(), err)
	}
	if task.Def.Path != "" {
		if err := stagePath(task); err != nil {
			return "", err
		}
	}

	script, err := s.renderScript(task, mode, dep)
	if err != nil {
		return "", err
	}
	scriptPath := filepath.Join(task.RunDir, SubmitFilename)
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("writing job script of %s: %w", task.Label(), err)
	}

	out, err := s.run(ctx, task.RunDir, "sbatch", "--parsable", SubmitFilename)
	if err != nil {
		return "", fmt.Errorf("submitting %s: %w", task.Label(), err)
	}
	// --parsable prints "jobid" or "jobid;cluster".
	jobid, _, _ := strings.Cut(strings.TrimSpace(out), ";")
	logger.Debug("Job script submitted.", "task", task.Label(), "jobid", jobid)
	return jobid, nil
}

// Cancel removes the task's job from the scheduler queue.
func (s *Slurm) Cancel(ctx context.Context, task *graph.Task) error {
	if task.JobID == graph.NoJobID {
		return fmt.Errorf("task %s cannot be canceled: it has no job id", task.Label())
	}
	if _, err := s.run(ctx, "", "scancel", task.JobID); err != nil {
		return fmt.Errorf("canceling %s: %w", task.Label(), err)
	}
	return nil
}

// Status infers the task status from sacct. The state strings map through a
// fixed classification table; anything outside it is a fatal error.
func (s *Slurm) Status(ctx context.Context, task *graph.Task) (Status, error) {
	out, err := s.run(ctx, "", "sacct", "-o", "state", "-p", "-j", task.JobID)
	if err != nil {
		return 0, fmt.Errorf("polling %s: %w", task.Label(), err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("task %s job %s: sacct reported no state: %w", task.Label(), task.JobID, ErrUnexpectedStatus)
	}
	state := strings.TrimSuffix(strings.TrimSpace(lines[1]), "|")
	return classifyState(task, state)
}

func classifyState(task *graph.Task, state string) (Status, error) {
	switch {
	case hasAnyPrefix(state, "RUNNING", "PENDING", "SUSPENDED"):
		return StatusOngoing, nil
	case strings.HasPrefix(state, "COMPLETED"):
		return StatusCompleted, nil
	case hasAnyPrefix(state, "FAILED", "NODE_FAIL", "OUT_OF_MEMORY", "TIMEOUT", "CANCELLED"):
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("task %s reported %q: %w", task.Label(), state, ErrUnexpectedStatus)
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// renderScript builds the full submission script: shebang, scheduler
// directives, MPI convenience variables, the task body and the accounting
// line for user-visible tasks.
func (s *Slurm) renderScript(task *graph.Task, mode OutputMode, dep DependencyType) (string, error) {
	lines := []string{"#!/bin/bash -l", ""}
	lines = append(lines, s.headerLines(task, mode, dep)...)

	res := task.Def.Resources
	lines = append(lines, "")
	if res.Nodes > 0 {
		lines = append(lines, fmt.Sprintf("N_NODES=%d", res.Nodes))
	}
	if res.NtasksPerNode > 0 {
		lines = append(lines, fmt.Sprintf("N_TASKS_PER_NODE=%d", res.NtasksPerNode))
	}
	if res.CpusPerTask > 0 {
		lines = append(lines, fmt.Sprintf("CPUS_PER_TASK=%d", res.CpusPerTask))
	}

	body, err := task.ScriptLines()
	if err != nil {
		return "", err
	}
	lines = append(lines, "")
	lines = append(lines, body...)

	if task.Kind != graph.KindContinue {
		lines = append(lines, "sacct -j ${SLURM_JOB_ID} --format='User,JobID,Jobname,partition,state,time,start,end,elapsed,nnodes,ncpus'")
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// headerLines renders the #SBATCH directives derived from the task's
// resource request and its current parent job ids.
func (s *Slurm) headerLines(task *graph.Task, mode OutputMode, dep DependencyType) []string {
	header := []string{
		"#SBATCH --output=" + OutputFilename,
		"#SBATCH --error=" + OutputFilename,
		"#SBATCH --job-name=" + task.Label(),
	}
	res := task.Def.Resources
	if res.Account != "" {
		header = append(header, "#SBATCH --account="+res.Account)
	}
	if res.Walltime != "" {
		header = append(header, "#SBATCH --time="+res.Walltime)
	}
	if res.Nodes > 0 {
		header = append(header, fmt.Sprintf("#SBATCH --nodes=%d", res.Nodes))
	}
	if res.NtasksPerNode > 0 {
		header = append(header, fmt.Sprintf("#SBATCH --ntasks-per-node=%d", res.NtasksPerNode))
	}
	if res.Uenv != "" {
		header = append(header, "#SBATCH --uenv="+res.Uenv)
	}
	if res.View != "" {
		header = append(header, "#SBATCH --view="+res.View)
	}
	if mode == OutputAppend {
		header = append(header, "#SBATCH --open-mode=append")
	}

	// Completed parents (rank -1) are dropped: the scheduler may not know
	// their job ids anymore when restarting after a long pause.
	var parentIDs []string
	for _, parent := range task.Parents {
		if parent.Rank >= 0 && parent.JobID != graph.NoJobID {
			parentIDs = append(parentIDs, parent.JobID)
		}
	}
	if len(parentIDs) > 0 {
		switch dep {
		case DepAllCompleted:
			header = append(header, "#SBATCH --dependency=afterok:"+strings.Join(parentIDs, ":"))
		case DepAny:
			header = append(header, "#SBATCH --dependency=afterany:"+strings.Join(parentIDs, "?afterany:"))
		case DepNone:
			// No directive on explicit request.
		}
	}
	return header
}

// stagePath copies the task's declared script file or directory into its run
// directory.
func stagePath(task *graph.Task) error {
	src := task.Def.Path
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("staging %s for %s: %w", src, task.Label(), err)
	}
	dst := filepath.Join(task.RunDir, filepath.Base(src))
	if info.IsDir() {
		if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
			return fmt.Errorf("staging %s for %s: %w", src, task.Label(), err)
		}
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("staging %s for %s: %w", src, task.Label(), err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("staging %s for %s: %w", src, task.Label(), err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("staging %s for %s: %w", src, task.Label(), err)
	}
	return nil
}
