package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/windrose/internal/config"
	"github.com/vk/windrose/internal/cycling"
)

// testWorkflow models two cycle points (Jan and Feb 2026) where prep produces
// a per-member field consumed by post, and post additionally waits on the
// previous month's prep tasks.
func testWorkflow(rootDir string) *config.Workflow {
	after := day("2026-01-01")
	return &config.Workflow{
		Name:           "demo",
		RootDir:        rootDir,
		ConfigPath:     filepath.Join(rootDir, "demo.hcl"),
		Scheduler:      "slurm",
		FrontDepth:     2,
		Parameters:     map[string][]string{"member": {"m1", "m2"}},
		ParameterOrder: []string{"member"},
		Cycles: []*config.Cycle{{
			Name: "monthly",
			Cycling: cycling.DateCycling{
				Start:  day("2026-01-01"),
				Stop:   day("2026-03-01"),
				Period: cycling.MustParsePeriod("P1M"),
			},
			Tasks: []*config.CycleTask{
				{
					Name:    "prep",
					Outputs: []*config.OutputRef{{Name: "field", Port: "out"}},
				},
				{
					Name:   "post",
					Inputs: []*config.InputRef{{TargetSpec: config.TargetSpec{Name: "field"}, Port: "in"}},
					WaitOn: []*config.TargetSpec{{
						Name: "prep",
						Lags: []cycling.Period{cycling.MustParsePeriod("-P1M")},
						When: config.When{After: &after},
					}},
				},
			},
		}},
		Tasks: []*config.Task{
			{Name: "prep", Plugin: "shell", Command: "prep --out {PORT::out}", Parameters: []string{"member"}},
			{Name: "post", Plugin: "shell", Command: "post {PORT::in}"},
		},
		Data: &config.Data{
			Available: []*config.DataItem{{Name: "ic", Src: "input/ic.nc"}},
			Generated: []*config.DataItem{{Name: "field", Path: "field.nc", Parameters: []string{"member"}}},
		},
	}
}

func mustGet[T Item](t *testing.T, s *Store[T], name string, c Coordinates) T {
	t.Helper()
	item, err := s.Get(name, c)
	require.NoError(t, err)
	return item
}

func TestBuild(t *testing.T) {
	rootDir := t.TempDir()
	g, err := Build(context.Background(), testWorkflow(rootDir))
	require.NoError(t, err)

	t.Run("unrolls the full coordinate space", func(t *testing.T) {
		assert.Len(t, g.Tasks.All(), 6)
		assert.Len(t, g.Data.All(), 5)
		assert.Len(t, g.Cycles.All(), 2)
	})

	t.Run("same-date links via data flow", func(t *testing.T) {
		post := mustGet(t, g.Tasks, "post", coords("", "2026-01-01"))
		require.Len(t, post.Inputs["in"], 2)
		require.Len(t, post.Parents, 2)
		for _, p := range post.Parents {
			assert.Equal(t, "prep", p.Name)
			assert.Contains(t, p.Children, post)
		}
		// The wait-on is gated out on the first point.
		assert.Empty(t, post.WaitOn)
	})

	t.Run("cross-date links via lagged wait-on", func(t *testing.T) {
		post := mustGet(t, g.Tasks, "post", coords("", "2026-02-01"))
		require.Len(t, post.WaitOn, 2)
		for _, w := range post.WaitOn {
			assert.Equal(t, DateValue(day("2026-01-01")), w.Coordinates[DateAxis])
			assert.Contains(t, w.Children, post)
		}
		// Two same-date origins plus two lagged wait-on targets.
		assert.Len(t, post.Parents, 4)
	})

	t.Run("available data resolves against the root dir", func(t *testing.T) {
		ic := mustGet(t, g.Data, "ic", Coordinates{})
		assert.True(t, ic.Available)
		assert.Equal(t, filepath.Join(rootDir, "input/ic.nc"), ic.ResolvedPath)
	})

	t.Run("generated data resolves against the producing task run dir", func(t *testing.T) {
		prep := mustGet(t, g.Tasks, "prep", coords("m1", "2026-01-01"))
		assert.Equal(t, filepath.Join(rootDir, "run", "prep_m1_20260101T000000"), prep.RunDir)
		field := mustGet(t, g.Data, "field", coords("m1", "2026-01-01"))
		assert.Same(t, prep, field.Origin())
		assert.Equal(t, filepath.Join(prep.RunDir, "field.nc"), field.ResolvedPath)
	})

	t.Run("new tasks start unsubmitted beyond the window", func(t *testing.T) {
		for _, task := range g.Tasks.All() {
			assert.Equal(t, NoJobID, task.JobID)
			assert.Equal(t, g.FrontDepth, task.Rank)
		}
	})

	t.Run("script lines substitute resolved paths", func(t *testing.T) {
		post := mustGet(t, g.Tasks, "post", coords("", "2026-01-01"))
		lines, err := post.ScriptLines()
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], filepath.Join(rootDir, "run", "prep_m1_20260101T000000", "field.nc"))
		assert.Contains(t, lines[0], filepath.Join(rootDir, "run", "prep_m2_20260101T000000", "field.nc"))
	})
}

func TestBuildErrors(t *testing.T) {
	t.Run("unknown plugin", func(t *testing.T) {
		wf := testWorkflow(t.TempDir())
		wf.Tasks[0].Plugin = "spark"
		_, err := Build(context.Background(), wf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "plugin")
	})

	t.Run("two producers for one data item", func(t *testing.T) {
		wf := testWorkflow(t.TempDir())
		wf.Cycles[0].Tasks[1].Outputs = []*config.OutputRef{{Name: "field", Port: "dup"}}
		wf.Tasks[1].Parameters = []string{"member"}
		_, err := Build(context.Background(), wf)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("port used as both input and output", func(t *testing.T) {
		wf := testWorkflow(t.TempDir())
		wf.Data.Generated = append(wf.Data.Generated, &config.DataItem{Name: "stats", Path: "stats.nc"})
		wf.Cycles[0].Tasks[1].Inputs[0].Port = "out"
		wf.Cycles[0].Tasks[1].Outputs = []*config.OutputRef{{Name: "stats", Port: "out"}}
		_, err := Build(context.Background(), wf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both input and output")
	})

	t.Run("cyclic wait-on chain", func(t *testing.T) {
		wf := testWorkflow(t.TempDir())
		wf.Cycles[0].Tasks[0].WaitOn = []*config.TargetSpec{{Name: "post"}}
		_, err := Build(context.Background(), wf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dependency cycle")
	})

	t.Run("undeclared parameter axis", func(t *testing.T) {
		wf := testWorkflow(t.TempDir())
		wf.Tasks[0].Parameters = []string{"ensemble"}
		_, err := Build(context.Background(), wf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ensemble")
	})
}

func TestNewContinueTask(t *testing.T) {
	rootDir := t.TempDir()
	g, err := Build(context.Background(), testWorkflow(rootDir))
	require.NoError(t, err)

	parents := []*Task{mustGet(t, g.Tasks, "post", coords("", "2026-01-01"))}
	cont := NewContinueTask(g.RootDir, g.ConfigPath, parents)

	assert.Equal(t, KindContinue, cont.Kind)
	assert.Equal(t, filepath.Join(rootDir, "run"), cont.RunDir)
	assert.Equal(t, parents, cont.Parents)
	lines, err := cont.ScriptLines()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "windrose continue "+g.ConfigPath, lines[0])
}
