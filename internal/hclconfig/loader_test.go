package hclconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/windrose/internal/config"
	"github.com/vk/windrose/internal/cycling"
)

const sampleConfig = `
workflow "demo" {
  front_depth = 3

  parameters {
    member = ["m1", "m2"]
  }
}

cycle "monthly" {
  start_date = "2026-01-01"
  stop_date  = "2026-03-01"
  period     = "P1M"

  task "prep" {
    output "field" {
      port = "out"
    }
  }

  task "post" {
    input "field" {
      port       = "in"
      parameters = { member = "all" }
    }

    wait_on "prep" {
      lag = ["-P1M"]

      when {
        after = "2026-01-01"
      }
    }
  }
}

task "prep" {
  plugin     = "shell"
  command    = "prep --out {PORT::out}"
  parameters = ["member"]
  walltime   = "01:30:00"
  nodes      = 2
}

task "post" {
  plugin  = "shell"
  command = "post {PORT::in}"
}

data "available" "ic" {
  src = "input/ic.nc"
}

data "generated" "field" {
  path       = "field.nc"
  parameters = ["member"]
}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T, content string) (*config.Workflow, error) {
	t.Helper()
	return NewLoader().Load(context.Background(), writeConfig(t, content))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	wf, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	t.Run("workflow settings", func(t *testing.T) {
		assert.Equal(t, "demo", wf.Name)
		assert.Equal(t, 3, wf.FrontDepth)
		assert.Equal(t, "slurm", wf.Scheduler)
		assert.Equal(t, filepath.Dir(path), wf.RootDir)
		assert.Equal(t, path, wf.ConfigPath)
		assert.Equal(t, map[string][]string{"member": {"m1", "m2"}}, wf.Parameters)
		assert.Equal(t, []string{"member"}, wf.ParameterOrder)
	})

	t.Run("cycle timing", func(t *testing.T) {
		require.Len(t, wf.Cycles, 1)
		dc, ok := wf.Cycles[0].Cycling.(cycling.DateCycling)
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), dc.Start)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), dc.Stop)
		assert.Equal(t, "P1M", dc.Period.String())
	})

	t.Run("graph structure", func(t *testing.T) {
		require.Len(t, wf.Cycles[0].Tasks, 2)
		post := wf.Cycles[0].Tasks[1]

		require.Len(t, post.Inputs, 1)
		in := post.Inputs[0]
		assert.Equal(t, "field", in.Name)
		assert.Equal(t, "in", in.Port)
		assert.Equal(t, config.PolicyAll, in.Policy("member"))

		require.Len(t, post.WaitOn, 1)
		wo := post.WaitOn[0]
		assert.Equal(t, "prep", wo.Name)
		require.Len(t, wo.Lags, 1)
		assert.Equal(t, "-P1M", wo.Lags[0].String())
		require.NotNil(t, wo.When.After)
		assert.False(t, wo.When.IsAlways())
	})

	t.Run("task definitions", func(t *testing.T) {
		prep := wf.TaskByName("prep")
		require.NotNil(t, prep)
		assert.Equal(t, "shell", prep.Plugin)
		assert.Equal(t, []string{"member"}, prep.Parameters)
		assert.Equal(t, "01:30:00", prep.Resources.Walltime)
		assert.Equal(t, 2, prep.Resources.Nodes)
	})

	t.Run("data definitions", func(t *testing.T) {
		require.Len(t, wf.Data.Available, 1)
		assert.Equal(t, "input/ic.nc", wf.Data.Available[0].Src)
		require.Len(t, wf.Data.Generated, 1)
		assert.Equal(t, "field.nc", wf.Data.Generated[0].Path)
	})
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`
workflow "split" {
  parameters {
    member = ["m1"]
  }
}

task "solo" {
  plugin  = "shell"
  command = "echo solo"
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), []byte(`
cycle "once" {
  task "solo" {}
}
`), 0o644))

	wf, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "split", wf.Name)
	assert.Equal(t, dir, wf.RootDir)
	assert.Len(t, wf.Cycles, 1)
	_, ok := wf.Cycles[0].Cycling.(cycling.OneOff)
	assert.True(t, ok)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
		assert.Error(t, err)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := load(t, `workflow "x" {`)
		assert.Error(t, err)
	})

	t.Run("no workflow block", func(t *testing.T) {
		_, err := load(t, `cycle "once" {}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workflow block")
	})

	t.Run("date and lag are mutually exclusive", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "once" {
  task "solo" {
    wait_on "solo" {
      date = ["2026-01-01"]
      lag  = ["P1D"]
    }
  }
}

task "solo" {
  plugin  = "shell"
  command = "echo"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mutually exclusive")
	})

	t.Run("invalid parameter policy", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {
  parameters {
    member = ["m1"]
  }
}

cycle "once" {
  task "solo" {
    input "raw" {
      parameters = { member = "some" }
    }
  }
}

task "solo" {
  plugin  = "shell"
  command = "echo {PORT::}"
}

data "available" "raw" {
  src = "raw.nc"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "policy")
	})

	t.Run("at is exclusive with before and after", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "daily" {
  start_date = "2026-01-01"
  stop_date  = "2026-01-03"
  period     = "P1D"

  task "solo" {
    wait_on "solo" {
      when {
        at     = "2026-01-01"
        before = "2026-01-02"
      }
    }
  }
}

task "solo" {
  plugin  = "shell"
  command = "echo"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exclusive")
	})

	t.Run("incomplete dated cycle", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "broken" {
  start_date = "2026-01-01"

  task "solo" {}
}

task "solo" {
  plugin  = "shell"
  command = "echo"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "start_date, stop_date and period")
	})
}

func TestValidateErrors(t *testing.T) {
	t.Run("undefined task reference", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "once" {
  task "ghost" {}
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `task "ghost" is not defined`)
	})

	t.Run("undefined data reference", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "once" {
  task "solo" {
    input "ghost" {}
  }
}

task "solo" {
  plugin  = "shell"
  command = "echo"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a defined data entity")
	})

	t.Run("wait_on target must be scheduled", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "once" {
  task "solo" {
    wait_on "other" {}
  }
}

task "solo" {
  plugin  = "shell"
  command = "echo"
}

task "other" {
  plugin  = "shell"
  command = "echo"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not scheduled by any cycle")
	})

	t.Run("output must be generated data", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "once" {
  task "solo" {
    output "raw" {}
  }
}

task "solo" {
  plugin  = "shell"
  command = "echo"
}

data "available" "raw" {
  src = "raw.nc"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "available data")
	})

	t.Run("shell task needs a command", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "once" {
  task "solo" {}
}

task "solo" {
  plugin = "shell"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "need a command")
	})

	t.Run("walltime format", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "once" {
  task "solo" {}
}

task "solo" {
  plugin   = "shell"
  command  = "echo"
  walltime = "90 minutes"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HH:MM:SS")
	})

	t.Run("period must advance", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {}

cycle "frozen" {
  start_date = "2026-01-01"
  stop_date  = "2026-02-01"
  period     = "PT0S"

  task "solo" {}
}

task "solo" {
  plugin  = "shell"
  command = "echo"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not advance")
	})

	t.Run("front depth must be positive", func(t *testing.T) {
		_, err := load(t, `
workflow "x" {
  front_depth = -1
}

cycle "once" {
  task "solo" {}
}

task "solo" {
  plugin  = "shell"
  command = "echo"
}
`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "front_depth")
	})
}
