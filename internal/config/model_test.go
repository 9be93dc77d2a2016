package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestWhen(t *testing.T) {
	t.Run("zero value is always active", func(t *testing.T) {
		var w When
		assert.True(t, w.IsAlways())
		assert.True(t, w.IsActive(day("2026-01-01")))
	})

	t.Run("at matches the exact date only", func(t *testing.T) {
		w := When{At: ptr(day("2026-01-02"))}
		assert.False(t, w.IsAlways())
		assert.True(t, w.IsActive(day("2026-01-02")))
		assert.False(t, w.IsActive(day("2026-01-01")))
		assert.False(t, w.IsActive(day("2026-01-03")))
	})

	t.Run("before and after bound an open interval", func(t *testing.T) {
		w := When{After: ptr(day("2026-01-01")), Before: ptr(day("2026-01-04"))}
		assert.False(t, w.IsActive(day("2026-01-01")))
		assert.True(t, w.IsActive(day("2026-01-02")))
		assert.True(t, w.IsActive(day("2026-01-03")))
		assert.False(t, w.IsActive(day("2026-01-04")))
	})
}

func TestTargetSpecPolicy(t *testing.T) {
	spec := &TargetSpec{Parameters: map[string]Policy{"member": PolicySingle}}
	assert.Equal(t, PolicySingle, spec.Policy("member"))
	assert.Equal(t, PolicyAll, spec.Policy("zone"))
}

func TestWorkflowLookups(t *testing.T) {
	wf := &Workflow{
		Tasks: []*Task{{Name: "prep"}},
		Data: &Data{
			Available: []*DataItem{{Name: "ic"}},
			Generated: []*DataItem{{Name: "field"}},
		},
	}
	assert.NotNil(t, wf.TaskByName("prep"))
	assert.Nil(t, wf.TaskByName("ghost"))
	assert.NotNil(t, wf.DataByName("ic"))
	assert.NotNil(t, wf.DataByName("field"))
	assert.Nil(t, wf.DataByName("ghost"))
}
