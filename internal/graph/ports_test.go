package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePorts(t *testing.T) {
	ports := map[string][]string{
		"in":  {"/data/a.nc", "/data/b.nc"},
		"out": {"/run/out.nc"},
	}

	t.Run("single path", func(t *testing.T) {
		got, err := resolvePorts("model --out {PORT::out}", ports)
		require.NoError(t, err)
		assert.Equal(t, "model --out /run/out.nc", got)
	})

	t.Run("multiple paths are space-joined by default", func(t *testing.T) {
		got, err := resolvePorts("merge {PORT::in}", ports)
		require.NoError(t, err)
		assert.Equal(t, "merge /data/a.nc /data/b.nc", got)
	})

	t.Run("explicit separator", func(t *testing.T) {
		got, err := resolvePorts("merge --files={PORT[sep=,]::in}", ports)
		require.NoError(t, err)
		assert.Equal(t, "merge --files=/data/a.nc,/data/b.nc", got)
	})

	t.Run("missing required port", func(t *testing.T) {
		_, err := resolvePorts("model {PORT::restart}", ports)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "restart")
	})

	t.Run("optional segment with bound data", func(t *testing.T) {
		got, err := resolvePorts("model [--restart {PORT::out}] {PORT::in}", ports)
		require.NoError(t, err)
		assert.Equal(t, "model --restart /run/out.nc /data/a.nc /data/b.nc", got)
	})

	t.Run("optional segment with empty port is dropped", func(t *testing.T) {
		got, err := resolvePorts("model [--restart {PORT::restart}] {PORT::in}", ports)
		require.NoError(t, err)
		assert.Equal(t, "model  /data/a.nc /data/b.nc", got)
	})

	t.Run("optional segment with separator", func(t *testing.T) {
		got, err := resolvePorts("model [--with={PORT[sep=:]::in}]", ports)
		require.NoError(t, err)
		assert.Equal(t, "model --with=/data/a.nc:/data/b.nc", got)
	})

	t.Run("no placeholders pass through", func(t *testing.T) {
		got, err := resolvePorts("echo done", ports)
		require.NoError(t, err)
		assert.Equal(t, "echo done", got)
	})
}
