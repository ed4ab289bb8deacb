package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "value.json")

	in := map[string]float64{"a": 1.5, "b": -2}
	require.NoError(t, WriteJSON(path, in))
	assert.True(t, Exists(path))

	var out map[string]float64
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should be cleaned up")
}

func TestReadJSON_Missing(t *testing.T) {
	var out any
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out)
	assert.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestReadJSON_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	var out any
	err := ReadJSON(path, &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrCacheMiss)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, WriteFile(path, []byte("x")))
	require.NoError(t, Remove(path))
	assert.False(t, Exists(path))
	require.NoError(t, Remove(path))
}
