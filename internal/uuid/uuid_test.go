package uuid

import (
	"os"
	"path/filepath"
	"testing"

	guuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "instance_id")

	id, err := LoadOrCreate(path)
	require.NoError(t, err)
	_, err = guuid.Parse(id)
	require.NoError(t, err)

	again, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestLoadOrCreateReplacesGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance_id")
	require.NoError(t, os.WriteFile(path, []byte("not-a-uuid\n"), 0o644))

	id, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", id)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, id+"\n", string(b))
}
