package cardhost

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")

	id, key, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "H"))
	require.NotNil(t, key)

	// second load returns the same identity
	id2, key2, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, key, key2)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadIdentityMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	require.NoError(t, os.WriteFile(path, []byte("cardhost_id = \"H1\"\nkey_seed = \"zzz\"\n"), 0600))

	_, _, err := LoadOrCreateIdentity(path)
	assert.Error(t, err)
}
