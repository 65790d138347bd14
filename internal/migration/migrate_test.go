package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindModuleRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "internal", "migration")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module "+modulePath+"\n\ngo 1.23\n"), 0o644))

	// A foreign module in between is skipped.
	require.NoError(t, os.WriteFile(filepath.Join(root, "internal", "go.mod"), []byte("module example.com/other\n"), 0o644))

	found, err := findModuleRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)

	_, err = findModuleRoot(t.TempDir())
	assert.Error(t, err)
}

func TestLatestVersion(t *testing.T) {
	dir, err := getMigrationsDir()
	require.NoError(t, err)

	version, err := latestVersion(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, int64(1))
}

func TestMigrationsDirOverride(t *testing.T) {
	t.Setenv("SCRIBE_MIGRATIONS_DIR", "/srv/migrations")

	dir, err := getMigrationsDir()
	require.NoError(t, err)
	assert.Equal(t, "/srv/migrations", dir)
}
