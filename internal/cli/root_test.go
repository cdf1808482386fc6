package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	old := [3]string{version, commit, date}
	t.Cleanup(func() { SetVersion(old[0], old[1], old[2]) })

	SetVersion("1.0.0", "abc123", "2026-01-01")
	assert.Equal(t, "1.0.0", version)
	assert.Equal(t, "abc123", commit)
	assert.Equal(t, "2026-01-01", date)
}

// run executes the CLI against a fresh sqlite file in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	base := []string{
		"--config", filepath.Join(dir, "missing.toml"),
		"--driver", "sqlite",
		"--dsn", filepath.Join(dir, "site.db"),
	}
	root.SetArgs(append(base, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionsCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "versions", "create", "home", "-l", "launch", "-t", "release")
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 2)
	assert.Equal(t, "launch", fields[1])
	versionID := fields[0]

	out, err = run(t, dir, "versions", "list", "home")
	require.NoError(t, err)
	assert.Contains(t, out, "launch")
	assert.Contains(t, out, "release")
	assert.Contains(t, out, versionID)

	out, err = run(t, dir, "versions", "rollback", "home", versionID)
	require.NoError(t, err)
	assert.Contains(t, out, "restored 0 blocks")

	_, err = run(t, dir, "versions", "rollback", "home", "no-such-version")
	assert.Error(t, err)
}

func TestBlocksListEmptyPage(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "blocks", "list", "home")
	require.NoError(t, err)
	assert.Contains(t, out, "ORDER")

	out, err = run(t, dir, "blocks", "list", "home", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestInvalidDriverRejected(t *testing.T) {
	_, err := run(t, t.TempDir(), "--driver", "oracle", "blocks", "list", "home")
	assert.Error(t, err)
}
