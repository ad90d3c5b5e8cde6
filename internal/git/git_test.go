package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0644))
	run("add", "README.md")
	run("commit", "-m", "initial commit")

	return dir
}

func TestCloneRepositoryResolvesHead(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	source := initTestRepo(t)
	dest := filepath.Join(t.TempDir(), "clone")

	c := NewClient()
	info, err := c.CloneRepository(context.Background(), source, "", dest)
	require.NoError(t, err)
	assert.Equal(t, dest, info.WorkspacePath)
	assert.NotEmpty(t, info.ResolvedRef)
	assert.Len(t, info.ResolvedRef, 40, "resolved ref should be a full commit SHA")

	_, err = os.Stat(filepath.Join(dest, "README.md"))
	assert.NoError(t, err)
}

func TestCloneRepositoryFailsOnMissingSource(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	c := NewClient()
	_, err := c.CloneRepository(context.Background(), "/nonexistent/repo/path", "", filepath.Join(t.TempDir(), "clone"))
	assert.Error(t, err)
}

func TestDownloadArchiveDelegatesToClone(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	source := initTestRepo(t)
	dest := filepath.Join(t.TempDir(), "archive")

	c := NewClient()
	info, err := c.DownloadArchive(context.Background(), source, "", dest)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ResolvedRef)
}
