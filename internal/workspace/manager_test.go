package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "session-1")
	m, err := New(root, "")
	require.NoError(t, err)

	info, err := os.Stat(m.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWorkspacePath(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, "/workspace")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"relative", "uploads/a.txt", filepath.Join(m.Root(), "uploads/a.txt")},
		{"container", "/workspace/uploads/a.txt", filepath.Join(m.Root(), "uploads/a.txt")},
		{"host absolute", filepath.Join(m.Root(), "b.txt"), filepath.Join(m.Root(), "b.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.WorkspacePath(tt.in))
		})
	}
}

func TestContainerPath(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, "/workspace")
	require.NoError(t, err)

	assert.Equal(t, "/workspace/uploads/a.txt", m.ContainerPath("uploads/a.txt"))
	assert.Equal(t, "/workspace/uploads/a.txt", m.ContainerPath(filepath.Join(m.Root(), "uploads/a.txt")))

	// Without a container mount the host path is returned.
	m2, err := New(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m2.Root(), "x"), m2.ContainerPath("x"))
}

func TestRelativePath(t *testing.T) {
	m, err := New(t.TempDir(), "/workspace")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("uploads", "a.txt"), m.RelativePath("/workspace/uploads/a.txt"))
	assert.Equal(t, "/etc/passwd", m.RelativePath("/etc/passwd"))
}
