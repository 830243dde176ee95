// Package workspace maps logical session paths to on-disk paths, including
// the translation used when tools run inside a container whose mount point
// differs from the host workspace root.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager resolves paths for one session workspace.
type Manager struct {
	root      string
	container string
}

// New creates a manager rooted at root and ensures the directory exists.
// containerPath, when non-empty, is the path the workspace is mounted at
// inside the tool container.
func New(root, containerPath string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs, container: containerPath}, nil
}

// Root returns the absolute host workspace root.
func (m *Manager) Root() string {
	return m.root
}

// WorkspacePath maps a path (host, container, or relative) to its host form.
func (m *Manager) WorkspacePath(path string) string {
	if m.container != "" && strings.HasPrefix(path, m.container) {
		rel := strings.TrimPrefix(path, m.container)
		return filepath.Join(m.root, rel)
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(m.root, path)
}

// ContainerPath maps a path to its in-container form. Without a configured
// container mount it is identical to WorkspacePath.
func (m *Manager) ContainerPath(path string) string {
	host := m.WorkspacePath(path)
	if m.container == "" {
		return host
	}
	rel, err := filepath.Rel(m.root, host)
	if err != nil || strings.HasPrefix(rel, "..") {
		return host
	}
	return filepath.Join(m.container, rel)
}

// Contains reports whether a path resolves inside the workspace root.
func (m *Manager) Contains(path string) bool {
	host := m.WorkspacePath(path)
	rel, err := filepath.Rel(m.root, host)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// RelativePath returns the workspace-relative form of a path; paths outside
// the workspace are returned unchanged.
func (m *Manager) RelativePath(path string) string {
	host := m.WorkspacePath(path)
	rel, err := filepath.Rel(m.root, host)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
