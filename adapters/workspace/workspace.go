// Package workspace provides the session-scoped temporary area where
// intermediate dataset files live between pipeline steps. The area is
// created lazily and removed as a whole when the session closes.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ssciwr/afwizard/ports"
)

// Workspace is a single-session temporary directory. It is not shared
// between processes.
type Workspace struct {
	mu     sync.Mutex
	root   string
	closed bool
}

// New creates a workspace. No directory is created until first use.
func New() *Workspace {
	return &Workspace{}
}

// Root returns the workspace directory, creating it on first call.
func (w *Workspace) Root() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rootLocked()
}

func (w *Workspace) rootLocked() (string, error) {
	if w.closed {
		return "", fmt.Errorf("workspace is closed")
	}
	if w.root == "" {
		root, err := os.MkdirTemp("", "afwizard-")
		if err != nil {
			return "", fmt.Errorf("creating workspace: %w", err)
		}
		w.root = root
	}
	return w.root, nil
}

// TempFile reserves a fresh file name with the given extension inside the
// workspace. Only the name is reserved; the file itself is not created.
func (w *Workspace) TempFile(ext string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	root, err := w.rootLocked()
	if err != nil {
		return "", err
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(root, uuid.NewString()+ext), nil
}

// Scratch creates a private subdirectory for one tool invocation and
// returns it with its cleanup function. Cleanup never fails the caller.
func (w *Workspace) Scratch() (string, func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	root, err := w.rootLocked()
	if err != nil {
		return "", nil, err
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// Close removes the workspace and everything in it. The workspace cannot
// be used afterwards.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.root == "" {
		return nil
	}
	root := w.root
	w.root = ""
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.Workspace = (*Workspace)(nil)
