// Package largeresponse bridges oversize tool outputs back into the step
// contract: small responses are projected directly, large ones are spilled to
// a registered temp file and reduced by a sandboxed extraction script whose
// output is re-gated against the return spec.
package largeresponse

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type tempEntry struct {
	path      string
	createdAt time.Time
}

// TempFileRegistry tracks spilled response files by id. Files live under a
// single root directory so the sandbox can enforce containment.
type TempFileRegistry struct {
	root string

	mu    sync.Mutex
	files map[string]tempEntry
	now   func() time.Time
}

func NewTempFileRegistry(root string) (*TempFileRegistry, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp root: %w", err)
	}
	return &TempFileRegistry{
		root:  root,
		files: make(map[string]tempEntry),
		now:   time.Now,
	}, nil
}

// Root returns the containment directory for the sandbox.
func (r *TempFileRegistry) Root() string {
	return r.root
}

// Register spills content to a new temp file and returns its id and path.
func (r *TempFileRegistry) Register(content string) (string, string, error) {
	id := "lr_" + uuid.New().String()
	path := filepath.Join(r.root, id+".json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", "", fmt.Errorf("spilling response: %w", err)
	}
	r.mu.Lock()
	r.files[id] = tempEntry{path: path, createdAt: r.now()}
	r.mu.Unlock()
	return id, path, nil
}

// Lookup returns the file path for id.
func (r *TempFileRegistry) Lookup(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.files[id]
	return entry.path, ok
}

// Delete removes the entry and its file. Missing files are not an error.
func (r *TempFileRegistry) Delete(id string) {
	r.mu.Lock()
	entry, ok := r.files[id]
	delete(r.files, id)
	r.mu.Unlock()
	if ok {
		_ = os.Remove(entry.path)
	}
}

// SweepOlderThan deletes entries older than age and returns how many were
// removed. The cleanup service calls this on a ticker to catch files leaked
// by crashed requests.
func (r *TempFileRegistry) SweepOlderThan(age time.Duration) int {
	cutoff := r.now().Add(-age)
	r.mu.Lock()
	var stale []string
	for id, entry := range r.files {
		if entry.createdAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()
	for _, id := range stale {
		r.Delete(id)
	}
	return len(stale)
}
