package fake

import (
	"fmt"
	"sync"

	"snpflow/internal/pipeline"
)

var _ pipeline.FSProbe = (*FS)(nil)

// FS is an in-memory pipeline.FSProbe: a map of paths to sizes plus the set
// of directories created through it.
type FS struct {
	mu    sync.Mutex
	files map[string]int64
	dirs  map[string]bool
}

func NewFS() *FS {
	return &FS{files: make(map[string]int64), dirs: make(map[string]bool)}
}

// Put records a file at path with the given size.
func (f *FS) Put(path string, size int64) {
	f.mu.Lock()
	f.files[path] = size
	f.mu.Unlock()
}

// Remove forgets a file.
func (f *FS) Remove(path string) {
	f.mu.Lock()
	delete(f.files, path)
	f.mu.Unlock()
}

func (f *FS) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; ok {
		return true
	}
	return f.dirs[path]
}

func (f *FS) Size(path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.files[path]
	if !ok {
		return 0, fmt.Errorf("fake fs: %s does not exist", path)
	}
	return size, nil
}

func (f *FS) MkdirAll(path string) error {
	f.mu.Lock()
	f.dirs[path] = true
	f.mu.Unlock()
	return nil
}

// HasDir reports whether MkdirAll was called for path.
func (f *FS) HasDir(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[path]
}
