package api

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/galsynth/internal/galaxy"
)

// SourceSummary lists the servable artifacts present for one source.
type SourceSummary struct {
	Name      string   `json:"name"`
	Artifacts []string `json:"artifacts"`
}

// sourceIndex caches the data directory listing until invalidated.
type sourceIndex struct {
	dir string

	mu      sync.Mutex
	sources []SourceSummary
	valid   bool
}

func newSourceIndex(dir string) *sourceIndex {
	return &sourceIndex{dir: dir}
}

func (x *sourceIndex) invalidate() {
	x.mu.Lock()
	x.valid = false
	x.mu.Unlock()
}

// List returns the sources in directory order (sorted by name).
func (x *sourceIndex) List() ([]SourceSummary, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.valid {
		return x.sources, nil
	}

	entries, err := os.ReadDir(x.dir)
	if errors.Is(err, fs.ErrNotExist) {
		x.sources, x.valid = nil, true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory: %w", err)
	}

	var out []SourceSummary
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		s := SourceSummary{Name: e.Name(), Artifacts: []string{}}
		for _, name := range galaxy.ArtifactNames {
			if _, err := os.Stat(filepath.Join(x.dir, e.Name(), name)); err == nil {
				s.Artifacts = append(s.Artifacts, name)
			}
		}
		out = append(out, s)
	}

	x.sources, x.valid = out, true
	return out, nil
}
