package fit

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/leapstack-labs/galsynth/internal/artifact"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// artifactVersion is bumped whenever Artifact changes incompatibly.
const artifactVersion = 1

// Artifact is the persisted fit: enough to rebuild the model and posterior
// without the original galaxy.
type Artifact struct {
	Version     int
	CreatedAt   time.Time
	Model       ModelSpec
	Observation Observation
	Sampler     SamplerSettings
	Output      Output
}

// WriteArtifact removes any previous file at path, then writes a
// zstd-compressed gob of a.
func WriteArtifact(path string, a *Artifact) error {
	if err := artifact.Remove(path); err != nil {
		return fmt.Errorf("failed to remove previous fit artifact: %w", err)
	}

	a.Version = artifactVersion
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(a); err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to encode fit artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress fit artifact: %w", err)
	}
	return artifact.WriteFile(path, buf.Bytes())
}

// ReadArtifact loads the artifact at path. A missing file yields
// core.ErrMustFitFirst.
func ReadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", core.ErrMustFitFirst, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open fit artifact: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read fit artifact %s: %w", path, err)
	}
	defer zr.Close()

	var a Artifact
	if err := gob.NewDecoder(zr).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode fit artifact %s: %w", path, err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("fit artifact %s has version %d, expected %d", path, a.Version, artifactVersion)
	}
	return &a, nil
}
