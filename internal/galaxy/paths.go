package galaxy

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside a source directory.
const (
	PhotometryFile          = "photometry.json"
	FitArtifactFile         = "fit_result.gob.zst"
	SyntheticPhotometryFile = "synthetic_photometry.json"
	SyntheticSEDFile        = "synthetic_sed.json"
	SEDEnvelopeFile         = "sed_envelope.json"
	FitResultsFile          = "fit_results.json"
	TNSInfoFile             = "tns_info.json"
)

// Paths locates the artifacts of one source.
type Paths struct {
	Dir string
}

// OutputDir returns the artifact layout for a source name under dataDir.
func OutputDir(dataDir, sourceName string) Paths {
	return Paths{Dir: filepath.Join(dataDir, sourceName)}
}

// Paths returns the artifact layout of g under dataDir.
func (g *Galaxy) Paths(dataDir string) Paths {
	return OutputDir(dataDir, g.sourceName)
}

// Ensure creates the directory.
func (p Paths) Ensure() error {
	if err := os.MkdirAll(p.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

func (p Paths) Photometry() string          { return filepath.Join(p.Dir, PhotometryFile) }
func (p Paths) FitArtifact() string         { return filepath.Join(p.Dir, FitArtifactFile) }
func (p Paths) SyntheticPhotometry() string { return filepath.Join(p.Dir, SyntheticPhotometryFile) }
func (p Paths) SyntheticSED() string        { return filepath.Join(p.Dir, SyntheticSEDFile) }
func (p Paths) SEDEnvelope() string         { return filepath.Join(p.Dir, SEDEnvelopeFile) }
func (p Paths) FitResults() string          { return filepath.Join(p.Dir, FitResultsFile) }
func (p Paths) TNSInfo() string             { return filepath.Join(p.Dir, TNSInfoFile) }

// ArtifactNames lists the JSON artifacts that may be served read-only.
var ArtifactNames = []string{
	PhotometryFile,
	SyntheticPhotometryFile,
	SyntheticSEDFile,
	SEDEnvelopeFile,
	FitResultsFile,
	TNSInfoFile,
}
