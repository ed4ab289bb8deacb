// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/leapstack-labs/galsynth/internal/cli/output"
)

// SetupTestConfig writes a galsynth.yaml into a fresh temporary directory
// and returns its path. The data directory lives next to it; extra is
// appended verbatim to the YAML document.
func SetupTestConfig(t *testing.T, extra string) string {
	t.Helper()

	tmpDir := t.TempDir()
	content := "data_dir: " + filepath.Join(tmpDir, "data") + "\noutput: json\n" + extra
	path := filepath.Join(tmpDir, "galsynth.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// WritePhotometryCache stores raw photometry JSON as the cached photometry
// of source below dataDir.
func WritePhotometryCache(t *testing.T, dataDir, source, content string) {
	t.Helper()

	dir := filepath.Join(dataDir, source)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "photometry.json"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write photometry cache: %v", err)
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
