// Package core defines the shared language of the galsynth system.
//
// This package contains:
//   - Sky positions and angular helpers (Position)
//   - The error taxonomy used across acquisition, fitting and analysis
//   - Run-history entities and the Store interface
//   - Pipeline stage names
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
