package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for broad classification.
var (
	// ErrValidation marks a value object that failed construction.
	ErrValidation = errors.New("validation failed")
	// ErrNoData marks a catalog or strategy that found nothing usable.
	ErrNoData = errors.New("no data found")
	// ErrTransient marks a remote call that failed after bounded retries.
	ErrTransient = errors.New("transient failure")
	// ErrExternalService marks a collaborator that failed permanently.
	ErrExternalService = errors.New("external service failure")
	// ErrCacheMiss marks a cache file that does not exist yet.
	ErrCacheMiss = errors.New("cache miss")
	// ErrMustFitFirst marks a load of a fit artifact that was never written.
	ErrMustFitFirst = errors.New("no fit artifact found, must fit first")
)

// Stage names a step of the per-galaxy pipeline.
type Stage string

// Pipeline stages.
const (
	StageResolve Stage = "resolve"
	StageAcquire Stage = "acquire"
	StageFit     Stage = "fit"
	StageAnalyse Stage = "analyse"
)

// StageError wraps a fatal failure with the stage and source it belongs to.
type StageError struct {
	Stage  Stage
	Source string
	Err    error
}

func (e *StageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := fmt.Sprintf("stage %s failed", e.Stage)
	if e.Source != "" {
		base += fmt.Sprintf(" (source=%s)", e.Source)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StageOf reports the stage recorded on err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// Validationf builds an ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
