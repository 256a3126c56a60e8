package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// SynthesisRequest describes a single text-to-speech call.
type SynthesisRequest struct {
	Text   string
	Engine string
	Voice  string
	// Rate is the speaking rate multiplier, valid range [0.5, 2.0].
	Rate float64
	// Volume is the volume multiplier, valid range [0.5, 1.5].
	Volume float64
}

// SynthesisResult is the outcome of a successful synthesis call.
//
// When Empty is true the sanitized text reduced to nothing and no artifact
// was produced. This is a valid outcome, not a failure.
type SynthesisResult struct {
	Artifact   *Artifact
	SpokenText string
	Empty      bool
}

// Artifact is a temporary audio file owned by exactly one caller.
type Artifact struct {
	Path string
	Size int64
}

// Open opens the artifact for reading.
func (a *Artifact) Open() (*os.File, error) {
	file, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact '%s': %w", a.Path, err)
	}

	return file, nil
}

// ReadAll loads the full artifact into memory.
func (a *Artifact) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact '%s': %w", a.Path, err)
	}

	return data, nil
}

// Remove deletes the artifact from disk. Removing an artifact that is
// already gone is not an error.
func (a *Artifact) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}

	err := os.Remove(a.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove artifact '%s': %w", a.Path, err)
	}

	return nil
}
