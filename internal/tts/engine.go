package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/book-expert/voice-assistant/internal/core"
)

// EngineID names a speech synthesis backend.
type EngineID string

// Known engines.
const (
	EngineEdge  EngineID = "edge"
	EngineAzure EngineID = "azure"
)

// DefaultEdgeBinary is the executable used by the edge engine when no path is configured.
const DefaultEdgeBinary = "edge-tts"

const errFmtEdgeFailed = "edge-tts execution failed: %w - output: %s"

// ParseEngine maps a configuration string onto a known engine.
func ParseEngine(name string) (EngineID, error) {
	switch EngineID(strings.TrimSpace(name)) {
	case EngineEdge:
		return EngineEdge, nil
	case EngineAzure:
		return EngineAzure, nil
	default:
		return "", core.Errorf(core.KindUnsupported, name, "unsupported TTS engine: %s", name)
	}
}

// Job is one engine invocation with already sanitized text and formatted
// rate and volume offsets.
type Job struct {
	Text   string
	Voice  string
	Rate   string
	Volume string
}

// Engine writes synthesized speech for a job to outputPath.
type Engine interface {
	Synthesize(ctx context.Context, job Job, outputPath string) error
}

// EdgeEngine runs the edge-tts command line client.
type EdgeEngine struct {
	binary string
}

// NewEdgeEngine creates an engine that calls the given edge-tts executable.
func NewEdgeEngine(binary string) *EdgeEngine {
	if binary == "" {
		binary = DefaultEdgeBinary
	}

	return &EdgeEngine{binary: binary}
}

// Synthesize runs edge-tts and writes an MP3 file to outputPath.
func (e *EdgeEngine) Synthesize(ctx context.Context, job Job, outputPath string) error {
	// Text and offsets may start with a dash, so they are passed in
	// --flag=value form to keep the CLI from reading "-20%" as a flag.
	args := []string{
		"--text=" + job.Text,
		"--voice", job.Voice,
		"--rate=" + job.Rate,
		"--volume=" + job.Volume,
		"--write-media", outputPath,
	}

	// #nosec G204 -- the binary comes from configuration and arguments are not shell-expanded
	cmd := exec.CommandContext(ctx, e.binary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf(errFmtEdgeFailed, err, strings.TrimSpace(string(output)))
	}

	return nil
}

// AzureEngine is reserved for Azure Cognitive Services.
type AzureEngine struct{}

// Synthesize always reports that the engine is not implemented.
func (AzureEngine) Synthesize(context.Context, Job, string) error {
	return core.Errorf(core.KindNotImplemented, string(EngineAzure), "azure speech synthesis is not implemented yet")
}
