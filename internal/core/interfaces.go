// Package core defines the shared data model, error taxonomy and interfaces
// used by the speech, chat and recognition services.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Synthesizer turns a synthesis request into a temporary audio artifact.
// The caller owns the returned artifact and must remove it once it has been
// transmitted.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}
