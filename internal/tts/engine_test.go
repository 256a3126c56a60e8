package tts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/tts"
)

// fakeEdgeScript mimics the edge-tts CLI: it records its arguments and
// writes a small file to the --write-media path.
const fakeEdgeScript = `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  echo "$arg" >> "$(dirname "$0")/args.txt"
  if [ "$prev" = "--write-media" ]; then out="$arg"; fi
  prev="$arg"
done
printf 'ID3fake' > "$out"
`

const failingEdgeScript = `#!/bin/sh
echo "No audio was received" >&2
exit 1
`

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "edge-tts")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o700))

	return path
}

func TestEdgeEngine_Synthesize(t *testing.T) {
	// Not parallel: executing a freshly written script while other tests
	// fork can fail with ETXTBSY.
	script := writeScript(t, fakeEdgeScript)
	output := filepath.Join(t.TempDir(), "out.mp3")

	engine := tts.NewEdgeEngine(script)
	job := tts.Job{Text: "你好", Voice: tts.DefaultVoice, Rate: "-20%", Volume: "+0%"}

	require.NoError(t, engine.Synthesize(context.Background(), job, output))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "ID3fake", string(data))

	args, err := os.ReadFile(filepath.Join(filepath.Dir(script), "args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "--rate=-20%\n")
	assert.Contains(t, string(args), "--volume=+0%\n")
	assert.Contains(t, string(args), "--voice\n"+tts.DefaultVoice+"\n")
	assert.Contains(t, string(args), "--text=你好\n")
}

func TestEdgeEngine_TextStartingWithDash(t *testing.T) {
	script := writeScript(t, fakeEdgeScript)
	output := filepath.Join(t.TempDir(), "out.mp3")

	engine := tts.NewEdgeEngine(script)
	job := tts.Job{Text: "-verbose", Voice: tts.DefaultVoice, Rate: "+0%", Volume: "+0%"}

	require.NoError(t, engine.Synthesize(context.Background(), job, output))

	args, err := os.ReadFile(filepath.Join(filepath.Dir(script), "args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "--text=-verbose\n")
	assert.NotContains(t, string(args), "--text\n")
}

func TestEdgeEngine_FailureIncludesOutput(t *testing.T) {
	engine := tts.NewEdgeEngine(writeScript(t, failingEdgeScript))

	err := engine.Synthesize(context.Background(), tts.Job{Text: "hi"}, filepath.Join(t.TempDir(), "out.mp3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No audio was received")
}

func TestEdgeEngine_MissingBinary(t *testing.T) {
	t.Parallel()

	engine := tts.NewEdgeEngine(filepath.Join(t.TempDir(), "does-not-exist"))

	err := engine.Synthesize(context.Background(), tts.Job{Text: "hi"}, filepath.Join(t.TempDir(), "out.mp3"))
	require.Error(t, err)
}

func TestParseEngine(t *testing.T) {
	t.Parallel()

	engine, err := tts.ParseEngine("edge")
	require.NoError(t, err)
	assert.Equal(t, tts.EngineEdge, engine)

	engine, err = tts.ParseEngine(" azure ")
	require.NoError(t, err)
	assert.Equal(t, tts.EngineAzure, engine)

	_, err = tts.ParseEngine("espeak")
	require.ErrorIs(t, err, core.ErrUnsupported)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		engine       string
		voice        string
		rate         float64
		volume       float64
		valid        bool
		errorCount   int
		warningCount int
	}{
		{name: "defaults", engine: "edge", voice: tts.DefaultVoice, rate: 1, volume: 1, valid: true},
		{name: "bounds inclusive", engine: "azure", voice: "zh-CN-YunzeNeural", rate: 2.0, volume: 0.5, valid: true},
		{name: "unknown voice warns", engine: "edge", voice: "en-US-Nobody", rate: 1, volume: 1, valid: true, warningCount: 1},
		{name: "unknown engine", engine: "espeak", voice: tts.DefaultVoice, rate: 1, volume: 1, errorCount: 1, warningCount: 1},
		{name: "rate too high", engine: "edge", voice: tts.DefaultVoice, rate: 3.0, volume: 1, errorCount: 1},
		{name: "both out of range", engine: "edge", voice: tts.DefaultVoice, rate: 0.4, volume: 1.6, errorCount: 2},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := tts.ValidateConfig(testCase.engine, testCase.voice, testCase.rate, testCase.volume)

			assert.Equal(t, testCase.valid, result.Valid())
			assert.Len(t, result.Errors(), testCase.errorCount)
			assert.Len(t, result.Warnings(), testCase.warningCount)
		})
	}
}

func TestCatalogue(t *testing.T) {
	t.Parallel()

	engines := tts.Engines()
	assert.Equal(t, "Microsoft Edge TTS", engines["edge"])
	assert.Contains(t, engines, "azure")

	assert.Equal(t, "晓晓 (女声)", tts.Voices("edge")[tts.DefaultVoice])
	assert.Equal(t, tts.Voices("edge"), tts.Voices("azure"))
	assert.Empty(t, tts.Voices("espeak"))

	ids := tts.VoiceIDs("edge")
	require.Len(t, ids, 22)
	assert.Equal(t, "zh-CN-XiaochenNeural", ids[0])
}
