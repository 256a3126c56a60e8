package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/tts"
	"github.com/book-expert/voice-assistant/internal/worker"
)

const testSubject = "speech.synthesize"

var errMockUpload = errors.New("mock upload error")

// mockObjectStore is a mock implementation of the ObjectStore interface.
type mockObjectStore struct {
	objects          map[string][]byte
	uploadShouldFail bool
	mu               sync.Mutex
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects[key], nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploadShouldFail {
		return errMockUpload
	}

	m.objects[key] = data

	return nil
}

func (m *mockObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)

	return nil
}

// mockSynthesizer writes a fixed payload to a temp file per call.
type mockSynthesizer struct {
	err       error
	dir       string
	audio     []byte
	empty     bool
	validate  bool
	artifacts []string
	requests  []core.SynthesisRequest
	mu        sync.Mutex
}

func (m *mockSynthesizer) Synthesize(_ context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.err != nil {
		return nil, m.err
	}

	if m.validate {
		validationErr := tts.ValidateConfig(req.Engine, req.Voice, req.Rate, req.Volume).Err(req.Engine)
		if validationErr != nil {
			return nil, validationErr
		}
	}

	if m.empty {
		return &core.SynthesisResult{Empty: true}, nil
	}

	path := filepath.Join(m.dir, uuid.NewString()+".mp3")
	if err := os.WriteFile(path, m.audio, 0o600); err != nil {
		return nil, err
	}

	m.artifacts = append(m.artifacts, path)

	return &core.SynthesisResult{
		Artifact:   &core.Artifact{Path: path, Size: int64(len(m.audio))},
		SpokenText: req.Text,
	}, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func setupTest(t *testing.T, synthesizer *mockSynthesizer, store *mockObjectStore) *nats.Conn {
	t.Helper()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	workerInstance, err := worker.NewNatsWorker(natsConnection, testSubject, "speech-workers", store, synthesizer, pool, testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errChan, "worker.Run should not error on graceful shutdown")
	})

	// Wait for the subscription to be registered before sending requests.
	require.NoError(t, natsConnection.Flush())
	time.Sleep(50 * time.Millisecond)

	return natsConnection
}

func request(t *testing.T, natsConnection *nats.Conn, payload []byte) worker.SynthesisReply {
	t.Helper()

	replyMsg, err := natsConnection.Request(testSubject, payload, 5*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var reply worker.SynthesisReply
	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))

	return reply
}

func newJob(t *testing.T, text string) (worker.SynthesisJob, []byte) {
	t.Helper()

	job := worker.SynthesisJob{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
		},
		Text:  text,
		Voice: "zh-CN-XiaoxiaoNeural",
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	return job, data
}

func newStore() *mockObjectStore {
	return &mockObjectStore{objects: make(map[string][]byte)}
}

func TestWorker_Success(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{dir: t.TempDir(), audio: []byte("sample audio")}
	store := newStore()
	natsConnection := setupTest(t, synthesizer, store)

	job, payload := newJob(t, "你好")
	reply := request(t, natsConnection, payload)

	require.Empty(t, reply.Error)
	assert.NotEmpty(t, reply.AudioKey)
	assert.Equal(t, ".mp3", filepath.Ext(reply.AudioKey))
	assert.Equal(t, int64(len("sample audio")), reply.Size)
	assert.Equal(t, job.Header.WorkflowID, reply.Header.WorkflowID)
	assert.NotEqual(t, job.Header.EventID, reply.Header.EventID)

	stored, err := store.Download(context.Background(), reply.AudioKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("sample audio"), stored)

	synthesizer.mu.Lock()
	defer synthesizer.mu.Unlock()

	require.Len(t, synthesizer.requests, 1)
	assert.Equal(t, "edge", synthesizer.requests[0].Engine)
	assert.InDelta(t, 1.0, synthesizer.requests[0].Rate, 0.0001)
	assert.InDelta(t, 1.0, synthesizer.requests[0].Volume, 0.0001)

	for _, path := range synthesizer.artifacts {
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "local artifact must be removed")
	}
}

func TestWorker_NothingToSpeak(t *testing.T) {
	t.Parallel()

	natsConnection := setupTest(t, &mockSynthesizer{dir: t.TempDir(), empty: true}, newStore())

	_, payload := newJob(t, "```")
	reply := request(t, natsConnection, payload)

	assert.True(t, reply.Empty)
	assert.Empty(t, reply.AudioKey)
	assert.Empty(t, reply.Error)
}

func TestWorker_SynthesisError(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{
		dir: t.TempDir(),
		err: core.Errorf(core.KindNotImplemented, "azure", "azure engine is not implemented"),
	}
	natsConnection := setupTest(t, synthesizer, newStore())

	_, payload := newJob(t, "hello")
	reply := request(t, natsConnection, payload)

	assert.Equal(t, "not_implemented", reply.ErrorKind)
	assert.Contains(t, reply.Error, "azure")
}

func TestWorker_UploadFailureRemovesArtifact(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{dir: t.TempDir(), audio: []byte("sample audio")}
	store := newStore()
	store.uploadShouldFail = true
	natsConnection := setupTest(t, synthesizer, store)

	_, payload := newJob(t, "hello")
	reply := request(t, natsConnection, payload)

	assert.Equal(t, "provider_internal_error", reply.ErrorKind)
	assert.Contains(t, reply.Error, "failed to store synthesized audio")
	assert.Contains(t, reply.Error, "objectstore")

	synthesizer.mu.Lock()
	defer synthesizer.mu.Unlock()

	require.Len(t, synthesizer.artifacts, 1)

	_, statErr := os.Stat(synthesizer.artifacts[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestWorker_ExplicitMultipliers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		payload    string
		wantKind   string
		wantRate   float64
		wantVolume float64
	}{
		{
			name:       "omitted fields use defaults",
			payload:    `{"text":"hello"}`,
			wantRate:   1.0,
			wantVolume: 1.0,
		},
		{
			name:       "explicit values are kept",
			payload:    `{"text":"hello","rate":1.5,"volume":0.8}`,
			wantRate:   1.5,
			wantVolume: 0.8,
		},
		{
			name:       "zero rate is rejected",
			payload:    `{"text":"hello","rate":0}`,
			wantKind:   "invalid_config",
			wantRate:   0,
			wantVolume: 1.0,
		},
		{
			name:       "zero volume is rejected",
			payload:    `{"text":"hello","volume":0}`,
			wantKind:   "invalid_config",
			wantRate:   1.0,
			wantVolume: 0,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			synthesizer := &mockSynthesizer{dir: t.TempDir(), audio: []byte("sample audio"), validate: true}
			natsConnection := setupTest(t, synthesizer, newStore())

			reply := request(t, natsConnection, []byte(testCase.payload))
			assert.Equal(t, testCase.wantKind, reply.ErrorKind)

			synthesizer.mu.Lock()
			defer synthesizer.mu.Unlock()

			require.Len(t, synthesizer.requests, 1)
			assert.InDelta(t, testCase.wantRate, synthesizer.requests[0].Rate, 0.0001)
			assert.InDelta(t, testCase.wantVolume, synthesizer.requests[0].Volume, 0.0001)
		})
	}
}

func TestWorker_MalformedJob(t *testing.T) {
	t.Parallel()

	natsConnection := setupTest(t, &mockSynthesizer{dir: t.TempDir()}, newStore())

	reply := request(t, natsConnection, []byte("{not json"))
	assert.Equal(t, "invalid_config", reply.ErrorKind)
}

func TestNewNatsWorker_RejectsMissingDependencies(t *testing.T) {
	t.Parallel()

	pool, err := ants.NewPool(1)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	natsConnection := createTestNatsClient(t)
	synthesizer := &mockSynthesizer{}
	store := newStore()

	_, err = worker.NewNatsWorker(nil, testSubject, "", store, synthesizer, pool, nil)
	require.ErrorIs(t, err, worker.ErrNilConnection)

	_, err = worker.NewNatsWorker(natsConnection, "", "", store, synthesizer, pool, nil)
	require.ErrorIs(t, err, worker.ErrEmptySubject)

	_, err = worker.NewNatsWorker(natsConnection, testSubject, "", nil, synthesizer, pool, nil)
	require.ErrorIs(t, err, worker.ErrNilStore)

	_, err = worker.NewNatsWorker(natsConnection, testSubject, "", store, nil, pool, nil)
	require.ErrorIs(t, err, worker.ErrNilSynthesizer)

	_, err = worker.NewNatsWorker(natsConnection, testSubject, "", store, synthesizer, nil, nil)
	require.ErrorIs(t, err, worker.ErrNilPool)
}
