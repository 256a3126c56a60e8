// Package worker provides a NATS worker that answers synthesis requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"

	"github.com/book-expert/voice-assistant/internal/core"
)

const (
	handleMessageTimeout = 60 * time.Second
	audioKeyExtension    = ".mp3"
	defaultEngine        = "edge"
	defaultMultiplier    = 1.0
)

const (
	backendArtifact    = "artifact"
	backendObjectStore = "objectstore"
	msgReadFailed      = "failed to read synthesized audio"
	msgUploadFailed    = "failed to store synthesized audio"
)

var (
	// ErrNilConnection indicates that no NATS connection was supplied.
	ErrNilConnection = errors.New("nats connection cannot be nil")
	// ErrEmptySubject indicates that the subject is empty.
	ErrEmptySubject = errors.New("subject cannot be empty")
	// ErrNilStore indicates that no object store was supplied.
	ErrNilStore = errors.New("object store cannot be nil")
	// ErrNilSynthesizer indicates that no synthesizer was supplied.
	ErrNilSynthesizer = errors.New("synthesizer cannot be nil")
	// ErrNilPool indicates that no worker pool was supplied.
	ErrNilPool = errors.New("worker pool cannot be nil")
)

// SynthesisJob is the request payload.
type SynthesisJob struct {
	Header events.EventHeader `json:"header"`
	Text   string             `json:"text"`
	Engine string             `json:"engine,omitempty"`
	Voice  string             `json:"voice,omitempty"`
	Rate   *float64           `json:"rate,omitempty"`
	Volume *float64           `json:"volume,omitempty"`
}

// SynthesisReply is the response payload. Exactly one of AudioKey, Empty or
// Error is set.
type SynthesisReply struct {
	Header    events.EventHeader `json:"header"`
	AudioKey  string             `json:"audio_key,omitempty"`
	Error     string             `json:"error,omitempty"`
	ErrorKind string             `json:"error_kind,omitempty"`
	Size      int64              `json:"size,omitempty"`
	Empty     bool               `json:"empty,omitempty"`
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them
// on a bounded goroutine pool.
type NatsWorker struct {
	natsConnection *nats.Conn
	store          core.ObjectStore
	synthesizer    core.Synthesizer
	pool           *ants.Pool
	log            *logger.Logger
	subject        string
	queue          string
}

// NewNatsWorker creates a worker. When queue is set, workers sharing it
// split the load.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	queue string,
	store core.ObjectStore,
	synthesizer core.Synthesizer,
	pool *ants.Pool,
	log *logger.Logger,
) (*NatsWorker, error) {
	switch {
	case natsConnection == nil:
		return nil, ErrNilConnection
	case subject == "":
		return nil, ErrEmptySubject
	case store == nil:
		return nil, ErrNilStore
	case synthesizer == nil:
		return nil, ErrNilSynthesizer
	case pool == nil:
		return nil, ErrNilPool
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		store:          store,
		synthesizer:    synthesizer,
		pool:           pool,
		log:            log,
		subject:        subject,
		queue:          queue,
	}, nil
}

// Run subscribes and blocks until ctx is done, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)

	if w.queue != "" {
		sub, err = w.natsConnection.QueueSubscribe(w.subject, w.queue, w.dispatch)
	} else {
		sub, err = w.natsConnection.Subscribe(w.subject, w.dispatch)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Synthesis worker listening on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) dispatch(msg *nats.Msg) {
	submitErr := w.pool.Submit(func() {
		w.handleMessage(msg)
	})
	if submitErr != nil {
		w.log.Warn("Synthesis pool rejected job: %v", submitErr)
		w.respond(msg, &SynthesisReply{
			Header:    events.EventHeader{Timestamp: time.Now(), EventID: uuid.NewString()},
			Error:     "synthesis worker is busy",
			ErrorKind: string(core.KindRateLimited),
		})
	}
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	job, err := parseJob(msg)
	if err != nil {
		w.log.Error("Failed to parse synthesis job: %v", err)
		w.respond(msg, &SynthesisReply{
			Header:    replyHeader(events.EventHeader{}),
			Error:     err.Error(),
			ErrorKind: string(core.KindInvalidConfig),
		})

		return
	}

	reply := w.processJob(ctx, job)
	w.respond(msg, reply)
}

// processJob synthesizes the job, uploads the audio and always removes the
// local artifact.
func (w *NatsWorker) processJob(ctx context.Context, job *SynthesisJob) *SynthesisReply {
	reply := &SynthesisReply{Header: replyHeader(job.Header)}

	result, err := w.synthesizer.Synthesize(ctx, core.SynthesisRequest{
		Text:   job.Text,
		Engine: job.Engine,
		Voice:  job.Voice,
		Rate:   valueOr(job.Rate, defaultMultiplier),
		Volume: valueOr(job.Volume, defaultMultiplier),
	})
	if err != nil {
		w.log.Error("Synthesis failed for workflow %s: %v", job.Header.WorkflowID, err)

		return failedReply(reply, err)
	}

	if result.Empty || result.Artifact == nil {
		reply.Empty = true

		return reply
	}

	defer func() {
		removeErr := result.Artifact.Remove()
		if removeErr != nil {
			w.log.Warn("Failed to remove artifact %s: %v", result.Artifact.Path, removeErr)
		}
	}()

	audio, err := result.Artifact.ReadAll()
	if err != nil {
		return failedReply(reply, core.NewError(
			core.KindProviderInternalError, backendArtifact, msgReadFailed, err,
		))
	}

	audioKey := uuid.NewString() + audioKeyExtension

	err = w.store.Upload(ctx, audioKey, audio)
	if err != nil {
		w.log.Error("Failed to upload audio for workflow %s: %v", job.Header.WorkflowID, err)

		return failedReply(reply, core.NewError(
			core.KindProviderInternalError, backendObjectStore, msgUploadFailed, err,
		))
	}

	w.log.Info("Synthesized %d bytes for workflow %s as %s", len(audio), job.Header.WorkflowID, audioKey)

	reply.AudioKey = audioKey
	reply.Size = int64(len(audio))

	return reply
}

func (w *NatsWorker) respond(msg *nats.Msg, reply *SynthesisReply) {
	err := publishReply(msg, reply)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", reply.Header.WorkflowID, err)
	}
}

// publishReply marshals and responds with the SynthesisReply.
func publishReply(msg *nats.Msg, reply *SynthesisReply) error {
	replyData, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}

	return nil
}

func parseJob(msg *nats.Msg) (*SynthesisJob, error) {
	var job SynthesisJob

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if job.Engine == "" {
		job.Engine = defaultEngine
	}

	return &job, nil
}

// valueOr returns fallback when the field was omitted from the job.
func valueOr(value *float64, fallback float64) float64 {
	if value == nil {
		return fallback
	}

	return *value
}

func replyHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	return header
}

func failedReply(reply *SynthesisReply, err error) *SynthesisReply {
	reply.Error = err.Error()

	reply.ErrorKind = string(core.KindOf(err))
	if reply.ErrorKind == "" {
		reply.ErrorKind = string(core.KindSynthesisFailed)
	}

	return reply
}
