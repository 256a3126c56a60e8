// Package objectstore keeps synthesized audio in a NATS JetStream object store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	bucketDescription = "Synthesized speech produced by the voice assistant."
	audioDescription  = "synthesized speech"
	headerContentType = "Content-Type"
	// AudioContentType is stored with every upload.
	AudioContentType = "audio/mpeg"
)

const (
	errFmtBindBucket   = "failed to bind to existing object store bucket '%s': %w"
	errFmtCreateBucket = "failed to create object store bucket '%s': %w"
	errFmtGetObject    = "failed to get object '%s' from bucket '%s': %w"
	errFmtReadObject   = "failed to read object '%s': %w"
	errFmtCloseObject  = "failed to close object '%s': %w"
	errFmtPutObject    = "failed to put object '%s' to bucket '%s': %w"
	errFmtDeleteObject = "failed to delete object '%s' from bucket '%s': %w"
	errFmtObjectInfo   = "failed to stat object '%s' in bucket '%s': %w"
)

// Option configures the bucket created by New.
type Option func(*nats.ObjectStoreConfig)

// WithTTL expires stored audio after ttl. Zero keeps objects until deleted.
// The TTL only applies when New creates the bucket.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *nats.ObjectStoreConfig) {
		if ttl > 0 {
			cfg.TTL = ttl
		}
	}
}

// NatsObjectStore implements core.ObjectStore on a JetStream object bucket.
type NatsObjectStore struct {
	store  nats.ObjectStore
	bucket string
}

// New binds to bucketName, creating it on first use.
func New(jetstreamContext nats.JetStreamContext, bucketName string, opts ...Option) (*NatsObjectStore, error) {
	cfg := &nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: bucketDescription,
		Storage:     nats.FileStorage,
		Replicas:    1,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	store, err := jetstreamContext.CreateObjectStore(cfg)
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf(errFmtCreateBucket, bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf(errFmtBindBucket, bucketName, err)
		}
	}

	return &NatsObjectStore{store: store, bucket: bucketName}, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Download returns the bytes stored under key.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf(errFmtGetObject, key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf(errFmtReadObject, key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf(errFmtCloseObject, key, closeErr)
	}

	return data, nil
}

// Upload stores data under key, replacing any previous object.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: audioDescription,
		Headers:     nats.Header{headerContentType: []string{AudioContentType}},
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf(errFmtPutObject, key, n.bucket, err)
	}

	return nil
}

// ContentType returns the content type recorded for key.
func (n *NatsObjectStore) ContentType(key string) (string, error) {
	info, err := n.store.GetInfo(key)
	if err != nil {
		return "", fmt.Errorf(errFmtObjectInfo, key, n.bucket, err)
	}

	return info.Headers.Get(headerContentType), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (n *NatsObjectStore) Delete(_ context.Context, key string) error {
	err := n.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf(errFmtDeleteObject, key, n.bucket, err)
	}

	return nil
}
