package pipestore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/errors"
	"github.com/brickflow/brickflow/metric"
	"github.com/brickflow/brickflow/pipe"
)

// DefaultBucket is the KV bucket holding serialized pipe definitions.
const DefaultBucket = "brickflow_pipes"

// KeyValue is the subset of jetstream.KeyValue the store needs. MemKV
// implements it for tests and headless operation.
type KeyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

// Store persists StoredPipe entities in a KV bucket with optimistic
// concurrency control
type Store struct {
	kv      KeyValue
	logger  *slog.Logger
	metrics *metric.Metrics
	timeout time.Duration
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables store operation metrics
func WithMetrics(m *metric.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithTimeout bounds each KV operation. Zero disables the bound.
func WithTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.timeout = d
	}
}

// NewStore creates a store over an existing bucket
func NewStore(kv KeyValue, opts ...StoreOption) (*Store, error) {
	if kv == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("kv bucket cannot be nil"), "pipestore", "NewStore", "validation")
	}

	s := &Store{
		kv:      kv,
		logger:  slog.New(slog.DiscardHandler),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open creates or binds the pipe bucket on a JetStream context and returns
// a store over it
func Open(ctx context.Context, js jetstream.JetStream, opts ...StoreOption) (*Store, error) {
	if js == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("jetstream context cannot be nil"), "pipestore", "Open", "validation")
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      DefaultBucket,
		Description: "Pipe definitions and metadata",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "pipestore", "Open", "create KV bucket")
	}

	return NewStore(bucket, opts...)
}

func (s *Store) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

func (s *Store) observe(op, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.StoreOperations.WithLabelValues(op, status).Inc()
	s.metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Create stores a new pipe. The envelope's Version and timestamps are set
// here; a pipe with the same ID must not already exist.
func (s *Store) Create(ctx context.Context, sp *StoredPipe) error {
	start := time.Now()

	if sp == nil {
		return errors.WrapInvalid(fmt.Errorf("pipe cannot be nil"), "pipestore", "Create", "validation")
	}
	if err := sp.Validate(); err != nil {
		return errors.Wrap(err, "pipestore", "Create", "validate pipe")
	}

	sp.Version = 1
	now := time.Now().UTC()
	sp.CreatedAt = now
	sp.UpdatedAt = now

	data, err := json.Marshal(sp)
	if err != nil {
		return errors.WrapFatal(err, "pipestore", "Create", "marshal pipe")
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	if _, err := s.kv.Create(ctx, sp.ID, data); err != nil {
		if isKVConflict(err) {
			s.observe("create", "conflict", start)
			return errors.WrapInvalid(errors.ErrPipeExists, "pipestore", "Create",
				fmt.Sprintf("pipe %s already exists", sp.ID))
		}
		s.observe("create", "error", start)
		return errors.WrapTransient(err, "pipestore", "Create", "create in KV")
	}

	s.observe("create", "success", start)
	s.logger.Debug("pipe created", "id", sp.ID, "bricks", len(sp.Pipe.Bricks))
	return nil
}

// Get retrieves a stored pipe by ID
func (s *Store) Get(ctx context.Context, id string) (*StoredPipe, error) {
	start := time.Now()

	if id == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("pipe ID cannot be empty"), "pipestore", "Get", "validation")
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if isKVNotFound(err) {
			s.observe("get", "not_found", start)
			return nil, errors.WrapInvalid(errors.ErrPipeNotFound, "pipestore", "Get",
				fmt.Sprintf("pipe %s", id))
		}
		s.observe("get", "error", start)
		return nil, errors.WrapTransient(err, "pipestore", "Get", "get from KV")
	}

	var sp StoredPipe
	if err := json.Unmarshal(entry.Value(), &sp); err != nil {
		s.observe("get", "error", start)
		return nil, errors.WrapFatal(err, "pipestore", "Get", "unmarshal pipe")
	}

	s.observe("get", "success", start)
	return &sp, nil
}

// Update overwrites a stored pipe with optimistic concurrency control.
// The caller's Version must match the stored one; on success it is
// incremented and UpdatedAt refreshed.
func (s *Store) Update(ctx context.Context, sp *StoredPipe) error {
	start := time.Now()

	if sp == nil {
		return errors.WrapInvalid(fmt.Errorf("pipe cannot be nil"), "pipestore", "Update", "validation")
	}
	if err := sp.Validate(); err != nil {
		return errors.Wrap(err, "pipestore", "Update", "validate pipe")
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	entry, err := s.kv.Get(ctx, sp.ID)
	if err != nil {
		if isKVNotFound(err) {
			s.observe("update", "not_found", start)
			return errors.WrapInvalid(errors.ErrPipeNotFound, "pipestore", "Update",
				fmt.Sprintf("pipe %s", sp.ID))
		}
		s.observe("update", "error", start)
		return errors.WrapTransient(err, "pipestore", "Update", "get current version")
	}

	var current StoredPipe
	if err := json.Unmarshal(entry.Value(), &current); err != nil {
		s.observe("update", "error", start)
		return errors.WrapFatal(err, "pipestore", "Update", "unmarshal current")
	}

	if current.Version != sp.Version {
		s.observe("update", "conflict", start)
		return errors.WrapInvalid(errors.ErrVersionConflict, "pipestore", "Update",
			fmt.Sprintf("version mismatch: expected %d, got %d", current.Version, sp.Version))
	}

	sp.Version++
	sp.CreatedAt = current.CreatedAt
	sp.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sp)
	if err != nil {
		s.observe("update", "error", start)
		return errors.WrapFatal(err, "pipestore", "Update", "marshal pipe")
	}

	// CAS against the KV revision so a concurrent writer between our Get
	// and this Update still loses cleanly.
	if _, err := s.kv.Update(ctx, sp.ID, data, entry.Revision()); err != nil {
		if isKVConflict(err) {
			s.observe("update", "conflict", start)
			return errors.WrapInvalid(errors.ErrVersionConflict, "pipestore", "Update",
				"concurrent modification")
		}
		s.observe("update", "error", start)
		return errors.WrapTransient(err, "pipestore", "Update", "update in KV")
	}

	s.observe("update", "success", start)
	s.logger.Debug("pipe updated", "id", sp.ID, "version", sp.Version)
	return nil
}

// Delete removes a stored pipe by ID
func (s *Store) Delete(ctx context.Context, id string) error {
	start := time.Now()

	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("pipe ID cannot be empty"), "pipestore", "Delete", "validation")
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	if err := s.kv.Delete(ctx, id); err != nil {
		if isKVNotFound(err) {
			s.observe("delete", "not_found", start)
			return errors.WrapInvalid(errors.ErrPipeNotFound, "pipestore", "Delete",
				fmt.Sprintf("pipe %s", id))
		}
		s.observe("delete", "error", start)
		return errors.WrapTransient(err, "pipestore", "Delete", "delete from KV")
	}

	s.observe("delete", "success", start)
	s.logger.Debug("pipe deleted", "id", id)
	return nil
}

// List retrieves all stored pipes
func (s *Store) List(ctx context.Context) ([]*StoredPipe, error) {
	start := time.Now()

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			s.observe("list", "success", start)
			return []*StoredPipe{}, nil
		}
		s.observe("list", "error", start)
		return nil, errors.WrapTransient(err, "pipestore", "List", "list KV keys")
	}

	pipes := make([]*StoredPipe, 0, len(keys))
	for _, key := range keys {
		sp, err := s.Get(ctx, key)
		if err != nil {
			s.observe("list", "error", start)
			return nil, errors.WrapTransient(err, "pipestore", "List",
				fmt.Sprintf("get pipe %s", key))
		}
		pipes = append(pipes, sp)
	}

	s.observe("list", "success", start)
	return pipes, nil
}

// Load retrieves a stored pipe and rebuilds a live Pipe from it using the
// given registry
func (s *Store) Load(ctx context.Context, id string, registry *brick.Registry,
	opts ...pipe.Option) (*pipe.Pipe, error) {

	sp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err := pipe.FromRecord(sp.Pipe, registry, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "pipestore", "Load", "rebuild pipe")
	}
	return p, nil
}

// Error detection helpers. errors.Is covers the jetstream sentinels; the
// string checks catch raw NATS API errors that are not wrapped.

func isKVNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}

func isKVConflict(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}
