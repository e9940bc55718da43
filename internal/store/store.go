// Package store holds the authoritative list of training samples and keeps it
// in sync with a local durable slot and an optional shared HTTP service.
//
// Local persistence always completes before Add returns. Remote persistence is
// best effort: it runs in the background under a bounded timeout and its
// failures are only logged.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sketchpad/internal/config"
	"sketchpad/internal/kv"
	"sketchpad/internal/log"
	"sketchpad/internal/sample"

	"github.com/google/uuid"
)

// Source reports where LoadAtStartup took its samples from.
type Source string

const (
	SourceEmpty  Source = "empty"
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
	SourceUnion  Source = "union"
)

// Remote is the shared sample service.
type Remote interface {
	FetchAll(ctx context.Context) ([]sample.TrainingSample, error)
	Append(ctx context.Context, s sample.TrainingSample) error
	Clear(ctx context.Context) error
}

// Options configures a Store.
type Options struct {
	Key           string        // Local key holding the document.
	SchemaVersion int           // Version written to, and accepted from, the local document.
	RemoteTimeout time.Duration // Bound for every remote call.
	Merge         string        // config.MergeRemote or config.MergeUnion.
}

// OptionsFrom derives store options from the configuration.
func OptionsFrom(cfg config.StoreConfig) Options {
	return Options{
		Key:           cfg.LocalKey,
		SchemaVersion: cfg.SchemaVersion,
		RemoteTimeout: cfg.RemoteTimeout,
		Merge:         cfg.Merge,
	}
}

// document is the local persisted form.
type document struct {
	Version   int                     `json:"version"`
	Count     int                     `json:"count"`
	Data      []sample.TrainingSample `json:"data"`
	Timestamp int64                   `json:"timestamp"` // Unix milliseconds.
}

// Store is the training-sample list. All mutations, including their local
// persistence, are serialised by one mutex.
type Store struct {
	mu        sync.Mutex
	samples   []sample.TrainingSample
	local     kv.Store
	remote    Remote
	validator *sample.Validator
	opts      Options

	// Background remote calls derive from ctx so Close can abandon them.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New returns an empty Store. remote may be nil to disable the shared service.
func New(local kv.Store, remote Remote, v *sample.Validator, opts Options) *Store {
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = config.DefaultRemoteTimeout
	}
	if opts.Key == "" {
		opts.Key = config.DefaultLocalKey
	}
	if opts.SchemaVersion == 0 {
		opts.SchemaVersion = config.DefaultSchemaVersion
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		local:     local,
		remote:    remote,
		validator: v,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Add validates s, appends it and persists the whole list locally before
// returning. The newest sample is then sent to the remote in the background.
// An invalid sample is rejected with a *sample.ValidationError and the store
// is left untouched. A local persistence failure is returned, but the sample
// stays in memory.
func (s *Store) Add(ctx context.Context, ts sample.TrainingSample) error {
	if err := s.validator.Sample(ts); err != nil {
		log.Warnf("TrainingStore: Rejected sample: %v", err)
		return err
	}
	if ts.ID == "" {
		ts.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, ts)
	log.Debugf("TrainingStore: Added sample %s (total %d)", ts.ID, len(s.samples))

	if err := s.persistLocal(ctx); err != nil {
		log.Errorf("TrainingStore: Local persist failed: %v", err)
		return fmt.Errorf("persist local: %w", err)
	}
	s.persistRemote(ts)
	return nil
}

// persistLocal writes the entire list under the configured key in a single
// write. Must be called with s.mu held.
func (s *Store) persistLocal(ctx context.Context) error {
	doc := document{
		Version:   s.opts.SchemaVersion,
		Count:     len(s.samples),
		Data:      s.samples,
		Timestamp: s.now().UnixMilli(),
	}
	if doc.Data == nil {
		doc.Data = []sample.TrainingSample{}
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.local.Set(ctx, s.opts.Key, payload)
}

// persistRemote sends one sample to the remote without waiting for it.
func (s *Store) persistRemote(ts sample.TrainingSample) {
	if s.remote == nil {
		return
	}
	s.background("append "+ts.ID, func(ctx context.Context) error {
		return s.remote.Append(ctx, ts)
	})
}

// background runs fn under the remote timeout and logs its failure.
func (s *Store) background(what string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RemoteTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warnf("TrainingStore: Remote %s failed: %v", what, err)
			return
		}
		log.Debugf("TrainingStore: Remote %s done", what)
	}()
}

// LoadAtStartup replaces the in-memory list with persisted history. The
// remote is tried first under the timeout; a non-empty remote result wins
// (or is unioned with local data under the union policy) and is mirrored
// locally. Otherwise the local document is used. Nothing here is fatal: a
// corrupt local document is deleted and invalid remote samples are dropped.
func (s *Store) LoadAtStartup(ctx context.Context) Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := s.readLocal(ctx)

	remote, ok := s.fetchRemote(ctx)
	switch {
	case ok && s.opts.Merge == config.MergeUnion:
		merged, pushed := union(remote, local)
		s.samples = merged
		for _, ts := range pushed {
			s.persistRemote(ts)
		}
		if err := s.persistLocal(ctx); err != nil {
			log.Warnf("TrainingStore: Mirroring merged samples locally failed: %v", err)
		}
		log.Infof("TrainingStore: Loaded %d samples (%d remote, %d re-pushed)", len(merged), len(remote), len(pushed))
		return SourceUnion

	case ok && len(remote) > 0:
		s.samples = remote
		if err := s.persistLocal(ctx); err != nil {
			log.Warnf("TrainingStore: Mirroring remote samples locally failed: %v", err)
		}
		log.Infof("TrainingStore: Loaded %d samples from remote", len(remote))
		return SourceRemote
	}

	s.samples = local
	if len(local) == 0 {
		log.Infof("TrainingStore: No stored samples")
		return SourceEmpty
	}
	log.Infof("TrainingStore: Loaded %d samples from local storage", len(local))
	return SourceLocal
}

// fetchRemote returns the valid remote samples and whether the fetch
// succeeded.
func (s *Store) fetchRemote(ctx context.Context) ([]sample.TrainingSample, bool) {
	if s.remote == nil {
		return nil, false
	}
	rctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	defer cancel()

	fetched, err := s.remote.FetchAll(rctx)
	if err != nil {
		log.Warnf("TrainingStore: Remote fetch failed, using local storage: %v", err)
		return nil, false
	}
	valid := fetched[:0]
	for i, ts := range fetched {
		if err := s.validator.Sample(ts); err != nil {
			log.Warnf("TrainingStore: Dropping remote sample %d: %v", i, err)
			continue
		}
		valid = append(valid, ts)
	}
	return valid, true
}

// readLocal returns the locally persisted samples. An absent key yields nil;
// an unreadable or invalid document is deleted and also yields nil.
func (s *Store) readLocal(ctx context.Context) []sample.TrainingSample {
	payload, err := s.local.Get(ctx, s.opts.Key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Warnf("TrainingStore: Reading local storage failed: %v", err)
		return nil
	}

	doc, err := s.decodeDocument(payload)
	if err != nil {
		log.Warnf("TrainingStore: Discarding corrupt local document: %v", err)
		if derr := s.local.Delete(ctx, s.opts.Key); derr != nil {
			log.Warnf("TrainingStore: Deleting corrupt local document failed: %v", derr)
		}
		return nil
	}
	return doc.Data
}

func (s *Store) decodeDocument(payload []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return doc, err
	}
	if doc.Version < 1 || doc.Version > s.opts.SchemaVersion {
		return doc, fmt.Errorf("unsupported schema version %d", doc.Version)
	}
	for i, ts := range doc.Data {
		if err := s.validator.Sample(ts); err != nil {
			return doc, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	if doc.Count != len(doc.Data) {
		log.Warnf("TrainingStore: Local document count %d does not match %d samples", doc.Count, len(doc.Data))
	}
	return doc, nil
}

// content identifies a sample by its values. Samples posted by clients that
// do not assign ids are matched this way.
type content struct {
	xs sample.FeatureVector
	ys sample.LabelVector
}

// union returns remote followed by the local samples not present remotely;
// those local-only samples are also returned for re-pushing. A local sample is
// present when its id is known remotely, or when an unmatched remote sample
// carries the same values. Value matches are counted, so repeated samples are
// kept as often as they occur locally.
func union(remote, local []sample.TrainingSample) (merged, localOnly []sample.TrainingSample) {
	ids := make(map[string]struct{}, len(remote))
	values := make(map[content]int, len(remote))
	for _, ts := range remote {
		if ts.ID != "" {
			ids[ts.ID] = struct{}{}
		}
		values[content{ts.XS, ts.YS}]++
	}
	merged = append(merged, remote...)
	for _, ts := range local {
		key := content{ts.XS, ts.YS}
		if _, ok := ids[ts.ID]; ok && ts.ID != "" {
			if values[key] > 0 {
				values[key]--
			}
			continue
		}
		if values[key] > 0 {
			values[key]--
			continue
		}
		merged = append(merged, ts)
		localOnly = append(localOnly, ts)
	}
	return merged, localOnly
}

// Clear empties the list, deletes the local document and asks the remote to
// clear in the background.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = nil
	if err := s.local.Delete(ctx, s.opts.Key); err != nil {
		return fmt.Errorf("delete local: %w", err)
	}
	if s.remote != nil {
		s.background("clear", s.remote.Clear)
	}
	log.Infof("TrainingStore: Cleared")
	return nil
}

// Samples returns a copy of the current list in insertion order.
func (s *Store) Samples() []sample.TrainingSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sample.TrainingSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Len returns the number of samples.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Wait blocks until all outstanding remote calls have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close abandons outstanding remote calls and closes the local store.
func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.local.Close()
}
