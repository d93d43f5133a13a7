// Package authority holds the per-document authoritative state
// machine: the single in-memory owner of a document's content,
// version, and transform tail, serialized so that at most one
// applyOperation runs at a time per document.
package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/collabtext/syncserver/internal/ot"
	"github.com/collabtext/syncserver/internal/store"
)

const (
	// DefaultTailSize is the number of recently applied operations
	// retained for transforming stale incoming ops.
	DefaultTailSize = 32

	// DefaultPersistOps triggers a write-back after this many applied
	// operations since the last successful persist.
	DefaultPersistOps = 20

	// DefaultPersistInterval triggers a write-back after this much
	// wall-clock time with any unpersisted change.
	DefaultPersistInterval = 2 * time.Second
)

// versionedOp is a tail entry: the transformed operation and the
// version it produced.
type versionedOp struct {
	op      ot.Operation
	version int
}

// State is the authoritative in-memory state of one document.
type State struct {
	docID string

	mu              sync.Mutex
	content         []rune
	version         int
	recentOps       []versionedOp
	dirtySince      time.Time
	opsSincePersist int

	tailSize        int
	persistOps      int
	persistInterval time.Duration

	store store.Store
}

// Config bounds the write-back and tail-retention policy of a
// Registry. Zero values fall back to the package defaults.
type Config struct {
	TailSize        int
	PersistOps      int
	PersistInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TailSize <= 0 {
		c.TailSize = DefaultTailSize
	}

	if c.TailSize < 10 {
		c.TailSize = 10
	}

	if c.PersistOps <= 0 {
		c.PersistOps = DefaultPersistOps
	}

	if c.PersistInterval <= 0 {
		c.PersistInterval = DefaultPersistInterval
	}

	return c
}

// Registry is the process-wide docId -> *State mapping. Creation of a
// document's State is serialized so at most one exists per docId.
type Registry struct {
	mu    sync.Mutex
	docs  map[string]*State
	store store.Store
	cfg   Config
}

// NewRegistry creates a registry backed by store, applying cfg's
// tail-size and write-back policy to every document it loads.
func NewRegistry(s store.Store, cfg Config) *Registry {
	return &Registry{
		docs:  make(map[string]*State),
		store: s,
		cfg:   cfg.withDefaults(),
	}
}

// LoadOrAttach returns the in-memory state for docID, fetching it from
// the durable store on first reference. Returns ErrNotFound if no
// durable record exists.
func (r *Registry) LoadOrAttach(ctx context.Context, docID string) (*State, error) {
	r.mu.Lock()
	if s, ok := r.docs[docID]; ok {
		r.mu.Unlock()

		return s, nil
	}
	r.mu.Unlock()

	rec, err := r.store.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: a concurrent LoadOrAttach may have attached first.
	if s, ok := r.docs[docID]; ok {
		return s, nil
	}

	s := &State{
		docID:           docID,
		content:         []rune(rec.Content),
		version:         rec.Version,
		tailSize:        r.cfg.TailSize,
		persistOps:      r.cfg.PersistOps,
		persistInterval: r.cfg.PersistInterval,
		store:           r.store,
	}
	r.docs[docID] = s

	return s, nil
}

// CreateDocument inserts a new durable record with the given seed
// content and version 0, returning the generated id. The authority is
// attached lazily on first LoadOrAttach, not here.
func (r *Registry) CreateDocument(ctx context.Context, seed string) (string, error) {
	docID, err := r.store.Create(ctx, store.Record{Content: seed, Version: 0, UpdatedAt: time.Now()})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return docID, nil
}

// FlushIdle persists every attached document whose unpersisted change
// has aged past its configured interval. Intended to be called
// periodically by a background sweep so persistence liveness (spec
// invariant 8) holds even when no new operation arrives to trigger the
// inline check.
func (r *Registry) FlushIdle(ctx context.Context) {
	r.mu.Lock()
	states := make([]*State, 0, len(r.docs))
	for _, s := range r.docs {
		states = append(states, s)
	}
	r.mu.Unlock()

	for _, s := range states {
		s.flushIfIdle(ctx)
	}
}

// ApplyOperation runs the full validate/transform/apply/version/
// persist pipeline described in spec §4.2 against op's document.
func (s *State) ApplyOperation(ctx context.Context, op ot.Operation) (newVersion int, transformed ot.Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op.BaseVersion > s.version {
		return 0, ot.Operation{}, ErrFromTheFuture
	}

	transformed = op

	if op.BaseVersion < s.version {
		oldestRetained := s.version - len(s.recentOps)
		if op.BaseVersion < oldestRetained {
			return 0, ot.Operation{}, ErrTooStale
		}

		for _, entry := range s.recentOps {
			if entry.version > op.BaseVersion {
				transformed = ot.Transform(transformed, entry.op)
			}
		}
	}

	if transformed.IsNoop() {
		return s.version, transformed, nil
	}

	if verr := ot.Validate(s.content, transformed); verr != nil {
		return 0, ot.Operation{}, fmt.Errorf("%w: %v", ErrInvalid, verr)
	}

	newContent, aerr := ot.Apply(s.content, transformed)
	if aerr != nil {
		return 0, ot.Operation{}, fmt.Errorf("%w: %v", ErrInvalid, aerr)
	}

	s.content = newContent
	s.version++
	s.appendTail(transformed, s.version)

	if s.opsSincePersist == 0 {
		s.dirtySince = time.Now()
	}
	s.opsSincePersist++

	if s.opsSincePersist >= s.persistOps || time.Since(s.dirtySince) >= s.persistInterval {
		s.persistLocked(ctx)
	}

	return s.version, transformed, nil
}

func (s *State) appendTail(op ot.Operation, version int) {
	s.recentOps = append(s.recentOps, versionedOp{op: op, version: version})

	if excess := len(s.recentOps) - s.tailSize; excess > 0 {
		s.recentOps = s.recentOps[excess:]
	}
}

// persistLocked writes the current content/version back to the
// durable store. Caller must hold s.mu. On failure the dirty counters
// are left untouched so the next trigger retries.
func (s *State) persistLocked(ctx context.Context) {
	rec := store.Record{Content: string(s.content), Version: s.version, UpdatedAt: time.Now()}

	if err := s.store.UpsertByID(ctx, s.docID, rec); err != nil {
		return
	}

	s.opsSincePersist = 0
	s.dirtySince = time.Time{}
}

func (s *State) flushIfIdle(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opsSincePersist == 0 {
		return
	}

	if time.Since(s.dirtySince) < s.persistInterval {
		return
	}

	s.persistLocked(ctx)
}

// Snapshot returns a consistent (content, version) pair for sync
// replies.
func (s *State) Snapshot() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return string(s.content), s.version
}

// DocID returns the document id this state belongs to.
func (s *State) DocID() string {
	return s.docID
}
