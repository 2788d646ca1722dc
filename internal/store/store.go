// Package store holds the client-side copy of one backend record
// collection and keeps it in sync with the server.
//
// A Store owns an immutable State that is swapped whole under a mutex on
// every change. Network calls run outside the lock, so operations may be
// in flight concurrently. No request fencing is done: when two FetchAll
// calls overlap, the last response to arrive wins.
package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"fintrack/internal/clock"
	"fintrack/internal/codec"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
)

// Remote is the backend side of one collection.
type Remote[T core.Record] interface {
	List(ctx context.Context, token string) ([]T, error)
	Upload(ctx context.Context, token string, upload core.Upload) (core.ImportResult, error)
	Delete(ctx context.Context, token string, id int64) error
	Stats(ctx context.Context, token string) (core.Stats, error)
}

// TokenSource yields the bearer token for each request. A missing token
// is reported as a *core.AuthError.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Options struct {
	// Name identifies the store in logs, events and persisted snapshots.
	Name   string
	Logger *log.Logger
	Clock  clock.Clock
	// Reconciler runs after a successful import. Defaults to a
	// DeferredRefetch of DefaultReconcileDelay on Clock.
	Reconciler Reconciler
	Bus        *events.Bus
	// Persister, when set, receives a snapshot after every change to the
	// collection or stats.
	Persister Persister
}

// DefaultOptions returns options for a store called name with a real
// clock, no event bus and no persistence.
func DefaultOptions(name string) Options {
	return Options{
		Name:   name,
		Logger: log.Discard(),
		Clock:  clock.Real(),
	}
}

type Store[T core.Record] struct {
	name       string
	remote     Remote[T]
	tokens     TokenSource
	logger     *log.Logger
	clock      clock.Clock
	reconciler Reconciler
	bus        *events.Bus
	persister  Persister

	mu    sync.Mutex
	state State[T]

	persistMu   sync.Mutex
	lastPayload []byte
}

func New[T core.Record](remote Remote[T], tokens TokenSource, opts Options) *Store[T] {
	if opts.Name == "" {
		opts.Name = "store"
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Reconciler == nil {
		opts.Reconciler = NewDeferredRefetch(DefaultReconcileDelay, opts.Clock)
	}

	return &Store[T]{
		name:       opts.Name,
		remote:     remote,
		tokens:     tokens,
		logger:     opts.Logger.WithComponent(log.ComponentStore).With(log.FieldStore, opts.Name),
		clock:      opts.Clock,
		reconciler: opts.Reconciler,
		bus:        opts.Bus,
		persister:  opts.Persister,
		state: State[T]{
			Collection: []T{},
			Deleting:   map[int64]bool{},
		},
	}
}

func (s *Store[T]) Name() string { return s.name }

// State returns the current snapshot.
func (s *Store[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// update applies fn to a copy of the current state and publishes the copy.
// fn must replace Collection and Deleting rather than modify them.
func (s *Store[T]) update(fn func(*State[T])) State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	fn(&next)
	s.state = next
	return next
}

func (s *Store[T]) publish(kind events.Kind, op string, id int64, count int, err error) {
	if s.bus == nil {
		return
	}
	if dropped := s.bus.Publish(events.Event{
		Store:    s.name,
		Kind:     kind,
		Op:       op,
		RecordID: id,
		Count:    count,
		Err:      err,
		At:       s.clock.Now(),
	}); dropped > 0 {
		s.logger.Debug("Event dropped by slow subscribers", "kind", string(kind), log.FieldCount, dropped)
	}
}

// fail records err as the outcome of op.
func (s *Store[T]) fail(ctx context.Context, op string, id int64, err error, mutate func(*State[T])) {
	st := s.update(func(st *State[T]) {
		if mutate != nil {
			mutate(st)
		}
		st.LastError = err
		st.LastResult = nil
	})

	fields := log.NewFields().WithOperation(op).WithError(err)
	if id != 0 {
		fields.WithRecord(id)
	}
	s.logger.WarnContext(ctx, "Store operation failed", fields.ToSlice()...)
	s.publish(events.OperationFailed, op, id, len(st.Collection), err)
}

// FetchAll replaces the collection with the server's list. On failure the
// previous collection stays available and the error is kept in LastError.
// A previous import result is left in place on success, so the deferred
// refetch after an import does not hide it.
func (s *Store[T]) FetchAll(ctx context.Context) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.fail(ctx, log.OpFetch, 0, err, func(st *State[T]) { st.Loading = false })
		return err
	}

	s.update(func(st *State[T]) {
		st.Loading = true
		st.LastError = nil
	})

	records, err := s.remote.List(ctx, token)
	if err != nil {
		s.fail(ctx, log.OpFetch, 0, err, func(st *State[T]) { st.Loading = false })
		return err
	}

	collection := make([]T, len(records))
	copy(collection, records)
	st := s.update(func(st *State[T]) {
		st.Collection = collection
		st.Loading = false
	})

	s.logger.DebugContext(ctx, "Collection fetched",
		log.NewFields().WithOperation(log.OpFetch).WithCount(len(collection)).ToSlice()...)
	s.persist(ctx)
	s.publish(events.CollectionFetched, log.OpFetch, 0, len(st.Collection), nil)
	return nil
}

// ImportRecord validates upload locally, sends it, and on success keeps
// the server's response as LastResult and schedules a refetch.
func (s *Store[T]) ImportRecord(ctx context.Context, upload core.Upload) (core.ImportResult, error) {
	if err := upload.Validate(); err != nil {
		s.fail(ctx, log.OpImport, 0, err, nil)
		return core.ImportResult{}, err
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.fail(ctx, log.OpImport, 0, err, nil)
		return core.ImportResult{}, err
	}

	s.update(func(st *State[T]) {
		st.Uploading = true
		st.LastError = nil
		st.LastResult = nil
	})

	res, err := s.remote.Upload(ctx, token, upload)
	if err == nil && !res.Success {
		err = &core.ServerError{Message: res.Message}
	}
	if err != nil {
		s.fail(ctx, log.OpImport, 0, err, func(st *State[T]) { st.Uploading = false })
		return core.ImportResult{}, err
	}

	st := s.update(func(st *State[T]) {
		st.Uploading = false
		st.LastError = nil
		st.LastResult = &res
	})

	s.logger.InfoContext(ctx, "Record imported",
		log.NewFields().WithOperation(log.OpImport).WithUpload(upload).ToSlice()...)
	s.publish(events.RecordImported, log.OpImport, 0, len(st.Collection), nil)

	s.reconciler.Schedule(ctx, s.reconcile)
	s.publish(events.ReconcileScheduled, log.OpReconcile, 0, len(st.Collection), nil)
	return res, nil
}

func (s *Store[T]) reconcile(ctx context.Context) {
	if err := s.FetchAll(ctx); err != nil {
		s.logger.DebugContext(ctx, "Reconcile refetch failed",
			log.NewFields().WithOperation(log.OpReconcile).WithError(err).ToSlice()...)
	}
}

// DeleteRecord removes id on the server and then locally, without a
// refetch. Deleting[id] is set while the request is in flight.
func (s *Store[T]) DeleteRecord(ctx context.Context, id int64) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.fail(ctx, log.OpDelete, id, err, nil)
		return err
	}

	st := s.update(func(st *State[T]) {
		st.Deleting = withDeleting(st.Deleting, id, true)
		st.LastError = nil
		st.LastResult = nil
	})
	s.publish(events.DeleteStarted, log.OpDelete, id, len(st.Collection), nil)

	if err := s.remote.Delete(ctx, token, id); err != nil {
		s.fail(ctx, log.OpDelete, id, err, func(st *State[T]) {
			st.Deleting = withDeleting(st.Deleting, id, false)
		})
		return err
	}

	st = s.update(func(st *State[T]) {
		st.Collection = without(st.Collection, id)
		st.Deleting = withDeleting(st.Deleting, id, false)
	})

	s.logger.InfoContext(ctx, "Record deleted",
		log.NewFields().WithOperation(log.OpDelete).WithRecord(id).ToSlice()...)
	s.persist(ctx)
	s.publish(events.RecordDeleted, log.OpDelete, id, len(st.Collection), nil)
	return nil
}

// FetchStats refreshes the summary. Failures are logged and returned but
// never stored in LastError.
func (s *Store[T]) FetchStats(ctx context.Context) (core.Stats, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "Stats skipped",
			log.NewFields().WithOperation(log.OpStats).WithError(err).ToSlice()...)
		return core.Stats{}, err
	}

	stats, err := s.remote.Stats(ctx, token)
	if err != nil {
		s.logger.WarnContext(ctx, "Stats fetch failed",
			log.NewFields().WithOperation(log.OpStats).WithError(err).ToSlice()...)
		return core.Stats{}, err
	}

	st := s.update(func(st *State[T]) { st.Stats = &stats })
	s.persist(ctx)
	s.publish(events.StatsUpdated, log.OpStats, 0, len(st.Collection), nil)
	return stats, nil
}

func (s *Store[T]) ClearError() {
	st := s.update(func(st *State[T]) { st.LastError = nil })
	s.publish(events.StateCleared, "clear_error", 0, len(st.Collection), nil)
}

func (s *Store[T]) ClearResult() {
	st := s.update(func(st *State[T]) { st.LastResult = nil })
	s.publish(events.StateCleared, "clear_result", 0, len(st.Collection), nil)
}

// Rehydrate restores the collection and stats from the last persisted
// snapshot. It reports false when there is no persister or no snapshot.
func (s *Store[T]) Rehydrate(ctx context.Context) (bool, error) {
	if s.persister == nil {
		return false, nil
	}
	data, ok, err := s.persister.Load(ctx, s.name)
	if err != nil || !ok {
		return false, err
	}
	snap, err := decodeSnapshot[T](data)
	if err != nil {
		return false, err
	}
	if snap.Name != "" && snap.Name != s.name {
		return false, fmt.Errorf("snapshot belongs to store %q", snap.Name)
	}

	collection := snap.Collection
	if collection == nil {
		collection = []T{}
	}
	st := s.update(func(st *State[T]) {
		st.Collection = collection
		st.Stats = snap.Stats
	})

	s.persistMu.Lock()
	s.lastPayload, _ = codec.Marshal(snapshotBody[T]{Collection: collection, Stats: snap.Stats})
	s.persistMu.Unlock()

	s.logger.InfoContext(ctx, "Collection restored from snapshot",
		log.NewFields().WithOperation(log.OpRehydrate).WithCount(len(collection)).ToSlice()...)
	s.publish(events.CollectionRestored, log.OpRehydrate, 0, len(st.Collection), nil)
	return true, nil
}

// persist writes the current collection and stats. It always reads the
// latest state, so overlapping calls cannot write an older snapshot last.
func (s *Store[T]) persist(ctx context.Context) {
	if s.persister == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	st := s.State()
	payload, err := codec.Marshal(snapshotBody[T]{Collection: st.Collection, Stats: st.Stats})
	if err != nil {
		s.logger.ErrorContext(ctx, "Snapshot encoding failed",
			log.NewFields().WithOperation(log.OpPersist).WithError(err).ToSlice()...)
		return
	}
	if bytes.Equal(payload, s.lastPayload) {
		return
	}

	data, err := encodeSnapshot(Snapshot[T]{
		Name:       s.name,
		Collection: st.Collection,
		Stats:      st.Stats,
		SavedAt:    s.clock.Now().UTC(),
	})
	if err == nil {
		err = s.persister.Save(context.WithoutCancel(ctx), s.name, data)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Snapshot not saved",
			log.NewFields().WithOperation(log.OpPersist).WithError(err).ToSlice()...)
		return
	}
	s.lastPayload = payload
}

// Close cancels pending reconcile refetches.
func (s *Store[T]) Close() error {
	s.reconciler.Stop()
	return nil
}
