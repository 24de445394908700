// Package memory provides an in-memory record store used by tests and
// embedded setups. It implements the full store interface, including live
// subscriptions with push delivery.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/myunifiles/unifiles/internal/platform/id"
	"github.com/myunifiles/unifiles/internal/store"
)

// Store is a thread-safe in-memory record store.
type Store struct {
	mu          sync.RWMutex
	records     map[string]map[string]store.Record
	versions    map[string]int64
	subscribers map[int64]*subscriber
	nextSubID   int64

	clock       func() time.Time
	idGenerator func() (string, error)
}

type subscriber struct {
	query store.Query
	fn    store.SnapshotFunc

	mu     sync.Mutex
	closed bool
}

// deliver invokes the snapshot callback unless the subscription was
// cancelled. The subscriber mutex serializes delivery with cancellation so
// no callback runs after cancel returns.
func (s *subscriber) deliver(snapshot store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(snapshot)
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Option configures a memory store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(idGenerator func() (string, error)) Option {
	return func(s *Store) { s.idGenerator = idGenerator }
}

// New creates an empty memory store.
func New(opts ...Option) *Store {
	s := &Store{
		records:     make(map[string]map[string]store.Record),
		versions:    make(map[string]int64),
		subscribers: make(map[int64]*subscriber),
		clock:       time.Now,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get runs a point query against a partition.
func (s *Store) Get(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(q), nil
}

// collectLocked returns cloned matching records. Callers hold at least a
// read lock.
func (s *Store) collectLocked(q store.Query) []store.Record {
	matched := make([]store.Record, 0)
	for _, record := range s.records[q.Partition] {
		if store.Match(record.Fields, q.Predicates) {
			matched = append(matched, record.Clone())
		}
	}
	return matched
}

// Create inserts a record and notifies live queries on the partition.
func (s *Store) Create(ctx context.Context, partition string, fields map[string]any) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	if err := (store.Query{Partition: partition}).Validate(); err != nil {
		return store.Record{}, err
	}

	recordID, err := s.idGenerator()
	if err != nil {
		return store.Record{}, err
	}

	now := s.clock().UTC()
	record := store.Record{
		ID:        recordID,
		Partition: partition,
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	if s.records[partition] == nil {
		s.records[partition] = make(map[string]store.Record)
	}
	s.records[partition][recordID] = record.Clone()
	s.versions[partition]++
	deliveries := s.pendingDeliveriesLocked(partition)
	s.mu.Unlock()

	dispatch(deliveries)
	return record, nil
}

// Update replaces the supplied fields on an existing record. Fields not
// supplied keep their previous values; concurrent updates are
// last-write-wins with no conflict detection.
func (s *Store) Update(ctx context.Context, partition, recordID string, fields map[string]any) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	if err := (store.Query{Partition: partition}).Validate(); err != nil {
		return store.Record{}, err
	}

	s.mu.Lock()
	existing, ok := s.records[partition][recordID]
	if !ok {
		s.mu.Unlock()
		return store.Record{}, store.ErrNotFound
	}
	updated := existing.Clone()
	if updated.Fields == nil {
		updated.Fields = make(map[string]any)
	}
	for key, value := range fields {
		updated.Fields[key] = value
	}
	updated.UpdatedAt = s.clock().UTC()
	s.records[partition][recordID] = updated
	s.versions[partition]++
	deliveries := s.pendingDeliveriesLocked(partition)
	s.mu.Unlock()

	dispatch(deliveries)
	return updated.Clone(), nil
}

// Delete removes a record. The caller is responsible for any prior
// confirmation flow.
func (s *Store) Delete(ctx context.Context, partition, recordID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := (store.Query{Partition: partition}).Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.records[partition][recordID]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.records[partition], recordID)
	s.versions[partition]++
	deliveries := s.pendingDeliveriesLocked(partition)
	s.mu.Unlock()

	dispatch(deliveries)
	return nil
}

// Version returns the current version of a partition.
func (s *Store) Version(partition string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[partition]
}

// Subscribe opens a live query. The initial snapshot is delivered before
// Subscribe returns; later snapshots follow each mutation of the partition.
func (s *Store) Subscribe(ctx context.Context, q store.Query, fn store.SnapshotFunc, errFn store.ErrFunc) (store.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, store.ErrUnavailable
	}

	sub := &subscriber{query: q, fn: fn}

	s.mu.Lock()
	subID := s.nextSubID
	s.nextSubID++
	s.subscribers[subID] = sub
	initial := store.Snapshot{
		Partition: q.Partition,
		Version:   s.versions[q.Partition],
		Records:   s.collectLocked(q),
	}
	s.mu.Unlock()

	sub.deliver(initial)

	cancel := func() {
		sub.close()
		s.mu.Lock()
		delete(s.subscribers, subID)
		s.mu.Unlock()
	}
	return cancel, nil
}

type delivery struct {
	sub      *subscriber
	snapshot store.Snapshot
}

// pendingDeliveriesLocked captures the post-mutation snapshot for every
// subscriber of the partition. Snapshots are computed under the store lock
// and delivered after it is released, so callbacks may call back into the
// store.
func (s *Store) pendingDeliveriesLocked(partition string) []delivery {
	var deliveries []delivery
	for _, sub := range s.subscribers {
		if sub.query.Partition != partition {
			continue
		}
		deliveries = append(deliveries, delivery{
			sub: sub,
			snapshot: store.Snapshot{
				Partition: partition,
				Version:   s.versions[partition],
				Records:   s.collectLocked(sub.query),
			},
		})
	}
	return deliveries
}

func dispatch(deliveries []delivery) {
	for _, d := range deliveries {
		d.sub.deliver(d.snapshot)
	}
}
