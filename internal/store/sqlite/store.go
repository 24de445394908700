// Package sqlite implements the record store over a single SQLite file.
// Documents are stored as JSON in a fields column; each mutation bumps the
// owning partition's version so live queries can order snapshots.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/myunifiles/unifiles/internal/platform/id"
	sqlitemigrate "github.com/myunifiles/unifiles/internal/platform/storage/sqlitemigrate"
	"github.com/myunifiles/unifiles/internal/store"
	"github.com/myunifiles/unifiles/internal/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const bumpVersionQuery = `
INSERT INTO partition_versions (partition, version) VALUES (?, 1)
ON CONFLICT (partition) DO UPDATE SET version = version + 1
RETURNING version;
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides a SQLite-backed record store implementing the full store
// interface, including in-process live subscriptions.
type Store struct {
	sqlDB *sql.DB

	subMu       sync.Mutex
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

// Option configures a SQLite store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(idGenerator func() (string, error)) Option {
	return func(s *Store) { s.idGenerator = idGenerator }
}

// Open opens a record store at the provided path and applies bundled
// migrations. This keeps startup and schema evolution in one place.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		sqlDB:       sqlDB,
		subscribers: make(map[int64]*subscriber),
		clock:       time.Now,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get runs a point query against a partition. Predicates are evaluated in
// Go over the decoded documents so equality, array membership, and range
// semantics stay identical across backends.
func (s *Store) Get(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.collect(ctx, q)
}

func (s *Store) collect(ctx context.Context, q store.Query) ([]store.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT id, fields, created_at, updated_at FROM records WHERE partition = ?", q.Partition)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	matched := make([]store.Record, 0)
	for rows.Next() {
		var recordID, rawFields string
		var createdAt, updatedAt int64
		if err := rows.Scan(&recordID, &rawFields, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(rawFields), &fields); err != nil {
			return nil, fmt.Errorf("decode record %s fields: %w", recordID, err)
		}
		if !store.Match(fields, q.Predicates) {
			continue
		}
		matched = append(matched, store.Record{
			ID:        recordID,
			Partition: q.Partition,
			Fields:    fields,
			CreatedAt: fromMillis(createdAt),
			UpdatedAt: fromMillis(updatedAt),
		})
	}
	return matched, rows.Err()
}

// Create inserts a record and notifies live queries on the partition.
func (s *Store) Create(ctx context.Context, partition string, fields map[string]any) (store.Record, error) {
	if err := (store.Query{Partition: partition}).Validate(); err != nil {
		return store.Record{}, err
	}

	recordID, err := s.idGenerator()
	if err != nil {
		return store.Record{}, err
	}
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode record fields: %w", err)
	}

	now := s.clock().UTC()
	var version int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO records (partition, id, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			partition, recordID, string(rawFields), toMillis(now), toMillis(now)); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return tx.QueryRowContext(ctx, bumpVersionQuery, partition).Scan(&version)
	})
	if err != nil {
		return store.Record{}, err
	}

	s.notify(ctx, partition, version)
	return store.Record{
		ID:        recordID,
		Partition: partition,
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Update replaces the supplied fields on an existing record. Fields not
// supplied keep their previous values; concurrent updates are
// last-write-wins with no conflict detection.
func (s *Store) Update(ctx context.Context, partition, recordID string, fields map[string]any) (store.Record, error) {
	if err := (store.Query{Partition: partition}).Validate(); err != nil {
		return store.Record{}, err
	}
	if strings.TrimSpace(recordID) == "" {
		return store.Record{}, store.ErrNotFound
	}

	now := s.clock().UTC()
	var updated store.Record
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var rawFields string
		var createdAt int64
		err := tx.QueryRowContext(ctx,
			"SELECT fields, created_at FROM records WHERE partition = ? AND id = ?",
			partition, recordID).Scan(&rawFields, &createdAt)
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load record: %w", err)
		}

		var merged map[string]any
		if err := json.Unmarshal([]byte(rawFields), &merged); err != nil {
			return fmt.Errorf("decode record %s fields: %w", recordID, err)
		}
		if merged == nil {
			merged = make(map[string]any)
		}
		for key, value := range fields {
			merged[key] = value
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode record fields: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE records SET fields = ?, updated_at = ? WHERE partition = ? AND id = ?",
			string(encoded), toMillis(now), partition, recordID); err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		updated = store.Record{
			ID:        recordID,
			Partition: partition,
			Fields:    merged,
			CreatedAt: fromMillis(createdAt),
			UpdatedAt: now,
		}
		return tx.QueryRowContext(ctx, bumpVersionQuery, partition).Scan(&version)
	})
	if err != nil {
		return store.Record{}, err
	}

	s.notify(ctx, partition, version)
	return updated, nil
}

// Delete removes a record. The caller is responsible for any prior
// confirmation flow.
func (s *Store) Delete(ctx context.Context, partition, recordID string) error {
	if err := (store.Query{Partition: partition}).Validate(); err != nil {
		return err
	}

	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM records WHERE partition = ? AND id = ?", partition, recordID)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		return tx.QueryRowContext(ctx, bumpVersionQuery, partition).Scan(&version)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, partition, version)
	return nil
}

// Version returns the current version of a partition.
func (s *Store) Version(ctx context.Context, partition string) (int64, error) {
	var version int64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT version FROM partition_versions WHERE partition = ?", partition).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read partition version: %w", err)
	}
	return version, nil
}

// Subscribe opens a live query. The initial snapshot is delivered before
// Subscribe returns; later snapshots follow each mutation of the partition.
func (s *Store) Subscribe(ctx context.Context, q store.Query, fn store.SnapshotFunc, errFn store.ErrFunc) (store.CancelFunc, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, store.ErrUnavailable
	}

	version, err := s.Version(ctx, q.Partition)
	if err != nil {
		return nil, err
	}
	records, err := s.collect(ctx, q)
	if err != nil {
		return nil, err
	}

	sub := &subscriber{query: q, fn: fn}

	s.subMu.Lock()
	subID := s.nextSubID
	s.nextSubID++
	s.subscribers[subID] = sub
	s.subMu.Unlock()

	sub.deliver(store.Snapshot{Partition: q.Partition, Version: version, Records: records})

	cancel := func() {
		sub.close()
		s.subMu.Lock()
		delete(s.subscribers, subID)
		s.subMu.Unlock()
	}
	return cancel, nil
}

// notify recomputes and pushes snapshots for every live query on the
// partition after a committed mutation.
func (s *Store) notify(ctx context.Context, partition string, version int64) {
	s.subMu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if sub.query.Partition == partition {
			subs = append(subs, sub)
		}
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		records, err := s.collect(ctx, sub.query)
		if err != nil {
			continue
		}
		sub.deliver(store.Snapshot{Partition: partition, Version: version, Records: records})
	}
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
