package store

import (
	"context"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeRecordNotFound, "record not found")

// ErrUnavailable indicates the store backend could not be reached.
var ErrUnavailable = apperrors.New(apperrors.CodeStoreUnavailable, "record store unavailable")

// Query scopes a read or subscription to one partition with optional
// predicates. Predicates are combined with AND.
type Query struct {
	Partition  string      `json:"partition"`
	Predicates []Predicate `json:"predicates,omitempty"`
}

// Validate reports whether the query is well formed.
func (q Query) Validate() error {
	if q.Partition == "" {
		return apperrors.New(apperrors.CodeEmptyPartition, "partition is required")
	}
	for _, predicate := range q.Predicates {
		if err := predicate.Validate(); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidPredicate, "invalid predicate", err)
		}
	}
	return nil
}

// SnapshotFunc receives full-result-set snapshots for a live query.
type SnapshotFunc func(Snapshot)

// ErrFunc receives an unrecoverable subscription transport failure.
type ErrFunc func(error)

// CancelFunc tears down a live subscription. After it returns, the
// subscription's callbacks are never invoked again.
type CancelFunc func()

// Querier runs point queries against a partition.
type Querier interface {
	Get(ctx context.Context, q Query) ([]Record, error)
}

// Mutator issues writes against a partition.
type Mutator interface {
	Create(ctx context.Context, partition string, fields map[string]any) (Record, error)
	Update(ctx context.Context, partition, recordID string, fields map[string]any) (Record, error)
	Delete(ctx context.Context, partition, recordID string) error
}

// Watcher opens live queries. Implementations deliver an initial snapshot
// before Subscribe returns, then one snapshot per relevant mutation. Delivery
// order across the transport is not guaranteed; callers that need monotonic
// versions layer the sync engine on top.
type Watcher interface {
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc, errFn ErrFunc) (CancelFunc, error)
}

// Store is the full consumed interface of a record store backend.
type Store interface {
	Querier
	Mutator
	Watcher
}
