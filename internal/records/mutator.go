// Package records issues writes against record partitions and reconciles
// optimistic local effects with authoritative snapshots.
package records

import (
	"context"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
	"github.com/myunifiles/unifiles/internal/store"
)

// Mutator is a write-through facade over a store backend. It does not apply
// local optimism itself; callers that want it compose an Overlay with the
// snapshots of a live subscription on the same partition.
//
// Update replaces the supplied fields wholesale. Concurrent edits by two
// sessions are last-write-wins with no conflict detection.
type Mutator struct {
	backend store.Mutator
}

// NewMutator wraps a store backend.
func NewMutator(backend store.Mutator) *Mutator {
	return &Mutator{backend: backend}
}

// Create inserts a record into the partition.
func (m *Mutator) Create(ctx context.Context, partition string, fields map[string]any) (store.Record, error) {
	if partition == "" {
		return store.Record{}, apperrors.New(apperrors.CodeEmptyPartition, "partition is required")
	}
	rec, err := m.backend.Create(ctx, partition, fields)
	if err != nil {
		return store.Record{}, mutationError("create record", err)
	}
	return rec, nil
}

// Update merges the supplied fields into an existing record.
func (m *Mutator) Update(ctx context.Context, partition, recordID string, fields map[string]any) (store.Record, error) {
	if partition == "" {
		return store.Record{}, apperrors.New(apperrors.CodeEmptyPartition, "partition is required")
	}
	if recordID == "" {
		return store.Record{}, apperrors.New(apperrors.CodeEmptyRecordID, "record id is required")
	}
	rec, err := m.backend.Update(ctx, partition, recordID, fields)
	if err != nil {
		return store.Record{}, mutationError("update record", err)
	}
	return rec, nil
}

// Delete removes a record. Callers are expected to have confirmed the
// removal before reaching this point.
func (m *Mutator) Delete(ctx context.Context, partition, recordID string) error {
	if partition == "" {
		return apperrors.New(apperrors.CodeEmptyPartition, "partition is required")
	}
	if recordID == "" {
		return apperrors.New(apperrors.CodeEmptyRecordID, "record id is required")
	}
	if err := m.backend.Delete(ctx, partition, recordID); err != nil {
		return mutationError("delete record", err)
	}
	return nil
}

// mutationError keeps backend taxonomy codes intact and folds everything
// else into a store availability failure.
func mutationError(msg string, err error) error {
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		return err
	}
	return apperrors.Wrap(apperrors.CodeStoreUnavailable, msg, err)
}
