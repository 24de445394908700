package records

import (
	"sync"

	"github.com/myunifiles/unifiles/internal/store"
)

type opKind int

const (
	opPut opKind = iota
	opDelete
)

type pendingOp struct {
	kind        opKind
	record      store.Record
	baseVersion int64
}

// Overlay holds optimistic local writes keyed by record ID until a snapshot
// strictly newer than the write's base version supersedes them. Cached
// records are never mutated in place; Apply composes a fresh result set.
//
// The base version of a staged op is the version of the last snapshot the
// caller had seen when it issued the write. A snapshot with a strictly
// greater version reflects the write (or a competing one) and clears the op.
type Overlay struct {
	mu  sync.Mutex
	ops map[string]pendingOp
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{ops: make(map[string]pendingOp)}
}

// StagePut records an optimistic create or update of rec.
func (o *Overlay) StagePut(rec store.Record, baseVersion int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops[rec.ID] = pendingOp{kind: opPut, record: rec.Clone(), baseVersion: baseVersion}
}

// StageDelete records an optimistic removal of the record.
func (o *Overlay) StageDelete(recordID string, baseVersion int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops[recordID] = pendingOp{kind: opDelete, baseVersion: baseVersion}
}

// Pending reports how many staged ops have not yet been superseded.
func (o *Overlay) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ops)
}

// Clear drops all staged ops.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = make(map[string]pendingOp)
}

// Apply composes the authoritative snapshot with the staged ops that it does
// not yet reflect and returns the combined result set. Ops whose base version
// is older than the snapshot are superseded and discarded; the rest shadow
// the snapshot's records.
func (o *Overlay) Apply(snapshot store.Snapshot) []store.Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, op := range o.ops {
		if op.baseVersion < snapshot.Version {
			delete(o.ops, id)
		}
	}

	result := make([]store.Record, 0, len(snapshot.Records)+len(o.ops))
	seen := make(map[string]bool, len(snapshot.Records))
	for _, rec := range snapshot.Records {
		seen[rec.ID] = true
		op, ok := o.ops[rec.ID]
		if !ok {
			result = append(result, rec.Clone())
			continue
		}
		switch op.kind {
		case opPut:
			result = append(result, op.record.Clone())
		case opDelete:
			// shadowed until the authoritative delete lands
		}
	}
	for _, op := range o.ops {
		if op.kind != opPut || seen[op.record.ID] {
			continue
		}
		result = append(result, op.record.Clone())
	}
	return result
}
