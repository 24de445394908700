// Package syncengine turns a record store's push channel into ordered,
// deduplicated view-state sequences. It owns subscription lifecycle: one
// live handle per view, torn down when the view goes away or its filter
// changes.
package syncengine

import (
	"context"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
	"github.com/myunifiles/unifiles/internal/store"
)

// Engine manages live subscriptions over a record store watcher. Multiple
// concurrent subscriptions are independent; there is no cross-subscription
// consistency guarantee.
type Engine struct {
	watcher store.Watcher
}

// New creates an Engine over a record store watcher.
func New(watcher store.Watcher) *Engine {
	return &Engine{watcher: watcher}
}

// Subscribe opens a live query and returns its handle. Snapshots reach fn
// in strictly increasing version order; out-of-order or duplicate pushes
// from the transport are dropped as stale. errFn, when set, receives the
// unrecoverable transport failure that moved the handle to its error state.
func (e *Engine) Subscribe(ctx context.Context, q store.Query, fn store.SnapshotFunc, errFn store.ErrFunc) (*Handle, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, apperrors.New(apperrors.CodeSubscriptionError, "snapshot callback is required")
	}

	h := newHandle(q, fn, errFn)
	cancel, err := e.watcher.Subscribe(ctx, q, h.onSnapshot, h.onError)
	if err != nil {
		h.fail()
		return nil, apperrors.Wrap(apperrors.CodeSubscriptionError, "open live query", err)
	}
	h.attach(cancel)
	return h, nil
}

// Resubscribe replaces a handle whose filter parameters changed. The old
// handle is torn down and a fresh one created; filters are never mutated in
// place.
func (e *Engine) Resubscribe(ctx context.Context, h *Handle, q store.Query) (*Handle, error) {
	h.Unsubscribe()
	return e.Subscribe(ctx, q, h.fn, h.errFn)
}
