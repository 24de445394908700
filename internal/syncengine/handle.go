package syncengine

import (
	"sync"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
	"github.com/myunifiles/unifiles/internal/store"
)

// State is a subscription's lifecycle position.
type State int

const (
	// StateSubscribing means the initial handshake has not completed.
	StateSubscribing State = iota
	// StateLive means snapshots are flowing.
	StateLive
	// StateError means the transport failed unrecoverably; only
	// Unsubscribe remains.
	StateError
	// StateClosed means the subscription was torn down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handle is one live subscription. It delivers snapshots in strictly
// increasing version order and guarantees zero callback invocations after
// Unsubscribe returns.
type Handle struct {
	query store.Query
	fn    store.SnapshotFunc
	errFn store.ErrFunc

	mu          sync.Mutex
	state       State
	lastVersion int64
	cancel      store.CancelFunc
}

func newHandle(q store.Query, fn store.SnapshotFunc, errFn store.ErrFunc) *Handle {
	return &Handle{
		query: q,
		fn:    fn,
		errFn: errFn,
		state: StateSubscribing,
		// Sentinel below any real version so the initial snapshot of an
		// empty partition (version 0) is delivered.
		lastVersion: -1,
	}
}

// Query returns the filter this handle was opened with.
func (h *Handle) Query() store.Query {
	return h.query
}

// State returns the handle's lifecycle position.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastVersion returns the version of the last delivered snapshot, or -1
// when nothing was delivered yet.
func (h *Handle) LastVersion() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastVersion
}

// Unsubscribe tears the subscription down. After it returns the callback
// is never invoked again, even if the underlying teardown is still in
// flight.
func (h *Handle) Unsubscribe() {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return
	}
	h.state = StateClosed
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	// Release the transport outside the handle lock: underlying delivery
	// may be blocked on it, and drops once it observes the closed state.
	if cancel != nil {
		cancel()
	}
}

// onSnapshot filters the transport's pushes down to a monotonic sequence.
// Delivery happens under the handle lock, serializing it against
// Unsubscribe.
func (h *Handle) onSnapshot(snapshot store.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateSubscribing && h.state != StateLive {
		return
	}
	if snapshot.Version <= h.lastVersion {
		// Stale or duplicate push from the transport.
		return
	}
	h.lastVersion = snapshot.Version
	h.state = StateLive
	h.fn(snapshot)
}

// onError moves the handle to its error state and surfaces the failure to
// this subscription only.
func (h *Handle) onError(err error) {
	h.mu.Lock()
	if h.state == StateClosed || h.state == StateError {
		h.mu.Unlock()
		return
	}
	h.state = StateError
	errFn := h.errFn
	h.mu.Unlock()

	if errFn != nil {
		errFn(apperrors.Wrap(apperrors.CodeSubscriptionError, "live query transport failed", err))
	}
}

// fail marks a handle that never attached, for subscriptions that error
// during the initial handshake.
func (h *Handle) fail() {
	h.mu.Lock()
	h.state = StateError
	h.mu.Unlock()
}

// attach records the transport teardown hook once the handshake completes.
// If Unsubscribe already ran, the transport is released immediately.
func (h *Handle) attach(cancel store.CancelFunc) {
	h.mu.Lock()
	closed := h.state == StateClosed
	if closed {
		h.mu.Unlock()
		cancel()
		return
	}
	if h.state == StateSubscribing {
		h.state = StateLive
	}
	h.cancel = cancel
	h.mu.Unlock()
}
