// Package dispatch owns the outstanding-prefix set, the connected
// worker gate, and watermark advancement: the bridge between the
// enumerator's production of base prefixes and the session layer's
// delivery of them to workers.
package dispatch

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/skifli/bruty/pkg/alphabet"
	"github.com/skifli/bruty/pkg/store"
)

// SessionID identifies whichever worker session currently owns a
// dispatched prefix, for attributing results and redispatching on
// disconnect. The session layer supplies its own identifiers.
type SessionID string

// Reconciler is the run's single source of truth for which base
// prefixes are in flight, and advances the persisted watermark as
// prefixes are acknowledged. All methods are safe for concurrent use;
// internally it serializes state changes with a mutex rather than
// requiring callers to funnel through one goroutine.
type Reconciler struct {
	mu sync.Mutex

	runState       *store.RunStateStore
	startingPrefix string

	ready   chan string        // prefixes from the enumerator awaiting first dispatch
	redo    *list.List         // prefixes dropped by a session, awaiting redispatch, FIFO
	owner   map[string]SessionID // prefix -> current owning session, for prefixes handed to RequestNext
	watermark string
	maxAcked  string // highest prefix ever acknowledged, regardless of order
}

// NewReconciler builds a Reconciler seeded from the persisted state for
// startingPrefix. readyBuffer bounds how far the enumerator may run
// ahead of dispatch (spec.md §4.1 backpressure).
func NewReconciler(ctx context.Context, runState *store.RunStateStore, startingPrefix string, readyBuffer int) (*Reconciler, error) {
	state, err := runState.Load(ctx, startingPrefix)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load run state: %w", err)
	}
	if readyBuffer <= 0 {
		readyBuffer = 1
	}
	return &Reconciler{
		runState:       runState,
		startingPrefix: startingPrefix,
		ready:          make(chan string, readyBuffer),
		redo:           list.New(),
		owner:          make(map[string]SessionID),
		watermark:      state.WatermarkPrefix,
		maxAcked:       state.WatermarkPrefix,
	}, nil
}

// Watermark returns the most recently persisted watermark, for seeding
// the enumerator's resume point.
func (r *Reconciler) Watermark() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watermark
}

// Accept implements enumerator.Sink: it blocks until there is room in
// the ready queue, or ctx is done.
func (r *Reconciler) Accept(ctx context.Context, prefix string) error {
	select {
	case r.ready <- prefix:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestNext hands session the next prefix to work: a previously
// dropped prefix awaiting redispatch takes priority over a fresh one,
// since it has been outstanding longer. It blocks until one is
// available or ctx is done.
func (r *Reconciler) RequestNext(ctx context.Context, session SessionID) (string, error) {
	r.mu.Lock()
	if front := r.redo.Front(); front != nil {
		prefix := r.redo.Remove(front).(string)
		r.owner[prefix] = session
		r.mu.Unlock()
		return prefix, nil
	}
	r.mu.Unlock()

	select {
	case prefix := <-r.ready:
		r.mu.Lock()
		r.owner[prefix] = session
		r.mu.Unlock()
		return prefix, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ErrNotOwner is returned when a session submits a result for a prefix
// it was never assigned, or no longer owns (e.g. after it was
// reassigned following a disconnect). Corresponds to
// wire.ErrWrongResultString / wire.ErrNotExpectingResults at the
// protocol layer.
var ErrNotOwner = fmt.Errorf("dispatch: session does not own this prefix")

// Acknowledge records a result for prefix, submitted by session, and
// advances the persisted watermark as far as the outstanding set
// allows. It returns ErrNotOwner if session is not the prefix's
// current owner.
func (r *Reconciler) Acknowledge(ctx context.Context, session SessionID, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owner[prefix]
	if !ok || owner != session {
		return ErrNotOwner
	}
	delete(r.owner, prefix)
	if r.maxAcked == "" || alphabet.Less(r.maxAcked, prefix) {
		r.maxAcked = prefix
	}

	candidate := r.computeWatermark()
	advance := candidate != "" && (r.watermark == "" || alphabet.Less(r.watermark, candidate))
	if !advance {
		return nil
	}
	// mu stays held across the write so two concurrent acknowledgements
	// cannot persist their candidates out of order (W1).
	if err := r.runState.AdvanceWatermark(ctx, r.startingPrefix, candidate); err != nil {
		return fmt.Errorf("dispatch: advance watermark: %w", err)
	}
	r.watermark = candidate
	return nil
}

// OnSessionClose releases every prefix session still owns back onto
// the redispatch queue. The prefix remains outstanding throughout: it
// is never acknowledged and so never lets the watermark pass it.
func (r *Reconciler) OnSessionClose(session SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for prefix, owner := range r.owner {
		if owner != session {
			continue
		}
		delete(r.owner, prefix)
		r.redo.PushBack(prefix)
	}
}

// Outstanding reports the number of prefixes dispatched (to any
// session, including ones awaiting redispatch) but not yet
// acknowledged.
func (r *Reconciler) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owner) + r.redo.Len()
}

// computeWatermark returns the candidate new watermark given the
// current outstanding set and r.maxAcked, or "" if nothing can
// advance. Caller must hold mu.
//
// If prefixes remain outstanding (owner or redo), the candidate is the
// predecessor of the smallest of them: everything before it has now
// been acknowledged, and W2 forbids going further. If nothing remains
// outstanding, every dispatched prefix has been acknowledged, so the
// candidate is the highest prefix ever acknowledged (r.maxAcked) —
// not necessarily the prefix just acknowledged, since an
// out-of-order ack can remove a larger prefix from owner earlier,
// leaving no trace of it once outstanding drains to empty.
func (r *Reconciler) computeWatermark() string {
	minOutstanding := ""
	for prefix := range r.owner {
		if minOutstanding == "" || alphabet.Less(prefix, minOutstanding) {
			minOutstanding = prefix
		}
	}
	for e := r.redo.Front(); e != nil; e = e.Next() {
		prefix := e.Value.(string)
		if minOutstanding == "" || alphabet.Less(prefix, minOutstanding) {
			minOutstanding = prefix
		}
	}

	if minOutstanding == "" {
		return r.maxAcked
	}

	pred, ok := alphabet.Predecessor(minOutstanding)
	if !ok || !alphabet.HasPrefix(pred, r.startingPrefix) {
		return ""
	}
	return pred
}
