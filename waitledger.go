package hostrpc

import (
	"sync"
)

// waitResult is what a registered WaitLedger waiter eventually receives:
// the header the matching frame actually arrived at (which may be narrower
// than the one registered for) and its body.
type waitResult struct {
	header VarHeader
	body   []byte
}

// waitSlot is a single-waiter registration: a buffered channel of capacity
// 1 so Wake never blocks. Identity comparison (see Wait's cancel closure)
// makes deregistration safe against a Wake racing a Cancel.
type waitSlot struct {
	ch chan waitResult
}

// waitEntry pairs a registered header with its slot.
type waitEntry struct {
	header VarHeader
	slot   *waitSlot
}

// WaitLedger matches an in-flight VarHeader against arriving frames, waking
// the single waiter registered for it (spec §4.B). Matching honours
// width-normalized header equality (VarHeader.Equal): a registration made
// at the client's current key width and a frame observed at a narrower
// width must still match over the narrower of the two. Go map keys can't
// express that directly, so entries are kept in a slice and matched with a
// linear scan, the same shape SubscriptionTable already uses for its own
// width-normalized topic lookup.
//
// Grounded on session.go's streams map[uint32]*stream guarded by
// streamLock, generalized from an exact uint32 stream-id key to a
// width-normalized VarHeader comparison, and on streamClosed's
// delete-under-lock pattern for waiter cancellation.
type WaitLedger struct {
	mu      sync.Mutex
	waiters []waitEntry
	closed  bool
}

// NewWaitLedger returns an empty, open ledger.
func NewWaitLedger() *WaitLedger {
	return &WaitLedger{}
}

// WakeOutcome reports what Wake did with a payload.
type WakeOutcome int

const (
	// Woke means a registered waiter received the payload.
	Woke WakeOutcome = iota
	// NoMatch means no waiter was registered for the header; the payload
	// was not delivered and stays with the caller.
	NoMatch
	// Closed means the ledger itself has been shut down.
	Closed
)

// Wait registers h and returns a function to block for the matching frame
// plus a cancel function. Calling cancel after a call completes (or to
// abandon it) deregisters h so a later frame at the same (key,seq) cannot
// be delivered to a stale waiter (spec §5 "Cancellation").
//
// Wait itself does not block; the returned recv function does. This split
// lets callers register two waiters (ok/err) before racing them, as spec
// §4.D step 5 requires.
func (w *WaitLedger) Wait(h VarHeader) (recv func() (VarHeader, []byte, bool), cancel func(), err error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, nil, errLedgerClosed
	}
	for i := range w.waiters {
		if w.waiters[i].header.Equal(h) {
			w.mu.Unlock()
			return nil, nil, errDuplicateWaiter
		}
	}
	slot := &waitSlot{ch: make(chan waitResult, 1)}
	w.waiters = append(w.waiters, waitEntry{header: h, slot: slot})
	w.mu.Unlock()

	cancel = func() {
		w.mu.Lock()
		for i := range w.waiters {
			if w.waiters[i].slot == slot {
				w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
				break
			}
		}
		w.mu.Unlock()
	}

	recv = func() (VarHeader, []byte, bool) {
		r, ok := <-slot.ch
		if !ok {
			return VarHeader{}, nil, false
		}
		return r.header, r.body, true
	}

	return recv, cancel, nil
}

// Wake delivers payload to the waiter registered for h, if any, matching by
// width-normalized header equality so a frame observed at a narrower width
// than its waiter was registered at still matches (spec §3 Invariant 2).
func (w *WaitLedger) Wake(h VarHeader, payload []byte) WakeOutcome {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return Closed
	}
	idx := -1
	for i := range w.waiters {
		if w.waiters[i].header.Equal(h) {
			idx = i
			break
		}
	}
	if idx == -1 {
		w.mu.Unlock()
		return NoMatch
	}
	slot := w.waiters[idx].slot
	w.waiters = append(w.waiters[:idx], w.waiters[idx+1:]...)
	w.mu.Unlock()

	slot.ch <- waitResult{header: h, body: payload}
	return Woke
}

// Close marks the ledger closed and wakes every pending waiter with a
// closed result (spec §3 Invariant 4: active waits resolve to closed).
func (w *WaitLedger) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()

	for _, e := range waiters {
		close(e.slot.ch)
	}
}
