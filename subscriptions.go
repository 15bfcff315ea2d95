package hostrpc

import (
	"sync"
	"sync/atomic"
)

// Logger is the minimal sink HostClient and SubscriptionTable use for
// observability, grounded on wjmboss-stompngo's ParmHandler.SetLogger and
// xtaci-kcptun's plain stdlib-log operational messages.
type Logger interface {
	Warnf(format string, args ...any)
}

// nopLogger discards everything; it is the default when no logger is
// configured.
type nopLogger struct{}

func (nopLogger) Warnf(string, ...any) {}

type subEntry struct {
	key Key
	ch  chan RpcFrame
}

// SubscriptionTable maps a topic Key to the single currently-installed raw
// frame receiver (spec §4.C).
//
// Grounded on the same streamLock-guarded-map idiom as WaitLedger, and on
// wjmboss-stompngo's subs map[string]*subscription + subsLock pattern for
// the "replacing logs a warning" behaviour.
type SubscriptionTable struct {
	mu      sync.Mutex
	entries []subEntry
	stopped bool
	log     Logger
}

// NewSubscriptionTable returns an empty, open table. A nil logger installs
// a no-op logger.
func NewSubscriptionTable(log Logger) *SubscriptionTable {
	if log == nil {
		log = nopLogger{}
	}
	return &SubscriptionTable{log: log}
}

// Install adds (or replaces) the receiver for topicKey with one buffered to
// capacity depth. A replaced receiver's channel is closed so its reader
// observes end-of-stream after draining whatever is already buffered.
func (t *SubscriptionTable) Install(topicKey Key, depth int) (<-chan RpcFrame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil, ErrTopicClosed
	}

	ch := make(chan RpcFrame, depth)
	for i := range t.entries {
		if t.entries[i].key == topicKey {
			old := t.entries[i].ch
			t.entries[i].ch = ch
			t.log.Warnf("hostrpc: replacing subscription for topic key %s", topicKey)
			close(old)
			return ch, nil
		}
	}
	t.entries = append(t.entries, subEntry{key: topicKey, ch: ch})
	return ch, nil
}

// RouteOutcome reports what Route did with a frame.
type RouteOutcome int

const (
	Delivered RouteOutcome = iota
	// DroppedNoSubscriber means no subscription is installed for the
	// frame's key.
	DroppedNoSubscriber
	// DroppedFull means a subscription is installed but its channel has
	// no free capacity (spec §7 tier 3: "a subscription channel overflow
	// drops the frame, not the subscription").
	DroppedFull
)

// Route delivers frame to the subscriber installed for frame.Header.Key, if
// any, without blocking. A full or absent subscriber results in a silent
// drop (spec §4.C, §7 tier 3 "benign drops").
//
// Matching honours width normalization (spec §4.C): topics are always
// installed with their full, unwidened key, so a frame observed at a
// narrower width still matches by comparing only that narrower prefix.
func (t *SubscriptionTable) Route(frame RpcFrame) RouteOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	var target chan RpcFrame
	for i := range t.entries {
		if frame.Header.Key.Matches(t.entries[i].key) {
			target = t.entries[i].ch
			break
		}
	}

	if target == nil {
		return DroppedNoSubscriber
	}
	select {
	case target <- frame:
		return Delivered
	default:
		return DroppedFull
	}
}

// Close stops the table and closes every installed channel so receivers
// observe end-of-stream (spec §3 Invariant 4).
func (t *SubscriptionTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	for i := range t.entries {
		close(t.entries[i].ch)
	}
	t.entries = nil
}

// RawSubscription is a subscription handle that yields undecoded frames.
type RawSubscription struct {
	ch <-chan RpcFrame
}

// Recv returns the next frame, or ok=false once the subscription has ended
// (replaced or the table was closed).
func (s *RawSubscription) Recv() (RpcFrame, bool) {
	f, ok := <-s.ch
	return f, ok
}

// Decoder decodes a wire body into T. It mirrors encoding.BinaryUnmarshaler
// but is implemented as a free function type so message types need not be
// pointer receivers to participate (spec §9 "Polymorphism").
type Decoder[T any] func(body []byte) (T, error)

// Subscription is a subscription handle that decodes each delivered frame
// as T, silently skipping any frame that fails to decode (spec §4.D
// "Subscribe": "a corrupt frame should not terminate a subscriber").
type Subscription[T any] struct {
	raw     RawSubscription
	decode  Decoder[T]
	skipped *atomic.Uint64
}

// Recv returns the next successfully-decoded message, or ok=false once the
// subscription has ended.
func (s *Subscription[T]) Recv() (T, bool) {
	for {
		frame, ok := s.raw.Recv()
		if !ok {
			var zero T
			return zero, false
		}
		msg, err := s.decode(frame.Body)
		if err != nil {
			if s.skipped != nil {
				s.skipped.Add(1)
			}
			continue
		}
		return msg, true
	}
}
