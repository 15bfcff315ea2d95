package hostrpc

import "sync"

// Stopper is a one-shot, multi-producer, multi-consumer, edge-triggered
// shutdown signal shared by every clone of a HostClient and by its worker
// goroutines (spec §4.A).
//
// Grounded on session.go's die/dieOnce/IsClosed/CloseChan quartet.
type Stopper struct {
	once sync.Once
	done chan struct{}
}

// NewStopper returns a Stopper that has not yet fired.
func NewStopper() *Stopper {
	return &Stopper{done: make(chan struct{})}
}

// Stop transitions the stopper to stopped and wakes all waiters. Idempotent.
func (s *Stopper) Stop() {
	s.once.Do(func() {
		close(s.done)
	})
}

// IsStopped reports whether Stop has already been called.
func (s *Stopper) IsStopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once Stop has been called.
// Resolves immediately if already stopped, matching spec's
// "wait_stopped() -> future<()>" semantics.
func (s *Stopper) Done() <-chan struct{} {
	return s.done
}
