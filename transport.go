package hostrpc

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"
	"github.com/sagernet/sing/common/bufio"
)

// WireTx transmits a fully serialized frame. Implementations should
// complete only once the frame has actually left the process, and must
// treat every error as fatal (spec §6).
type WireTx interface {
	Send(frameBytes []byte) error
}

// WireRx receives exactly one framed message's bytes. Every error is fatal
// (spec §6).
type WireRx interface {
	Recv() ([]byte, error)
}

// WireSpawn launches a detached task on the host executor (spec §6). The
// default is simply `go task()`, grounded on session.go's direct
// `go s.recvLoop()` / `go s.sendLoop()` calls in newSession.
type WireSpawn interface {
	Spawn(task func())
}

// GoSpawn is the trivial WireSpawn backed by a goroutine.
type GoSpawn struct{}

// Spawn launches task in a new goroutine.
func (GoSpawn) Spawn(task func()) { go task() }

// RunTxWorker drains wire.Outgoing and sends each frame via tx until the
// channel closes or tx.Send fails. A transport error is fatal: it stops
// stopper so every clone and the rx worker observe shutdown (spec §7 tier
// 1 "Fatal I/O").
//
// Grounded on session.go's sendLoop: a single goroutine owns the
// connection's write side and treats any write error as terminal.
func RunTxWorker(wire *WireContext, tx WireTx, stopper *Stopper) {
	for {
		select {
		case frame, ok := <-wire.Outgoing:
			if !ok {
				return
			}
			if err := tx.Send(frame.Bytes()); err != nil {
				stopper.Stop()
				return
			}
		case <-stopper.Done():
			return
		}
	}
}

// RunRxWorker repeatedly receives frames via rx, decodes their header — key
// width is read off the wire's own self-describing tag, never assumed from
// the context's current policy — and hands them to the HostContext's wait
// ledger, falling back to subs for topic delivery when no waiter matched.
// Any rx.Recv error is fatal (spec §7 tier 1).
//
// Every decoded frame narrows the context's key-width policy if its
// observed width is narrower than the policy currently holds (spec §3
// Invariant 2, §4.D step 7: "observing a peer frame at narrower width").
// This is what makes key-width negotiation actually reachable from a real
// peer: the wire tag, not the receiver's own belief about the width, is the
// source of truth for what width a given frame arrived at.
//
// Grounded on session.go's recvLoop: a single goroutine owns the
// connection's read side, dispatching each parsed frame by header.
func RunRxWorker(wire *WireContext, rx WireRx, subs *SubscriptionTable, seqKind VarSeqKind, stopper *Stopper) {
	for {
		data, err := rx.Recv()
		if err != nil {
			stopper.Stop()
			return
		}

		hdr, body, ok := DecodeHeader(data, seqKind)
		if !ok {
			continue
		}
		wire.Ctx.keyWidth.Narrow(hdr.Key.Kind())
		frame := RpcFrame{Header: hdr, Body: body}

		woke, perr := wire.Ctx.Process(frame)
		if perr != nil {
			return
		}
		if woke {
			continue
		}

		switch subs.Route(frame) {
		case Delivered:
		case DroppedNoSubscriber:
			wire.Ctx.droppedNoConsumer.Add(1)
		case DroppedFull:
			wire.Ctx.droppedSubscriptionFull.Add(1)
		}

		select {
		case <-stopper.Done():
			return
		default:
		}
	}
}

// lengthPrefixedTx/Rx implement a trivial 4-byte big-endian length-prefixed
// framing over an io.ReadWriteCloser, used only by NewLoopback for this
// repo's own tests and examples (spec §6's framing details are the
// transport's problem; this is not a production driver). The length-prefix
// idea is simplified from hayabusa-cloud-framer's variable-length-prefix
// wire format comment in framer.go.
const maxLoopbackFrame = 1 << 20

type lengthPrefixedTx struct {
	w io.Writer
}

func (t *lengthPrefixedTx) Send(frameBytes []byte) error {
	if len(frameBytes) > maxLoopbackFrame {
		return errors.New("hostrpc: loopback frame too large")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frameBytes)))

	if bw, ok := bufio.CreateVectorisedWriter(t.w); ok {
		_, err := bufio.WriteVectorised(bw, [][]byte{lenBuf[:], frameBytes})
		return err
	}
	if _, err := t.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := t.w.Write(frameBytes)
	return err
}

type lengthPrefixedRx struct {
	r io.Reader
}

func (r *lengthPrefixedRx) Recv() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxLoopbackFrame {
		return nil, errors.New("hostrpc: loopback frame too large")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// LoopbackEnd is one side of a NewLoopback pair.
type LoopbackEnd struct {
	Tx WireTx
	Rx WireRx
}

// NewLoopback returns two connected LoopbackEnds over a net.Pipe, purely as
// test/example scaffolding for driving the tx/rx worker loops without a
// real USB or serial driver (spec §1: concrete transport drivers are out
// of scope for the core; this is not one).
func NewLoopback() (a, b LoopbackEnd, closeFn func()) {
	c1, c2 := net.Pipe()
	a = LoopbackEnd{Tx: &lengthPrefixedTx{w: c1}, Rx: &lengthPrefixedRx{r: c1}}
	b = LoopbackEnd{Tx: &lengthPrefixedTx{w: c2}, Rx: &lengthPrefixedRx{r: c2}}
	closeFn = func() {
		_ = c1.Close()
		_ = c2.Close()
	}
	return a, b, closeFn
}
