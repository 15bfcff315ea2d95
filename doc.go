// Package hostrpc is the host-side core of a binary request/response and
// pub/sub framework for talking to resource-constrained peers (e.g.
// microcontrollers) over a byte-oriented transport such as raw bulk USB or
// framed serial.
//
// Design and wire format:
//   - Messages are identified by an 8-byte Key hashed from a (path, schema)
//     pair, so independently compiled peers can agree on message identity
//     without exchanging runtime type descriptors.
//   - A frame on the wire is header bytes followed by body bytes. The
//     header is a 1-byte key-width tag, then a VarKey (1, 2, 4, or 8 bytes,
//     narrowing only, by mutual agreement with the peer), then a VarSeq
//     (1, 2, or 4 bytes, fixed by configuration).
//   - HostClient correlates responses to outstanding requests by
//     (key, seq) via a WaitLedger, and demultiplexes one-way topic traffic
//     into per-topic queues via a SubscriptionTable.
//   - A HostClient may be freely cloned; clones share one HostContext, one
//     outbound channel, one subscription table, and one shutdown signal.
//     Closing any clone closes all of them.
//
// This package owns the client-side ledger and demultiplexer only. Concrete
// transport drivers (USB bulk, serial framing), the peer-side dispatch
// table, and the code generation that produces Endpoint/Topic marker types
// on both ends are external collaborators; see WireTx, WireRx, and
// WireSpawn for the contract a transport must satisfy, and NewLoopback for
// minimal in-memory scaffolding used by this package's own tests.
package hostrpc
