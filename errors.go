package hostrpc

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for internal, non-generic conditions. Grounded on
// session.go's sentinel-var-block style (ErrInvalidProtocol, ErrGoAway, ...).
var (
	errLedgerClosed    = stderrors.New("hostrpc: wait ledger closed")
	errDuplicateWaiter = stderrors.New("hostrpc: duplicate waiter registration for header")

	// ErrClosed is returned by every operation attempted after the
	// HostClient has been closed (spec §3 Invariant 4, §6 error table).
	ErrClosed = stderrors.New("hostrpc: client closed")

	// ErrTopicClosed is returned by install attempts on a closed
	// SubscriptionTable (spec §4.C).
	ErrTopicClosed = stderrors.New("hostrpc: subscription table closed")
)

// HostErrKind enumerates the closed set of request/response error kinds
// from spec §6.
type HostErrKind int

const (
	// KindWire means a frame was received on the error-key channel and
	// its body decoded as the wire-error type.
	KindWire HostErrKind = iota
	// KindBadResponse means the error-key branch of a request/response
	// matched, but its body could not be decoded as the configured
	// wire-error type — the peer answered with something shaped like an
	// error frame that this client's WireErr codec can't make sense of.
	KindBadResponse
	// KindDecodeFailure means the response body could not be decoded as
	// the declared type, or SendResp could not encode the request body.
	KindDecodeFailure
	// KindClosed means the stopper fired or the outbound channel closed.
	KindClosed
)

func (k HostErrKind) String() string {
	switch k {
	case KindWire:
		return "Wire"
	case KindBadResponse:
		return "BadResponse"
	case KindDecodeFailure:
		return "DecodeFailure"
	case KindClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// HostErr is the error type surfaced by HostClient's request/response
// operations; Publish and PublishRaw return ErrClosed or the encoder's error
// directly. It wraps an optional inner error (e.g. the decoded
// wire-error value, or a codec failure) and always reports a fixed Kind.
type HostErr struct {
	Kind  HostErrKind
	inner error
}

func (e *HostErr) Error() string {
	if e.inner != nil {
		return fmt.Sprintf("hostrpc: %s: %v", e.Kind, e.inner)
	}
	return fmt.Sprintf("hostrpc: %s", e.Kind)
}

// Unwrap exposes the wrapped error so callers can use errors.Is/As, e.g.
// to recover the peer's decoded wire-error value from a KindWire HostErr.
func (e *HostErr) Unwrap() error { return e.inner }

func wireErr(inner error) *HostErr {
	return &HostErr{Kind: KindWire, inner: inner}
}

// wireValue boxes a decoded WireErr payload of any type as an error, so it
// can travel as HostErr's inner error and be recovered later with AsWireErr
// without HostErr itself needing to be generic.
type wireValue[T any] struct {
	value T
}

func (w wireValue[T]) Error() string { return fmt.Sprintf("%+v", w.value) }

// AsWireErr recovers the peer's decoded wire-error value from a HostErr of
// Kind KindWire, mirroring errors.As but for the boxed generic payload.
func AsWireErr[T any](err error) (T, bool) {
	var zero T
	he, ok := err.(*HostErr)
	if !ok || he.Kind != KindWire {
		return zero, false
	}
	wv, ok := he.inner.(wireValue[T])
	if !ok {
		return zero, false
	}
	return wv.value, true
}

func badResponseErr(inner error) *HostErr {
	return &HostErr{Kind: KindBadResponse, inner: errors.Wrap(inner, "bad response")}
}

func decodeFailureErr(inner error) *HostErr {
	return &HostErr{Kind: KindDecodeFailure, inner: errors.Wrap(inner, "decode")}
}

func closedErr() *HostErr {
	return &HostErr{Kind: KindClosed, inner: ErrClosed}
}

// SchemaErrKind enumerates SchemaCollector's failure modes (spec §4.E, §6).
type SchemaErrKind int

const (
	SchemaErrComms SchemaErrKind = iota
	SchemaErrTask
	SchemaErrInvalidReportData
	SchemaErrLostData
)

func (k SchemaErrKind) String() string {
	switch k {
	case SchemaErrComms:
		return "Comms"
	case SchemaErrTask:
		return "TaskError"
	case SchemaErrInvalidReportData:
		return "InvalidReportData"
	default:
		return "LostData"
	}
}

// SchemaErr is returned by HostClient.GetSchemaReport.
type SchemaErr struct {
	Kind  SchemaErrKind
	inner error
}

func (e *SchemaErr) Error() string {
	if e.inner != nil {
		return fmt.Sprintf("hostrpc: schema %s: %v", e.Kind, e.inner)
	}
	return fmt.Sprintf("hostrpc: schema %s", e.Kind)
}

func (e *SchemaErr) Unwrap() error { return e.inner }

func commsErr(inner error) *SchemaErr {
	return &SchemaErr{Kind: SchemaErrComms, inner: errors.Wrap(inner, "comms")}
}

func taskErr() *SchemaErr {
	return &SchemaErr{Kind: SchemaErrTask}
}

func invalidReportDataErr() *SchemaErr {
	return &SchemaErr{Kind: SchemaErrInvalidReportData}
}

func lostDataErr() *SchemaErr {
	return &SchemaErr{Kind: SchemaErrLostData}
}
