package hostrpc

import (
	"context"
	"encoding"
	"sync/atomic"
)

// Endpoint identifies a named request/response pair sharing a path, with
// distinct request and response keys (spec GLOSSARY). Code generation that
// would normally produce these marker types is out of scope (spec §1); use
// NewEndpoint to build one by hand.
type Endpoint interface {
	Path() string
	ReqKey() Key
	RespKey() Key
}

// Topic identifies a named, directional one-way stream with a single key
// (spec GLOSSARY). Use NewTopic to build one by hand.
type Topic interface {
	Path() string
	TopicKey() Key
}

type endpointImpl struct {
	path            string
	reqKey, respKey Key
}

func (e endpointImpl) Path() string { return e.path }
func (e endpointImpl) ReqKey() Key  { return e.reqKey }
func (e endpointImpl) RespKey() Key { return e.respKey }

// NewEndpoint builds an Endpoint from an explicit path and pre-computed
// request/response keys, standing in for the code-generated marker types
// the original framework produces from macros (out of scope here).
func NewEndpoint(path string, reqKey, respKey Key) Endpoint {
	return endpointImpl{path: path, reqKey: reqKey, respKey: respKey}
}

type topicImpl struct {
	path string
	key  Key
}

func (t topicImpl) Path() string  { return t.path }
func (t topicImpl) TopicKey() Key { return t.key }

// NewTopic builds a Topic from an explicit path and pre-computed key.
func NewTopic(path string, key Key) Topic {
	return topicImpl{path: path, key: key}
}

// binaryUnmarshalerPtr is satisfied by *T when T implements
// encoding.BinaryUnmarshaler, letting generic decode helpers construct a
// zero T and unmarshal into it without reflection (spec §9 "Polymorphism":
// "parametric polymorphism plus compile-time constants").
type binaryUnmarshalerPtr[T any] interface {
	*T
	encoding.BinaryUnmarshaler
}

// HostContext is the state shared by every clone of a HostClient and by its
// rx worker goroutine (spec §3 HostContext, §9 "Shared ownership of
// context"). It is never constructed directly by callers.
type HostContext struct {
	keyWidth *keyWidthCell
	ledger   *WaitLedger
	seq      *seqCounter

	droppedNoConsumer       atomic.Uint64
	droppedSubscriptionFull atomic.Uint64
}

// KeyWidth reports the currently negotiated key width.
func (c *HostContext) KeyWidth() VarKeyKind { return c.keyWidth.Load() }

// Process hands an inbound frame to the wait ledger. It reports whether a
// waiter consumed it; RunRxWorker routes the frame to the subscription
// table when it was not. An error return means the ledger has been closed.
func (c *HostContext) Process(frame RpcFrame) (woke bool, err error) {
	switch c.ledger.Wake(frame.Header, frame.Body) {
	case Woke:
		return true, nil
	case NoMatch:
		return false, nil
	default:
		return false, errLedgerClosed
	}
}

// DroppedNoConsumer returns the count of inbound frames dropped because no
// ledger waiter or subscriber matched their header (spec §7 tier 3).
func (c *HostContext) DroppedNoConsumer() uint64 { return c.droppedNoConsumer.Load() }

// DroppedSubscriptionFull returns the count of inbound frames dropped
// because a matching subscription's channel was full (spec §7 tier 3).
func (c *HostContext) DroppedSubscriptionFull() uint64 { return c.droppedSubscriptionFull.Load() }

// WireContext bundles what a transport needs to drive the core: the
// outbound frame stream to send, and the shared context to feed inbound
// frames into (spec §3 "Lifecycle", §6 "The core provides to the transport
// a WireContext").
type WireContext struct {
	Outgoing <-chan RpcFrame
	Ctx      *HostContext
}

// Config configures a HostClient constructor (spec §6 "Configuration").
type Config struct {
	// ErrURIPath derives the error key via the configured KeyHasher.
	ErrURIPath string
	// OutgoingDepth bounds the outbound channel.
	OutgoingDepth int
	// SeqKind is the wire width used for outbound sequence numbers.
	SeqKind VarSeqKind
	// Logger receives observability warnings (subscription replacement).
	// Defaults to a no-op logger.
	Logger Logger
	// KeyHasher derives Key values from (path, TypeDescriptor) pairs, used
	// for the error key and by the schema collector. Defaults to
	// DefaultKeyHasher.
	KeyHasher KeyHasher
}

// Option mutates a Config at construction time, grounded on the
// struct-of-options idiom session.go's *Config parameter follows.
type Option func(*Config)

// WithLogger overrides the default no-op Logger.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithKeyHasher overrides DefaultKeyHasher.
func WithKeyHasher(h KeyHasher) Option {
	return func(c *Config) { c.KeyHasher = h }
}

// HostClient is the public facade: it issues requests, publishes, and
// subscribes, and owns the outbound channel (spec §4.D). HostClient is
// generic over the wire-error type only (spec §9 "Polymorphism").
//
// Grounded on session.go's Session/Stream sharing-one-session-many-wrappers
// ownership model, mapped onto many HostClients sharing one HostContext.
type HostClient[WireErr any] struct {
	ctx     *HostContext
	out     chan RpcFrame
	subs    *SubscriptionTable
	errKey  Key
	stopper *Stopper
	seqKind VarSeqKind
	hasher  KeyHasher
	log     Logger
}

// New constructs a HostClient and its paired WireContext. The WireContext
// is consumed by transport setup to spawn tx/rx workers (spec §3
// "Lifecycle").
func New[WireErr any](errWireErrType TypeDescriptor, cfg Config, opts ...Option) (*HostClient[WireErr], *WireContext) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.KeyHasher == nil {
		cfg.KeyHasher = DefaultKeyHasher
	}
	if cfg.OutgoingDepth <= 0 {
		cfg.OutgoingDepth = 1
	}

	hctx := &HostContext{
		keyWidth: newKeyWidthCell(),
		ledger:   NewWaitLedger(),
		seq:      &seqCounter{},
	}

	out := make(chan RpcFrame, cfg.OutgoingDepth)

	client := &HostClient[WireErr]{
		ctx:     hctx,
		out:     out,
		subs:    NewSubscriptionTable(cfg.Logger),
		errKey:  cfg.KeyHasher(cfg.ErrURIPath, errWireErrType),
		stopper: NewStopper(),
		seqKind: cfg.SeqKind,
		hasher:  cfg.KeyHasher,
		log:     cfg.Logger,
	}

	wire := &WireContext{Outgoing: out, Ctx: hctx}
	return client, wire
}

// Clone returns a HostClient sharing the same HostContext, outbound
// channel, subscription table, and stopper (spec §3 Invariant 5: "Closing
// one closes all").
func (c *HostClient[WireErr]) Clone() *HostClient[WireErr] {
	clone := *c
	return &clone
}

// snapshotKeys shrinks reqKey/respKey/errKey to the currently negotiated
// width and resizes seq to the client's configured sequence width (spec
// §4.D step 4).
func (c *HostClient[WireErr]) snapshotKeys(reqKey, respKey Key, seq VarSeq) (kkind VarKeyKind, req, resp, errK VarKey, s VarSeq) {
	kkind = c.ctx.keyWidth.Load()
	req = NewVarKey(reqKey).ShrinkTo(kkind)
	resp = NewVarKey(respKey).ShrinkTo(kkind)
	errK = NewVarKey(c.errKey).ShrinkTo(kkind)
	s = seq.Resize(c.seqKind)
	return
}

// observeWidth narrows the shared key-width policy from a response header's
// actual wire-observed width (hdr.Key.Kind(), decoded off the wire's own
// width tag — see DecodeHeader). RunRxWorker already narrows the policy for
// every inbound frame; this call is a second, harmless narrowing against
// the same monotonic cell, kept so SendRespRaw's width update is visible
// immediately after a response resolves rather than only on the next
// inbound frame.
func (c *HostClient[WireErr]) observeWidth(observed VarKeyKind, snapshot VarKeyKind) {
	if observed.narrower(snapshot) {
		c.ctx.keyWidth.Narrow(observed)
	}
}

// SendRespRaw performs an endpoint request/response without encoding or
// decoding bodies; used for bridging and by the schema collector (spec
// §4.D "Raw request/response"). expectedResponseKey is always the
// full-width response key; SendRespRaw shrinks it internally, matching
// original_source's send_resp_raw.
func (c *HostClient[WireErr]) SendRespRaw(ctx context.Context, req RpcFrame, expectedResponseKey Key, decodeWireErr Decoder[WireErr]) (RpcFrame, error) {
	seqNo := req.Header.Seq
	kkind, reqKey, respKey, errKey, seq := c.snapshotKeys(req.Header.Key.full, expectedResponseKey, seqNo)

	okHeader := VarHeader{Key: respKey, Seq: seq}
	errHeader := VarHeader{Key: errKey, Seq: seq}

	okRecv, okCancel, err := c.ctx.ledger.Wait(okHeader)
	if err != nil {
		return RpcFrame{}, closedErr()
	}
	errRecv, errCancel, err := c.ctx.ledger.Wait(errHeader)
	if err != nil {
		okCancel()
		return RpcFrame{}, closedErr()
	}
	cancelBoth := func() {
		okCancel()
		errCancel()
	}

	frame := RpcFrame{Header: VarHeader{Key: reqKey, Seq: seq}, Body: req.Body}

	select {
	case c.out <- frame:
	case <-c.stopper.Done():
		cancelBoth()
		return RpcFrame{}, closedErr()
	case <-ctx.Done():
		cancelBoth()
		return RpcFrame{}, closedErr()
	}

	type result struct {
		header VarHeader
		body   []byte
		ok     bool
		isOk   bool
	}
	resCh := make(chan result, 2)
	go func() {
		h, b, ok := okRecv()
		resCh <- result{header: h, body: b, ok: ok, isOk: true}
	}()
	go func() {
		h, b, ok := errRecv()
		resCh <- result{header: h, body: b, ok: ok, isOk: false}
	}()

	select {
	case <-c.stopper.Done():
		cancelBoth()
		return RpcFrame{}, closedErr()
	case <-ctx.Done():
		cancelBoth()
		return RpcFrame{}, closedErr()
	case r := <-resCh:
		cancelBoth()
		if !r.ok {
			return RpcFrame{}, closedErr()
		}
		c.observeWidth(r.header.Key.Kind(), kkind)
		if r.isOk {
			return RpcFrame{Header: r.header, Body: r.body}, nil
		}
		var we WireErr
		if decodeWireErr != nil {
			decoded, derr := decodeWireErr(r.body)
			if derr != nil {
				return RpcFrame{}, badResponseErr(derr)
			}
			we = decoded
		}
		return RpcFrame{}, wireErr(wireValue[WireErr]{value: we})
	}
}

// SendResp sends a request of type Req to endpoint e and awaits a decoded
// response of type Resp (spec §4.D "Request/response").
func SendResp[Req encoding.BinaryMarshaler, Resp any, PResp binaryUnmarshalerPtr[Resp], WireErr any](
	ctx context.Context, c *HostClient[WireErr], e Endpoint, req Req, decodeWireErr Decoder[WireErr],
) (Resp, error) {
	var zero Resp
	body, err := req.MarshalBinary()
	if err != nil {
		return zero, decodeFailureErr(err)
	}
	seqNo := c.ctx.seq.next()
	frame := RpcFrame{
		Header: VarHeader{Key: NewVarKey(e.ReqKey()), Seq: NewVarSeq(seqNo)},
		Body:   body,
	}
	respFrame, err := c.SendRespRaw(ctx, frame, e.RespKey(), decodeWireErr)
	if err != nil {
		return zero, err
	}
	var resp Resp
	if uerr := PResp(&resp).UnmarshalBinary(respFrame.Body); uerr != nil {
		return zero, decodeFailureErr(uerr)
	}
	return resp, nil
}

// PublishRaw enqueues frame, fire-and-forget (spec §4.D "Publish").
func (c *HostClient[WireErr]) PublishRaw(ctx context.Context, frame RpcFrame) error {
	kkind := c.ctx.keyWidth.Load()
	frame.Header.Key = frame.Header.Key.ShrinkTo(kkind)
	frame.Header.Seq = frame.Header.Seq.Resize(c.seqKind)

	if c.stopper.IsStopped() {
		return ErrClosed
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.stopper.Done():
		return ErrClosed
	case <-ctx.Done():
		return ErrClosed
	}
}

// Publish encodes msg and publishes it to topic t (spec §4.D "Publish").
func Publish[Msg encoding.BinaryMarshaler, WireErr any](ctx context.Context, c *HostClient[WireErr], t Topic, seq VarSeq, msg Msg) error {
	body, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	frame := RpcFrame{Header: VarHeader{Key: NewVarKey(t.TopicKey()), Seq: seq}, Body: body}
	return c.PublishRaw(ctx, frame)
}

// SubscribeRaw installs a raw subscription on key (spec §4.D "Subscribe").
func (c *HostClient[WireErr]) SubscribeRaw(ctx context.Context, key Key, depth int) (*RawSubscription, error) {
	type outcome struct {
		sub *RawSubscription
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		recv, err := c.subs.Install(key, depth)
		if err != nil {
			ch <- outcome{err: ErrClosed}
			return
		}
		ch <- outcome{sub: &RawSubscription{ch: recv}}
	}()

	select {
	case <-c.stopper.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ErrClosed
	case o := <-ch:
		return o.sub, o.err
	}
}

// SubscribeTyped installs a subscription on topic t, decoding each
// delivered frame as Msg and silently skipping frames that fail to decode
// (spec §4.D "Subscribe": "graceful evolution").
func SubscribeTyped[Msg any, PMsg binaryUnmarshalerPtr[Msg], WireErr any](ctx context.Context, c *HostClient[WireErr], t Topic, depth int) (*Subscription[Msg], error) {
	raw, err := c.SubscribeRaw(ctx, t.TopicKey(), depth)
	if err != nil {
		return nil, err
	}
	decode := func(body []byte) (Msg, error) {
		var m Msg
		err := PMsg(&m).UnmarshalBinary(body)
		return m, err
	}
	return &Subscription[Msg]{raw: *raw, decode: decode, skipped: new(atomic.Uint64)}, nil
}

// Close triggers the stopper and closes the subscription table and wait
// ledger, fulfilling spec §3 Invariant 4. Idempotent.
func (c *HostClient[WireErr]) Close() {
	c.stopper.Stop()
	c.subs.Close()
	c.ctx.ledger.Close()
}

// IsClosed reports whether Close has been called on this client or any of
// its clones.
func (c *HostClient[WireErr]) IsClosed() bool { return c.stopper.IsStopped() }

// WaitClosed blocks until Close has been called (or ctx is done).
func (c *HostClient[WireErr]) WaitClosed(ctx context.Context) {
	select {
	case <-c.stopper.Done():
	case <-ctx.Done():
	}
}

// Context exposes the shared HostContext, e.g. for a transport's rx worker
// to call Process on inbound frames.
func (c *HostClient[WireErr]) Context() *HostContext { return c.ctx }

// Subscriptions exposes the shared SubscriptionTable, e.g. for a
// transport's rx worker to route inbound frames.
func (c *HostClient[WireErr]) Subscriptions() *SubscriptionTable { return c.subs }

// Stopper exposes the shared Stopper.
func (c *HostClient[WireErr]) Stopper() *Stopper { return c.stopper }

// SeqKind exposes the configured outbound sequence-number wire width.
func (c *HostClient[WireErr]) SeqKind() VarSeqKind { return c.seqKind }
