package hostrpc

import (
	"context"
	"encoding/binary"
	"time"
)

// Well-known path and type descriptors for the schema-discovery protocol
// (spec §4.E). These stand in for the framework's code-generated
// GetAllSchemas endpoint and schema-data topic (out of scope per spec §1);
// a real deployment would derive these the same way any other
// endpoint/topic is derived, from its own schema and path.
const (
	schemaDataPath    = "hostrpc/schema/data"
	getAllSchemasPath = "hostrpc/get_all_schemas"
)

var (
	schemaFragmentType    = TypeDescriptor{Name: "schema_fragment", Fingerprint: []byte{0x20}}
	getAllSchemasReqType  = TypeDescriptor{Name: "get_all_schemas_req", Fingerprint: []byte{0x21}}
	getAllSchemasRespType = TypeDescriptor{Name: "get_all_schemas_resp", Fingerprint: []byte{0x22}}
)

// SchemaFragmentKind discriminates the three kinds of data the peer streams
// in response to GetAllSchemas.
type SchemaFragmentKind int

const (
	FragmentType SchemaFragmentKind = iota
	FragmentEndpoint
	FragmentTopic
)

// TopicDirection records whether a topic fragment is to-server or
// to-client (spec GLOSSARY "Topic").
type TopicDirection int

const (
	ToServer TopicDirection = iota
	ToClient
)

// SchemaFragment is one element of the GetAllSchemas data stream (spec §4.E
// step 1; the original's OwnedSchemaData enum).
type SchemaFragment struct {
	Kind SchemaFragmentKind

	// valid when Kind == FragmentType
	Type TypeDescriptor

	// valid when Kind == FragmentEndpoint
	Path    string
	ReqKey  Key
	RespKey Key

	// valid when Kind == FragmentTopic
	Key       Key
	Direction TopicDirection
}

// Fragment wire encoding is a simple hand-rolled binary layout (no
// third-party codec in the retrieval pack covers this bespoke use; see
// DESIGN.md). Layout: kind(1) then kind-specific fields, each
// length-prefixed string as uint16-LE length + bytes.

func putString(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func getString(buf []byte) (string, []byte, bool) {
	if len(buf) < 2 {
		return "", nil, false
	}
	n := int(binary.LittleEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, false
	}
	return string(buf[:n]), buf[n:], true
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f SchemaFragment) MarshalBinary() ([]byte, error) {
	out := []byte{byte(f.Kind)}
	switch f.Kind {
	case FragmentType:
		out = putString(out, f.Type.Name)
		out = append(out, byte(len(f.Type.Fingerprint)))
		out = append(out, f.Type.Fingerprint...)
	case FragmentEndpoint:
		out = putString(out, f.Path)
		out = append(out, f.ReqKey[:]...)
		out = append(out, f.RespKey[:]...)
	case FragmentTopic:
		out = putString(out, f.Path)
		out = append(out, f.Key[:]...)
		out = append(out, byte(f.Direction))
	}
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (f *SchemaFragment) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return errShortFragment
	}
	f.Kind = SchemaFragmentKind(data[0])
	rest := data[1:]
	switch f.Kind {
	case FragmentType:
		name, rest, ok := getString(rest)
		if !ok || len(rest) < 1 {
			return errShortFragment
		}
		n := int(rest[0])
		rest = rest[1:]
		if len(rest) < n {
			return errShortFragment
		}
		f.Type = TypeDescriptor{Name: name, Fingerprint: append([]byte(nil), rest[:n]...)}
	case FragmentEndpoint:
		path, rest, ok := getString(rest)
		if !ok || len(rest) < 16 {
			return errShortFragment
		}
		f.Path = path
		copy(f.ReqKey[:], rest[:8])
		copy(f.RespKey[:], rest[8:16])
	case FragmentTopic:
		path, rest, ok := getString(rest)
		if !ok || len(rest) < 9 {
			return errShortFragment
		}
		f.Path = path
		copy(f.Key[:], rest[:8])
		f.Direction = TopicDirection(rest[8])
	default:
		return errShortFragment
	}
	return nil
}

var errShortFragment = &errUnableToFindType{path: "<schema fragment decode>"}

// SchemaSummary is GetAllSchemas' response payload: the counts of data sent
// and errors encountered while streaming (spec §4.E step 2).
type SchemaSummary struct {
	EndpointsSent uint32
	TopicsInSent  uint32
	TopicsOutSent uint32
	Errors        uint32
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s SchemaSummary) MarshalBinary() ([]byte, error) {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint32(out[0:4], s.EndpointsSent)
	binary.LittleEndian.PutUint32(out[4:8], s.TopicsInSent)
	binary.LittleEndian.PutUint32(out[8:12], s.TopicsOutSent)
	binary.LittleEndian.PutUint32(out[12:16], s.Errors)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *SchemaSummary) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return errShortFragment
	}
	s.EndpointsSent = binary.LittleEndian.Uint32(data[0:4])
	s.TopicsInSent = binary.LittleEndian.Uint32(data[4:8])
	s.TopicsOutSent = binary.LittleEndian.Uint32(data[8:12])
	s.Errors = binary.LittleEndian.Uint32(data[12:16])
	return nil
}

// getAllSchemasRequest is GetAllSchemas' (empty) request payload.
type getAllSchemasRequest struct{}

// MarshalBinary implements encoding.BinaryMarshaler.
func (getAllSchemasRequest) MarshalBinary() ([]byte, error) { return nil, nil }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (*getAllSchemasRequest) UnmarshalBinary([]byte) error { return nil }

// schemaTopic and schemaEndpoint are this client's well-known Topic and
// Endpoint for the discovery protocol, derived with the client's own
// KeyHasher so they always agree with the keys used to construct the
// client's error key.
func (c *HostClient[WireErr]) schemaTopic() Topic {
	return NewTopic(schemaDataPath, c.hasher(schemaDataPath, schemaFragmentType))
}

func (c *HostClient[WireErr]) schemaEndpoint() Endpoint {
	return NewEndpoint(
		getAllSchemasPath,
		c.hasher(getAllSchemasPath, getAllSchemasReqType),
		c.hasher(getAllSchemasPath, getAllSchemasRespType),
	)
}

// schemaDrainIdle is the per-message idle timeout the collector task uses
// to decide the fragment stream has been fully drained (spec §4.E step 2a,
// recommending 100ms).
const schemaDrainIdle = 100 * time.Millisecond

// GetSchemaReport orchestrates the GetAllSchemas exchange and reconstructs
// a SchemaReport (spec §4.E).
//
// Grounded on session.go's shaperLoop/sendLoop goroutine-plus-channel
// cooperation, generalized to an idle-reset timer instead of a priority
// heap: one goroutine drains the schema-data subscription until it falls
// silent, while the caller issues the triggering request concurrently.
func (c *HostClient[WireErr]) GetSchemaReport(ctx context.Context, decodeWireErr Decoder[WireErr]) (*SchemaReport, error) {
	sub, err := c.SubscribeRaw(ctx, c.schemaTopic().TopicKey(), 64)
	if err != nil {
		return nil, commsErr(err)
	}

	type drainResult struct {
		frags []SchemaFragment
		err   error
	}
	drainCh := make(chan drainResult, 1)
	go func() {
		frags, derr := drainSchemaFragments(sub, schemaDrainIdle)
		drainCh <- drainResult{frags: frags, err: derr}
	}()

	summary, reqErr := SendResp[getAllSchemasRequest, SchemaSummary, *SchemaSummary, WireErr](
		ctx, c, c.schemaEndpoint(), getAllSchemasRequest{}, decodeWireErr,
	)

	drained := <-drainCh

	if reqErr != nil {
		return nil, commsErr(reqErr)
	}
	if drained.err != nil {
		return nil, drained.err
	}

	rpt := NewSchemaReport(c.hasher)
	var endpointsAndTopics []SchemaFragment
	for _, frag := range drained.frags {
		if frag.Kind == FragmentType {
			rpt.AddType(frag.Type)
		} else {
			endpointsAndTopics = append(endpointsAndTopics, frag)
		}
	}

	for _, frag := range endpointsAndTopics {
		var addErr error
		switch frag.Kind {
		case FragmentEndpoint:
			addErr = rpt.AddEndpoint(frag.Path, frag.ReqKey, frag.RespKey)
		case FragmentTopic:
			switch frag.Direction {
			case ToServer:
				addErr = rpt.AddTopicIn(frag.Path, frag.Key)
			case ToClient:
				addErr = rpt.AddTopicOut(frag.Path, frag.Key)
			}
		}
		if addErr != nil {
			return nil, invalidReportDataErr()
		}
	}

	matches := len(rpt.Endpoints) == int(summary.EndpointsSent) &&
		len(rpt.TopicsIn) == int(summary.TopicsInSent) &&
		len(rpt.TopicsOut) == int(summary.TopicsOutSent) &&
		summary.Errors == 0

	if !matches {
		return nil, lostDataErr()
	}
	return rpt, nil
}

// drainSchemaFragments pumps sub on a single background goroutine and
// collects decodable fragments until idle elapses between messages (spec
// §4.E step 2a). If the subscription itself ends before that idle timeout —
// the client closed, or something replaced this subscription — that is a
// collector-task failure distinct from an ordinary idle-terminated drain
// and is reported as TaskError (spec §4.E step 3: "a collector-task
// failure ... surfaces as TaskError") rather than silently returned as if
// the drain had completed normally. A single pump goroutine is used, rather
// than spawning one receive per timeout tick, so no frame can be stolen by
// an orphaned receiver racing the live one on the same channel.
func drainSchemaFragments(sub *RawSubscription, idle time.Duration) ([]SchemaFragment, error) {
	frames := make(chan RpcFrame)
	done := make(chan struct{})
	go func() {
		for {
			f, ok := sub.Recv()
			if !ok {
				close(frames)
				return
			}
			select {
			case frames <- f:
			case <-done:
				return
			}
		}
	}()
	defer close(done)

	var got []SchemaFragment
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return got, taskErr()
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
			var frag SchemaFragment
			if err := frag.UnmarshalBinary(f.Body); err == nil {
				got = append(got, frag)
			}
		case <-timer.C:
			return got, nil
		}
	}
}
