package hostrpc

// TypeDescriptor identifies a peer-side type well enough to recompute the
// key a (path, type) pair would hash to (spec §4.E step 4). It stands in
// for the original framework's richer named-type schema; this module only
// needs a name and a wire fingerprint to participate in key matching.
type TypeDescriptor struct {
	Name        string
	Fingerprint []byte
}

func newPrimitive(name string, fingerprint byte) TypeDescriptor {
	return TypeDescriptor{Name: name, Fingerprint: []byte{fingerprint}}
}

// primitiveTypes is the fixed set of primitive descriptors a SchemaReport
// is pre-seeded with (spec §3 SchemaReport, §9 "Schema primitive seeding"),
// translated from original_source/host_client/mod.rs's SchemaReport::default
// primitive list (bool, signed/unsigned integers to 128-bit, the two IEEE
// floats, char, string, byte-array, unit, and the type-descriptor-of-type
// itself).
func primitiveTypes() []TypeDescriptor {
	return []TypeDescriptor{
		newPrimitive("bool", 0x01),
		newPrimitive("i8", 0x02),
		newPrimitive("u8", 0x03),
		newPrimitive("i16", 0x04),
		newPrimitive("u16", 0x05),
		newPrimitive("i32", 0x06),
		newPrimitive("u32", 0x07),
		newPrimitive("i64", 0x08),
		newPrimitive("u64", 0x09),
		newPrimitive("i128", 0x0A),
		newPrimitive("u128", 0x0B),
		newPrimitive("f32", 0x0C),
		newPrimitive("f64", 0x0D),
		newPrimitive("char", 0x0E),
		newPrimitive("string", 0x0F),
		newPrimitive("bytes", 0x10),
		newPrimitive("unit", 0x11),
		newPrimitive("type_descriptor", 0x12),
	}
}

// TopicReport describes one resolved topic in a SchemaReport.
type TopicReport struct {
	Path string
	Key  Key
	Type TypeDescriptor
}

// EndpointReport describes one resolved endpoint in a SchemaReport.
type EndpointReport struct {
	Path         string
	RequestKey   Key
	RequestType  TypeDescriptor
	ResponseKey  Key
	ResponseType TypeDescriptor
}

// SchemaReport is the reconstructed peer catalog produced by
// HostClient.GetSchemaReport (spec §3, §4.E).
type SchemaReport struct {
	Types     map[string]TypeDescriptor
	TopicsIn  []TopicReport
	TopicsOut []TopicReport
	Endpoints []EndpointReport
	keyHasher KeyHasher
}

// NewSchemaReport returns a report pre-seeded with the fixed primitive type
// set, using hasher to recompute (path, type) -> Key during resolution. A
// nil hasher uses DefaultKeyHasher.
func NewSchemaReport(hasher KeyHasher) *SchemaReport {
	if hasher == nil {
		hasher = DefaultKeyHasher
	}
	r := &SchemaReport{
		Types:     make(map[string]TypeDescriptor),
		keyHasher: hasher,
	}
	for _, t := range primitiveTypes() {
		r.AddType(t)
	}
	return r
}

// AddType inserts t into the report's type set, deduplicating by name.
func (r *SchemaReport) AddType(t TypeDescriptor) {
	r.Types[t.Name] = t
}

// errUnableToFindType is returned internally when no candidate type's
// recomputed key matches the fragment's advertised key.
type errUnableToFindType struct{ path string }

func (e *errUnableToFindType) Error() string {
	return "hostrpc: no type found matching key for path " + e.path
}

func (r *SchemaReport) findType(path string, key Key) (TypeDescriptor, error) {
	for _, t := range r.Types {
		if r.keyHasher(path, t) == key {
			return t, nil
		}
	}
	return TypeDescriptor{}, &errUnableToFindType{path: path}
}

// AddTopicIn resolves path/key against the current type set and appends a
// to-server TopicReport.
func (r *SchemaReport) AddTopicIn(path string, key Key) error {
	t, err := r.findType(path, key)
	if err != nil {
		return err
	}
	r.TopicsIn = append(r.TopicsIn, TopicReport{Path: path, Key: key, Type: t})
	return nil
}

// AddTopicOut resolves path/key against the current type set and appends a
// to-client TopicReport.
func (r *SchemaReport) AddTopicOut(path string, key Key) error {
	t, err := r.findType(path, key)
	if err != nil {
		return err
	}
	r.TopicsOut = append(r.TopicsOut, TopicReport{Path: path, Key: key, Type: t})
	return nil
}

// AddEndpoint resolves path/reqKey/respKey against the current type set and
// appends an EndpointReport.
func (r *SchemaReport) AddEndpoint(path string, reqKey, respKey Key) error {
	reqTy, err := r.findType(path, reqKey)
	if err != nil {
		return err
	}
	respTy, err := r.findType(path, respKey)
	if err != nil {
		return err
	}
	r.Endpoints = append(r.Endpoints, EndpointReport{
		Path:         path,
		RequestKey:   reqKey,
		RequestType:  reqTy,
		ResponseKey:  respKey,
		ResponseType: respTy,
	})
	return nil
}
