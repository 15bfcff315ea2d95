package hostrpc

import "hash/fnv"

// KeyHasher derives a Key from a (path, type) pair. The real on-wire hash
// (over a compiled-in schema fingerprint) is produced by code generation on
// both peers and is out of scope for this core (spec §1); DefaultKeyHasher
// is a usable stand-in so the module and its tests run without that
// code-generation step, and is swappable via Config.KeyHasher or
// WithKeyHasher.
type KeyHasher func(path string, t TypeDescriptor) Key

// DefaultKeyHasher hashes the path, then the type's fingerprint bytes, with
// FNV-1a, matching the two-stage "hash the path, then hash the schema"
// construction described in spec §3 and
// original_source/lib.rs's Key::for_path doc comment.
func DefaultKeyHasher(path string, t TypeDescriptor) Key {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	_, _ = h.Write(t.Fingerprint)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}
