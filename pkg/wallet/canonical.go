package wallet

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// CanonicalBytes encodes v deterministically for signing and verification.
// msgpack is self-describing and encodes struct fields in declaration
// order, so the same Go value always serialises to the same bytes — the
// one property the core's canonical encoding requires (no versioning byte,
// no dictionary-order map encoding, see SPEC_FULL.md §2).
func CanonicalBytes(v interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return b, nil
}

// CanonicalUnmarshal decodes b, previously produced by CanonicalBytes,
// into v (a pointer), for replaying stored events and proofs.
func CanonicalUnmarshal(b []byte, v interface{}) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("canonical decode: %w", err)
	}
	return nil
}
