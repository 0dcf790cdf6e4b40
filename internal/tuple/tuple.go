// Package tuple implements the order-preserving key encoding the gateway
// uses to address the backing store: a namespace tag, one or more
// variable-length parts, and an optional trailing numeric index, packed so
// that lexicographic order over the encoded bytes equals the natural order
// of the logical tuple.
package tuple

import "encoding/binary"

// Namespace discriminates the disjoint keyspaces described in spec §3.
type Namespace byte

const (
	Data    Namespace = 11
	TTL     Namespace = 12
	Lock    Namespace = 13
	ACLUser Namespace = 21
)

// Pack encodes a namespace tag followed by zero or more variable-length
// parts. Each part is prefixed with its length as a 4-byte big-endian
// count so a shared prefix between two parts never partially matches a
// longer one.
func Pack(ns Namespace, parts ...[]byte) []byte {
	size := 1
	for _, p := range parts {
		size += 4 + len(p)
	}
	out := make([]byte, 0, size)
	out = append(out, byte(ns))
	for _, p := range parts {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		out = append(out, lenBuf[:]...)
		out = append(out, p...)
	}
	return out
}

// PackIndex encodes a namespace tag, a single key part, and a trailing
// 8-byte big-endian index, so that for a fixed key the encoded bytes sort
// in numeric index order.
func PackIndex(ns Namespace, key []byte, index uint64) []byte {
	prefix := Pack(ns, key)
	out := make([]byte, 0, len(prefix)+8)
	out = append(out, prefix...)
	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], index)
	out = append(out, idxBuf[:]...)
	return out
}

// SubspaceRange returns the [start, end) half-open byte range that
// contains every key packed via PackIndex for the given namespace and key,
// for use as the bounds of a forward range scan.
func SubspaceRange(ns Namespace, key []byte) (start, end []byte) {
	start = Pack(ns, key)
	end = append(append([]byte{}, start...), 0xFF)
	return start, end
}

// NamespaceRange returns the [start, end) half-open byte range that
// contains every key under ns regardless of its parts, for range-scanning
// an entire namespace (e.g. listing every ACL user).
func NamespaceRange(ns Namespace) (start, end []byte) {
	start = []byte{byte(ns)}
	end = []byte{byte(ns), 0xFF}
	return start, end
}
