// ABOUTME: Key layout for badger-backed partitions
// ABOUTME: Prefix-tagged composite keys in the store's key space

package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/calderhof/revstore/pkg/node"
)

// Key-space prefixes per partition.
const (
	PREFIX_CATALOG    = uint32(1000)
	PREFIX_DATA       = uint32(2000)
	PREFIX_DATA_CHILD = uint32(2100) // index by (parent, name) -> path
	PREFIX_JOURNAL    = uint32(3000)
	PREFIX_WORKING    = uint32(4000)
	PREFIX_REFERENCE  = uint32(4100)
)

// encodeKey builds a composite key: big-endian prefix followed by
// NUL-separated parts. Parts never contain NUL (paths, ULIDs, hex).
func encodeKey(prefix uint32, parts ...string) []byte {
	size := 4
	for _, p := range parts {
		size += len(p) + 1
	}
	key := make([]byte, 4, size)
	binary.BigEndian.PutUint32(key, prefix)
	for _, p := range parts {
		key = append(key, p...)
		key = append(key, 0)
	}
	return key
}

// revisionKey serializes a revision so lexicographic key order matches
// numeric order: a two-hex-digit length tag followed by the hex form.
// Longer hex means a larger number; equal lengths compare digit-wise.
func revisionKey(rev node.RevisionNumber) string {
	hex := rev.String()
	return fmt.Sprintf("%02x%s", len(hex), hex)
}
