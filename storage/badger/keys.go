package badger

import (
	"encoding/binary"

	"github.com/poiesic/carebuddy/core"
)

// Key layout. Namespaces cannot contain ':' so no prefix is a prefix of
// another namespace's keys.
//
//	ns:<namespace>                                  -> namespace info
//	chunk:<namespace>:<chunkID>                     -> chunk record
//	chunkdoc:<namespace>:<docHash><chunkID>         -> empty (document index)
const (
	namespacePrefix = "ns:"
	chunkPrefix     = "chunk:"
	chunkDocPrefix  = "chunkdoc:"
	chunkSeq        = "chunkseq"
)

func makeNamespaceKey(namespace string) []byte {
	return []byte(namespacePrefix + namespace)
}

// makeChunkPrefix returns the prefix shared by all chunks of a namespace.
func makeChunkPrefix(namespace string) []byte {
	return []byte(chunkPrefix + namespace + ":")
}

// makeChunkKey generates a key for a chunk by ID.
// Format: prefix:namespace:id, with the ID in BigEndian order.
func makeChunkKey(namespace string, id core.ID) []byte {
	prefix := makeChunkPrefix(namespace)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeDocPrefix returns the prefix of the document index for a namespace,
// optionally narrowed to a single document.
func makeDocPrefix(namespace string, documentID *string) []byte {
	prefix := []byte(chunkDocPrefix + namespace + ":")
	if documentID == nil {
		return prefix
	}
	return binary.BigEndian.AppendUint64(prefix, uint64(core.IDFromContent(*documentID)))
}

// makeChunkDocKey generates a composite key for the document index.
// Format: prefix:namespace:docHash:chunkID
func makeChunkDocKey(namespace, documentID string, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(makeDocPrefix(namespace, &documentID), uint64(id))
}

// chunkIDFromDocKey extracts the chunk ID from a document index key.
func chunkIDFromDocKey(key []byte) (core.ID, bool) {
	if len(key) < 8 {
		return 0, false
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:])), true
}
