package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

const (
	// DefaultNamespace is the partition patient-facing documents are written to.
	DefaultNamespace = "medical"
	// SourceDoctorDocument tags chunks that came from a doctor-uploaded document.
	SourceDoctorDocument = "doctor_document"
)

// Metadata keys stored on every chunk.
const (
	MetaDocumentID = "doc_id"
	MetaChunkIndex = "chunk_index"
	MetaSource     = "source"
	MetaBuddyID    = "buddy_id"
	MetaText       = "text"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkKey returns the external key of the ordinal-th chunk of a document.
func ChunkKey(documentID string, ordinal int) string {
	return documentID + "#" + strconv.Itoa(ordinal)
}

// ChunkID returns the deterministic ID of the ordinal-th chunk of a document.
// Re-ingesting the same document therefore overwrites its chunks in place.
func ChunkID(documentID string, ordinal int) ID {
	return IDFromContent(ChunkKey(documentID, ordinal))
}

// Document is a doctor-uploaded source document.
type Document struct {
	ID         string
	BuddyID    string // Optional owning care buddy
	Text       string
	UploadedAt time.Time
}

// Chunk is a contiguous piece of a document together with its embedding.
type Chunk struct {
	Id         ID
	DocumentID string
	Ordinal    int
	Namespace  string
	Source     string
	Text       string
	Vector     []float32
	Metadata   map[string]string
	InsertedAt time.Time // When the chunk was first written to the index
	Seq        uint64    // Insertion order, assigned by the index
}

// Key returns the chunk's external key.
func (c *Chunk) Key() string {
	return ChunkKey(c.DocumentID, c.Ordinal)
}

// Turn is one prior exchange in a conversation.
type Turn struct {
	User      string
	Assistant string
}

// RetrievalResult is a chunk matched by similarity search.
type RetrievalResult struct {
	Chunk *Chunk
	Score float32
}
