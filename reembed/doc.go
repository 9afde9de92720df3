// Package reembed re-embeds every stored chunk with a new or updated
// embedding model.
//
// Chunks are read from the index in pages, embedded in batches with retry
// and exponential backoff, normalized for cosine similarity, and written
// back in place so their insertion order is kept. Progress is reported to
// a writer as the run advances.
package reembed
