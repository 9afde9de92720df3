// Package ingestion turns doctor-uploaded documents into indexed chunks.
//
// The Pipeline type runs the ingestion workflow for one document:
//   - Validating and splitting the text into overlapping chunks
//   - Embedding the chunks in batches, concurrently on a worker pool
//   - Writing every chunk to the vector index in one all-or-nothing upsert
//
// A failure at any stage aborts before the index is touched, so a document
// is either fully searchable or not searchable at all. Documents can also
// be submitted for background ingestion, and deleted again together with
// all of their chunks.
package ingestion
