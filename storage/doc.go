// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the storage abstraction layer for CareBuddy.
//
// This package defines the vector index interface that decouples the
// pipelines from a particular backend. Two implementations exist:
//
//   - storage/badger: an embedded index on BadgerDB, used by default
//   - storage/qdrant: a remote index on a Qdrant server
//
// # Constructor Return Type Pattern
//
// Public constructors return concrete types from the backend packages so
// callers can reach backend-specific helpers, while the pipelines only ever
// depend on the interfaces declared here:
//
//	index, err := badger.NewIndex(backend)  // *badger.Index, a storage.VectorIndex
//
// # Architecture
//
//   - VectorIndex: namespaced upsert, top-k query and cascading delete
//   - ChunkStore: enumeration of stored chunks for batch maintenance
//
// # Namespaces
//
// Every write and every query names a namespace. Chunks written to one
// namespace are never returned by a query against another. Namespaces are
// created lazily on first write.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
