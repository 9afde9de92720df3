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


package storage

import (
	"fmt"

	"github.com/poiesic/carebuddy/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes. Timestamps come back in
// UTC; empty vectors and metadata come back nil.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	// Skip walks every length prefix against the input without allocating,
	// so a corrupt count fails here instead of sizing a huge slice.
	if _, err := core.ChunkMUS.Skip(data); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrSerializationFailed, core.ErrMalformedRecord, err)
	}
	v, n, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrSerializationFailed, core.ErrMalformedRecord, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %w: %d trailing bytes", ErrSerializationFailed, core.ErrMalformedRecord, len(data)-n)
	}
	if len(v.Vector) == 0 {
		v.Vector = nil
	}
	if len(v.Metadata) == 0 {
		v.Metadata = nil
	}
	v.InsertedAt = v.InsertedAt.UTC()
	return &v, nil
}
