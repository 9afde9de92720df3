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

// Package search retrieves the document chunks most relevant to a question.
//
// The Retriever type embeds the query text and asks the vector index for
// its nearest chunks. A RetrievalMonitor can observe each stage, which the
// CLI uses to explain why a chunk was or was not returned.
//
// The package also holds the keyword helpers used to decide whether a chunk
// mentions every significant word of a query.
package search
