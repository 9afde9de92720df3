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


// Package ai provides abstractions for the AI services used by CareBuddy.
//
// The package defines the interfaces the pipelines depend on:
//
//   - Embedder: turns text into fixed-length vectors
//   - Generator: produces a chat completion from a list of messages
//   - AIProvider: bundles both services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without external services
//
// # Decorators
//
// ResilientEmbedder adds a per-call timeout, bounded retry with exponential
// backoff and optional rate limiting to any Embedder, and classifies final
// failures as core.ErrEmbeddingService. CachedEmbedder memoises single-text
// embeddings, which helps when patients ask the same question repeatedly.
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	resilient, err := ai.NewResilientEmbedder(provider.Embedder(), ai.WithRateLimit(20, 5))
//	embedder, err := ai.NewCachedEmbedder(resilient, config.EmbeddingModel, 512)
//	vec, err := embedder.EmbedText(ctx, "How often should I change the dressing?")
package ai
