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

// Package answer turns a patient's question into a safe, grounded reply.
//
// The Answerer retrieves the chunks nearest to the question and decides,
// from their similarity scores, whether the documents answer it directly,
// only touch on it, or say nothing about it. Only the first two cases reach
// the language model; the prompt tells the model which case applies.
//
// Answer never returns an error or an empty string. Retrieval or generation
// failures become a fixed apology, and questions the documents do not cover
// get a fixed not-found message.
package answer
