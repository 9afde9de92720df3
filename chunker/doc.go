// Package chunker splits document text into overlapping chunks along natural
// boundaries.
//
// A Splitter tries its separators coarsest first (paragraph break, line
// break, sentence punctuation) and only falls back to a finer separator for
// segments that are still longer than MaxSize. Separators stay attached to
// the text before them, so no characters are lost. Consecutive chunks share
// up to Overlap characters so a question near a chunk boundary still finds
// the surrounding context.
package chunker
