package main

import (
	"fmt"
	"io"

	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/search"
)

// traceMonitor prints each retrieval stage.
type traceMonitor struct {
	w io.Writer
}

var _ search.RetrievalMonitor = (*traceMonitor)(nil)

// monitorOrNil keeps a nil *traceMonitor from becoming a non-nil interface.
func monitorOrNil(m *traceMonitor) search.RetrievalMonitor {
	if m == nil {
		return nil
	}
	return m
}

func (m *traceMonitor) Start(query string) {
	fmt.Fprintf(m.w, "query: %q\n", query)
}

func (m *traceMonitor) AfterQueryEmbedding(dims int) {
	fmt.Fprintf(m.w, "embedded query: %d dimensions\n", dims)
}

func (m *traceMonitor) AfterIndexQuery(results []*core.RetrievalResult) {
	fmt.Fprintf(m.w, "index returned %d chunks\n", len(results))
}

func (m *traceMonitor) Hit(result *core.RetrievalResult, verbatim bool) {
	marker := ""
	if verbatim {
		marker = " (all query words)"
	}
	fmt.Fprintf(m.w, "  hit %s score=%.3f%s\n", result.Chunk.Key(), result.Score, marker)
}

func (m *traceMonitor) Finish(results []*core.RetrievalResult) {
	fmt.Fprintf(m.w, "done: %d results\n", len(results))
}
