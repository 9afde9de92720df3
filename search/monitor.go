package search

import (
	"github.com/poiesic/carebuddy/core"
)

// RetrievalMonitor observes the stages of a retrieval.
type RetrievalMonitor interface {
	Start(query string)
	AfterQueryEmbedding(dims int)
	AfterIndexQuery(results []*core.RetrievalResult)
	// Hit is called once per returned chunk; verbatim reports whether the
	// chunk contains every significant query word.
	Hit(result *core.RetrievalResult, verbatim bool)
	Finish(results []*core.RetrievalResult)
}

type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                            {}
func (n *noopMonitor) AfterQueryEmbedding(_ int)                 {}
func (n *noopMonitor) AfterIndexQuery(_ []*core.RetrievalResult) {}
func (n *noopMonitor) Hit(_ *core.RetrievalResult, _ bool)       {}
func (n *noopMonitor) Finish(_ []*core.RetrievalResult)          {}
