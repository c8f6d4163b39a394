package search

import (
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/keyword"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(req Request)
	AfterSnapshot(docs []*core.Document, embedded int)
	AfterSemanticSearch(hits []core.ScoredID)
	SemanticUnavailable(err error)
	AfterKeywordSearch(hits []keyword.Hit)
	Finish(resp *Response)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request)                         {}
func (n *noopMonitor) AfterSnapshot(_ []*core.Document, _ int) {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.ScoredID)   {}
func (n *noopMonitor) SemanticUnavailable(_ error)             {}
func (n *noopMonitor) AfterKeywordSearch(_ []keyword.Hit)      {}
func (n *noopMonitor) Finish(_ *Response)                      {}
