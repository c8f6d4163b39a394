package search

import (
	"fmt"
	"strings"

	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeAuto     Mode = "auto"
)

// ParseMode parses a mode name, ignoring case. The empty string means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeKeyword:
		return ModeKeyword, nil
	case ModeSemantic:
		return ModeSemantic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Method names how a result was produced.
type Method string

const (
	MethodSemantic        Method = "semantic"
	MethodKeyword         Method = "keyword"
	MethodKeywordFallback Method = "keyword-fallback"
)

// Reason explains an empty or degraded response.
type Reason string

const (
	// ReasonNone means the requested mode ran normally and found results.
	ReasonNone Reason = ""
	// ReasonNoResults means the search ran but nothing matched.
	ReasonNoResults Reason = "no-results"
	// ReasonNoEmbeddedDocuments means semantic search had no vectors to rank.
	ReasonNoEmbeddedDocuments Reason = "no-embedded-documents"
	// ReasonKeywordFallback means auto mode found no embedded documents and
	// answered with keyword results.
	ReasonKeywordFallback Reason = "keyword-fallback"
	// ReasonSemanticUnavailable means auto mode could not embed the query or
	// reach the similarity backend and answered with keyword results.
	ReasonSemanticUnavailable Reason = "semantic-unavailable"
)

// Request is a single search.
type Request struct {
	Query  string
	Mode   Mode // empty means ModeAuto
	TopK   int
	Filter storage.Filter
}

// Result is one ranked document.
type Result struct {
	DocumentId core.ID
	Score      float64
	Method     Method
	// Stale is set on semantic results whose vector no longer matches the
	// document content or the configured model.
	Stale    bool
	Document *core.Document
}

// Response is the outcome of a search.
type Response struct {
	Results []Result
	Reason  Reason
	// Mode is the mode that was requested, after defaulting.
	Mode Mode
}

// IDs returns the document IDs of the results in rank order.
func (r *Response) IDs() []core.ID {
	ids := make([]core.ID, len(r.Results))
	for i, res := range r.Results {
		ids[i] = res.DocumentId
	}
	return ids
}

// Err returns core.ErrEmptyCorpus when semantic search found no embedded
// documents, and nil otherwise.
func (r *Response) Err() error {
	if r.Reason == ReasonNoEmbeddedDocuments {
		return core.ErrEmptyCorpus
	}
	return nil
}
