// Package keyword ranks documents by token overlap with a query.
//
// Scoring ignores embeddings entirely: each distinct query token found in a
// document's title, summary or body adds 1, and each query token equal to one
// of the document's tags adds a fixed bonus. Documents scoring zero are never
// returned.
package keyword
