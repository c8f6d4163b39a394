// Package embedding keeps document vectors consistent with document content.
//
// A Pipeline walks the target documents, compares each stored vector's
// fingerprint and model identity with the document's current content and the
// configured model, and recomputes only the vectors that no longer match.
// Recomputation is whole-vector replacement with fresh metadata. Failures are
// recorded per document in the returned Report and never abort the batch.
//
// Encoder calls run on a bounded worker pool, are throttled by an optional
// rate limit and retried with exponential backoff.
package embedding
