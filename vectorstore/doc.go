// Package vectorstore ranks stored document vectors by cosine similarity to
// a query vector.
//
// Two strategies sit behind the Ranker interface. When the backing store
// declares native similarity support, ranking is delegated to its
// storage.SimilarityIndex. Otherwise every candidate vector is loaded from a
// storage.VectorSource and ranked in process with a bounded heap. The
// strategy is chosen once, in New, from the Capability flag.
//
// Both strategies honor the same contract:
//
//   - scores are cosine similarities in [-1, 1], highest first
//   - equal scores are ordered by document ID ascending
//   - vectors whose dimension differs from the query are never compared
//   - a non-nil empty candidate list or topK <= 0 yields no results
package vectorstore
