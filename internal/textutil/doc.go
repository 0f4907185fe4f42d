// Package textutil provides small text helpers shared across the corpus
// pipeline, primarily Unicode case folding for dedup keys.
package textutil
