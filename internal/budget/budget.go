// Package budget provides token budget estimation and context trimming for
// the retrieval pipeline. Because the service supports multiple LLM backends
// with different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/54b3r/pantryai-go/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B, GPT-3.5)
	// while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// TrimDocuments drops documents from the tail of docs until the estimated
// token count of their joined text, plus reservedTokens for the surrounding
// prompt, fits within maxTokens. Documents arrive in retrieval-rank order, so
// trimming from the tail always discards the least relevant matches first.
//
// Returns the kept prefix. If even the top document exceeds the budget, an
// empty slice is returned and the caller falls back to the empty-context path.
func TrimDocuments(docs []rag.Document, reservedTokens, maxTokens int) []rag.Document {
	remaining := maxTokens - reservedTokens

	total := 0
	for i, doc := range docs {
		// One extra token per document covers the newline join.
		total += Estimate(doc.Text) + 1
		if total > remaining {
			return docs[:i]
		}
	}
	return docs
}
