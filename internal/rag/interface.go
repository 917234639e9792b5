// Package rag defines the core types and collaborator interfaces for the
// PantryAI retrieval-augmented generation pipeline: raw tenant records, the
// normalized documents built from them, and the embedding, generation, and
// data-source backends the pipeline depends on. Concrete implementations
// (Ollama, OpenAI, the inventory backend client) satisfy these interfaces so
// the index and pipeline layers never depend on a specific backend.
package rag

import (
	"context"
	"fmt"
	"strconv"
)

// RecordKind identifies which tenant collection a raw record came from.
type RecordKind string

const (
	// KindInventory marks a record from the tenant's inventory collection.
	KindInventory RecordKind = "inventory"
	// KindBilling marks a record from the tenant's billing collection.
	KindBilling RecordKind = "billing"
)

// RawRecord is one tenant record as returned by the DataSource, before
// normalization. Missing fields are filled with defaults by NewDocument.
type RawRecord struct {
	// Kind identifies the source collection (inventory or billing).
	Kind RecordKind `json:"kind"`
	// ItemName is the display name of the item.
	ItemName string `json:"item_name"`
	// Quantity is the stocked or billed quantity.
	Quantity float64 `json:"quantity"`
	// Price is the unit or billed price.
	Price float64 `json:"price"`
	// Month is the purchase or billing period label (e.g. "January").
	Month string `json:"month"`
}

// Document is one retrievable unit: the embeddable display text plus the
// structured fields it was rendered from. Documents are immutable once built.
type Document struct {
	// Text is the display string embedded and injected into prompt context.
	Text string `json:"text"`
	// ItemName is the normalized item name.
	ItemName string `json:"item_name"`
	// Quantity is the normalized quantity.
	Quantity float64 `json:"quantity"`
	// Price is the normalized price.
	Price float64 `json:"price"`
	// Month is the normalized period label.
	Month string `json:"month"`
}

// NewDocument normalizes a raw record into a Document. Absent names and
// months become "Unknown Item" / "Unknown Month" so every document renders
// a complete context line.
func NewDocument(rec RawRecord) Document {
	name := rec.ItemName
	if name == "" {
		name = "Unknown Item"
	}
	month := rec.Month
	if month == "" {
		month = "Unknown Month"
	}
	return Document{
		Text: fmt.Sprintf("Item: %s, Quantity: %s, Price: %s, Month: %s",
			name, formatNumber(rec.Quantity), formatNumber(rec.Price), month),
		ItemName: name,
		Quantity: rec.Quantity,
		Price:    rec.Price,
		Month:    month,
	}
}

// formatNumber renders a quantity or price without a trailing fractional
// part for whole values ("5", not "5.000000").
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DataSource returns the raw records for a tenant. Implementations must
// return inventory records first, then billing records, each sub-list in the
// backend's native order. Implementations must be safe to call from multiple
// goroutines.
type DataSource interface {
	// Fetch returns all raw records for the given tenant.
	Fetch(ctx context.Context, tenantID string) ([]RawRecord, error)
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces text from a system prompt and a user prompt.
// Implementations must be safe to call from multiple goroutines.
type Generator interface {
	// Generate returns the model's response for the given prompt pair.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
