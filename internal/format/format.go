// Package format turns free-form generated text into the structured shapes
// the API promises: a flat list of recipe names or a list of recipe
// suggestion records. Models do not reliably emit clean JSON, so every parser
// here carries fallback heuristics and never returns an error — the worst
// case is an empty list or a single error-marker record.
package format

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Suggestion is one structured recipe suggestion. When parsing fails, the
// pipeline emits a single Suggestion with only Error set.
type Suggestion struct {
	// RecipeName is the name of the suggested recipe.
	RecipeName string `json:"recipe_name,omitempty"`
	// Additions lists ingredients the tenant still needs to buy.
	Additions []string `json:"additions,omitempty"`
	// BaseIngredients lists ingredients already in the tenant's inventory.
	BaseIngredients []string `json:"base_ingredients,omitempty"`
	// Error carries the parse-failure message on the error-marker record.
	Error string `json:"error,omitempty"`
}

// jsonArrayPattern matches the outermost bracketed span in the text —
// generated responses often wrap the JSON array in prose.
var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// jsonObjectArrayPattern matches a JSON array of objects.
var jsonObjectArrayPattern = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)

// suggestionsObjectPattern matches a JSON object wrapping a "suggestions" array.
var suggestionsObjectPattern = regexp.MustCompile(`(?s)\{\s*"suggestions"\s*:\s*\[.*\]\s*\}`)

// listPrefixPattern strips numbering and bullet prefixes ("1. ", "- ", "* ")
// from a line in the line-based fallback.
var listPrefixPattern = regexp.MustCompile(`^\s*\d+\.\s*|^\s*-\s*|^\s*\*\s*`)

// ParseList extracts an ordered list of names from generated text. A JSON
// array literal anywhere in the text wins; otherwise each non-blank line is
// taken as one entry with numbering and bullet prefixes stripped. Never
// fails — unparseable garbage yields a best-effort (possibly empty) list.
func ParseList(text string) []string {
	if m := jsonArrayPattern.FindString(text); m != "" {
		var items []string
		if err := json.Unmarshal([]byte(m), &items); err == nil {
			return items
		}
	}

	var items []string
	for _, line := range strings.Split(text, "\n") {
		cleaned := strings.TrimSpace(listPrefixPattern.ReplaceAllString(line, ""))
		if cleaned != "" {
			items = append(items, cleaned)
		}
	}
	return items
}

// ParseStructured extracts structured recipe suggestions from generated text.
// It tries a JSON array of objects first, then an object wrapping a
// "suggestions" array. If neither decodes, it returns exactly one
// error-marker Suggestion — never an error.
func ParseStructured(text string) []Suggestion {
	if m := jsonObjectArrayPattern.FindString(text); m != "" {
		var suggestions []Suggestion
		if err := json.Unmarshal([]byte(m), &suggestions); err == nil {
			return suggestions
		}
	}

	if m := suggestionsObjectPattern.FindString(text); m != "" {
		var wrapper struct {
			Suggestions []Suggestion `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(m), &wrapper); err == nil && wrapper.Suggestions != nil {
			return wrapper.Suggestions
		}
	}

	return []Suggestion{{Error: "Failed to extract structured recipe suggestions from response"}}
}
