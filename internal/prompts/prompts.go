// Package prompts holds the fixed prompt pairs used by the retrieval
// pipeline. Each output mode maps to one system prompt and one user-prompt
// template; rendering is pure placeholder substitution with no control flow.
package prompts

import "strings"

// Mode selects which prompt pair (and which post-generation formatting
// branch) a request uses. It is fixed once per request.
type Mode string

const (
	// ModeText produces a free-text answer about the tenant's inventory.
	ModeText Mode = "text"
	// ModeRecipeList produces a flat JSON array of recipe names.
	ModeRecipeList Mode = "recipe_list"
	// ModeStructured produces structured recipe suggestions with ingredient detail.
	ModeStructured Mode = "structured"
)

// Valid reports whether m is one of the three supported output modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeText, ModeRecipeList, ModeStructured:
		return true
	}
	return false
}

// Pair is one (system prompt, user-prompt template) combination.
type Pair struct {
	// System is the system prompt that frames the model's role.
	System string
	// Template is the user-prompt template with {context} and {query} placeholders.
	Template string
}

// Render substitutes context and query into the pair's template.
func (p Pair) Render(context, query string) string {
	return strings.NewReplacer(
		"{context}", context,
		"{query}", query,
	).Replace(p.Template)
}

const generalSystemPrompt = `You are an intelligent inventory assistant that helps users understand their inventory data.
You have access to the user's inventory items including item name, quantity, price, and purchase month.

When responding to queries, follow these guidelines:
1. Be concise, clear, and helpful
2. When asked about inventory, use the provided context to give accurate information
3. If information is not available in the context, acknowledge that you don't have that specific information
4. Avoid making up details that aren't in the provided context
5. Format currency values appropriately (e.g., $10.50)
6. Present quantities with appropriate units when available`

const generalQueryTemplate = `User inventory context:
{context}

User query: {query}`

const recipeListSystemPrompt = `You are a Sri Lankan cuisine expert who helps users find recipes based on their available ingredients.
Analyze the user's inventory and suggest lunch recipe options that require minimal additional ingredients.

When responding, follow these guidelines:
1. Focus on Sri Lankan lunch recipes that match the available ingredients
2. Suggest recipes that require at most 1-2 additional ingredients not in the inventory
3. Return ONLY a JSON array of recipe names, nothing else
4. Include 3-5 recipe suggestions
5. Format as: ["Recipe 1", "Recipe 2", "Recipe 3"]

Example response format:
["Rice and Curry", "Kottu Roti", "Lamprais", "Fried Rice", "String Hoppers"]`

const recipeQueryTemplate = `User's available ingredients from inventory:
{context}

Generate Sri Lankan lunch recipe suggestions based on these ingredients.
The user is looking for: {query}

Remember to return only a JSON array of recipe names.`

const structuredSystemPrompt = `You are a Sri Lankan cuisine expert who helps users find detailed recipe suggestions based on their inventory.
Analyze the user's inventory and suggest structured recipe options with ingredient details.

When responding, follow these guidelines:
1. Focus on Sri Lankan lunch recipes that match the available ingredients
2. Suggest recipes that require at most 1-2 additional ingredients not in the inventory
3. Return ONLY a JSON array of recipe objects with the following structure:
   [{
     "recipe_name": "Recipe Name",
     "additions": ["missing1", "missing2"],
     "base_ingredients": ["available1", "available2", "available3"]
   }]
4. Include 3-5 recipe suggestions
5. For each recipe:
   - "recipe_name": Name of the recipe
   - "additions": Array of 1-2 ingredients the user needs to buy
   - "base_ingredients": Array of ingredients already available in the user's inventory`

const structuredQueryTemplate = `User's available ingredients from inventory:
{context}

Generate structured Sri Lankan lunch recipe suggestions based on these ingredients.
The user is looking for: {query}

Remember to return only a JSON array of structured recipe objects containing recipe_name, additions, and base_ingredients.`

// pairs is the fixed prompt table keyed by output mode.
var pairs = map[Mode]Pair{
	ModeText:       {System: generalSystemPrompt, Template: generalQueryTemplate},
	ModeRecipeList: {System: recipeListSystemPrompt, Template: recipeQueryTemplate},
	ModeStructured: {System: structuredSystemPrompt, Template: structuredQueryTemplate},
}

// For returns the prompt pair for the given mode. Unknown modes fall back to
// the general pair so a caller bug degrades to a plain-text answer rather
// than a panic.
func For(mode Mode) Pair {
	if p, ok := pairs[mode]; ok {
		return p
	}
	return pairs[ModeText]
}
