package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/54b3r/pantryai-go/internal/prompts"
	"github.com/54b3r/pantryai-go/internal/rag"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeSearcher struct {
	docs     []rag.Document
	err      error
	gotQuery string
	gotK     int
	gotTen   string
}

func (f *fakeSearcher) Search(_ context.Context, tenantID, query string, k int) ([]rag.Document, error) {
	f.gotTen = tenantID
	f.gotQuery = query
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type fakeGenerator struct {
	response  string
	err       error
	gotSystem string
	gotUser   string
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	f.gotSystem = systemPrompt
	f.gotUser = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestPipeline(t *testing.T, s Searcher, g rag.Generator) *Pipeline {
	t.Helper()
	p, err := New(&Config{Indexes: s, Generator: g})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// ---------------------------------------------------------------------------
// transitions
// ---------------------------------------------------------------------------

func TestNext_TransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state State
		mode  prompts.Mode
		want  State
	}{
		{StateStart, prompts.ModeText, StateRetrieve},
		{StateStart, prompts.ModeRecipeList, StateRetrieve},
		{StateStart, prompts.ModeStructured, StateRetrieve},
		{StateRetrieve, prompts.ModeText, StateGenerate},
		{StateRetrieve, prompts.ModeRecipeList, StateGenerate},
		{StateRetrieve, prompts.ModeStructured, StateGenerate},
		{StateGenerate, prompts.ModeText, StateDone},
		{StateGenerate, prompts.ModeRecipeList, StateFormatList},
		{StateGenerate, prompts.ModeStructured, StateFormatStructured},
		{StateFormatList, prompts.ModeRecipeList, StateDone},
		{StateFormatStructured, prompts.ModeStructured, StateDone},
		{StateDone, prompts.ModeText, StateDone},
	}

	for _, tc := range cases {
		got := Next(tc.state, tc.mode)
		if got != tc.want {
			t.Errorf("Next(%s, %s): want %s, got %s", tc.state, tc.mode, tc.want, got)
		}
	}
}

// ---------------------------------------------------------------------------
// runs
// ---------------------------------------------------------------------------

func TestRun_TextMode(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{docs: []rag.Document{
		{Text: "Item: Rice, Quantity: 5, Price: 3.5, Month: January"},
		{Text: "Item: Coconut Milk, Quantity: 2, Price: 1.25, Month: January"},
	}}
	gen := &fakeGenerator{response: "You have rice and coconut milk."}

	p := newTestPipeline(t, searcher, gen)
	qs, err := p.Run(context.Background(), "what do I have?", "tenant-a", prompts.ModeText)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if searcher.gotTen != "tenant-a" || searcher.gotQuery != "what do I have?" {
		t.Errorf("search received tenant=%q query=%q", searcher.gotTen, searcher.gotQuery)
	}
	if searcher.gotK != DefaultTopK {
		t.Errorf("search k: want %d, got %d", DefaultTopK, searcher.gotK)
	}

	wantCtx := "Item: Rice, Quantity: 5, Price: 3.5, Month: January\n" +
		"Item: Coconut Milk, Quantity: 2, Price: 1.25, Month: January"
	if qs.Context != wantCtx {
		t.Errorf("context:\nwant %q\ngot  %q", wantCtx, qs.Context)
	}
	if !strings.Contains(gen.gotUser, wantCtx) || !strings.Contains(gen.gotUser, "what do I have?") {
		t.Errorf("user prompt missing context or query: %q", gen.gotUser)
	}
	if gen.gotSystem != prompts.For(prompts.ModeText).System {
		t.Error("generator did not receive the text-mode system prompt")
	}

	if qs.Response != "You have rice and coconut milk." {
		t.Errorf("response not stored verbatim: %q", qs.Response)
	}
	if qs.RecipeList != nil || qs.Suggestions != nil {
		t.Error("text mode must not populate formatted results")
	}
}

func TestRun_EmptyRetrievalUsesPlaceholderContext(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	gen := &fakeGenerator{response: "I have no inventory data for you."}

	p := newTestPipeline(t, searcher, gen)
	qs, err := p.Run(context.Background(), "anything?", "tenant-empty", prompts.ModeText)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if qs.Context != "No inventory data found." {
		t.Errorf("empty-retrieval context: got %q", qs.Context)
	}
	if gen.calls != 1 {
		t.Errorf("generation should still run once, got %d calls", gen.calls)
	}
	if !strings.Contains(gen.gotUser, "No inventory data found.") {
		t.Errorf("placeholder context missing from user prompt: %q", gen.gotUser)
	}
}

func TestRun_RecipeListModeParsesResponse(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{docs: []rag.Document{{Text: "Item: Rice, Quantity: 5, Price: 3.5, Month: January"}}}
	gen := &fakeGenerator{response: `["Rice and Curry", "Fried Rice", "Kottu Roti"]`}

	p := newTestPipeline(t, searcher, gen)
	qs, err := p.Run(context.Background(), "lunch ideas", "tenant-a", prompts.ModeRecipeList)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"Rice and Curry", "Fried Rice", "Kottu Roti"}
	if !reflect.DeepEqual(qs.RecipeList, want) {
		t.Errorf("recipe list: want %v, got %v", want, qs.RecipeList)
	}
	if qs.Response != gen.response {
		t.Error("raw response must be kept alongside the parsed list")
	}
	if gen.gotSystem != prompts.For(prompts.ModeRecipeList).System {
		t.Error("generator did not receive the recipe-list system prompt")
	}
}

func TestRun_StructuredModeParsesResponse(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{docs: []rag.Document{{Text: "Item: Rice, Quantity: 5, Price: 3.5, Month: January"}}}
	gen := &fakeGenerator{response: `[{"recipe_name": "Rice and Curry", "additions": ["curry leaves"], "base_ingredients": ["rice"]}]`}

	p := newTestPipeline(t, searcher, gen)
	qs, err := p.Run(context.Background(), "suggestions", "tenant-a", prompts.ModeStructured)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(qs.Suggestions) != 1 {
		t.Fatalf("want 1 suggestion, got %d", len(qs.Suggestions))
	}
	if qs.Suggestions[0].RecipeName != "Rice and Curry" {
		t.Errorf("recipe_name: got %q", qs.Suggestions[0].RecipeName)
	}
	if qs.Suggestions[0].Error != "" {
		t.Errorf("unexpected error marker: %q", qs.Suggestions[0].Error)
	}
}

func TestRun_StructuredModeMalformedResponseYieldsErrorMarker(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{docs: []rag.Document{{Text: "Item: Rice, Quantity: 5, Price: 3.5, Month: January"}}}
	gen := &fakeGenerator{response: "sorry, I cannot produce JSON today"}

	p := newTestPipeline(t, searcher, gen)
	qs, err := p.Run(context.Background(), "suggestions", "tenant-a", prompts.ModeStructured)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(qs.Suggestions) != 1 || qs.Suggestions[0].Error == "" {
		t.Errorf("malformed response should yield one error-marker record, got %+v", qs.Suggestions)
	}
}

func TestRun_RetrievalErrorAborts(t *testing.T) {
	t.Parallel()

	searchErr := errors.New("index unavailable")
	searcher := &fakeSearcher{err: searchErr}
	gen := &fakeGenerator{response: "never used"}

	p := newTestPipeline(t, searcher, gen)
	_, err := p.Run(context.Background(), "q", "tenant-a", prompts.ModeText)
	if !errors.Is(err, searchErr) {
		t.Fatalf("want wrapped search error, got %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("generation must not run after retrieval failure, got %d calls", gen.calls)
	}
}

func TestRun_GenerationErrorAborts(t *testing.T) {
	t.Parallel()

	genErr := errors.New("model backend down")
	searcher := &fakeSearcher{docs: []rag.Document{{Text: "Item: Rice, Quantity: 5, Price: 3.5, Month: January"}}}
	gen := &fakeGenerator{err: genErr}

	p := newTestPipeline(t, searcher, gen)
	_, err := p.Run(context.Background(), "q", "tenant-a", prompts.ModeRecipeList)
	if !errors.Is(err, genErr) {
		t.Fatalf("want wrapped generation error, got %v", err)
	}
}

func TestRun_InvalidModeRejected(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &fakeSearcher{}, &fakeGenerator{})
	_, err := p.Run(context.Background(), "q", "tenant-a", prompts.Mode("yaml"))
	if err == nil {
		t.Fatal("want error for unknown mode")
	}
}

func TestRun_ContextPreservesRetrievalOrder(t *testing.T) {
	t.Parallel()

	var docs []rag.Document
	for i := 0; i < 5; i++ {
		docs = append(docs, rag.Document{Text: fmt.Sprintf("Item: Item%d, Quantity: 1, Price: 1, Month: May", i)})
	}
	searcher := &fakeSearcher{docs: docs}
	gen := &fakeGenerator{response: "ok"}

	p := newTestPipeline(t, searcher, gen)
	qs, err := p.Run(context.Background(), "q", "tenant-a", prompts.ModeText)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := strings.Split(qs.Context, "\n")
	if len(lines) != 5 {
		t.Fatalf("want 5 context lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !strings.Contains(line, fmt.Sprintf("Item%d", i)) {
			t.Errorf("line %d out of rank order: %q", i, line)
		}
	}
}

func TestRun_OversizedContextTrimmedFromTail(t *testing.T) {
	t.Parallel()

	// Two big documents (~500 estimated tokens each) against a budget that,
	// after the prompt reservation, only fits the first.
	big := strings.Repeat("x", 2000)
	searcher := &fakeSearcher{docs: []rag.Document{
		{Text: "Item: Rice, " + big},
		{Text: "Item: Lentils, " + big},
	}}
	gen := &fakeGenerator{response: "ok"}

	p, err := New(&Config{Indexes: searcher, Generator: gen, MaxContextTokens: 900})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	qs, err := p.Run(context.Background(), "q", "tenant-a", prompts.ModeText)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(qs.Documents) != 1 {
		t.Fatalf("want 1 document after trim, got %d", len(qs.Documents))
	}
	if !strings.HasPrefix(qs.Documents[0].Text, "Item: Rice") {
		t.Error("trim must keep the highest-ranked document")
	}
	if strings.Contains(qs.Context, "Lentils") {
		t.Error("trimmed document leaked into the context")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil); err == nil {
		t.Error("nil config should be rejected")
	}
	if _, err := New(&Config{Generator: &fakeGenerator{}}); err == nil {
		t.Error("missing searcher should be rejected")
	}
	if _, err := New(&Config{Indexes: &fakeSearcher{}}); err == nil {
		t.Error("missing generator should be rejected")
	}
}
