package selector

import (
	"context"
	"errors"
	"testing"

	"DaryoAI/models"
	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/llm"
	"DaryoAI/pkg/prompt"
	"DaryoAI/pkg/tokens"
)

// fakeCatalog holds Politics(1) with article 10, Sports(2) with articles 20
// and 21. Article 30 exists but belongs to no listed category.
type fakeCatalog struct{}

var (
	politics = models.Category{ID: 1, Name: "Politics"}
	sports   = models.Category{ID: 2, Name: "Sports"}
	articles = map[uint]models.AiData{
		10: {ID: 10, Heading: "Elections", Content: "Vote on Sunday.", Categories: []models.Category{politics}},
		20: {ID: 20, Heading: "Derby", Content: "Derby ended 2-1.", Categories: []models.Category{sports}},
		21: {ID: 21, Heading: "Transfers", Content: "Window opens.", Categories: []models.Category{sports}},
		30: {ID: 30, Heading: "Orphan", Content: "Nowhere."},
	}
)

func (f *fakeCatalog) ListCategories(context.Context) (string, error) {
	return catalog.FormatCategories([]models.Category{politics, sports}), nil
}

func (f *fakeCatalog) ListHeadingsByCategory(_ context.Context, id uint) (string, error) {
	var out []models.AiData
	for _, aid := range []uint{10, 20, 21} {
		if articles[aid].InCategory(id) {
			out = append(out, articles[aid])
		}
	}
	return catalog.FormatHeadings(out), nil
}

func (f *fakeCatalog) CategoryByID(_ context.Context, raw string) (*models.Category, bool) {
	id, ok := catalog.ParseID(raw)
	if !ok {
		return nil, false
	}
	switch id {
	case 1:
		c := politics
		return &c, true
	case 2:
		c := sports
		return &c, true
	}
	return nil, false
}

func (f *fakeCatalog) ArticleByID(_ context.Context, raw string) (*models.AiData, bool) {
	id, ok := catalog.ParseID(raw)
	if !ok {
		return nil, false
	}
	a, ok := articles[id]
	if !ok {
		return nil, false
	}
	return &a, true
}

type emptyCatalog struct{ fakeCatalog }

func (emptyCatalog) ListCategories(context.Context) (string, error) { return "", nil }

// scripted replies in order and records the system prompts it saw.
type scripted struct {
	replies []string
	errs    []error
	systems []string
}

func (s *scripted) Complete(_ context.Context, system, user string) (llm.Completion, error) {
	i := len(s.systems)
	s.systems = append(s.systems, system)
	if i < len(s.errs) && s.errs[i] != nil {
		return llm.Completion{}, &llm.TransientError{Provider: "test", Err: s.errs[i]}
	}
	reply := ""
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	return llm.Completion{Text: reply, Usage: tokens.ForExchange(system, user, reply)}, nil
}

func newSelector(c Catalog, comp llm.Completer) *ModelSelector {
	return NewModelSelector(c, comp, prompt.NewAssembler(prompt.Default(), false), nil)
}

func TestResolveBothStages(t *testing.T) {
	comp := &scripted{replies: []string{"2", " 20\n"}}
	sel, err := newSelector(&fakeCatalog{}, comp).Resolve(context.Background(), "derby score?")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !sel.Found() || sel.Content != "Derby ended 2-1." || sel.Category.ID != 2 {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if len(comp.systems) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(comp.systems))
	}
	stage2 := comp.systems[1]
	if want := "id:(20)-heading:(Derby);\nid:(21)-heading:(Transfers);"; stage2[len(stage2)-len(want):] != want {
		t.Fatalf("stage 2 must list only Sports headings, got %q", stage2)
	}
	want := tokens.ForExchange(comp.systems[0], "derby score?", "2").
		Add(tokens.ForExchange(comp.systems[1], "derby score?", " 20\n"))
	if sel.Usage != want {
		t.Fatalf("usage = %+v, want %+v", sel.Usage, want)
	}
}

func TestResolveNoCategoryStopsAfterStageOne(t *testing.T) {
	for _, reply := range []string{"abc", "99", "", "2.0"} {
		comp := &scripted{replies: []string{reply, "20"}}
		sel, err := newSelector(&fakeCatalog{}, comp).Resolve(context.Background(), "hi")
		if err != nil {
			t.Fatalf("Resolve(%q): %v", reply, err)
		}
		if sel.Category != nil || sel.Content != "" {
			t.Errorf("reply %q: expected no category, got %+v", reply, sel)
		}
		if len(comp.systems) != 1 {
			t.Errorf("reply %q: stage 2 must be skipped, got %d calls", reply, len(comp.systems))
		}
		if sel.Usage.Total() == 0 {
			t.Errorf("reply %q: stage 1 usage must still be counted", reply)
		}
	}
}

func TestResolveNoArticle(t *testing.T) {
	cases := map[string]string{
		"unparseable":    "twenty",
		"unknown id":     "77",
		"other category": "10",
		"uncategorized":  "30",
	}
	for name, reply := range cases {
		comp := &scripted{replies: []string{"2", reply}}
		sel, err := newSelector(&fakeCatalog{}, comp).Resolve(context.Background(), "hi")
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if sel.Found() || sel.Content != "" {
			t.Errorf("%s: expected no article, got %+v", name, sel)
		}
		if sel.Category == nil || sel.Category.ID != 2 {
			t.Errorf("%s: category should be kept, got %+v", name, sel.Category)
		}
	}
}

func TestResolveEmptyCatalogSkipsModel(t *testing.T) {
	comp := &scripted{}
	sel, err := newSelector(&emptyCatalog{}, comp).Resolve(context.Background(), "hi")
	if err != nil || sel.Content != "" || sel.Usage.Total() != 0 {
		t.Fatalf("unexpected result %+v err=%v", sel, err)
	}
	if len(comp.systems) != 0 {
		t.Fatalf("model must not be called for an empty catalog")
	}
}

func TestResolveCompletionErrorDegrades(t *testing.T) {
	comp := &scripted{replies: []string{"2"}, errs: []error{nil, errors.New("503")}}
	sel, err := newSelector(&fakeCatalog{}, comp).Resolve(context.Background(), "hi")
	if err != nil {
		t.Fatalf("completion errors must not escalate: %v", err)
	}
	if sel.Content != "" {
		t.Fatalf("expected no context, got %+v", sel)
	}
	// only the successful first call is counted
	if want := tokens.ForExchange(comp.systems[0], "hi", "2"); sel.Usage != want {
		t.Fatalf("usage = %+v, want %+v", sel.Usage, want)
	}
}

func TestNoneResolver(t *testing.T) {
	var r ContextResolver = None{}
	sel, err := r.Resolve(context.Background(), "x")
	if err != nil || sel.Found() {
		t.Fatalf("None must select nothing")
	}
}
