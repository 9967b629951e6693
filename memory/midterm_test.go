package memory_test

import (
	"context"
	"testing"

	"github.com/becomeliminal/strata/memory"
	"github.com/becomeliminal/strata/memory/index/chromem"
)

var (
	axisW = []float32{1, 0, 0, 0}
	axisX = []float32{0, 1, 0, 0}
	axisY = []float32{0, 0, 1, 0}
)

// newMidTerm builds a mid-term store over an in-memory backing store and a
// real chromem index.
func newMidTerm(t *testing.T, emb *stubEmbedder, gen *stubGenerator, store *memStore, cfg *memory.Config) *memory.MidTermStore {
	t.Helper()
	return memory.NewMidTermStore(context.Background(), emb, gen, store, chromem.New(), cfg)
}

// presetPage pins a page's embedding axis so search scores are exact.
func presetPage(emb *stubEmbedder, page *memory.Page, vec []float32) {
	emb.add(page.Text(), vec)
}

func TestMidTerm_MergeSimilarTopic(t *testing.T) {
	ctx := context.Background()
	emb := newStubEmbedder()
	gen := &stubGenerator{
		summarize: func(pages []*memory.Page) (memory.Summary, error) {
			return memory.Summary{Theme: "travel", Keywords: []string{"travel"}, Content: "travel digest"}, nil
		},
	}
	mid := newMidTerm(t, emb, gen, newMemStore(), nil)

	emb.add("about travel", axisW)
	emb.add("travel digest", axisW)

	p1 := &memory.Page{User: "I love travel", Assistant: "nice"}
	p2 := &memory.Page{User: "where should I go", Assistant: "paris"}
	presetPage(emb, p1, axisW)
	presetPage(emb, p2, axisW)

	if err := mid.Insert(ctx, "u1", "about travel", []string{"travel"}, p1); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := mid.Insert(ctx, "u1", "about travel", []string{"travel"}, p2); err != nil {
		t.Fatalf("second insert failed: %v", err)
	}

	if got := mid.SegmentCount("u1"); got != 1 {
		t.Fatalf("expected a single merged segment, got %d", got)
	}
	segmentID, heat, ok := mid.HottestSegment("u1")
	if !ok {
		t.Fatal("expected a hottest segment")
	}
	// N_visit 0, L_interaction 2, recency 1.
	if heat < 2.9 || heat > 3.1 {
		t.Errorf("merged segment heat = %v, want ~3", heat)
	}
	if pages := mid.UnanalyzedPages("u1", segmentID); len(pages) != 2 {
		t.Errorf("expected 2 pages in merged segment, got %d", len(pages))
	}
}

func TestMidTerm_DistinctTopicsCreateSegments(t *testing.T) {
	ctx := context.Background()
	emb := newStubEmbedder()
	mid := newMidTerm(t, emb, &stubGenerator{}, newMemStore(), nil)

	emb.add("about travel", axisW)
	emb.add("about cooking", axisY)

	p1 := &memory.Page{User: "travel q", Assistant: "a"}
	p2 := &memory.Page{User: "cooking q", Assistant: "a"}
	presetPage(emb, p1, axisW)
	presetPage(emb, p2, axisY)

	if err := mid.Insert(ctx, "u1", "about travel", []string{"travel"}, p1); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := mid.Insert(ctx, "u1", "about cooking", []string{"cooking"}, p2); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if got := mid.SegmentCount("u1"); got != 2 {
		t.Errorf("expected 2 segments for orthogonal topics, got %d", got)
	}
}

func TestMidTerm_LFUEviction(t *testing.T) {
	ctx := context.Background()
	emb := newStubEmbedder()
	cfg := *memory.DefaultConfig
	cfg.MidTermCapacity = 2
	mid := newMidTerm(t, emb, &stubGenerator{}, newMemStore(), &cfg)

	emb.add("about travel", axisW)
	emb.add("about music", axisX)
	emb.add("about cooking", axisY)

	p1 := &memory.Page{User: "travel q", Assistant: "a"}
	p2 := &memory.Page{User: "music q", Assistant: "a"}
	p3 := &memory.Page{User: "cooking q", Assistant: "a"}
	presetPage(emb, p1, axisW)
	presetPage(emb, p2, axisX)
	presetPage(emb, p3, axisY)

	if err := mid.Insert(ctx, "u1", "about travel", []string{"travel"}, p1); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := mid.Insert(ctx, "u1", "about music", []string{"music"}, p2); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Touch the travel segment so its access count exceeds music's.
	if _, err := mid.Search(ctx, "u1", "about travel", 0.1, 0.1, 5); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	// Third insert overflows capacity; music is least frequently used.
	if err := mid.Insert(ctx, "u1", "about cooking", []string{"cooking"}, p3); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if got := mid.SegmentCount("u1"); got != 2 {
		t.Fatalf("expected capacity-bound 2 segments, got %d", got)
	}

	if hits, _ := mid.Search(ctx, "u1", "about music", 0.5, 0.1, 5); len(hits) != 0 {
		t.Errorf("evicted music segment still retrievable: %+v", hits)
	}
	if hits, _ := mid.Search(ctx, "u1", "about travel", 0.5, 0.1, 5); len(hits) != 1 {
		t.Errorf("travel segment should survive eviction, got %d hits", len(hits))
	}
	if hits, _ := mid.Search(ctx, "u1", "about cooking", 0.5, 0.1, 5); len(hits) != 1 {
		t.Errorf("cooking segment should survive eviction, got %d hits", len(hits))
	}
}

func TestMidTerm_SearchBookkeeping(t *testing.T) {
	ctx := context.Background()
	emb := newStubEmbedder()
	mid := newMidTerm(t, emb, &stubGenerator{}, newMemStore(), nil)

	emb.add("about travel", axisW)
	p1 := &memory.Page{User: "travel q", Assistant: "a"}
	presetPage(emb, p1, axisW)
	if err := mid.Insert(ctx, "u1", "about travel", []string{"travel"}, p1); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		hits, err := mid.Search(ctx, "u1", "about travel", 0.1, 0.1, 5)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(hits) != 1 || len(hits[0].Pages) != 1 {
			t.Fatalf("expected 1 segment with 1 page, got %+v", hits)
		}
	}

	// N_visit 2, L_interaction 1, recency 1.
	_, heat, ok := mid.HottestSegment("u1")
	if !ok {
		t.Fatal("expected a hottest segment")
	}
	if heat < 3.9 || heat > 4.1 {
		t.Errorf("heat after two visits = %v, want ~4", heat)
	}
}

func TestMidTerm_SearchUnknownUser(t *testing.T) {
	mid := newMidTerm(t, newStubEmbedder(), &stubGenerator{}, newMemStore(), nil)
	hits, err := mid.Search(context.Background(), "ghost", "anything", 0.1, 0.1, 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for unknown user, got %+v", hits)
	}
}

func TestMidTerm_ChainRepairAndPropagate(t *testing.T) {
	ctx := context.Background()
	emb := newStubEmbedder()
	mid := newMidTerm(t, emb, &stubGenerator{}, newMemStore(), nil)

	emb.add("about travel", axisW)
	emb.add("about cooking", axisY)

	p1 := &memory.Page{ID: "p1", User: "travel q", Assistant: "a"}
	p2 := &memory.Page{ID: "p2", User: "cooking q", Assistant: "a", PrePage: "p1"}
	presetPage(emb, p1, axisW)
	presetPage(emb, p2, axisY)

	if err := mid.Insert(ctx, "u1", "about travel", []string{"travel"}, p1); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := mid.Insert(ctx, "u1", "about cooking", []string{"cooking"}, p2); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Pointers stay symmetric even across segment boundaries.
	prev, ok := mid.GetPage("u1", "p1")
	if !ok {
		t.Fatal("page p1 missing")
	}
	if prev.NextPage != "p2" {
		t.Errorf("p1.NextPage = %q, want p2", prev.NextPage)
	}

	if err := mid.PropagateMeta("u1", "p1", "shared story"); err != nil {
		t.Fatalf("propagate failed: %v", err)
	}
	for _, id := range []string{"p1", "p2"} {
		page, ok := mid.GetPage("u1", id)
		if !ok {
			t.Fatalf("page %s missing", id)
		}
		if page.MetaInfo != "shared story" {
			t.Errorf("%s meta = %q, want shared story", id, page.MetaInfo)
		}
	}
}

func TestMidTerm_RestoresPersistedSegments(t *testing.T) {
	ctx := context.Background()
	emb := newStubEmbedder()
	store := newMemStore()
	first := newMidTerm(t, emb, &stubGenerator{}, store, nil)

	emb.add("about travel", axisW)
	p1 := &memory.Page{User: "travel q", Assistant: "a"}
	presetPage(emb, p1, axisW)
	if err := first.Insert(ctx, "u1", "about travel", []string{"travel"}, p1); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// A fresh store over the same backend reindexes what was persisted.
	second := newMidTerm(t, emb, &stubGenerator{}, store, nil)
	if got := second.SegmentCount("u1"); got != 1 {
		t.Fatalf("restored segment count = %d, want 1", got)
	}
	hits, err := second.Search(ctx, "u1", "about travel", 0.5, 0.1, 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected restored segment to be searchable, got %d hits", len(hits))
	}
}
