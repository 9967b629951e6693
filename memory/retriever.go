package memory

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// RetrievalOptions are the per-call retrieval knobs. Zero values fall back
// to the engine config.
type RetrievalOptions struct {
	SegmentThreshold   float64
	PageThreshold      float64
	KnowledgeThreshold float64
	TopKSegments       int
	TopKKnowledge      int
	TopKPages          int
}

// RetrievedPage is a mid-term page tagged with its combined score
// (page similarity x segment similarity).
type RetrievedPage struct {
	Page  Page
	Score float64
}

// RetrievedContext bundles the ranked hits from all tiers for one query.
type RetrievedContext struct {
	Pages              []RetrievedPage
	UserKnowledge      []KnowledgeEntry
	AssistantKnowledge []KnowledgeEntry
	RetrievedAt        time.Time
}

// Retriever fans a query out to mid-term and long-term concurrently and
// merges the hits into one ranked, capped context.
type Retriever struct {
	mid  *MidTermStore
	long *LongTermStore
}

// NewRetriever wires the retrieval path over the two searchable tiers.
func NewRetriever(mid *MidTermStore, long *LongTermStore) *Retriever {
	return &Retriever{mid: mid, long: long}
}

// Search dispatches three lookups concurrently: mid-term segments/pages,
// user knowledge, assistant knowledge. Each branch is isolated; a failure
// or panic is logged and yields an empty list without aborting its
// siblings. Matched pages are flattened across segments and only the
// global TopKPages best by combined score survive, best first.
func (r *Retriever) Search(ctx context.Context, userID, query string, opts RetrievalOptions) *RetrievedContext {
	log.Printf("[RETRIEVER] Parallel retrieval for query: %.50q", query)

	var (
		wg          sync.WaitGroup
		segments    []MatchedSegment
		userKn      []KnowledgeEntry
		assistantKn []KnowledgeEntry
	)
	branch := func(name string, fn func() error) {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[RETRIEVER] %s panicked: %v", name, rec)
			}
		}()
		if err := fn(); err != nil {
			log.Printf("[RETRIEVER] %s failed: %v", name, err)
		}
	}

	wg.Add(3)
	go branch("mid-term search", func() error {
		matched, err := r.mid.Search(ctx, userID, query, opts.SegmentThreshold, opts.PageThreshold, opts.TopKSegments)
		segments = matched
		return err
	})
	go branch("user knowledge search", func() error {
		entries, err := r.long.SearchUserKnowledge(ctx, userID, query, opts.KnowledgeThreshold, opts.TopKKnowledge)
		userKn = entries
		return err
	})
	go branch("assistant knowledge search", func() error {
		entries, err := r.long.SearchAssistantKnowledge(ctx, userID, query, opts.KnowledgeThreshold, opts.TopKKnowledge)
		assistantKn = entries
		return err
	})
	wg.Wait()

	pages := flattenPages(segments, opts.TopKPages)
	log.Printf("[RETRIEVER] Recalled %d pages, %d user facts, %d assistant facts",
		len(pages), len(userKn), len(assistantKn))

	return &RetrievedContext{
		Pages:              pages,
		UserKnowledge:      userKn,
		AssistantKnowledge: assistantKn,
		RetrievedAt:        time.Now(),
	}
}

// flattenPages merges every matched page across segments, scoring each as
// page score x segment score, and keeps the global top k via a bounded
// min-heap.
func flattenPages(segments []MatchedSegment, topK int) []RetrievedPage {
	var best scoredPageHeap
	for _, seg := range segments {
		for _, match := range seg.Pages {
			best.offer(RetrievedPage{
				Page:  match.Page,
				Score: match.Score * seg.Score,
			}, topK)
		}
	}
	if best.Len() == 0 {
		return nil
	}
	pages := []RetrievedPage(best)
	sort.Slice(pages, func(i, j int) bool { return pages[i].Score > pages[j].Score })
	return pages
}
