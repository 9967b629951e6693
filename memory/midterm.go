package memory

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"
)

// insertCandidates is how many nearest segments are considered when
// placing a new page.
const insertCandidates = 5

// MatchedPage is a page hit from a mid-term search, tagged with its
// page-level similarity score. The page is a copy; mutating it has no
// effect on the store.
type MatchedPage struct {
	Page  Page
	Score float64
}

// MatchedSegment is a segment hit from a mid-term search together with its
// matched pages, sorted by page score descending.
type MatchedSegment struct {
	SegmentID string
	Summary   string
	Score     float64
	Pages     []MatchedPage
}

// MidTermStore holds each user's segments: semantic clusters of pages with
// heat-based prioritization and LFU eviction.
//
// All per-user state is guarded by a per-user mutex; the outer maps by a
// store-wide mutex held only for map access. Collaborator calls made while
// a user's lock is held keep insertion and chain repair atomic relative to
// concurrent mutation of the same user.
type MidTermStore struct {
	embedder Embedder
	gen      Generator
	store    Store
	index    SegmentIndex

	capacity       int
	topicThreshold float64
	keywordAlpha   float64
	heatAlpha      float64
	heatBeta       float64
	heatGamma      float64
	recencyTau     float64

	locks *userLocks
	mapMu sync.Mutex // guards the outer per-user maps

	segments   map[string]map[string]*Segment
	accessFreq map[string]map[string]int
	heaps      map[string]*segmentHeap

	now func() time.Time
}

// NewMidTermStore creates the store and restores persisted segments,
// rebuilding per-user heaps and reseeding the segment index. Load failures
// are logged and the store starts empty.
func NewMidTermStore(ctx context.Context, embedder Embedder, gen Generator, store Store, index SegmentIndex, cfg *Config) *MidTermStore {
	if cfg == nil {
		cfg = DefaultConfig
	}
	m := &MidTermStore{
		embedder:       embedder,
		gen:            gen,
		store:          store,
		index:          index,
		capacity:       cfg.MidTermCapacity,
		topicThreshold: cfg.TopicSimilarityThreshold,
		keywordAlpha:   cfg.KeywordAlpha,
		heatAlpha:      cfg.HeatAlpha,
		heatBeta:       cfg.HeatBeta,
		heatGamma:      cfg.HeatGamma,
		recencyTau:     cfg.RecencyTauHours,
		locks:          newUserLocks(),
		segments:       make(map[string]map[string]*Segment),
		accessFreq:     make(map[string]map[string]int),
		heaps:          make(map[string]*segmentHeap),
		now:            time.Now,
	}
	m.load(ctx)
	return m
}

func (m *MidTermStore) load(ctx context.Context) {
	segments, accessFreq, err := m.store.LoadMidTerm()
	if err != nil {
		log.Printf("[MID-TERM] Load failed, starting empty: %v", err)
		return
	}
	if segments != nil {
		m.segments = segments
	}
	if accessFreq != nil {
		m.accessFreq = accessFreq
	}
	for userID, segs := range m.segments {
		if m.accessFreq[userID] == nil {
			m.accessFreq[userID] = make(map[string]int, len(segs))
		}
		m.heaps[userID] = newSegmentHeap(segs)
		for sid, seg := range segs {
			if err := m.index.Upsert(ctx, userID, sid, seg.SummaryEmbedding); err != nil {
				log.Printf("[MID-TERM] Reindex of segment %s failed: %v", sid, err)
			}
		}
	}
	log.Printf("[MID-TERM] Restored segments for %d users", len(m.segments))
}

// userState returns (creating if needed) the maps and heap for a user.
// Callers must hold the user's lock.
func (m *MidTermStore) userState(userID string) (map[string]*Segment, map[string]int, *segmentHeap) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	segs, ok := m.segments[userID]
	if !ok {
		segs = make(map[string]*Segment)
		m.segments[userID] = segs
	}
	freq, ok := m.accessFreq[userID]
	if !ok {
		freq = make(map[string]int)
		m.accessFreq[userID] = freq
	}
	h, ok := m.heaps[userID]
	if !ok {
		h = newSegmentHeap(nil)
		m.heaps[userID] = h
	}
	return segs, freq, h
}

// computeHeat recomputes a segment's heat from its current visit count,
// interaction length, and idle time, refreshing RRecency as a side effect.
func (m *MidTermStore) computeHeat(seg *Segment) float64 {
	recency := 1.0
	if !seg.LastVisitTime.IsZero() {
		idleHours := m.now().Sub(seg.LastVisitTime).Hours()
		if idleHours < 0 {
			idleHours = 0
		}
		recency = math.Exp(-idleHours / m.recencyTau)
	}
	seg.RRecency = recency
	return m.heatAlpha*float64(seg.NVisit) + m.heatBeta*float64(seg.LInteraction) + m.heatGamma*recency
}

// preparePage fills in the page's id, embedding, and keywords. A supplied
// embedding is kept, renormalized only when its norm drifted from unit
// length; otherwise the concatenated exchange text is embedded. Empty
// keywords inherit the summary's.
func (m *MidTermStore) preparePage(ctx context.Context, page *Page, summaryKeywords []string) error {
	if page.ID == "" {
		page.ID = newID("page")
	}
	if len(page.Embedding) > 0 {
		if norm := vectorNorm(page.Embedding); norm > 1.1 || norm < 0.9 {
			normalize(page.Embedding)
		}
	} else {
		vec, err := m.embedder.Embed(ctx, page.Text())
		if err != nil {
			return fmt.Errorf("embed page: %w", err)
		}
		page.Embedding = normalize(vec)
	}
	if len(page.Keywords) == 0 {
		page.Keywords = summaryKeywords
	}
	return nil
}

// Insert places a page into the best-matching segment, or a new one.
//
// Candidates are the top segments by cosine similarity between the page
// summary embedding and segment summary embeddings; each is scored as
// cosine + keywordAlpha*Jaccard over keyword sets. The winner takes the
// page only when its combined score reaches the topic threshold, and its
// summary, embedding, and keywords are then regenerated from the full page
// list. Afterwards the chain pointers declared on the page are repaired
// and the user's segment map is persisted.
func (m *MidTermStore) Insert(ctx context.Context, userID, summary string, keywords []string, page *Page) error {
	sumVec, err := m.embedder.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}
	sumVec = normalize(sumVec)

	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()

	segs, _, _ := m.userState(userID)
	if len(segs) == 0 {
		log.Printf("[MID-TERM] No segments for user=%s, creating first", userID)
		if err := m.addSegment(ctx, userID, summary, keywords, sumVec, page); err != nil {
			return err
		}
	} else {
		matches, err := m.index.Query(ctx, userID, sumVec, insertCandidates)
		if err != nil {
			return fmt.Errorf("query segment index: %w", err)
		}

		bestID := ""
		bestScore := -1.0
		for _, match := range matches {
			seg, ok := segs[match.SegmentID]
			if !ok {
				continue
			}
			score := match.Score + m.keywordAlpha*jaccard(seg.SummaryKeywords, keywords)
			if score > bestScore {
				bestScore = score
				bestID = match.SegmentID
			}
		}

		if bestID != "" && bestScore >= m.topicThreshold {
			if err := m.mergeIntoSegment(ctx, userID, segs[bestID], keywords, page); err != nil {
				return err
			}
		} else {
			if err := m.addSegment(ctx, userID, summary, keywords, sumVec, page); err != nil {
				return err
			}
		}
	}

	m.repairChain(userID, page)
	return m.persist(userID)
}

// mergeIntoSegment appends the page and re-derives the segment summary
// from the full page list. Caller holds the user's lock.
func (m *MidTermStore) mergeIntoSegment(ctx context.Context, userID string, seg *Segment, summaryKeywords []string, page *Page) error {
	if err := m.preparePage(ctx, page, summaryKeywords); err != nil {
		return err
	}
	seg.Pages = append(seg.Pages, page)

	sum, err := m.gen.Summarize(ctx, seg.Pages)
	if err != nil {
		return fmt.Errorf("regenerate segment summary: %w", err)
	}
	vec, err := m.embedder.Embed(ctx, sum.Content)
	if err != nil {
		return fmt.Errorf("embed segment summary: %w", err)
	}
	seg.Summary = sum.Content
	seg.SummaryEmbedding = normalize(vec)
	seg.SummaryKeywords = sum.Keywords
	seg.LInteraction++
	seg.LastVisitTime = m.now()
	seg.Heat = m.computeHeat(seg)

	if err := m.index.Upsert(ctx, userID, seg.ID, seg.SummaryEmbedding); err != nil {
		return fmt.Errorf("reindex segment: %w", err)
	}
	m.rebuildHeap(userID)
	log.Printf("[MID-TERM] Merged page %s into segment %s (L_interaction=%d)", page.ID, seg.ID, seg.LInteraction)
	return nil
}

// addSegment creates a fresh single-page segment and evicts via LFU when
// the user's segment count exceeds capacity. Caller holds the user's lock.
func (m *MidTermStore) addSegment(ctx context.Context, userID, summary string, keywords []string, summaryVec []float32, page *Page) error {
	if err := m.preparePage(ctx, page, keywords); err != nil {
		return err
	}
	if keywords == nil {
		keywords = []string{}
	}

	now := m.now()
	seg := &Segment{
		ID:               newID("seg"),
		Summary:          summary,
		SummaryKeywords:  keywords,
		SummaryEmbedding: summaryVec,
		Pages:            []*Page{page},
		LInteraction:     1,
		RRecency:         1.0,
		CreatedAt:        now,
		LastVisitTime:    now,
	}
	seg.Heat = m.computeHeat(seg)

	segs, freq, h := m.userState(userID)
	segs[seg.ID] = seg
	freq[seg.ID] = 0
	heap.Push(h, heatEntry{segmentID: seg.ID, heat: seg.Heat})

	if err := m.index.Upsert(ctx, userID, seg.ID, summaryVec); err != nil {
		return fmt.Errorf("index segment: %w", err)
	}

	if len(segs) > m.capacity {
		m.evictLFU(ctx, userID)
	}
	return nil
}

// evictLFU removes the segment with the smallest monotonic access count.
// Ties break by oldest creation time, then id. Caller holds the user's
// lock.
func (m *MidTermStore) evictLFU(ctx context.Context, userID string) {
	segs, freq, _ := m.userState(userID)
	if len(segs) == 0 || len(freq) == 0 {
		return
	}

	victim := ""
	for sid, count := range freq {
		if victim == "" {
			victim = sid
			continue
		}
		best := freq[victim]
		switch {
		case count < best:
			victim = sid
		case count == best:
			vs, vok := segs[victim]
			cs, cok := segs[sid]
			if !vok || (cok && (cs.CreatedAt.Before(vs.CreatedAt) ||
				(cs.CreatedAt.Equal(vs.CreatedAt) && sid < victim))) {
				victim = sid
			}
		}
	}

	log.Printf("[MID-TERM] LFU eviction for user=%s: segment %s", userID, victim)
	delete(freq, victim)
	if _, ok := segs[victim]; !ok {
		m.rebuildHeap(userID)
		return
	}
	delete(segs, victim)
	if err := m.index.Remove(ctx, userID, victim); err != nil {
		log.Printf("[MID-TERM] Index removal of %s failed: %v", victim, err)
	}
	m.rebuildHeap(userID)
}

// Search retrieves the user's best-matching segments and, within each, the
// pages most similar to the query. Segments contributing at least one page
// get their visit counters bumped and heat recomputed; the heap is rebuilt
// and state persisted before returning. A user with no segments yields an
// empty result.
func (m *MidTermStore) Search(ctx context.Context, userID, query string, segThreshold, pageThreshold float64, topKSegments int) ([]MatchedSegment, error) {
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec = normalize(queryVec)

	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()

	segs, freq, _ := m.userState(userID)
	if len(segs) == 0 {
		return nil, nil
	}

	matches, err := m.index.Query(ctx, userID, queryVec, topKSegments)
	if err != nil {
		return nil, fmt.Errorf("query segment index: %w", err)
	}

	now := m.now()
	var results []MatchedSegment
	for _, match := range matches {
		seg, ok := segs[match.SegmentID]
		if !ok || match.Score < segThreshold || len(seg.Pages) == 0 {
			continue
		}

		var matched []MatchedPage
		for _, page := range seg.Pages {
			score := dot(queryVec, page.Embedding)
			if score >= pageThreshold {
				matched = append(matched, MatchedPage{Page: *page, Score: score})
			}
		}
		if len(matched) == 0 {
			continue
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].Score > matched[j].Score })

		seg.NVisit++
		seg.LastVisitTime = now
		seg.AccessCountLFU++
		freq[seg.ID] = seg.AccessCountLFU
		seg.Heat = m.computeHeat(seg)

		results = append(results, MatchedSegment{
			SegmentID: seg.ID,
			Summary:   seg.Summary,
			Score:     match.Score,
			Pages:     matched,
		})
	}

	m.rebuildHeap(userID)
	if err := m.persist(userID); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// GetPage looks a page up by id across all of the user's segments.
// Returns a copy; used for chain repair across segment boundaries.
func (m *MidTermStore) GetPage(userID, pageID string) (Page, bool) {
	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()
	if page := m.findPage(userID, pageID); page != nil {
		return *page, true
	}
	return Page{}, false
}

// findPage is the linear scan behind GetPage. Caller holds the user's lock.
func (m *MidTermStore) findPage(userID, pageID string) *Page {
	segs, _, _ := m.userState(userID)
	for _, seg := range segs {
		for _, page := range seg.Pages {
			if page.ID == pageID {
				return page
			}
		}
	}
	return nil
}

// repairChain restores pointer symmetry around a page: its declared
// predecessor's NextPage and successor's PrePage are pointed back at it.
// Caller holds the user's lock.
func (m *MidTermStore) repairChain(userID string, page *Page) {
	if page.PrePage != "" {
		if prev := m.findPage(userID, page.PrePage); prev != nil {
			prev.NextPage = page.ID
		}
	}
	if page.NextPage != "" {
		if next := m.findPage(userID, page.NextPage); next != nil {
			next.PrePage = page.ID
		}
	}
}

// PropagateMeta walks the page chain starting at startPageID in both
// directions and stamps every reachable page with the new meta narrative.
// The visited set guards against pointer cycles. The whole walk happens
// under the user's lock, atomically with respect to concurrent chain
// repairs, and is persisted once at the end.
func (m *MidTermStore) PropagateMeta(userID, startPageID, meta string) error {
	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()

	queue := []string{startPageID}
	visited := map[string]struct{}{startPageID: {}}
	touched := 0
	for len(queue) > 0 {
		pageID := queue[0]
		queue = queue[1:]
		page := m.findPage(userID, pageID)
		if page == nil {
			continue
		}
		page.MetaInfo = meta
		touched++
		for _, neighbor := range []string{page.PrePage, page.NextPage} {
			if neighbor == "" {
				continue
			}
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = struct{}{}
			queue = append(queue, neighbor)
		}
	}
	if touched == 0 {
		return nil
	}
	return m.persist(userID)
}

// HottestSegment peeks the user's heat heap. ok is false when the user has
// no segments.
func (m *MidTermStore) HottestSegment(userID string) (segmentID string, heat float64, ok bool) {
	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()
	_, _, h := m.userState(userID)
	entry, ok := h.peek()
	if !ok {
		return "", 0, false
	}
	return entry.segmentID, entry.heat, true
}

// UnanalyzedPages returns copies of the segment's pages that have not yet
// contributed to a long-term update.
func (m *MidTermStore) UnanalyzedPages(userID, segmentID string) []Page {
	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()
	segs, _, _ := m.userState(userID)
	seg, ok := segs[segmentID]
	if !ok {
		return nil
	}
	var pages []Page
	for _, page := range seg.Pages {
		if !page.Analyzed {
			pages = append(pages, *page)
		}
	}
	return pages
}

// ResetSegmentHeat marks the segment's pages analyzed, zeroes the visit
// and interaction counters, recomputes heat, rebuilds the heap, and
// persists. Called after a successful mid->long promotion.
func (m *MidTermStore) ResetSegmentHeat(ctx context.Context, userID, segmentID string) error {
	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()
	segs, _, _ := m.userState(userID)
	seg, ok := segs[segmentID]
	if !ok {
		m.rebuildHeap(userID)
		return nil
	}
	for _, page := range seg.Pages {
		page.Analyzed = true
	}
	seg.NVisit = 0
	seg.LInteraction = 0
	seg.LastVisitTime = m.now()
	seg.Heat = m.computeHeat(seg)
	m.rebuildHeap(userID)
	return m.persist(userID)
}

// rebuildHeap recreates the user's heap from current segment heats.
// Caller holds the user's lock.
func (m *MidTermStore) rebuildHeap(userID string) {
	segs, _, _ := m.userState(userID)
	m.mapMu.Lock()
	m.heaps[userID] = newSegmentHeap(segs)
	m.mapMu.Unlock()
}

// persist overwrites the user's mid-term shard. Caller holds the user's
// lock.
func (m *MidTermStore) persist(userID string) error {
	segs, freq, _ := m.userState(userID)
	if err := m.store.SaveMidTerm(userID, segs, freq); err != nil {
		return fmt.Errorf("persist mid-term for user %s: %w", userID, err)
	}
	return nil
}

// SegmentCount returns how many segments the user currently holds.
func (m *MidTermStore) SegmentCount(userID string) int {
	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()
	segs, _, _ := m.userState(userID)
	return len(segs)
}
