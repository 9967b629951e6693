package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Promoter moves data down the tiers: short->mid when a session buffer
// overflows, mid->long when a segment runs hot.
type Promoter struct {
	gen   Generator
	short *ShortTermStore
	mid   *MidTermStore
	long  *LongTermStore

	heatThreshold float64

	mu sync.Mutex
	// lastPages snapshots the most recent page per (user, session) for the
	// continuity check, recorded whether or not the check succeeded.
	lastPages map[string]map[string]Page
}

// NewPromoter wires the promotion pipeline across the three tiers.
func NewPromoter(gen Generator, short *ShortTermStore, mid *MidTermStore, long *LongTermStore, heatThreshold float64) *Promoter {
	return &Promoter{
		gen:           gen,
		short:         short,
		mid:           mid,
		long:          long,
		heatThreshold: heatThreshold,
		lastPages:     make(map[string]map[string]Page),
	}
}

// PromoteOverflow pops the session's oldest turn, wraps it as a page,
// links it into the session's page chain when the conversation continues
// the previous topic, and inserts it into mid-term. A no-op when the
// buffer has nothing to pop.
func (p *Promoter) PromoteOverflow(ctx context.Context, userID, sessionID string) error {
	turn, err := p.short.PopOldest(userID, sessionID)
	if err != nil {
		return fmt.Errorf("pop short-term: %w", err)
	}
	if turn == nil {
		return nil
	}

	page := &Page{
		ID:        newID("page"),
		User:      turn.User,
		Assistant: turn.Assistant,
		Timestamp: turn.Timestamp,
	}

	last, hasLast := p.lastPage(userID, sessionID)
	continuous := false
	if hasLast {
		continuous, err = p.gen.CheckContinuity(ctx, &last, page)
		if err != nil {
			return fmt.Errorf("continuity check: %w", err)
		}
	}

	if continuous {
		page.PrePage = last.ID
		meta, err := p.gen.UpdateMeta(ctx, last.MetaInfo, page)
		if err != nil {
			return fmt.Errorf("update meta narrative: %w", err)
		}
		page.MetaInfo = meta
		// When the predecessor already lives mid-term, the whole chain
		// picks up the merged narrative.
		if _, ok := p.mid.GetPage(userID, last.ID); ok {
			if err := p.mid.PropagateMeta(userID, last.ID, meta); err != nil {
				return fmt.Errorf("propagate meta narrative: %w", err)
			}
		}
	} else {
		meta, err := p.gen.UpdateMeta(ctx, "", page)
		if err != nil {
			return fmt.Errorf("generate meta narrative: %w", err)
		}
		page.MetaInfo = meta
	}

	p.setLastPage(userID, sessionID, *page)

	sum, err := p.gen.Summarize(ctx, []*Page{page})
	if err != nil {
		return fmt.Errorf("summarize page: %w", err)
	}
	return p.mid.Insert(ctx, userID, sum.Content, sum.Keywords, page)
}

// PromoteHotSegment inspects the user's hottest segment and, when its heat
// reaches the threshold and it holds unanalyzed pages, runs the profile
// regeneration and knowledge extraction as two parallel tasks. Both must
// succeed before any side effect lands; a partial failure aborts so the
// segment stays hot for retry on the next save.
func (p *Promoter) PromoteHotSegment(ctx context.Context, userID string) error {
	segmentID, heat, ok := p.mid.HottestSegment(userID)
	if !ok || heat < p.heatThreshold {
		return nil
	}

	pages := p.mid.UnanalyzedPages(userID, segmentID)
	if len(pages) == 0 {
		log.Printf("[PROMOTER] Hot segment %s has no unanalyzed pages, skipping", segmentID)
		return nil
	}
	log.Printf("[PROMOTER] Segment %s heat %.2f >= %.2f, updating profile/knowledge from %d pages",
		segmentID, heat, p.heatThreshold, len(pages))

	currentProfile := "No existing profile data."
	if prof, ok := p.long.GetProfile(userID); ok && prof.Data != "" {
		currentProfile = prof.Data
	}

	pagePtrs := make([]*Page, len(pages))
	for i := range pages {
		pagePtrs[i] = &pages[i]
	}

	var (
		wg           sync.WaitGroup
		profile      string
		profileErr   error
		knowledge    Knowledge
		knowledgeErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				profileErr = fmt.Errorf("profile analysis panicked: %v", r)
			}
		}()
		profile, profileErr = p.gen.AnalyzeProfile(ctx, pagePtrs, currentProfile)
	}()
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				knowledgeErr = fmt.Errorf("knowledge extraction panicked: %v", r)
			}
		}()
		knowledge, knowledgeErr = p.gen.ExtractKnowledge(ctx, pagePtrs)
	}()
	wg.Wait()

	if profileErr != nil {
		return fmt.Errorf("hot segment promotion aborted: %w", profileErr)
	}
	if knowledgeErr != nil {
		return fmt.Errorf("hot segment promotion aborted: %w", knowledgeErr)
	}

	if profile != "" && !strings.EqualFold(profile, "none") {
		// Full regeneration replaces the profile outright.
		if err := p.long.UpdateProfile(userID, profile, false); err != nil {
			return err
		}
	}
	for _, line := range knowledgeLines(knowledge.Private) {
		if err := p.long.AddUserKnowledge(ctx, userID, line); err != nil {
			return err
		}
	}
	for _, line := range knowledgeLines(knowledge.AssistantKnowledge) {
		if err := p.long.AddAssistantKnowledge(ctx, userID, line); err != nil {
			return err
		}
	}

	if err := p.mid.ResetSegmentHeat(ctx, userID, segmentID); err != nil {
		return err
	}
	log.Printf("[PROMOTER] Profile/knowledge update for segment %s complete, heat reset", segmentID)
	return nil
}

// knowledgeLines splits extracted knowledge into ledger entries, dropping
// empty and "none" placeholder lines.
func knowledgeLines(text string) []string {
	if strings.EqualFold(strings.TrimSpace(text), "none") {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "", "none", "- none", "- none.":
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func (p *Promoter) lastPage(userID, sessionID string) (Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	page, ok := p.lastPages[userID][sessionID]
	return page, ok
}

func (p *Promoter) setLastPage(userID, sessionID string, page Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sessions, ok := p.lastPages[userID]
	if !ok {
		sessions = make(map[string]Page)
		p.lastPages[userID] = sessions
	}
	sessions[sessionID] = page
}
