package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Manager is the single entry point to the tiered memory engine.
//
// SaveTurn runs the full promotion pipeline synchronously: the turn lands
// short-term; on overflow the oldest turn is promoted into mid-term; and
// the user's hottest segment is checked for mid->long promotion. Search
// fans out across the searchable tiers and returns one ranked bundle.
type Manager struct {
	cfg       *Config
	shortTerm *ShortTermStore
	midTerm   *MidTermStore
	longTerm  *LongTermStore
	promoter  *Promoter
	retriever *Retriever
	locks     *userLocks
}

// NewManager assembles the engine. Persisted state for all three tiers is
// restored, heaps rebuilt, and the segment index reseeded. A nil config
// falls back to DefaultConfig.
func NewManager(ctx context.Context, store Store, index SegmentIndex, embedder Embedder, gen Generator, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig
	}
	short := NewShortTermStore(store, cfg.ShortTermCapacity)
	mid := NewMidTermStore(ctx, embedder, gen, store, index, cfg)
	long := NewLongTermStore(embedder, store, cfg.KnowledgeCapacity)
	return &Manager{
		cfg:       cfg,
		shortTerm: short,
		midTerm:   mid,
		longTerm:  long,
		promoter:  NewPromoter(gen, short, mid, long, cfg.HeatThreshold),
		retriever: NewRetriever(mid, long),
		locks:     newUserLocks(),
	}
}

// ShortTerm exposes the short-term tier (session history readback).
func (m *Manager) ShortTerm() *ShortTermStore { return m.shortTerm }

// MidTerm exposes the mid-term tier.
func (m *Manager) MidTerm() *MidTermStore { return m.midTerm }

// LongTerm exposes the long-term tier.
func (m *Manager) LongTerm() *LongTermStore { return m.longTerm }

// SaveTurn records one exchange and drives promotion. Steps run strictly
// in sequence per call; calls for different users proceed independently.
// On failure the turn either landed short-term or the buffer is untouched;
// the caller surfaces the error.
func (m *Manager) SaveTurn(ctx context.Context, userID, sessionID string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	lk := m.locks.get(userID)
	lk.Lock()
	defer lk.Unlock()

	if err := m.shortTerm.Add(userID, sessionID, turn); err != nil {
		return fmt.Errorf("append short-term: %w", err)
	}
	if m.shortTerm.IsFull(userID, sessionID) {
		if err := m.promoter.PromoteOverflow(ctx, userID, sessionID); err != nil {
			return fmt.Errorf("promote overflow: %w", err)
		}
	}
	if err := m.promoter.PromoteHotSegment(ctx, userID); err != nil {
		return fmt.Errorf("promote hot segment: %w", err)
	}
	return nil
}

// Search returns the ranked context bundle for a query using the engine's
// configured thresholds. Branch failures degrade to empty lists.
func (m *Manager) Search(ctx context.Context, userID, query string) *RetrievedContext {
	return m.retriever.Search(ctx, userID, query, RetrievalOptions{
		SegmentThreshold:   m.cfg.SegmentThreshold,
		PageThreshold:      m.cfg.PageThreshold,
		KnowledgeThreshold: m.cfg.KnowledgeThreshold,
		TopKSegments:       m.cfg.TopKSegments,
		TopKKnowledge:      m.cfg.TopKKnowledge,
		TopKPages:          m.cfg.RetrievalPageTopK,
	})
}

// ContextBundle is the formatted view of everything the engine knows that
// is relevant to one query: session history, recalled mid-term pages, the
// user's background (profile + facts), and assistant knowledge.
type ContextBundle struct {
	ShortTerm          string
	MidTerm            string
	UserBackground     string
	AssistantKnowledge string
	RetrievedAt        time.Time
}

// Context retrieves and formats the memory context for a query, ready for
// prompt assembly by the caller.
func (m *Manager) Context(ctx context.Context, userID, sessionID, query string) *ContextBundle {
	retrieved := m.Search(ctx, userID, query)

	var shortTerm strings.Builder
	for _, turn := range m.shortTerm.History(userID, sessionID) {
		fmt.Fprintf(&shortTerm, "User: %s\nAssistant: %s (Time: %s)\n",
			turn.User, turn.Assistant, turn.Timestamp.Format("2006-01-02 15:04:05"))
	}

	var midTerm strings.Builder
	for _, page := range retrieved.Pages {
		overview := page.Page.MetaInfo
		if overview == "" {
			overview = "N/A"
		}
		fmt.Fprintf(&midTerm, "[Historical Memory]\nUser: %s\nAssistant: %s\nTime: %s\nConversation chain overview: %s\n",
			page.Page.User, page.Page.Assistant,
			page.Page.Timestamp.Format("2006-01-02 15:04:05"), overview)
	}

	profileText := "No detailed profile available yet."
	if prof, ok := m.longTerm.GetProfile(userID); ok && prof.Data != "" {
		profileText = prof.Data
	}
	var background strings.Builder
	fmt.Fprintf(&background, "[User Profile]\n%s\n", profileText)
	if len(retrieved.UserKnowledge) > 0 {
		background.WriteString("\n[Relevant User Knowledge Entries]\n")
		for _, entry := range retrieved.UserKnowledge {
			fmt.Fprintf(&background, "- %s (Recorded: %s)\n",
				entry.Knowledge, entry.Timestamp.Format("2006-01-02 15:04:05"))
		}
	}

	var assistantKn strings.Builder
	assistantKn.WriteString("[Assistant Knowledge Base]\n")
	if len(retrieved.AssistantKnowledge) > 0 {
		for _, entry := range retrieved.AssistantKnowledge {
			fmt.Fprintf(&assistantKn, "- %s (Recorded: %s)\n",
				entry.Knowledge, entry.Timestamp.Format("2006-01-02 15:04:05"))
		}
	} else {
		assistantKn.WriteString("- No relevant assistant knowledge found for this query.\n")
	}

	return &ContextBundle{
		ShortTerm:          shortTerm.String(),
		MidTerm:            midTerm.String(),
		UserBackground:     background.String(),
		AssistantKnowledge: assistantKn.String(),
		RetrievedAt:        retrieved.RetrievedAt,
	}
}
