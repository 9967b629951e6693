package memory

import (
	"context"
	"time"
)

// Turn is one user/assistant exchange, the atomic unit of conversation.
// Turns are immutable once created.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// Page is a Turn promoted into mid-term memory, enriched with an embedding,
// keywords, and chain pointers.
//
// PrePage/NextPage form a doubly-linked chain across pages judged topically
// continuous. The pointers are symmetric: whenever A.NextPage = B, B.PrePage
// = A. A page belongs to exactly one segment at a time; chain pointers may
// reference pages in sibling segments but never imply ownership.
type Page struct {
	ID        string    `json:"page_id"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
	Embedding []float32 `json:"page_embedding,omitempty"`
	Keywords  []string  `json:"page_keywords,omitempty"`

	// Analyzed marks pages that have already contributed to a long-term
	// profile/knowledge update.
	Analyzed bool `json:"analyzed"`

	PrePage  string `json:"pre_page,omitempty"`
	NextPage string `json:"next_page,omitempty"`

	// MetaInfo is the running narrative of the chain this page belongs to.
	MetaInfo string `json:"meta_info,omitempty"`
}

// Text returns the concatenated exchange used for page embedding.
func (p *Page) Text() string {
	return "User: " + p.User + " Assistant: " + p.Assistant
}

// Segment is a semantic cluster of pages for one user, with a running
// summary re-derived from its full page list and a heat score that drives
// hot-segment promotion.
type Segment struct {
	ID               string    `json:"id"`
	Summary          string    `json:"summary"`
	SummaryKeywords  []string  `json:"summary_keywords"`
	SummaryEmbedding []float32 `json:"summary_embedding"`
	Pages            []*Page   `json:"details"`

	// LInteraction counts pages merged into the segment since the last
	// heat reset; NVisit counts search hits since the last reset.
	LInteraction int `json:"l_interaction"`
	NVisit       int `json:"n_visit"`

	// RRecency is the decay factor computed at the last heat refresh.
	RRecency float64 `json:"r_recency"`
	Heat     float64 `json:"h_segment"`

	CreatedAt     time.Time `json:"timestamp"`
	LastVisitTime time.Time `json:"last_visit_time"`

	// AccessCountLFU is monotonic and never reset; it drives LFU eviction.
	AccessCountLFU int `json:"access_count_lfu"`
}

// Profile is a user's long-term narrative profile.
type Profile struct {
	Data        string    `json:"data"`
	LastUpdated time.Time `json:"last_updated"`
}

// KnowledgeEntry is one entry in a capacity-bounded knowledge ledger.
// Ledgers evict oldest-first on overflow.
type KnowledgeEntry struct {
	Knowledge string    `json:"knowledge"`
	Timestamp time.Time `json:"timestamp"`
	Embedding []float32 `json:"knowledge_embedding"`
}

// Summary is the structured output of the Generator's summarize task.
type Summary struct {
	Theme    string   `json:"theme"`
	Keywords []string `json:"keywords"`
	Content  string   `json:"content"`
}

// Knowledge is the structured output of the Generator's extraction task.
// Either field may be "None" when the dialogue yielded nothing.
type Knowledge struct {
	Private            string `json:"private"`
	AssistantKnowledge string `json:"assistant_knowledge"`
}

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing/local), onnx.Embedder (local
// semantic search), cache.Embedder (ristretto-backed decorator).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts several texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Generator is the text-generation collaborator the tiers consume as a
// black box. Implementations: claude.Generator (Claude API), test stubs.
type Generator interface {
	// Summarize produces a theme/keywords/content summary for a page list.
	Summarize(ctx context.Context, pages []*Page) (Summary, error)

	// CheckContinuity reports whether curr is a true topical continuation
	// of prev.
	CheckContinuity(ctx context.Context, prev, curr *Page) (bool, error)

	// UpdateMeta merges the previous chain narrative with a new exchange.
	// lastMeta is empty when the page starts a fresh chain.
	UpdateMeta(ctx context.Context, lastMeta string, curr *Page) (string, error)

	// AnalyzeProfile regenerates the user profile narrative from new pages
	// and the current profile text.
	AnalyzeProfile(ctx context.Context, pages []*Page, currentProfile string) (string, error)

	// ExtractKnowledge pulls user-private and assistant knowledge out of
	// the given pages.
	ExtractKnowledge(ctx context.Context, pages []*Page) (Knowledge, error)
}

// SegmentMatch is one hit from a SegmentIndex query.
type SegmentMatch struct {
	SegmentID string
	Score     float64
}

// SegmentIndex is the similarity search over a user's segment summary
// embeddings. Implementation: chromem.Index (embedded vector database).
type SegmentIndex interface {
	// Upsert adds or replaces a segment's summary embedding.
	Upsert(ctx context.Context, userID, segmentID string, embedding []float32) error

	// Remove drops a segment from the index.
	Remove(ctx context.Context, userID, segmentID string) error

	// Query returns up to topK segments by cosine similarity, best first.
	Query(ctx context.Context, userID string, embedding []float32, topK int) ([]SegmentMatch, error)
}

// Store is the persistence backend. One record per user per tier;
// short-term keyed additionally by session. Writes are last-writer-wins
// per user shard. Implementation: jsonfile.Store.
type Store interface {
	// Short-term tier: per-turn append/remove, full load at startup.
	AppendShortTerm(userID, sessionID string, turn Turn) error
	PopShortTerm(userID, sessionID string) error
	LoadShortTerm() (map[string]map[string][]Turn, error)

	// Mid-term tier: full overwrite of a user's segment map + LFU counters.
	SaveMidTerm(userID string, segments map[string]*Segment, accessFreq map[string]int) error
	LoadMidTerm() (map[string]map[string]*Segment, map[string]map[string]int, error)

	// Long-term tier: full overwrite of a user's profile + both ledgers.
	SaveLongTerm(userID string, profile *Profile, userKnowledge, assistantKnowledge []KnowledgeEntry) error
	LoadLongTerm() (map[string]*Profile, map[string][]KnowledgeEntry, map[string][]KnowledgeEntry, error)
}
