package memory

// Config holds the tier capacities and thresholds.
type Config struct {
	// ShortTermCapacity is the per-session turn budget. Adding a turn
	// beyond it overflows the oldest turn into mid-term.
	// Default: 10
	ShortTermCapacity int

	// MidTermCapacity caps segments per user; LFU eviction beyond it.
	// Default: 2000
	MidTermCapacity int

	// KnowledgeCapacity bounds each long-term ledger per user.
	// Default: 100
	KnowledgeCapacity int

	// TopicSimilarityThreshold is the minimum combined score (cosine +
	// KeywordAlpha * Jaccard) for a page to join an existing segment.
	// Default: 0.6
	TopicSimilarityThreshold float64

	// KeywordAlpha weights keyword overlap in the combined insertion score.
	// Default: 1.0
	KeywordAlpha float64

	// HeatThreshold triggers the mid->long promotion when the hottest
	// segment reaches it. Default: 5.0
	HeatThreshold float64

	// Heat function weights: H = HeatAlpha*N_visit + HeatBeta*L_interaction
	// + HeatGamma*exp(-hours_idle/RecencyTauHours).
	HeatAlpha       float64
	HeatBeta        float64
	HeatGamma       float64
	RecencyTauHours float64

	// Retrieval knobs.
	SegmentThreshold   float64 // min segment score, default 0.1
	PageThreshold      float64 // min page score, default 0.1
	KnowledgeThreshold float64 // min ledger score, default 0.01
	TopKSegments       int     // default 5
	TopKKnowledge      int     // default 20
	RetrievalPageTopK  int     // global page cap, default 7
}

// DefaultConfig is the stock tuning. Constructors fall back to it when
// handed a nil config.
var DefaultConfig = &Config{
	ShortTermCapacity:        10,
	MidTermCapacity:          2000,
	KnowledgeCapacity:        100,
	TopicSimilarityThreshold: 0.6,
	KeywordAlpha:             1.0,
	HeatThreshold:            5.0,
	HeatAlpha:                1.0,
	HeatBeta:                 1.0,
	HeatGamma:                1.0,
	RecencyTauHours:          24,
	SegmentThreshold:         0.1,
	PageThreshold:            0.1,
	KnowledgeThreshold:       0.01,
	TopKSegments:             5,
	TopKKnowledge:            20,
	RetrievalPageTopK:        7,
}
