package memory_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync"

	"github.com/becomeliminal/strata/memory"
)

// stubEmbedder returns preset vectors for known texts and deterministic
// hash-derived unit vectors otherwise. Preset vectors let tests control
// similarity exactly; every returned slice is a fresh copy.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dims    int
	calls   int
	failAll bool
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: make(map[string][]float32), dims: 4}
}

func (e *stubEmbedder) add(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = unit(vec)
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failAll {
		return nil, errors.New("embedder down")
	}
	if vec, ok := e.vectors[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, e.dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return unit(vec), nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return e.dims }

func unit(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v * inv
	}
	return out
}

// stubGenerator routes each task to an optional func field; unset fields
// fall back to cheap deterministic defaults.
type stubGenerator struct {
	summarize  func(pages []*memory.Page) (memory.Summary, error)
	continuity func(prev, curr *memory.Page) (bool, error)
	meta       func(lastMeta string, curr *memory.Page) (string, error)
	profile    func(pages []*memory.Page, currentProfile string) (string, error)
	knowledge  func(pages []*memory.Page) (memory.Knowledge, error)
}

func (g *stubGenerator) Summarize(ctx context.Context, pages []*memory.Page) (memory.Summary, error) {
	if g.summarize != nil {
		return g.summarize(pages)
	}
	return memory.Summary{
		Theme:    "general",
		Keywords: []string{"topic"},
		Content:  "summary: " + pages[len(pages)-1].User,
	}, nil
}

func (g *stubGenerator) CheckContinuity(ctx context.Context, prev, curr *memory.Page) (bool, error) {
	if g.continuity != nil {
		return g.continuity(prev, curr)
	}
	return false, nil
}

func (g *stubGenerator) UpdateMeta(ctx context.Context, lastMeta string, curr *memory.Page) (string, error) {
	if g.meta != nil {
		return g.meta(lastMeta, curr)
	}
	return "chain: " + curr.User, nil
}

func (g *stubGenerator) AnalyzeProfile(ctx context.Context, pages []*memory.Page, currentProfile string) (string, error) {
	if g.profile != nil {
		return g.profile(pages, currentProfile)
	}
	return "profile from " + pages[0].User, nil
}

func (g *stubGenerator) ExtractKnowledge(ctx context.Context, pages []*memory.Page) (memory.Knowledge, error) {
	if g.knowledge != nil {
		return g.knowledge(pages)
	}
	return memory.Knowledge{Private: "None", AssistantKnowledge: "None"}, nil
}

// memStore is an in-memory memory.Store with toggleable failures.
type memStore struct {
	mu          sync.Mutex
	short       map[string]map[string][]memory.Turn
	midSegments map[string]map[string]*memory.Segment
	midFreq     map[string]map[string]int
	profiles    map[string]*memory.Profile
	userKn      map[string][]memory.KnowledgeEntry
	assistantKn map[string][]memory.KnowledgeEntry

	failAppend bool
	failPop    bool
}

func newMemStore() *memStore {
	return &memStore{
		short:       make(map[string]map[string][]memory.Turn),
		midSegments: make(map[string]map[string]*memory.Segment),
		midFreq:     make(map[string]map[string]int),
		profiles:    make(map[string]*memory.Profile),
		userKn:      make(map[string][]memory.KnowledgeEntry),
		assistantKn: make(map[string][]memory.KnowledgeEntry),
	}
}

func (s *memStore) AppendShortTerm(userID, sessionID string, turn memory.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return errors.New("append refused")
	}
	sessions, ok := s.short[userID]
	if !ok {
		sessions = make(map[string][]memory.Turn)
		s.short[userID] = sessions
	}
	sessions[sessionID] = append(sessions[sessionID], turn)
	return nil
}

func (s *memStore) PopShortTerm(userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPop {
		return errors.New("pop refused")
	}
	if queue := s.short[userID][sessionID]; len(queue) > 0 {
		s.short[userID][sessionID] = queue[1:]
	}
	return nil
}

func (s *memStore) LoadShortTerm() (map[string]map[string][]memory.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string][]memory.Turn)
	for userID, sessions := range s.short {
		out[userID] = make(map[string][]memory.Turn, len(sessions))
		for sessionID, turns := range sessions {
			out[userID][sessionID] = append([]memory.Turn(nil), turns...)
		}
	}
	return out, nil
}

func (s *memStore) SaveMidTerm(userID string, segments map[string]*memory.Segment, accessFreq map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.midSegments[userID] = segments
	s.midFreq[userID] = accessFreq
	return nil
}

func (s *memStore) LoadMidTerm() (map[string]map[string]*memory.Segment, map[string]map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	segments := make(map[string]map[string]*memory.Segment, len(s.midSegments))
	for userID, segs := range s.midSegments {
		segments[userID] = segs
	}
	freq := make(map[string]map[string]int, len(s.midFreq))
	for userID, counts := range s.midFreq {
		freq[userID] = counts
	}
	return segments, freq, nil
}

func (s *memStore) SaveLongTerm(userID string, profile *memory.Profile, userKnowledge, assistantKnowledge []memory.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile != nil {
		s.profiles[userID] = profile
	}
	s.userKn[userID] = userKnowledge
	s.assistantKn[userID] = assistantKnowledge
	return nil
}

func (s *memStore) LoadLongTerm() (map[string]*memory.Profile, map[string][]memory.KnowledgeEntry, map[string][]memory.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles := make(map[string]*memory.Profile, len(s.profiles))
	for userID, prof := range s.profiles {
		profiles[userID] = prof
	}
	userKn := make(map[string][]memory.KnowledgeEntry, len(s.userKn))
	for userID, entries := range s.userKn {
		userKn[userID] = entries
	}
	assistantKn := make(map[string][]memory.KnowledgeEntry, len(s.assistantKn))
	for userID, entries := range s.assistantKn {
		assistantKn[userID] = entries
	}
	return profiles, userKn, assistantKn, nil
}
