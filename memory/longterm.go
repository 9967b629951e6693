package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// LongTermStore holds each user's profile narrative and two
// capacity-bounded knowledge ledgers (user facts, assistant facts).
// Ledgers evict oldest-first on overflow; searches build a transient
// similarity ranking over the current entries.
type LongTermStore struct {
	embedder Embedder
	store    Store
	capacity int

	mu                 sync.RWMutex
	profiles           map[string]*Profile
	userKnowledge      map[string][]KnowledgeEntry
	assistantKnowledge map[string][]KnowledgeEntry

	now func() time.Time
}

// NewLongTermStore creates the store and restores persisted profiles and
// ledgers. A load failure is logged and the store starts empty.
func NewLongTermStore(embedder Embedder, store Store, knowledgeCapacity int) *LongTermStore {
	s := &LongTermStore{
		embedder:           embedder,
		store:              store,
		capacity:           knowledgeCapacity,
		profiles:           make(map[string]*Profile),
		userKnowledge:      make(map[string][]KnowledgeEntry),
		assistantKnowledge: make(map[string][]KnowledgeEntry),
		now:                time.Now,
	}
	profiles, userKn, assistantKn, err := store.LoadLongTerm()
	if err != nil {
		log.Printf("[LONG-TERM] Load failed, starting empty: %v", err)
		return s
	}
	if profiles != nil {
		s.profiles = profiles
	}
	if userKn != nil {
		s.userKnowledge = userKn
	}
	if assistantKn != nil {
		s.assistantKnowledge = assistantKn
	}
	// Re-apply the capacity bound in case it shrank between runs.
	for userID := range s.userKnowledge {
		s.userKnowledge[userID] = trimLedger(s.userKnowledge[userID], s.capacity)
	}
	for userID := range s.assistantKnowledge {
		s.assistantKnowledge[userID] = trimLedger(s.assistantKnowledge[userID], s.capacity)
	}
	return s
}

func trimLedger(entries []KnowledgeEntry, capacity int) []KnowledgeEntry {
	if len(entries) <= capacity {
		return entries
	}
	return entries[len(entries)-capacity:]
}

// GetProfile returns the user's profile, ok=false when none exists.
func (s *LongTermStore) GetProfile(userID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prof, ok := s.profiles[userID]
	if !ok {
		return Profile{}, false
	}
	return *prof, true
}

// UpdateProfile replaces the user's profile narrative, or appends to it
// with a timestamped separator when merge is set. Persisted immediately.
func (s *LongTermStore) UpdateProfile(userID, data string, merge bool) error {
	s.mu.Lock()
	now := s.now()
	if merge {
		if existing, ok := s.profiles[userID]; ok && existing.Data != "" {
			data = fmt.Sprintf("%s\n\n--- Updated on %s ---\n%s",
				existing.Data, now.Format("2006-01-02 15:04:05"), data)
		}
	}
	s.profiles[userID] = &Profile{Data: data, LastUpdated: now}
	s.mu.Unlock()
	return s.persist(userID)
}

// AddUserKnowledge embeds text and appends it to the user-facts ledger,
// dropping the oldest entry on overflow.
func (s *LongTermStore) AddUserKnowledge(ctx context.Context, userID, text string) error {
	return s.addKnowledge(ctx, userID, text, s.userKnowledge)
}

// AddAssistantKnowledge is AddUserKnowledge for the assistant-facts ledger.
func (s *LongTermStore) AddAssistantKnowledge(ctx context.Context, userID, text string) error {
	return s.addKnowledge(ctx, userID, text, s.assistantKnowledge)
}

func (s *LongTermStore) addKnowledge(ctx context.Context, userID, text string, ledgers map[string][]KnowledgeEntry) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed knowledge: %w", err)
	}
	entry := KnowledgeEntry{
		Knowledge: text,
		Timestamp: s.now(),
		Embedding: normalize(vec),
	}

	s.mu.Lock()
	ledger := append(ledgers[userID], entry)
	if len(ledger) > s.capacity {
		ledger = ledger[1:]
	}
	ledgers[userID] = ledger
	s.mu.Unlock()
	return s.persist(userID)
}

// SearchUserKnowledge ranks the user-facts ledger against the query and
// returns up to topK entries scoring at or above threshold, best first.
// An empty ledger yields an empty result.
func (s *LongTermStore) SearchUserKnowledge(ctx context.Context, userID, query string, threshold float64, topK int) ([]KnowledgeEntry, error) {
	return s.searchLedger(ctx, userID, query, threshold, topK, s.userKnowledge)
}

// SearchAssistantKnowledge is SearchUserKnowledge for assistant facts.
func (s *LongTermStore) SearchAssistantKnowledge(ctx context.Context, userID, query string, threshold float64, topK int) ([]KnowledgeEntry, error) {
	return s.searchLedger(ctx, userID, query, threshold, topK, s.assistantKnowledge)
}

func (s *LongTermStore) searchLedger(ctx context.Context, userID, query string, threshold float64, topK int, ledgers map[string][]KnowledgeEntry) ([]KnowledgeEntry, error) {
	s.mu.RLock()
	empty := len(ledgers[userID]) == 0
	s.mu.RUnlock()
	if empty {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec = normalize(queryVec)

	type scored struct {
		entry KnowledgeEntry
		score float64
	}
	s.mu.RLock()
	var hits []scored
	for _, entry := range ledgers[userID] {
		if len(entry.Embedding) == 0 {
			log.Printf("[LONG-TERM] Skipping ledger entry without embedding: %.40q", entry.Knowledge)
			continue
		}
		if score := dot(queryVec, entry.Embedding); score >= threshold {
			hits = append(hits, scored{entry: entry, score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	results := make([]KnowledgeEntry, len(hits))
	for i, h := range hits {
		results[i] = h.entry
	}
	return results, nil
}

// persist overwrites the user's long-term shard.
func (s *LongTermStore) persist(userID string) error {
	s.mu.RLock()
	profile := s.profiles[userID]
	userKn := s.userKnowledge[userID]
	assistantKn := s.assistantKnowledge[userID]
	s.mu.RUnlock()
	if err := s.store.SaveLongTerm(userID, profile, userKn, assistantKn); err != nil {
		return fmt.Errorf("persist long-term for user %s: %w", userID, err)
	}
	return nil
}
