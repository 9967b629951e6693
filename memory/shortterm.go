package memory

import (
	"log"
	"sync"
)

// ShortTermStore is the per (user, session) FIFO buffer of raw turns.
//
// The buffer is allowed to grow one turn past its capacity: IsFull reports
// the overflow and the promotion pipeline pops the oldest turn into
// mid-term, restoring the bound. Missing-key lookups return empty results,
// never errors.
type ShortTermStore struct {
	capacity int
	store    Store

	mu    sync.Mutex
	turns map[string]map[string][]Turn
}

// NewShortTermStore creates the buffer and restores persisted turns.
// A load failure is logged and the store starts empty.
func NewShortTermStore(store Store, capacity int) *ShortTermStore {
	s := &ShortTermStore{
		capacity: capacity,
		store:    store,
		turns:    make(map[string]map[string][]Turn),
	}
	loaded, err := store.LoadShortTerm()
	if err != nil {
		log.Printf("[SHORT-TERM] Load failed, starting empty: %v", err)
		return s
	}
	for userID, sessions := range loaded {
		s.turns[userID] = make(map[string][]Turn, len(sessions))
		for sessionID, turns := range sessions {
			s.turns[userID][sessionID] = turns
		}
	}
	return s
}

// Add appends a turn to the session's queue. The turn is durably appended
// in the backing store before the in-memory state changes; a store failure
// leaves the buffer untouched.
func (s *ShortTermStore) Add(userID, sessionID string, turn Turn) error {
	if err := s.store.AppendShortTerm(userID, sessionID, turn); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, ok := s.turns[userID]
	if !ok {
		sessions = make(map[string][]Turn)
		s.turns[userID] = sessions
	}
	sessions[sessionID] = append(sessions[sessionID], turn)
	return nil
}

// IsFull reports whether the session holds more turns than its capacity,
// i.e. the oldest turn is due for promotion.
func (s *ShortTermStore) IsFull(userID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns[userID][sessionID]) > s.capacity
}

// PopOldest removes and returns the head turn, or nil if the session is
// empty. The removal is mirrored to the backing store before returning.
func (s *ShortTermStore) PopOldest(userID, sessionID string) (*Turn, error) {
	s.mu.Lock()
	queue := s.turns[userID][sessionID]
	if len(queue) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	head := queue[0]
	s.mu.Unlock()

	if err := s.store.PopShortTerm(userID, sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if queue := s.turns[userID][sessionID]; len(queue) > 0 {
		s.turns[userID][sessionID] = queue[1:]
	}
	s.mu.Unlock()
	log.Printf("[SHORT-TERM] Popped oldest turn for user=%s session=%s", userID, sessionID)
	return &head, nil
}

// History returns a copy of the session's turns in insertion order.
func (s *ShortTermStore) History(userID, sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.turns[userID][sessionID]
	if len(queue) == 0 {
		return nil
	}
	out := make([]Turn, len(queue))
	copy(out, queue)
	return out
}

// Len returns the session's current turn count.
func (s *ShortTermStore) Len(userID, sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns[userID][sessionID])
}
