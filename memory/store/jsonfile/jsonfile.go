// Package jsonfile persists the memory tiers as one JSON shard per user
// per tier. Writes are full-shard overwrites (last writer wins); loads are
// best-effort, substituting empty state for malformed shards.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/becomeliminal/strata/memory"
)

const (
	shortTermDir = "short_term"
	midTermDir   = "mid_term"
	longTermDir  = "long_term"
)

// Store implements memory.Store on the local filesystem:
//
//	<dir>/short_term/<user>.json  sessions -> turn lists
//	<dir>/mid_term/<user>.json    segment map + LFU counters
//	<dir>/long_term/<user>.json   profile + both knowledge ledgers
type Store struct {
	dir string
	mu  sync.Mutex // serializes read-modify-write of short-term shards
}

// New creates the store rooted at dir, creating the tier directories.
func New(dir string) (*Store, error) {
	for _, sub := range []string{shortTermDir, midTermDir, longTermDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) shardPath(tier, userID string) string {
	return filepath.Join(s.dir, tier, userID+".json")
}

func writeShard(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal shard: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write shard: %w", err)
	}
	return nil
}

// AppendShortTerm appends one turn to the session's list in the user's
// short-term shard.
func (s *Store) AppendShortTerm(userID, sessionID string, turn memory.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.shardPath(shortTermDir, userID)
	sessions := make(map[string][]memory.Turn)
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &sessions); err != nil {
			log.Printf("[STORE] Malformed short-term shard %s, rewriting: %v", path, err)
			sessions = make(map[string][]memory.Turn)
		}
	}
	sessions[sessionID] = append(sessions[sessionID], turn)
	return writeShard(path, sessions)
}

// PopShortTerm removes the session's oldest turn from the user's shard.
// Missing shards or sessions are a no-op.
func (s *Store) PopShortTerm(userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.shardPath(shortTermDir, userID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read shard: %w", err)
	}
	sessions := make(map[string][]memory.Turn)
	if err := json.Unmarshal(data, &sessions); err != nil {
		return fmt.Errorf("decode shard: %w", err)
	}
	queue, ok := sessions[sessionID]
	if !ok || len(queue) == 0 {
		return nil
	}
	sessions[sessionID] = queue[1:]
	return writeShard(path, sessions)
}

// LoadShortTerm reads every user's short-term shard. Malformed shards are
// skipped with a log line.
func (s *Store) LoadShortTerm() (map[string]map[string][]memory.Turn, error) {
	out := make(map[string]map[string][]memory.Turn)
	err := s.eachShard(shortTermDir, func(userID string, data []byte) {
		sessions := make(map[string][]memory.Turn)
		if err := json.Unmarshal(data, &sessions); err != nil {
			log.Printf("[STORE] Skipping malformed short-term shard for %s: %v", userID, err)
			return
		}
		out[userID] = sessions
	})
	return out, err
}

// midTermShard is the on-disk layout of one user's mid-term state.
type midTermShard struct {
	Segments        map[string]*memory.Segment `json:"segments"`
	AccessFrequency map[string]int             `json:"access_frequency"`
}

// SaveMidTerm overwrites the user's mid-term shard.
func (s *Store) SaveMidTerm(userID string, segments map[string]*memory.Segment, accessFreq map[string]int) error {
	return writeShard(s.shardPath(midTermDir, userID), midTermShard{
		Segments:        segments,
		AccessFrequency: accessFreq,
	})
}

// LoadMidTerm reads every user's mid-term shard. Missing fields default to
// empty maps; malformed shards are skipped with a log line.
func (s *Store) LoadMidTerm() (map[string]map[string]*memory.Segment, map[string]map[string]int, error) {
	segments := make(map[string]map[string]*memory.Segment)
	accessFreq := make(map[string]map[string]int)
	err := s.eachShard(midTermDir, func(userID string, data []byte) {
		var shard midTermShard
		if err := json.Unmarshal(data, &shard); err != nil {
			log.Printf("[STORE] Skipping malformed mid-term shard for %s: %v", userID, err)
			return
		}
		if shard.Segments == nil {
			shard.Segments = make(map[string]*memory.Segment)
		}
		if shard.AccessFrequency == nil {
			shard.AccessFrequency = make(map[string]int)
		}
		segments[userID] = shard.Segments
		accessFreq[userID] = shard.AccessFrequency
	})
	return segments, accessFreq, err
}

// longTermShard is the on-disk layout of one user's long-term state.
type longTermShard struct {
	Profile            *memory.Profile         `json:"profile,omitempty"`
	UserKnowledge      []memory.KnowledgeEntry `json:"user_knowledge"`
	AssistantKnowledge []memory.KnowledgeEntry `json:"assistant_knowledge"`
}

// SaveLongTerm overwrites the user's long-term shard.
func (s *Store) SaveLongTerm(userID string, profile *memory.Profile, userKnowledge, assistantKnowledge []memory.KnowledgeEntry) error {
	return writeShard(s.shardPath(longTermDir, userID), longTermShard{
		Profile:            profile,
		UserKnowledge:      userKnowledge,
		AssistantKnowledge: assistantKnowledge,
	})
}

// LoadLongTerm reads every user's long-term shard.
func (s *Store) LoadLongTerm() (map[string]*memory.Profile, map[string][]memory.KnowledgeEntry, map[string][]memory.KnowledgeEntry, error) {
	profiles := make(map[string]*memory.Profile)
	userKn := make(map[string][]memory.KnowledgeEntry)
	assistantKn := make(map[string][]memory.KnowledgeEntry)
	err := s.eachShard(longTermDir, func(userID string, data []byte) {
		var shard longTermShard
		if err := json.Unmarshal(data, &shard); err != nil {
			log.Printf("[STORE] Skipping malformed long-term shard for %s: %v", userID, err)
			return
		}
		if shard.Profile != nil {
			profiles[userID] = shard.Profile
		}
		if len(shard.UserKnowledge) > 0 {
			userKn[userID] = shard.UserKnowledge
		}
		if len(shard.AssistantKnowledge) > 0 {
			assistantKn[userID] = shard.AssistantKnowledge
		}
	})
	return profiles, userKn, assistantKn, err
}

// eachShard invokes fn for every <user>.json in the tier directory.
func (s *Store) eachShard(tier string, fn func(userID string, data []byte)) error {
	entries, err := os.ReadDir(filepath.Join(s.dir, tier))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s dir: %w", tier, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		userID := strings.TrimSuffix(entry.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(s.dir, tier, entry.Name()))
		if err != nil {
			log.Printf("[STORE] Skipping unreadable %s shard for %s: %v", tier, userID, err)
			continue
		}
		fn(userID, data)
	}
	return nil
}
