// Package chromem backs the segment-summary similarity index with
// chromem-go, a pure Go embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/strata/memory"
)

// Index keeps one chromem collection of segment summary embeddings per
// user for namespace isolation.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// getOrCreateCollection returns the collection for a user.
func (idx *Index) getOrCreateCollection(userID string) (*chromem.Collection, error) {
	idx.mu.RLock()
	col, exists := idx.collections[userID]
	idx.mu.RUnlock()
	if exists {
		return col, nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Double-check after acquiring the write lock.
	if col, exists := idx.collections[userID]; exists {
		return col, nil
	}

	name := fmt.Sprintf("segments_%s", userID)
	// No embedding func: callers always supply vectors. Default distance
	// is cosine, which is what segment scoring expects.
	col, err := idx.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	idx.collections[userID] = col
	return col, nil
}

// Upsert adds or replaces a segment's summary embedding. Re-adding an
// existing segment id overwrites its previous vector.
func (idx *Index) Upsert(ctx context.Context, userID, segmentID string, embedding []float32) error {
	col, err := idx.getOrCreateCollection(userID)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        segmentID,
		Content:   segmentID, // chromem requires content; the id suffices
		Embedding: embedding,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Remove drops a segment from the index. Unknown ids are a no-op.
func (idx *Index) Remove(ctx context.Context, userID, segmentID string) error {
	idx.mu.RLock()
	col, exists := idx.collections[userID]
	idx.mu.RUnlock()
	if !exists {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, segmentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Query returns up to topK segments by cosine similarity, best first.
// An empty or missing collection yields an empty result.
func (idx *Index) Query(ctx context.Context, userID string, embedding []float32, topK int) ([]memory.SegmentMatch, error) {
	idx.mu.RLock()
	col, exists := idx.collections[userID]
	idx.mu.RUnlock()
	if !exists {
		return nil, nil
	}

	// chromem requires nResults <= collection size.
	if count := col.Count(); count < topK {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	matches := make([]memory.SegmentMatch, 0, len(results))
	for _, result := range results {
		matches = append(matches, memory.SegmentMatch{
			SegmentID: result.ID,
			Score:     float64(result.Similarity),
		})
	}
	return matches, nil
}
