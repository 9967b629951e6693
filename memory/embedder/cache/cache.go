// Package cache wraps an embedder with an in-process ristretto cache keyed
// by the exact input text. Page text is re-embedded on every insert and
// query text often repeats across retrieval branches, so the hit rate in
// practice is high.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/strata/memory"
)

// Embedder caches successful Embed results from an inner embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache holding up to maxEntries vectors.
func New(inner memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: c}, nil
}

// Embed returns the cached vector for text, or embeds and caches it.
// Callers must not mutate the returned slice.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if val, ok := e.cache.Get(text); ok {
		if vec, ok := val.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, 1)
	return vec, nil
}

// EmbedBatch serves cached texts directly and forwards only the misses to
// the inner embedder in one call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if val, ok := e.cache.Get(text); ok {
			if vec, ok := val.([]float32); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := e.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		e.cache.Set(missing[j], vec, 1)
	}
	return out, nil
}

// Dimensions returns the inner embedder's dimensions.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are applied. Intended for tests.
func (e *Embedder) Wait() {
	e.cache.Wait()
}
