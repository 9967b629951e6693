package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/becomeliminal/strata/memory/embedder/mock"
)

func TestEmbedIsDeterministic(t *testing.T) {
	ctx := context.Background()
	emb := mock.New()

	a, err := emb.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := emb.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("identical text must embed identically")
		}
	}

	c, _ := emb.Embed(ctx, "different text")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts should embed differently")
	}
}

func TestEmbedReturnsUnitVector(t *testing.T) {
	emb := mock.New()
	vec, err := emb.Embed(context.Background(), "check the norm")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != emb.Dimensions() {
		t.Fatalf("dims = %d, want %d", len(vec), emb.Dimensions())
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-4 {
		t.Errorf("norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestEmbedBatchLinesUp(t *testing.T) {
	ctx := context.Background()
	emb := mock.New()

	texts := []string{"one", "two", "three"}
	vecs, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("vector count = %d, want %d", len(vecs), len(texts))
	}
	for i, text := range texts {
		single, _ := emb.Embed(ctx, text)
		for j := range single {
			if vecs[i][j] != single[j] {
				t.Fatalf("batch vector %d differs from single embed", i)
			}
		}
	}
}
