package memory

import (
	"container/heap"
	"math"
	"testing"
	"time"
)

func TestComputeHeat_CountsPlusRecency(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &MidTermStore{
		heatAlpha:  1,
		heatBeta:   1,
		heatGamma:  1,
		recencyTau: 24,
		now:        func() time.Time { return base },
	}
	seg := &Segment{NVisit: 2, LInteraction: 3, LastVisitTime: base}

	if heat := m.computeHeat(seg); math.Abs(heat-6) > 1e-9 {
		t.Errorf("heat at zero idle = %v, want 6", heat)
	}
	if seg.RRecency != 1 {
		t.Errorf("RRecency = %v, want 1", seg.RRecency)
	}
}

func TestComputeHeat_DecaysWithIdleTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m := &MidTermStore{
		heatAlpha:  1,
		heatBeta:   1,
		heatGamma:  1,
		recencyTau: 24,
		now:        func() time.Time { return now },
	}
	seg := &Segment{LastVisitTime: base}

	prev := m.computeHeat(seg)
	for hours := 1; hours <= 72; hours *= 2 {
		now = base.Add(time.Duration(hours) * time.Hour)
		cur := m.computeHeat(seg)
		if cur >= prev {
			t.Fatalf("heat did not decay: %v -> %v after %dh idle", prev, cur, hours)
		}
		prev = cur
	}

	// One tau of idleness decays recency to 1/e.
	now = base.Add(24 * time.Hour)
	want := math.Exp(-1)
	if heat := m.computeHeat(seg); math.Abs(heat-want) > 1e-9 {
		t.Errorf("heat after one tau = %v, want %v", heat, want)
	}
}

func TestComputeHeat_NeverVisited(t *testing.T) {
	m := &MidTermStore{heatGamma: 1, recencyTau: 24, now: time.Now}
	seg := &Segment{}
	if heat := m.computeHeat(seg); heat != 1 {
		t.Errorf("fresh segment heat = %v, want recency 1", heat)
	}
}

func TestSegmentHeap_PeekReturnsHottest(t *testing.T) {
	h := newSegmentHeap(map[string]*Segment{
		"seg_a": {Heat: 2.5},
		"seg_b": {Heat: 7.1},
		"seg_c": {Heat: 4.0},
	})
	entry, ok := h.peek()
	if !ok {
		t.Fatal("expected non-empty heap")
	}
	if entry.segmentID != "seg_b" || entry.heat != 7.1 {
		t.Errorf("peek = %+v, want seg_b/7.1", entry)
	}
}

func TestSegmentHeap_TieBreaksByID(t *testing.T) {
	h := newSegmentHeap(map[string]*Segment{
		"seg_z": {Heat: 3},
		"seg_a": {Heat: 3},
		"seg_m": {Heat: 3},
	})
	entry, _ := h.peek()
	if entry.segmentID != "seg_a" {
		t.Errorf("equal-heat peek = %q, want smallest id seg_a", entry.segmentID)
	}
}

func TestSegmentHeap_Empty(t *testing.T) {
	h := newSegmentHeap(nil)
	if _, ok := h.peek(); ok {
		t.Error("empty heap must report no entry")
	}
}

func TestSegmentHeap_PushReorders(t *testing.T) {
	h := newSegmentHeap(map[string]*Segment{"seg_a": {Heat: 1}})
	heap.Push(h, heatEntry{segmentID: "seg_b", heat: 9})
	entry, _ := h.peek()
	if entry.segmentID != "seg_b" {
		t.Errorf("peek after push = %q, want seg_b", entry.segmentID)
	}
}

func TestScoredPageHeap_KeepsTopK(t *testing.T) {
	var h scoredPageHeap
	scores := []float64{0.2, 0.9, 0.5, 0.7, 0.1, 0.8}
	for i, score := range scores {
		h.offer(RetrievedPage{Page: Page{ID: string(rune('a' + i))}, Score: score}, 3)
	}
	if h.Len() != 3 {
		t.Fatalf("heap size = %d, want 3", h.Len())
	}
	kept := map[float64]bool{}
	for _, page := range h {
		kept[page.Score] = true
	}
	for _, want := range []float64{0.9, 0.8, 0.7} {
		if !kept[want] {
			t.Errorf("top score %v missing from %v", want, kept)
		}
	}
}

func TestScoredPageHeap_ZeroCapacity(t *testing.T) {
	var h scoredPageHeap
	h.offer(RetrievedPage{Score: 1}, 0)
	if h.Len() != 0 {
		t.Error("zero capacity heap must stay empty")
	}
}
