package memory

import "container/heap"

// heatEntry pairs a segment id with the heat it carried when the heap was
// last rebuilt.
type heatEntry struct {
	segmentID string
	heat      float64
}

// segmentHeap is a max-heap of segments keyed by heat. It is rebuilt after
// every mutation that can change heat ordering, so a peek always reflects
// the current ordering.
type segmentHeap []heatEntry

func (h segmentHeap) Len() int { return len(h) }

func (h segmentHeap) Less(i, j int) bool {
	if h[i].heat == h[j].heat {
		return h[i].segmentID < h[j].segmentID
	}
	return h[i].heat > h[j].heat
}

func (h segmentHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *segmentHeap) Push(x any) { *h = append(*h, x.(heatEntry)) }

func (h *segmentHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// peek returns the hottest entry without removing it.
func (h segmentHeap) peek() (heatEntry, bool) {
	if len(h) == 0 {
		return heatEntry{}, false
	}
	return h[0], true
}

// newSegmentHeap builds a heap from a segment map.
func newSegmentHeap(segments map[string]*Segment) *segmentHeap {
	h := make(segmentHeap, 0, len(segments))
	for id, seg := range segments {
		h = append(h, heatEntry{segmentID: id, heat: seg.Heat})
	}
	heap.Init(&h)
	return &h
}

// scoredPageHeap is a bounded min-heap used to retain the globally best
// pages during retrieval: push while under capacity, then swap out the
// minimum whenever a better page arrives.
type scoredPageHeap []RetrievedPage

func (h scoredPageHeap) Len() int           { return len(h) }
func (h scoredPageHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h scoredPageHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredPageHeap) Push(x any) { *h = append(*h, x.(RetrievedPage)) }

func (h *scoredPageHeap) Pop() any {
	old := *h
	n := len(old)
	page := old[n-1]
	*h = old[:n-1]
	return page
}

// offer inserts page if the heap is under capacity or page beats the
// current minimum.
func (h *scoredPageHeap) offer(page RetrievedPage, capacity int) {
	if capacity <= 0 {
		return
	}
	if h.Len() < capacity {
		heap.Push(h, page)
		return
	}
	if page.Score > (*h)[0].Score {
		(*h)[0] = page
		heap.Fix(h, 0)
	}
}
