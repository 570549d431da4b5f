package process

import "container/heap"

// socketHeap is a min-heap of session sockets ordered by Utilization,
// ties broken by insertion order (spec §5 "ties are broken by insertion
// order in the priority queue (stable)"). It implements container/heap.Interface
// per the "indexed binary heap" suggestion in spec §9.
type socketHeap []*Socket

func (h socketHeap) Len() int { return len(h) }

func (h socketHeap) Less(i, j int) bool {
	ui, uj := h[i].Utilization(), h[j].Utilization()
	if ui != uj {
		return ui < uj
	}
	return h[i].seq < h[j].seq
}

func (h socketHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *socketHeap) Push(x any) {
	s := x.(*Socket)
	s.heapIndex = len(*h)
	*h = append(*h, s)
}

func (h *socketHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	s.heapIndex = -1
	return s
}

// fix re-establishes heap order for socket s after its Sessions count changed.
func (h *socketHeap) fix(s *Socket) {
	if s.heapIndex >= 0 && s.heapIndex < h.Len() {
		heap.Fix(h, s.heapIndex)
	}
}
