package group

import (
	"container/heap"

	"github.com/procpool/procpool/internal/process"
)

// pqEntry wraps a Process for the routing priority queue, carrying the
// insertion-order tiebreak and heap index (spec §5 "ties are broken by
// insertion order in the priority queue (stable)").
type pqEntry struct {
	proc  *process.Process
	seq   int
	index int
}

// processPQ is a min-heap over enabled processes keyed by utilization,
// the "indexed binary heap" spec §9 calls for at the Group level
// (original_source Group.h's boost::intrusive priority_queue<Process>).
type processPQ struct {
	entries []*pqEntry
	byProc  map[*process.Process]*pqEntry
	nextSeq int
}

func newProcessPQ() *processPQ {
	return &processPQ{byProc: make(map[*process.Process]*pqEntry)}
}

func (q *processPQ) Len() int { return len(q.entries) }

func (q *processPQ) Less(i, j int) bool {
	ui, uj := q.entries[i].proc.Utilization(), q.entries[j].proc.Utilization()
	if ui != uj {
		return ui < uj
	}
	return q.entries[i].seq < q.entries[j].seq
}

func (q *processPQ) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].index = i
	q.entries[j].index = j
}

func (q *processPQ) Push(x any) {
	e := x.(*pqEntry)
	e.index = len(q.entries)
	q.entries = append(q.entries, e)
}

func (q *processPQ) Pop() any {
	old := q.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	q.entries = old[:n-1]
	e.index = -1
	return e
}

// Insert adds p to the queue.
func (q *processPQ) Insert(p *process.Process) {
	e := &pqEntry{proc: p, seq: q.nextSeq}
	q.nextSeq++
	q.byProc[p] = e
	heap.Push(q, e)
}

// Remove takes p out of the queue entirely (spec: process leaves `enabled`).
func (q *processPQ) Remove(p *process.Process) {
	e, ok := q.byProc[p]
	if !ok {
		return
	}
	heap.Remove(q, e.index)
	delete(q.byProc, p)
}

// Fix re-establishes heap order for p after its utilization changed.
func (q *processPQ) Fix(p *process.Process) {
	if e, ok := q.byProc[p]; ok {
		heap.Fix(q, e.index)
	}
}

// Top returns the lowest-utilization process, or nil if empty.
func (q *processPQ) Top() *process.Process {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0].proc
}

// Contains reports whether p is currently tracked by the queue.
func (q *processPQ) Contains(p *process.Process) bool {
	_, ok := q.byProc[p]
	return ok
}
