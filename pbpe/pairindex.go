package pbpe

import (
	"cmp"
	"sort"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
)

// Pair is two adjacent symbol IDs, a candidate for merging.
type Pair struct {
	L uint32
	R uint32
}

func comparePairs(a, b Pair) int {
	if c := cmp.Compare(a.L, b.L); c != 0 {
		return c
	}
	return cmp.Compare(a.R, b.R)
}

// Occurrence locates one live instance of a pair: the word and the position
// of the pair's left symbol inside it.
type Occurrence struct {
	Word int
	Pos  int
}

type pairEntry struct {
	freq int64
	occs map[Occurrence]struct{}
}

type queueItem struct {
	pair Pair
	freq int64
}

// PairIndex tracks every adjacent pair across the word table: aggregate
// weighted frequency, the exact (word, position) occurrences, and a
// max-priority queue over frequencies. Queue entries go stale as counts
// change; Pop re-verifies each entry against the authoritative frequency
// and re-pushes or discards it (lazy deletion), which keeps the amortized
// step cost logarithmic.
type PairIndex struct {
	entries map[Pair]*pairEntry
	queue   *binaryheap.Heap[queueItem]
}

// NewPairIndex returns an empty index. Ties in frequency are broken by
// lexicographic order on (left, right) so selection is deterministic.
func NewPairIndex() *PairIndex {
	return &PairIndex{
		entries: make(map[Pair]*pairEntry),
		queue: binaryheap.NewWith[queueItem](func(a, b queueItem) int {
			if c := cmp.Compare(b.freq, a.freq); c != 0 {
				return c
			}
			return comparePairs(a.pair, b.pair)
		}),
	}
}

// Record adds one occurrence of pair weighted by the word's count.
func (ix *PairIndex) Record(pair Pair, word, pos int, count int64) {
	e := ix.entries[pair]
	if e == nil {
		e = &pairEntry{occs: make(map[Occurrence]struct{})}
		ix.entries[pair] = e
	}
	e.freq += count
	e.occs[Occurrence{word, pos}] = struct{}{}
}

// Forget removes one occurrence of pair weighted by the word's count.
func (ix *PairIndex) Forget(pair Pair, word, pos int, count int64) {
	e := ix.entries[pair]
	if e == nil {
		return
	}
	e.freq -= count
	delete(e.occs, Occurrence{word, pos})
}

// Freq returns the authoritative weighted frequency of pair.
func (ix *PairIndex) Freq(pair Pair) int64 {
	if e := ix.entries[pair]; e != nil {
		return e.freq
	}
	return 0
}

// Occurrences returns the live occurrences of pair sorted by (word, pos).
func (ix *PairIndex) Occurrences(pair Pair) []Occurrence {
	e := ix.entries[pair]
	if e == nil {
		return nil
	}
	out := make([]Occurrence, 0, len(e.occs))
	for occ := range e.occs {
		out = append(out, occ)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Word != out[j].Word {
			return out[i].Word < out[j].Word
		}
		return out[i].Pos < out[j].Pos
	})
	return out
}

// Push enqueues pair at its current frequency if positive.
func (ix *PairIndex) Push(pair Pair) {
	if f := ix.Freq(pair); f > 0 {
		ix.queue.Push(queueItem{pair, f})
	}
}

// Pop returns the highest-frequency pair, verified against the current
// counts. Entries whose frequency changed since they were queued are
// re-pushed at the corrected value and skipped.
func (ix *PairIndex) Pop() (Pair, int64, bool) {
	for {
		item, ok := ix.queue.Pop()
		if !ok {
			return Pair{}, 0, false
		}
		cur := ix.Freq(item.pair)
		if cur != item.freq {
			if cur > 0 {
				ix.queue.Push(queueItem{item.pair, cur})
			}
			continue
		}
		if cur <= 0 {
			continue
		}
		return item.pair, cur, true
	}
}
