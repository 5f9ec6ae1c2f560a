package pbpe

import (
	"cmp"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
)

// none marks the absent neighbour at either end of a symbol sequence.
const none = int32(-1)

// Symbol is one position inside a word. prev and next index into the owning
// slice; a len of zero marks a tombstone left behind by a merge. Removed
// positions are never reindexed, so positions held by the pair index stay
// valid across mutations elsewhere in the word.
type Symbol struct {
	id   uint32
	prev int32
	next int32
	len  int
}

// PosDelta is a pair-count change at a specific left position, produced by
// mutating a word. The trainer applies these to the pair index weighted by
// the word's corpus count.
type PosDelta struct {
	Pair  Pair
	Pos   int
	Delta int
}

// Word is the symbol sequence of one unique corpus word. During training
// len carries the character count of each symbol; during encoding it
// carries the byte span contributed to the source string.
type Word struct {
	symbols []Symbol
}

// NewWord returns an empty word with capacity for n symbols.
func NewWord(n int) *Word {
	return &Word{symbols: make([]Symbol, 0, n)}
}

// Add appends a symbol to the end of the sequence.
func (w *Word) Add(id uint32, length int) {
	pos := len(w.symbols)
	prev := none
	if pos > 0 {
		w.symbols[pos-1].next = int32(pos)
		prev = int32(pos - 1)
	}
	w.symbols = append(w.symbols, Symbol{id: id, prev: prev, next: none, len: length})
}

// Len returns the number of live symbols.
func (w *Word) Len() int {
	n := 0
	for i := range w.symbols {
		if w.symbols[i].len != 0 {
			n++
		}
	}
	return n
}

func (w *Word) live(pos int) bool {
	return pos >= 0 && pos < len(w.symbols) && w.symbols[pos].len != 0
}

// IDs returns the live symbol IDs in order.
func (w *Word) IDs() []uint32 {
	out := make([]uint32, 0, len(w.symbols))
	for i := range w.symbols {
		if w.symbols[i].len != 0 {
			out = append(out, w.symbols[i].id)
		}
	}
	return out
}

// Offsets returns the cumulative (start, end) span of each live symbol.
func (w *Word) Offsets() [][2]int {
	out := make([][2]int, 0, len(w.symbols))
	pos := 0
	for i := range w.symbols {
		if w.symbols[i].len == 0 {
			continue
		}
		out = append(out, [2]int{pos, pos + w.symbols[i].len})
		pos += w.symbols[i].len
	}
	return out
}

// AdjacentPairs calls fn with every live adjacent pair and the position of
// its left symbol.
func (w *Word) AdjacentPairs(fn func(p Pair, pos int)) {
	for i := 0; i < len(w.symbols); i++ {
		if w.symbols[i].len == 0 {
			continue
		}
		next := w.symbols[i].next
		if next == none {
			break
		}
		fn(Pair{w.symbols[i].id, w.symbols[next].id}, i)
		i = int(next) - 1
	}
}

// MergeAt fuses the symbol at pos with its right neighbour into newID,
// tombstoning the right slot. It returns the pair-count deltas caused by
// the rewrite. Stale occurrences (the position no longer holds the pair)
// are reported via ok=false and leave the word untouched; the deltas of
// the mutation that invalidated them already accounted for the pair.
// maxLen, when positive, suppresses candidate pairs whose combined length
// would exceed it.
func (w *Word) MergeAt(pos int, pair Pair, newID uint32, maxLen int) ([]PosDelta, bool) {
	if !w.live(pos) || w.symbols[pos].id != pair.L {
		return nil, false
	}
	rp := w.symbols[pos].next
	if rp == none {
		return nil, false
	}
	right := int(rp)
	if !w.live(right) || w.symbols[right].id != pair.R {
		return nil, false
	}

	newLen := w.symbols[pos].len + w.symbols[right].len
	deltas := make([]PosDelta, 0, 5)
	deltas = append(deltas, PosDelta{Pair: pair, Pos: pos, Delta: -1})

	if prev := w.symbols[pos].prev; prev != none {
		p := int(prev)
		deltas = append(deltas, PosDelta{Pair{w.symbols[p].id, pair.L}, p, -1})
		if maxLen <= 0 || w.symbols[p].len+newLen <= maxLen {
			deltas = append(deltas, PosDelta{Pair{w.symbols[p].id, newID}, p, 1})
		}
	}
	next := w.symbols[right].next
	if next != none {
		n := int(next)
		deltas = append(deltas, PosDelta{Pair{pair.R, w.symbols[n].id}, right, -1})
		if maxLen <= 0 || newLen+w.symbols[n].len <= maxLen {
			deltas = append(deltas, PosDelta{Pair{newID, w.symbols[n].id}, pos, 1})
		}
		w.symbols[n].prev = int32(pos)
	}

	w.symbols[pos].id = newID
	w.symbols[pos].len = newLen
	w.symbols[pos].next = next
	w.symbols[right] = Symbol{prev: none, next: none}
	return deltas, true
}

// SplitToken rewrites every live occurrence of token into parts, reusing
// the tombstoned slots of the span the token consumed when it was merged.
// It returns the pair-count deltas and the number of rewritten occurrences.
func (w *Word) SplitToken(token uint32, parts []uint32, maxLen int, lens []int) ([]PosDelta, int) {
	if len(w.symbols) == 0 || len(parts) < 2 {
		return nil, 0
	}
	var deltas []PosDelta
	applied := 0

	for pos := 0; pos != int(none); {
		sym := w.symbols[pos]
		if sym.id != token {
			pos = int(sym.next)
			continue
		}
		prev, next := sym.prev, sym.next

		if prev != none {
			p := int(prev)
			deltas = append(deltas, PosDelta{Pair{w.symbols[p].id, token}, p, -1})
			if maxLen <= 0 || lens[w.symbols[p].id]+lens[parts[0]] <= maxLen {
				deltas = append(deltas, PosDelta{Pair{w.symbols[p].id, parts[0]}, p, 1})
			}
		}
		if next != none {
			n := int(next)
			deltas = append(deltas, PosDelta{Pair{token, w.symbols[n].id}, pos, -1})
			last := parts[len(parts)-1]
			if maxLen <= 0 || lens[last]+lens[w.symbols[n].id] <= maxLen {
				deltas = append(deltas, PosDelta{Pair{last, w.symbols[n].id}, pos + len(parts) - 1, 1})
			}
		}

		// The merged symbol's span occupies slots pos..pos+k-1 in the flat
		// slice (merges only ever fuse adjacent spans), so the expansion
		// always fits in place.
		link := prev
		for i, part := range parts {
			slot := pos + i
			nxt := int32(slot + 1)
			if i == len(parts)-1 {
				nxt = next
			}
			w.symbols[slot] = Symbol{id: part, prev: link, next: nxt, len: lens[part]}
			link = int32(slot)
			if i > 0 {
				if maxLen <= 0 || lens[parts[i-1]]+lens[part] <= maxLen {
					deltas = append(deltas, PosDelta{Pair{parts[i-1], part}, slot - 1, 1})
				}
			}
		}
		if next != none {
			w.symbols[next].prev = int32(pos + len(parts) - 1)
		}
		applied++
		pos = int(next)
	}
	return deltas, applied
}

// wordEvent is one pending rewrite inside MergeSplitAll. Events are ordered
// by operation rank, then position, with merges before splits so a token
// formed at rank r is still present for a split recorded later.
type wordEvent struct {
	rank  uint32
	pos   int
	split bool
	id    uint32   // merge: replacement ID; split: source token
	parts []uint32 // split expansion
}

func compareWordEvents(a, b *wordEvent) int {
	if c := cmp.Compare(a.rank, b.rank); c != 0 {
		return c
	}
	if c := cmp.Compare(a.pos, b.pos); c != 0 {
		return c
	}
	if a.split == b.split {
		return 0
	}
	if a.split {
		return 1
	}
	return -1
}

// MergeSplitAll replays the trained operations on the word: each merge
// fuses matching adjacent pairs in rank order, each split restores a
// deactivated token to its expansion. lens gives the surface byte length
// of every vocabulary ID, used to redistribute spans on splits.
func (w *Word) MergeSplitAll(merges map[Pair][]RankedMerge, splits map[uint32][]RankedSplit, lens []int) {
	if len(merges) == 0 && len(splits) == 0 {
		return
	}
	queue := binaryheap.NewWith[*wordEvent](compareWordEvents)

	w.AdjacentPairs(func(p Pair, pos int) {
		if m, ok := firstMerge(merges[p], 0); ok {
			queue.Push(&wordEvent{rank: m.Rank, pos: pos, id: m.NewID})
		}
	})

	for {
		ev, ok := queue.Pop()
		if !ok {
			break
		}
		if !w.live(ev.pos) {
			continue
		}
		if ev.split {
			w.applySplitEvent(ev, merges, splits, lens, queue)
			continue
		}
		w.applyMergeEvent(ev, merges, splits, queue)
	}
}

func (w *Word) applyMergeEvent(ev *wordEvent, merges map[Pair][]RankedMerge, splits map[uint32][]RankedSplit, queue *binaryheap.Heap[*wordEvent]) {
	next := w.symbols[ev.pos].next
	if next == none {
		return
	}
	right := int(next)
	pair := Pair{w.symbols[ev.pos].id, w.symbols[right].id}
	// Re-verify against the rank table: the slot contents may have changed
	// since the event was queued.
	if m, ok := mergeAtRank(merges[pair], ev.rank); !ok || m.NewID != ev.id {
		return
	}

	w.symbols[ev.pos].id = ev.id
	w.symbols[ev.pos].len += w.symbols[right].len
	w.symbols[ev.pos].next = w.symbols[right].next
	if n := w.symbols[right].next; n != none {
		w.symbols[n].prev = int32(ev.pos)
	}
	w.symbols[right] = Symbol{prev: none, next: none}

	if prev := w.symbols[ev.pos].prev; prev != none {
		p := int(prev)
		if m, ok := firstMerge(merges[Pair{w.symbols[p].id, ev.id}], ev.rank+1); ok {
			queue.Push(&wordEvent{rank: m.Rank, pos: p, id: m.NewID})
		}
	}
	if n := w.symbols[ev.pos].next; n != none {
		if m, ok := firstMerge(merges[Pair{ev.id, w.symbols[n].id}], ev.rank+1); ok {
			queue.Push(&wordEvent{rank: m.Rank, pos: ev.pos, id: m.NewID})
		}
	}
	if s, ok := firstSplit(splits[ev.id], ev.rank+1); ok {
		queue.Push(&wordEvent{rank: s.Rank, pos: ev.pos, split: true, id: ev.id, parts: s.Expansion})
	}
}

func (w *Word) applySplitEvent(ev *wordEvent, merges map[Pair][]RankedMerge, splits map[uint32][]RankedSplit, lens []int, queue *binaryheap.Heap[*wordEvent]) {
	if w.symbols[ev.pos].id != ev.id {
		return
	}
	if _, ok := splitAtRank(splits[ev.id], ev.rank); !ok {
		return
	}
	parts := ev.parts
	prev, next := w.symbols[ev.pos].prev, w.symbols[ev.pos].next
	span := w.symbols[ev.pos].len

	// Redistribute the byte span over the parts; the final part absorbs
	// any remainder so offsets stay contiguous.
	used := 0
	link := prev
	for i, part := range parts {
		slot := ev.pos + i
		plen := lens[part]
		if i == len(parts)-1 {
			plen = span - used
		}
		if plen < 1 {
			plen = 1
		}
		used += plen
		nxt := int32(slot + 1)
		if i == len(parts)-1 {
			nxt = next
		}
		w.symbols[slot] = Symbol{id: part, prev: link, next: nxt, len: plen}
		link = int32(slot)
	}
	last := ev.pos + len(parts) - 1
	if next != none {
		w.symbols[next].prev = int32(last)
	}

	if prev != none {
		p := int(prev)
		if m, ok := firstMerge(merges[Pair{w.symbols[p].id, parts[0]}], ev.rank+1); ok {
			queue.Push(&wordEvent{rank: m.Rank, pos: p, id: m.NewID})
		}
	}
	for i := 1; i < len(parts); i++ {
		if m, ok := firstMerge(merges[Pair{parts[i-1], parts[i]}], ev.rank+1); ok {
			queue.Push(&wordEvent{rank: m.Rank, pos: ev.pos + i - 1, id: m.NewID})
		}
	}
	if next != none {
		n := int(next)
		if m, ok := firstMerge(merges[Pair{parts[len(parts)-1], w.symbols[n].id}], ev.rank+1); ok {
			queue.Push(&wordEvent{rank: m.Rank, pos: last, id: m.NewID})
		}
	}
}
