package pbpe

import (
	"reflect"
	"testing"
)

// hello as IDs: h=0 e=1 l=2 o=3, ll=4, ell=5.
func helloWord() *Word {
	w := NewWord(5)
	w.Add(0, 1)
	w.Add(1, 1)
	w.Add(2, 1)
	w.Add(2, 1)
	w.Add(3, 1)
	return w
}

func TestWordMergeAt(t *testing.T) {
	w := helloWord()

	deltas, ok := w.MergeAt(2, Pair{2, 2}, 4, 0)
	if !ok {
		t.Fatalf("expected merge to apply")
	}
	if got := w.IDs(); !reflect.DeepEqual(got, []uint32{0, 1, 4, 3}) {
		t.Fatalf("unexpected ids after merge: %v", got)
	}
	want := []PosDelta{
		{Pair{2, 2}, 2, -1},
		{Pair{1, 2}, 1, -1},
		{Pair{1, 4}, 1, 1},
		{Pair{2, 3}, 3, -1},
		{Pair{4, 3}, 2, 1},
	}
	if !reflect.DeepEqual(deltas, want) {
		t.Fatalf("unexpected deltas: %v", deltas)
	}

	// Stale occurrence: position 3 is a tombstone now.
	if _, ok := w.MergeAt(3, Pair{2, 3}, 9, 0); ok {
		t.Fatalf("expected stale occurrence to be skipped")
	}
}

func TestWordSplitToken(t *testing.T) {
	w := helloWord()
	if _, ok := w.MergeAt(2, Pair{2, 2}, 4, 0); !ok {
		t.Fatalf("setup merge failed")
	}

	lens := []int{1, 1, 1, 1, 2}
	deltas, applied := w.SplitToken(4, []uint32{2, 2}, 0, lens)
	if applied != 1 {
		t.Fatalf("expected one occurrence rewritten, got %d", applied)
	}
	if got := w.IDs(); !reflect.DeepEqual(got, []uint32{0, 1, 2, 2, 3}) {
		t.Fatalf("unexpected ids after split: %v", got)
	}
	want := []PosDelta{
		{Pair{1, 4}, 1, -1},
		{Pair{1, 2}, 1, 1},
		{Pair{4, 3}, 2, -1},
		{Pair{2, 3}, 3, 1},
		{Pair{2, 2}, 2, 1},
	}
	if !reflect.DeepEqual(deltas, want) {
		t.Fatalf("unexpected deltas: %v", deltas)
	}
}

func TestWordMergeOverlapping(t *testing.T) {
	// mississippi with m=0 i=1 s=2 p=3.
	w := NewWord(11)
	for _, id := range []uint32{0, 1, 2, 2, 1, 2, 2, 1, 3, 3, 1} {
		w.Add(id, 1)
	}
	for _, pos := range []int{2, 5} {
		if _, ok := w.MergeAt(pos, Pair{2, 2}, 4, 0); !ok {
			t.Fatalf("merge at %d failed", pos)
		}
	}
	if _, ok := w.MergeAt(8, Pair{3, 3}, 5, 0); !ok {
		t.Fatalf("merge at 8 failed")
	}
	if got := w.IDs(); !reflect.DeepEqual(got, []uint32{0, 1, 4, 1, 4, 1, 5, 1}) {
		t.Fatalf("unexpected ids: %v", got)
	}
}

func TestMergeSplitAll(t *testing.T) {
	merges := map[Pair][]RankedMerge{
		{2, 2}: {{Rank: 0, NewID: 4}},
		{1, 4}: {{Rank: 1, NewID: 5}},
	}
	splits := map[uint32][]RankedSplit{
		5: {{Rank: 2, Expansion: []uint32{1, 4}}},
	}
	lens := []int{1, 1, 1, 1, 2, 3}

	w := helloWord()
	w.MergeSplitAll(merges, splits, lens)
	if got := w.IDs(); !reflect.DeepEqual(got, []uint32{0, 1, 4, 3}) {
		t.Fatalf("unexpected ids: %v", got)
	}

	// A later re-merge of the same pair yields a different token that is
	// not split.
	merges[Pair{1, 4}] = []RankedMerge{{Rank: 1, NewID: 6}}
	w = helloWord()
	w.MergeSplitAll(merges, splits, lens)
	if got := w.IDs(); !reflect.DeepEqual(got, []uint32{0, 6, 3}) {
		t.Fatalf("unexpected ids: %v", got)
	}
}

func TestMergeSplitAllOffsets(t *testing.T) {
	merges := map[Pair][]RankedMerge{
		{0, 1}: {{Rank: 0, NewID: 4}},
	}
	w := NewWord(3)
	w.Add(0, 1)
	w.Add(1, 1)
	w.Add(2, 1)
	w.MergeSplitAll(merges, nil, []int{1, 1, 1, 1, 2})
	if got := w.Offsets(); !reflect.DeepEqual(got, [][2]int{{0, 2}, {2, 3}}) {
		t.Fatalf("unexpected offsets: %v", got)
	}
}
