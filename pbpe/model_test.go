package pbpe

import (
	"errors"
	"reflect"
	"testing"
)

func buildVocab(t *testing.T, tokens ...string) *Vocab {
	t.Helper()
	v := NewVocab()
	for _, tok := range tokens {
		if _, existed := v.Add(tok); existed {
			t.Fatalf("duplicate token %q", tok)
		}
	}
	return v
}

func mustModel(t *testing.T, v *Vocab, ops []Operation, cfg ModelConfig) *Model {
	t.Helper()
	m, err := NewModel(v, ops, cfg)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func TestTokenizeWithPrefixMarker(t *testing.T) {
	v := buildVocab(t, "h", "##e", "##l", "##o", "he", "##ll")
	ops := []Operation{
		{Kind: OpMerge, Pair: Pair{0, 1}, Result: 4},
		{Kind: OpMerge, Pair: Pair{2, 2}, Result: 5},
	}
	m := mustModel(t, v, ops, ModelConfig{ContinuingSubwordPrefix: "##"})

	toks, err := m.Tokenize("hello")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var values []string
	var offsets [][2]int
	var conts []bool
	for _, tok := range toks {
		values = append(values, tok.Value)
		offsets = append(offsets, [2]int{tok.Start, tok.End})
		conts = append(conts, tok.Continuation)
	}
	if want := []string{"he", "##ll", "##o"}; !reflect.DeepEqual(values, want) {
		t.Fatalf("unexpected tokens: %v", values)
	}
	if want := [][2]int{{0, 2}, {2, 4}, {4, 5}}; !reflect.DeepEqual(offsets, want) {
		t.Fatalf("unexpected offsets: %v", offsets)
	}
	if want := []bool{false, true, true}; !reflect.DeepEqual(conts, want) {
		t.Fatalf("unexpected continuation flags: %v", conts)
	}
}

func TestTokenizeByteFallback(t *testing.T) {
	v := NewVocab()
	for b := 0; b < 256; b++ {
		v.Add(byteTokenString(byte(b)))
	}
	m := mustModel(t, v, nil, ModelConfig{ByteFallback: true})

	ids, err := m.Encode("\U0001F642") // 🙂
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var want []uint32
	for _, b := range []byte("\U0001F642") {
		id, ok := v.ID(byteTokenString(b))
		if !ok {
			t.Fatalf("missing byte token for %#x", b)
		}
		want = append(want, id)
	}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("unexpected ids: %v want %v", ids, want)
	}
}

func TestTokenizeUnknownFused(t *testing.T) {
	v := buildVocab(t, "[UNK]", "a", "b")
	m := mustModel(t, v, nil, ModelConfig{UnkToken: "[UNK]", FuseUnk: true})

	toks, err := m.Tokenize("accb")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var got []string
	for _, tok := range toks {
		got = append(got, tok.Value)
	}
	if want := []string{"a", "[UNK]", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tokens: %v", got)
	}
	if toks[1].Start != 1 || toks[1].End != 3 {
		t.Fatalf("fused unk spans (%d,%d)", toks[1].Start, toks[1].End)
	}

	// A lone unknown grapheme also degrades to a single UNK even when the
	// word has no known symbols at all.
	toks, err = m.Tokenize("\U0001F642")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 1 || toks[0].Value != "[UNK]" {
		t.Fatalf("unexpected tokens: %v", toks)
	}
}

func TestTokenizeUnknownNotFused(t *testing.T) {
	v := buildVocab(t, "<unk>", "a", "b")
	m := mustModel(t, v, nil, ModelConfig{UnkToken: "<unk>"})

	toks, err := m.Tokenize("accb")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var got []string
	for _, tok := range toks {
		got = append(got, tok.Value)
	}
	want := []string{"a", "<unk>", "<unk>", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tokens: %v", got)
	}
}

func TestTokenizeUnknownWithoutFallbackFails(t *testing.T) {
	v := buildVocab(t, "a")
	m := mustModel(t, v, nil, ModelConfig{})
	if _, err := m.Tokenize("ab"); err == nil {
		t.Fatalf("expected error for unknown symbol")
	} else if !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTokenizeIgnoreMerges(t *testing.T) {
	v := buildVocab(t, ".", ":", ".:", ".:.:")
	ops := []Operation{{Kind: OpMerge, Pair: Pair{0, 1}, Result: 2}}
	m := mustModel(t, v, ops, ModelConfig{IgnoreMerges: true})

	toks, err := m.Tokenize(".:.:")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 1 || toks[0].Value != ".:.:" {
		t.Fatalf("expected whole-word match, got %v", toks)
	}

	m = mustModel(t, v, ops, ModelConfig{})
	toks, err = m.Tokenize(".:.:")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 2 || toks[0].Value != ".:" || toks[1].Value != ".:" {
		t.Fatalf("expected two .: tokens, got %v", toks)
	}
}

func TestTokenizeCacheConsistency(t *testing.T) {
	v := buildVocab(t, "a", "b", "ab")
	ops := []Operation{{Kind: OpMerge, Pair: Pair{0, 1}, Result: 2}}
	m := mustModel(t, v, ops, ModelConfig{})

	first, err := m.Encode("ab")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := m.Encode("ab")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached encode differs: %v vs %v", first, second)
	}
	m.ClearCache()
	third, err := m.Encode("ab")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !reflect.DeepEqual(first, third) {
		t.Fatalf("encode after clear differs: %v vs %v", first, third)
	}
}

func TestVocabRoundTripSingletons(t *testing.T) {
	v := buildVocab(t, "h", "##e", "##l", "##o", "he", "##ll")
	ops := []Operation{
		{Kind: OpMerge, Pair: Pair{0, 1}, Result: 4},
		{Kind: OpMerge, Pair: Pair{2, 2}, Result: 5},
	}
	m := mustModel(t, v, ops, ModelConfig{ContinuingSubwordPrefix: "##"})

	for _, word := range []string{"he", "hello", "hell"} {
		ids, err := m.Encode(word)
		if err != nil {
			t.Fatalf("Encode(%q): %v", word, err)
		}
		text, err := m.Decode(ids)
		if err != nil {
			t.Fatalf("Decode(%q): %v", word, err)
		}
		if text != word {
			t.Fatalf("round trip of %q gave %q", word, text)
		}
	}
}
