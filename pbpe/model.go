package pbpe

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultCacheCapacity bounds the encode cache when the config does not
// say otherwise.
const DefaultCacheCapacity = 10000

// ModelConfig carries the encoder-facing options of a trained model.
type ModelConfig struct {
	// UnkToken substitutes for out-of-vocabulary symbols; empty disables
	// the substitution and such symbols become an error.
	UnkToken string
	// ContinuingSubwordPrefix marks non-initial subwords.
	ContinuingSubwordPrefix string
	// EndOfWordSuffix marks the final subword of a word.
	EndOfWordSuffix string
	// FuseUnk collapses adjacent unknown-token emissions into one.
	FuseUnk bool
	// ByteFallback replaces out-of-vocabulary symbols with their UTF-8
	// bytes mapped to the reserved <0xXX> tokens.
	ByteFallback bool
	// IgnoreMerges returns a word found whole in the vocabulary as that
	// single token, preserving hand-authored vocabulary matches; any other
	// word gets its raw initial decomposition, without replaying the
	// operation list.
	IgnoreMerges bool
	// MaxTokenLength records the training-time cap; informational for the
	// encoder, carried in the artifact.
	MaxTokenLength int
	// CacheCapacity bounds the per-model encode cache. Zero selects
	// DefaultCacheCapacity; negative disables caching.
	CacheCapacity int
}

// Token is one encoded symbol: its vocabulary ID, surface string, byte
// offsets into the source word, and whether it continues a word rather
// than starting one.
type Token struct {
	ID           uint32
	Value        string
	Start        int
	End          int
	Continuation bool
}

// Model is a trained PBPE model: the vocabulary, the ordered operation
// list, and the rank tables derived from it. A model is immutable after
// construction and safe for concurrent use.
type Model struct {
	vocab    *Vocab
	ops      []Operation
	rt       *opRuntime
	cfg      ModelConfig
	byteLens []int
	cache    *encodeCache
}

// NewModel builds a model from a vocabulary and operation list, validating
// the operation log invariants.
func NewModel(vocab *Vocab, ops []Operation, cfg ModelConfig) (*Model, error) {
	rt, err := buildOpRuntime(ops)
	if err != nil {
		return nil, err
	}
	m := &Model{
		vocab: vocab,
		ops:   ops,
		rt:    rt,
		cfg:   cfg,
	}
	m.byteLens = make([]int, vocab.Size())
	for id := 0; id < vocab.Size(); id++ {
		tok, _ := vocab.Token(uint32(id))
		m.byteLens[id] = surfaceLen(tok, cfg.ContinuingSubwordPrefix, cfg.EndOfWordSuffix)
	}
	switch {
	case cfg.CacheCapacity < 0:
	case cfg.CacheCapacity == 0:
		m.cache = newEncodeCache(DefaultCacheCapacity)
	default:
		m.cache = newEncodeCache(cfg.CacheCapacity)
	}
	return m, nil
}

// Vocab returns the model's vocabulary.
func (m *Model) Vocab() *Vocab { return m.vocab }

// Operations returns the ordered operation list.
func (m *Model) Operations() []Operation { return m.ops }

// Config returns the encoder options.
func (m *Model) Config() ModelConfig { return m.cfg }

// ClearCache drops every cached encoding.
func (m *Model) ClearCache() {
	if m.cache != nil {
		m.cache.clear()
	}
}

// Tokenize encodes one pre-tokenized word into tokens with offsets.
// The returned slice may be shared with the cache; treat it as read-only.
func (m *Model) Tokenize(word string) ([]Token, error) {
	if word == "" {
		return nil, nil
	}
	if id, ok := m.vocab.ID(word); ok && m.cfg.IgnoreMerges {
		return []Token{{ID: id, Value: word, Start: 0, End: len(word)}}, nil
	}
	if m.cache != nil {
		if toks, ok := m.cache.get(word); ok {
			return toks, nil
		}
	}

	w, err := m.decompose(word)
	if err != nil {
		return nil, err
	}
	if !m.cfg.IgnoreMerges {
		w.MergeSplitAll(m.rt.merges, m.rt.splits, m.byteLens)
	}
	toks := m.collectTokens(w)
	if m.cache != nil {
		m.cache.add(word, toks)
	}
	return toks, nil
}

// Encode returns just the token IDs for one word.
func (m *Model) Encode(word string) ([]uint32, error) {
	toks, err := m.Tokenize(word)
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, len(toks))
	for i, tok := range toks {
		ids[i] = tok.ID
	}
	return ids, nil
}

// decompose builds the initial symbol sequence for a word exactly the way
// training does: one symbol per rune, prefix on non-initial symbols,
// suffix on the final one, with byte fallback and unknown-token handling
// for anything outside the vocabulary.
func (m *Model) decompose(word string) (*Word, error) {
	w := NewWord(utf8.RuneCountInString(word))
	runes := []rune(word)

	type pendingUnk struct {
		id  uint32
		len int
	}
	var unk *pendingUnk
	flushUnk := func() {
		if unk != nil {
			w.Add(unk.id, unk.len)
			unk = nil
		}
	}

	for i, r := range runes {
		s := string(r)
		byteLen := len(s)
		if i > 0 && m.cfg.ContinuingSubwordPrefix != "" {
			s = m.cfg.ContinuingSubwordPrefix + s
		}
		if i == len(runes)-1 && m.cfg.EndOfWordSuffix != "" {
			s = s + m.cfg.EndOfWordSuffix
		}

		if id, ok := m.vocab.ID(s); ok {
			flushUnk()
			w.Add(id, byteLen)
			continue
		}

		if m.cfg.ByteFallback {
			if ids, ok := m.byteTokens(s); ok {
				flushUnk()
				for _, id := range ids {
					w.Add(id, 1)
				}
				continue
			}
		}

		if m.cfg.UnkToken == "" {
			return nil, fmt.Errorf("%w: %q", ErrUnknownToken, s)
		}
		unkID, ok := m.vocab.ID(m.cfg.UnkToken)
		if !ok {
			return nil, fmt.Errorf("%w: unk token %q not in vocabulary", ErrUnknownToken, m.cfg.UnkToken)
		}
		if unk != nil && m.cfg.FuseUnk {
			unk.len += byteLen
			continue
		}
		flushUnk()
		unk = &pendingUnk{id: unkID, len: byteLen}
	}
	flushUnk()
	return w, nil
}

// byteTokens maps every UTF-8 byte of s to its reserved byte token; it
// fails if any of the 256 tokens is missing from the vocabulary.
func (m *Model) byteTokens(s string) ([]uint32, bool) {
	ids := make([]uint32, 0, len(s))
	for i := 0; i < len(s); i++ {
		id, ok := m.vocab.ID(byteTokenString(s[i]))
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (m *Model) collectTokens(w *Word) []Token {
	ids := w.IDs()
	offsets := w.Offsets()
	toks := make([]Token, len(ids))
	for i, id := range ids {
		value, _ := m.vocab.Token(id)
		toks[i] = Token{
			ID:           id,
			Value:        value,
			Start:        offsets[i][0],
			End:          offsets[i][1],
			Continuation: i > 0,
		}
	}
	return toks
}

// byteTokenString formats the reserved byte-fallback token for b, e.g.
// <0x41> for 'A'.
func byteTokenString(b byte) string {
	return fmt.Sprintf("<0x%02X>", b)
}

// parseByteToken inverts byteTokenString.
func parseByteToken(s string) (byte, bool) {
	if len(s) != 6 || s[0] != '<' || s[1] != '0' || s[2] != 'x' || s[5] != '>' {
		return 0, false
	}
	hi, ok1 := hexVal(s[3])
	lo, ok2 := hexVal(s[4])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// surfaceLen is the byte length a token contributes to the source text:
// markers are stripped and byte tokens count as a single byte.
func surfaceLen(tok, prefix, suffix string) int {
	if _, ok := parseByteToken(tok); ok {
		return 1
	}
	if prefix != "" && len(tok) > len(prefix) && strings.HasPrefix(tok, prefix) {
		tok = tok[len(prefix):]
	}
	if suffix != "" && len(tok) > len(suffix) && strings.HasSuffix(tok, suffix) {
		tok = tok[:len(tok)-len(suffix)]
	}
	if len(tok) == 0 {
		return 1
	}
	return len(tok)
}
