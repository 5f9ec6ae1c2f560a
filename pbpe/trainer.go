package pbpe

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"
	"unicode/utf8"
)

// DefaultThreshold is the picky selection threshold used when the config
// leaves it unset.
const DefaultThreshold = 0.9

// TrainerConfig configures a training run. The zero value of optional
// fields means: no minimum frequency, no length cap, default threshold,
// no markers, workers sized to the host CPU count.
type TrainerConfig struct {
	// VocabSize is the target number of active vocabulary entries.
	VocabSize int
	// MinFrequency stops training once the best pair falls below it.
	MinFrequency int64
	// MaxTokenLength caps learned tokens at this many characters; zero
	// means unlimited.
	MaxTokenLength int
	// Threshold is the picky selection boundary in [0, 1]; values <= 0
	// fall back to DefaultThreshold.
	Threshold float64
	// SpecialTokens are reserved at the low end of the ID space, in order.
	SpecialTokens []string
	// UnkToken, when set, is reserved in the vocabulary and used by the
	// encoder for out-of-vocabulary symbols.
	UnkToken string
	// ContinuingSubwordPrefix marks every non-initial subword (e.g. "##").
	ContinuingSubwordPrefix string
	// EndOfWordSuffix marks the final subword of each word.
	EndOfWordSuffix string
	// InitialAlphabet lists runes that must be in the vocabulary even when
	// absent from the corpus.
	InitialAlphabet []rune
	// LimitAlphabet caps the number of distinct initial characters kept,
	// dropping the rarest first; zero means unlimited.
	LimitAlphabet int
	// ByteFallback seeds the 256 <0xXX> byte tokens so the encoder can
	// fall back to raw bytes.
	ByteFallback bool
	// FuseUnk and IgnoreMerges are carried into the trained model.
	FuseUnk      bool
	IgnoreMerges bool
	// CacheCapacity is passed through to the model's encode cache.
	CacheCapacity int
	// ShowProgress logs percentage milestones during the merge loop.
	ShowProgress bool
	// Progress, when set, receives the vocabulary-size delta of every
	// completed step.
	Progress func(delta int)
	// Workers bounds the worker pool for parallel phases; values <= 0 use
	// runtime.NumCPU().
	Workers int
}

// Trainer learns a PBPE model from a word-frequency table.
type Trainer struct {
	cfg TrainerConfig
}

// NewTrainer returns a trainer for the given configuration.
func NewTrainer(cfg TrainerConfig) *Trainer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Trainer{cfg: cfg}
}

// trainState bundles everything the merge loop mutates.
type trainState struct {
	vocab  *Vocab
	idLens []int // character length per ID, markers excluded
	words  []*Word
	counts []int64
	index  *PairIndex
	ledger *pickyLedger
	ops    []Operation
	active int
}

// Train learns a model from the given word -> count mapping. On
// cancellation the partial model up to the last completed step is returned
// together with ErrCancelled.
func (t *Trainer) Train(ctx context.Context, wordCounts map[string]int64) (*Model, error) {
	if len(wordCounts) == 0 {
		return nil, ErrEmptyCorpus
	}

	st := &trainState{
		vocab:  NewVocab(),
		index:  NewPairIndex(),
		ledger: newPickyLedger(t.cfg.Threshold),
	}

	for _, tok := range t.cfg.SpecialTokens {
		t.addToken(st, tok, utf8.RuneCountInString(tok))
	}
	if t.cfg.UnkToken != "" {
		t.addToken(st, t.cfg.UnkToken, utf8.RuneCountInString(t.cfg.UnkToken))
	}
	if t.cfg.ByteFallback {
		for b := 0; b < 256; b++ {
			t.addToken(st, byteTokenString(byte(b)), 1)
		}
	}

	t.computeAlphabet(st, wordCounts)
	if t.cfg.VocabSize <= st.vocab.Size() {
		return nil, fmt.Errorf("%w: requested %d, reserved tokens and alphabet need %d",
			ErrVocabTooSmall, t.cfg.VocabSize, st.vocab.Size())
	}

	t.tokenizeWords(st, wordCounts)
	t.countPairs(st)
	st.active = st.vocab.Size()

	err := t.mergeLoop(ctx, st)

	model, buildErr := NewModel(st.vocab, st.ops, ModelConfig{
		UnkToken:                t.cfg.UnkToken,
		ContinuingSubwordPrefix: t.cfg.ContinuingSubwordPrefix,
		EndOfWordSuffix:         t.cfg.EndOfWordSuffix,
		FuseUnk:                 t.cfg.FuseUnk,
		ByteFallback:            t.cfg.ByteFallback,
		IgnoreMerges:            t.cfg.IgnoreMerges,
		MaxTokenLength:          t.cfg.MaxTokenLength,
		CacheCapacity:           t.cfg.CacheCapacity,
	})
	if buildErr != nil {
		return nil, buildErr
	}
	return model, err
}

func (t *Trainer) addToken(st *trainState, token string, chars int) uint32 {
	id, existed := st.vocab.Add(token)
	if !existed {
		st.idLens = append(st.idLens, chars)
	}
	return id
}

// computeAlphabet collects the weighted character counts of the corpus,
// honours InitialAlphabet and LimitAlphabet, and registers the kept
// characters sorted by code point so ID assignment is deterministic.
func (t *Trainer) computeAlphabet(st *trainState, wordCounts map[string]int64) {
	alphabet := make(map[rune]int64)
	for word, count := range wordCounts {
		for _, r := range word {
			alphabet[r] += count
		}
	}
	for _, r := range t.cfg.InitialAlphabet {
		alphabet[r] = int64(1) << 62
	}

	type charCount struct {
		r rune
		n int64
	}
	kept := make([]charCount, 0, len(alphabet))
	for r, n := range alphabet {
		kept = append(kept, charCount{r, n})
	}
	if t.cfg.LimitAlphabet > 0 && len(kept) > t.cfg.LimitAlphabet {
		sort.Slice(kept, func(i, j int) bool {
			if kept[i].n != kept[j].n {
				return kept[i].n < kept[j].n
			}
			return kept[i].r < kept[j].r
		})
		kept = kept[len(kept)-t.cfg.LimitAlphabet:]
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].r < kept[j].r })
	for _, c := range kept {
		t.addToken(st, string(c.r), 1)
	}
}

// tokenizeWords decomposes every unique word into its initial symbol
// sequence, applying the continuing-subword prefix and end-of-word suffix
// and registering the marked symbol strings. Words are processed in sorted
// order so the resulting IDs do not depend on map iteration.
func (t *Trainer) tokenizeWords(st *trainState, wordCounts map[string]int64) {
	sorted := make([]string, 0, len(wordCounts))
	for w := range wordCounts {
		sorted = append(sorted, w)
	}
	sort.Strings(sorted)

	st.words = make([]*Word, 0, len(sorted))
	st.counts = make([]int64, 0, len(sorted))
	for _, text := range sorted {
		runes := []rune(text)
		word := NewWord(len(runes))
		for i, r := range runes {
			s := string(r)
			if _, ok := st.vocab.ID(s); !ok {
				// Dropped by LimitAlphabet.
				continue
			}
			if i > 0 && t.cfg.ContinuingSubwordPrefix != "" {
				s = t.cfg.ContinuingSubwordPrefix + s
			}
			if i == len(runes)-1 && t.cfg.EndOfWordSuffix != "" {
				s = s + t.cfg.EndOfWordSuffix
			}
			word.Add(t.addToken(st, s, 1), 1)
		}
		st.words = append(st.words, word)
		st.counts = append(st.counts, wordCounts[text])
	}
}

// countPairs builds the initial pair index. Counting fans out across the
// worker pool; the reduction is a plain sum, so the result is independent
// of scheduling.
func (t *Trainer) countPairs(st *trainState) {
	type localCount struct {
		freq map[Pair]int64
		occs map[Pair][]Occurrence
	}

	workers := t.cfg.Workers
	jobs := make(chan int, workers)
	results := make(chan localCount, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			local := localCount{
				freq: make(map[Pair]int64),
				occs: make(map[Pair][]Occurrence),
			}
			for w := range jobs {
				count := st.counts[w]
				st.words[w].AdjacentPairs(func(p Pair, pos int) {
					local.freq[p] += count
					local.occs[p] = append(local.occs[p], Occurrence{w, pos})
				})
			}
			results <- local
		}()
	}
	for w := range st.words {
		jobs <- w
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	for local := range results {
		for pair, occs := range local.occs {
			for _, occ := range occs {
				st.index.Record(pair, occ.Word, occ.Pos, st.counts[occ.Word])
			}
		}
	}

	pairs := make([]Pair, 0, len(st.index.entries))
	for pair := range st.index.entries {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return comparePairs(pairs[i], pairs[j]) < 0 })
	for _, pair := range pairs {
		st.index.Push(pair)
	}
}

// mergeLoop is the training core: pop the best pair, consult the selector,
// apply the decision, maintain the index and ledger, until the vocabulary
// target, the frequency floor, or queue exhaustion stops it.
func (t *Trainer) mergeLoop(ctx context.Context, st *trainState) error {
	minFreq := t.cfg.MinFrequency
	if minFreq < 1 {
		minFreq = 1
	}
	rejected := make(map[Pair]bool)
	lastLogPercent := -1

	for st.active < t.cfg.VocabSize {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		default:
		}

		pair, freq, ok := st.index.Pop()
		if !ok || freq < minFreq {
			break
		}
		if rejected[pair] || st.ledger.isInactive(pair.L) || st.ledger.isInactive(pair.R) {
			continue
		}
		if t.cfg.MaxTokenLength > 0 && st.idLens[pair.L]+st.idLens[pair.R] > t.cfg.MaxTokenLength {
			rejected[pair] = true
			continue
		}

		dec := st.ledger.decide(pair, freq)
		if !dec.accept {
			rejected[pair] = true
			continue
		}

		before := st.active
		t.applyMerge(st, pair)
		for _, x := range dec.splits {
			t.applySplit(st, x)
		}

		if t.cfg.Progress != nil {
			t.cfg.Progress(st.active - before)
		}
		if t.cfg.ShowProgress {
			if pct := st.active * 100 / t.cfg.VocabSize; pct > lastLogPercent {
				log.Printf("pbpe: %d%% (%d/%d tokens), best pair (%d,%d) freq %d",
					pct, st.active, t.cfg.VocabSize, pair.L, pair.R, freq)
				lastLogPercent = pct
			}
		}
	}
	return nil
}

// newTokenString builds the surface form of a merge result; the right
// part's continuing-subword prefix is absorbed into the join.
func (t *Trainer) newTokenString(st *trainState, pair Pair) string {
	left, _ := st.vocab.Token(pair.L)
	right, _ := st.vocab.Token(pair.R)
	return left + stripPrefix(right, t.cfg.ContinuingSubwordPrefix)
}

// applyMerge emits the merge operation and rewrites every occurrence of
// pair across the word table, keeping index and ledger in step.
func (t *Trainer) applyMerge(st *trainState, pair Pair) {
	token := t.newTokenString(st, pair)
	newID, existed := st.vocab.ID(token)
	if !existed {
		newID = t.addToken(st, token, st.idLens[pair.L]+st.idLens[pair.R])
	}
	st.ledger.onMerge(newID, pair)
	st.ops = append(st.ops, Operation{Kind: OpMerge, Pair: pair, Result: newID})
	st.active++

	occs := st.index.Occurrences(pair)
	results := t.forEachWordGroup(occs, func(word int, positions []int) wordResult {
		res := wordResult{word: word}
		for _, pos := range positions {
			deltas, ok := st.words[word].MergeAt(pos, pair, newID, t.cfg.MaxTokenLength)
			if !ok {
				continue
			}
			res.deltas = append(res.deltas, deltas...)
			res.applied++
		}
		return res
	})

	changed := make(map[Pair]bool)
	for _, res := range results {
		count := st.counts[res.word]
		for _, d := range res.deltas {
			if d.Delta > 0 {
				st.index.Record(d.Pair, res.word, d.Pos, count)
			} else {
				st.index.Forget(d.Pair, res.word, d.Pos, count)
			}
			changed[d.Pair] = true
		}
		consumed := int64(res.applied) * count
		st.ledger.debit(pair.L, consumed)
		st.ledger.debit(pair.R, consumed)
		st.ledger.credit(newID, consumed)
	}
	t.pushChanged(st, changed)
}

// applySplit deactivates token, emits the split operation, and restores
// the token's expansion at every remaining occurrence in the corpus.
func (t *Trainer) applySplit(st *trainState, token uint32) {
	parts := st.ledger.parentsOf(token)
	expansion := append(st.ledger.expand(parts.L), st.ledger.expand(parts.R)...)
	st.ledger.deactivate(token)
	st.ops = append(st.ops, Operation{
		Kind:      OpSplit,
		Source:    token,
		Parts:     parts,
		expansion: expansion,
	})
	st.active--

	all := make([]int, len(st.words))
	for i := range all {
		all[i] = i
	}
	results := t.forEachWord(all, func(word int) wordResult {
		deltas, applied := st.words[word].SplitToken(token, expansion, t.cfg.MaxTokenLength, st.idLens)
		return wordResult{word: word, deltas: deltas, applied: applied}
	})

	changed := make(map[Pair]bool)
	for _, res := range results {
		if res.applied == 0 {
			continue
		}
		count := st.counts[res.word]
		for _, d := range res.deltas {
			if d.Delta > 0 {
				st.index.Record(d.Pair, res.word, d.Pos, count)
			} else {
				st.index.Forget(d.Pair, res.word, d.Pos, count)
			}
			changed[d.Pair] = true
		}
		restored := int64(res.applied) * count
		for _, part := range expansion {
			st.ledger.credit(part, restored)
		}
	}
	t.pushChanged(st, changed)
}

// pushChanged re-queues every pair whose count moved, in sorted order.
func (t *Trainer) pushChanged(st *trainState, changed map[Pair]bool) {
	pairs := make([]Pair, 0, len(changed))
	for pair := range changed {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return comparePairs(pairs[i], pairs[j]) < 0 })
	for _, pair := range pairs {
		st.index.Push(pair)
	}
}

func stripPrefix(s, prefix string) string {
	if prefix != "" && len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// wordResult carries one word's rewrite outcome back to the driver.
type wordResult struct {
	word    int
	deltas  []PosDelta
	applied int
}

// forEachWordGroup groups occurrences by word and fans the per-word sweeps
// out across the worker pool. Words are disjoint slices of the table, so
// workers mutate without locking; results come back sorted by word so the
// driver applies them in a fixed order.
func (t *Trainer) forEachWordGroup(occs []Occurrence, fn func(word int, positions []int) wordResult) []wordResult {
	type group struct {
		word      int
		positions []int
	}
	var groups []group
	for _, occ := range occs {
		if n := len(groups); n > 0 && groups[n-1].word == occ.Word {
			groups[n-1].positions = append(groups[n-1].positions, occ.Pos)
			continue
		}
		groups = append(groups, group{word: occ.Word, positions: []int{occ.Pos}})
	}

	workers := t.cfg.Workers
	if workers > len(groups) {
		workers = len(groups)
	}
	if workers <= 1 {
		out := make([]wordResult, 0, len(groups))
		for _, g := range groups {
			out = append(out, fn(g.word, g.positions))
		}
		return out
	}

	jobs := make(chan group, workers)
	results := make(chan wordResult, len(groups))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for g := range jobs {
				results <- fn(g.word, g.positions)
			}
		}()
	}
	for _, g := range groups {
		jobs <- g
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]wordResult, 0, len(groups))
	for res := range results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].word < out[j].word })
	return out
}

// forEachWord fans fn out over the given word indices.
func (t *Trainer) forEachWord(words []int, fn func(word int) wordResult) []wordResult {
	occLike := make([]Occurrence, len(words))
	for i, w := range words {
		occLike[i] = Occurrence{Word: w}
	}
	return t.forEachWordGroup(occLike, func(word int, _ []int) wordResult {
		return fn(word)
	})
}
