package pbpe

// pickyLedger maintains the statistics behind merge accept/reject
// decisions: for every token produced by a merge, its standalone weighted
// frequency (occurrences of the token itself across the corpus), its
// direct parents, and whether it is currently active. Atomic tokens
// (specials, alphabet, byte tokens) are never tracked: they cannot be
// picky and cannot be split.
type pickyLedger struct {
	threshold  float64
	standalone map[uint32]int64
	parents    map[uint32]Pair
	inactive   map[uint32]bool
}

func newPickyLedger(threshold float64) *pickyLedger {
	return &pickyLedger{
		threshold:  threshold,
		standalone: make(map[uint32]int64),
		parents:    make(map[uint32]Pair),
		inactive:   make(map[uint32]bool),
	}
}

func (l *pickyLedger) isCompound(id uint32) bool {
	_, ok := l.parents[id]
	return ok
}

func (l *pickyLedger) isInactive(id uint32) bool { return l.inactive[id] }

func (l *pickyLedger) parentsOf(id uint32) Pair { return l.parents[id] }

// onMerge records the creation (or restoration) of a merged token.
func (l *pickyLedger) onMerge(id uint32, pair Pair) {
	if _, seen := l.parents[id]; !seen {
		l.parents[id] = pair
	}
	delete(l.inactive, id)
}

// credit adds weighted standalone occurrences of a compound token.
func (l *pickyLedger) credit(id uint32, n int64) {
	if l.isCompound(id) {
		l.standalone[id] += n
	}
}

// debit removes weighted standalone occurrences of a compound token.
func (l *pickyLedger) debit(id uint32, n int64) {
	if l.isCompound(id) {
		l.standalone[id] -= n
	}
}

// deactivate marks a token as split out of the vocabulary.
func (l *pickyLedger) deactivate(id uint32) {
	l.inactive[id] = true
	delete(l.standalone, id)
}

// expand resolves id to the tokens it currently stands for: a compound,
// deactivated token expands recursively through its parents; anything else
// stands for itself.
func (l *pickyLedger) expand(id uint32) []uint32 {
	pr, compound := l.parents[id]
	if !compound || !l.inactive[id] {
		return []uint32{id}
	}
	return append(l.expand(pr.L), l.expand(pr.R)...)
}

// decision is the outcome of consulting the selector for one candidate.
type decision struct {
	accept bool
	// splits lists accepted-merge parts that have become redundant (their
	// standalone frequency is entirely consumed by the merge) and must be
	// deactivated and split.
	splits []uint32
}

// decide applies the picky criterion to the candidate merge pair with the
// given pair frequency. A compound part whose intra-merge ratio
// freq(pair)/standalone(part) falls below the threshold is picky: it
// occurs substantially outside this context and the merge is rejected.
// On acceptance, a part whose ratio is exactly 1.0 appears only inside the
// merge and is scheduled for a split.
func (l *pickyLedger) decide(pair Pair, freq int64) decision {
	parts := []uint32{pair.L, pair.R}
	if pair.L == pair.R {
		parts = parts[:1]
	}
	for _, x := range parts {
		if !l.isCompound(x) {
			continue
		}
		s := l.standalone[x]
		if s <= 0 || float64(freq)/float64(s) < l.threshold {
			return decision{}
		}
	}
	d := decision{accept: true}
	for _, x := range parts {
		if l.isCompound(x) && l.standalone[x] == freq {
			d.splits = append(d.splits, x)
		}
	}
	return d
}
