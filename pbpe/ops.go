package pbpe

import "fmt"

// OpKind discriminates the two operation variants.
type OpKind uint8

// Operation kinds.
const (
	OpMerge OpKind = iota
	OpSplit
)

// Operation is one entry of the ordered operation log. The log's order IS
// the model: replaying it against a fresh symbol sequence reproduces
// encoding exactly.
type Operation struct {
	Kind OpKind

	// Merge fields: Pair is fused into Result.
	Pair   Pair
	Result uint32

	// Split fields: Source is undone into its direct parents.
	Source uint32
	Parts  Pair

	// expansion is the full expansion of Source to tokens that were active
	// when the split was emitted. It is reconstructed on load by replaying
	// the log, so it is never serialized.
	expansion []uint32
}

// RankedMerge is a merge annotated with its position in the operation log.
type RankedMerge struct {
	Rank  uint32
	NewID uint32
}

// RankedSplit is a split annotated with its position in the operation log.
type RankedSplit struct {
	Rank      uint32
	Expansion []uint32
}

// opRuntime is the encoder-facing view of the operation log: per-pair merge
// ranks and per-token split expansions, each sorted by rank.
type opRuntime struct {
	merges map[Pair][]RankedMerge
	splits map[uint32][]RankedSplit
}

// buildOpRuntime derives the rank tables from the log, validating the
// invariants a well-formed model must satisfy: a split's source must have
// been produced by an earlier merge, its recorded parents must match that
// merge, and a token cannot be split twice without being restored in
// between. Expansions are recomputed with the same active-token bookkeeping
// the trainer uses, so a round-tripped model encodes identically.
func buildOpRuntime(ops []Operation) (*opRuntime, error) {
	rt := &opRuntime{
		merges: make(map[Pair][]RankedMerge),
		splits: make(map[uint32][]RankedSplit),
	}
	parents := make(map[uint32]Pair)
	inactive := make(map[uint32]bool)

	var expand func(id uint32) []uint32
	expand = func(id uint32) []uint32 {
		pr, compound := parents[id]
		if !compound || !inactive[id] {
			return []uint32{id}
		}
		return append(expand(pr.L), expand(pr.R)...)
	}

	for rank, op := range ops {
		switch op.Kind {
		case OpMerge:
			if _, seen := parents[op.Result]; !seen {
				parents[op.Result] = op.Pair
			}
			delete(inactive, op.Result)
			rt.merges[op.Pair] = append(rt.merges[op.Pair], RankedMerge{uint32(rank), op.Result})
		case OpSplit:
			pr, ok := parents[op.Source]
			if !ok {
				return nil, fmt.Errorf("%w: split at rank %d references token %d that was never merged", ErrMalformedModel, rank, op.Source)
			}
			if pr != op.Parts {
				return nil, fmt.Errorf("%w: split at rank %d records parents (%d,%d), token %d was merged from (%d,%d)",
					ErrMalformedModel, rank, op.Parts.L, op.Parts.R, op.Source, pr.L, pr.R)
			}
			if inactive[op.Source] {
				return nil, fmt.Errorf("%w: split at rank %d targets already-split token %d", ErrMalformedModel, rank, op.Source)
			}
			exp := append(expand(pr.L), expand(pr.R)...)
			rt.splits[op.Source] = append(rt.splits[op.Source], RankedSplit{uint32(rank), exp})
			inactive[op.Source] = true
		default:
			return nil, fmt.Errorf("%w: unknown operation kind %d at rank %d", ErrMalformedModel, op.Kind, rank)
		}
	}
	return rt, nil
}

// firstMerge returns the first merge of the slice with rank >= from.
// Slices are naturally rank-sorted because they are appended in log order.
func firstMerge(ms []RankedMerge, from uint32) (RankedMerge, bool) {
	for _, m := range ms {
		if m.Rank >= from {
			return m, true
		}
	}
	return RankedMerge{}, false
}

func mergeAtRank(ms []RankedMerge, rank uint32) (RankedMerge, bool) {
	for _, m := range ms {
		if m.Rank == rank {
			return m, true
		}
	}
	return RankedMerge{}, false
}

// firstSplit returns the first split of the slice with rank >= from.
func firstSplit(ss []RankedSplit, from uint32) (RankedSplit, bool) {
	for _, s := range ss {
		if s.Rank >= from {
			return s, true
		}
	}
	return RankedSplit{}, false
}

func splitAtRank(ss []RankedSplit, rank uint32) (RankedSplit, bool) {
	for _, s := range ss {
		if s.Rank == rank {
			return s, true
		}
	}
	return RankedSplit{}, false
}
