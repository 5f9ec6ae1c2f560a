package pbpe

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// modelType is the artifact discriminator.
const modelType = "PBPE"

// modelArtifact is the on-disk JSON shape of a trained model. The
// operations array preserves log order; a merge's result ID is implied by
// its parts (left surface + prefix-stripped right surface), a split
// records its source token and direct parents.
type modelArtifact struct {
	Type                    string              `json:"type"`
	Vocab                   map[string]uint32   `json:"vocab"`
	Operations              []operationArtifact `json:"operations"`
	UnkToken                string              `json:"unk_token,omitempty"`
	ContinuingSubwordPrefix string              `json:"continuing_subword_prefix,omitempty"`
	EndOfWordSuffix         string              `json:"end_of_word_suffix,omitempty"`
	FuseUnk                 bool                `json:"fuse_unk"`
	ByteFallback            bool                `json:"byte_fallback"`
	IgnoreMerges            bool                `json:"ignore_merges"`
	MaxTokenLength          int                 `json:"max_token_length,omitempty"`
}

type operationArtifact struct {
	Op     string    `json:"op"`
	Source *uint32   `json:"source,omitempty"`
	Parts  [2]uint32 `json:"parts"`
}

// Save writes the model artifact as JSON.
func (m *Model) Save(w io.Writer) error {
	art := modelArtifact{
		Type:                    modelType,
		Vocab:                   m.vocab.Strings(),
		Operations:              make([]operationArtifact, 0, len(m.ops)),
		UnkToken:                m.cfg.UnkToken,
		ContinuingSubwordPrefix: m.cfg.ContinuingSubwordPrefix,
		EndOfWordSuffix:         m.cfg.EndOfWordSuffix,
		FuseUnk:                 m.cfg.FuseUnk,
		ByteFallback:            m.cfg.ByteFallback,
		IgnoreMerges:            m.cfg.IgnoreMerges,
		MaxTokenLength:          m.cfg.MaxTokenLength,
	}
	for _, op := range m.ops {
		switch op.Kind {
		case OpMerge:
			art.Operations = append(art.Operations, operationArtifact{
				Op:    "merge",
				Parts: [2]uint32{op.Pair.L, op.Pair.R},
			})
		case OpSplit:
			src := op.Source
			art.Operations = append(art.Operations, operationArtifact{
				Op:     "split",
				Source: &src,
				Parts:  [2]uint32{op.Parts.L, op.Parts.R},
			})
		}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(&art); err != nil {
		return errors.Wrap(err, "pbpe: write model")
	}
	return nil
}

// Load reads a model artifact and rebuilds the model, validating that the
// IDs are contiguous, every operation references defined IDs, and every
// split source was previously merged.
func Load(r io.Reader) (*Model, error) {
	var art modelArtifact
	if err := json.NewDecoder(r).Decode(&art); err != nil {
		return nil, errors.Wrap(err, "pbpe: read model")
	}
	if art.Type != modelType {
		return nil, errors.Wrapf(ErrMalformedModel, "unexpected model type %q", art.Type)
	}

	vocab, err := vocabFromArtifact(art.Vocab)
	if err != nil {
		return nil, err
	}
	ops, err := opsFromArtifact(art, vocab)
	if err != nil {
		return nil, err
	}

	return NewModel(vocab, ops, ModelConfig{
		UnkToken:                art.UnkToken,
		ContinuingSubwordPrefix: art.ContinuingSubwordPrefix,
		EndOfWordSuffix:         art.EndOfWordSuffix,
		FuseUnk:                 art.FuseUnk,
		ByteFallback:            art.ByteFallback,
		IgnoreMerges:            art.IgnoreMerges,
		MaxTokenLength:          art.MaxTokenLength,
	})
}

// vocabFromArtifact checks that the IDs are exactly 0..n-1 and rebuilds
// the dense vocabulary.
func vocabFromArtifact(raw map[string]uint32) (*Vocab, error) {
	tokens := make([]string, len(raw))
	seen := make([]bool, len(raw))
	for tok, id := range raw {
		if int(id) >= len(raw) {
			return nil, errors.Wrapf(ErrMalformedModel, "token %q has ID %d beyond vocabulary size %d", tok, id, len(raw))
		}
		if seen[id] {
			return nil, errors.Wrapf(ErrMalformedModel, "duplicate ID %d", id)
		}
		seen[id] = true
		tokens[id] = tok
	}
	return newVocabFromTokens(tokens)
}

// opsFromArtifact resolves the operation array back into the internal log.
// Merge results are re-derived from the part surfaces; the full split
// expansions are reconstructed later by buildOpRuntime.
func opsFromArtifact(art modelArtifact, vocab *Vocab) ([]Operation, error) {
	n := uint32(vocab.Size())
	ops := make([]Operation, 0, len(art.Operations))
	for rank, op := range art.Operations {
		if op.Parts[0] >= n || op.Parts[1] >= n {
			return nil, errors.Wrapf(ErrMalformedModel, "operation %d references undefined ID", rank)
		}
		switch op.Op {
		case "merge":
			left, _ := vocab.Token(op.Parts[0])
			right, _ := vocab.Token(op.Parts[1])
			result := left + stripPrefix(right, art.ContinuingSubwordPrefix)
			id, ok := vocab.ID(result)
			if !ok {
				return nil, errors.Wrapf(ErrMalformedModel, "operation %d result %q not in vocabulary", rank, result)
			}
			ops = append(ops, Operation{
				Kind:   OpMerge,
				Pair:   Pair{op.Parts[0], op.Parts[1]},
				Result: id,
			})
		case "split":
			if op.Source == nil {
				return nil, errors.Wrapf(ErrMalformedModel, "operation %d: split without source", rank)
			}
			if *op.Source >= n {
				return nil, errors.Wrapf(ErrMalformedModel, "operation %d references undefined ID", rank)
			}
			ops = append(ops, Operation{
				Kind:   OpSplit,
				Source: *op.Source,
				Parts:  Pair{op.Parts[0], op.Parts[1]},
			})
		default:
			return nil, errors.Wrapf(ErrMalformedModel, "operation %d has unknown op %q", rank, op.Op)
		}
	}
	return ops, nil
}
