package pickybpe

import (
	"context"
	"io"

	"github.com/poliakovva/picky-bpe/pbpe"
	"github.com/poliakovva/picky-bpe/pretokenize"
)

// Tokenizer bundles a trained PBPE model with the splitter that feeds it.
type Tokenizer struct {
	model    *pbpe.Model
	splitter *pretokenize.Splitter
}

// Encoding is the result of encoding one input: token IDs, surface
// strings, byte offsets into the word each token came from, and whether
// each token continues its word.
type Encoding struct {
	IDs          []uint32
	Tokens       []string
	Offsets      [][2]int
	Continuation []bool
}

// New wraps a trained model. A nil splitter defaults to whitespace
// segmentation.
func New(model *pbpe.Model, splitter *pretokenize.Splitter) *Tokenizer {
	if splitter == nil {
		splitter = pretokenize.Whitespace()
	}
	return &Tokenizer{model: model, splitter: splitter}
}

// Train segments the texts with splitter, aggregates word frequencies and
// trains a model. On cancellation the partial tokenizer is returned with
// pbpe.ErrCancelled.
func Train(ctx context.Context, texts []string, splitter *pretokenize.Splitter, cfg pbpe.TrainerConfig) (*Tokenizer, error) {
	if splitter == nil {
		splitter = pretokenize.Whitespace()
	}
	counts, err := splitter.Count(texts, cfg.Workers)
	if err != nil {
		return nil, err
	}
	model, err := pbpe.NewTrainer(cfg).Train(ctx, counts)
	if model == nil {
		return nil, err
	}
	return New(model, splitter), err
}

// Model exposes the underlying trained model.
func (t *Tokenizer) Model() *pbpe.Model { return t.model }

// Encode segments text into words and encodes each with the model.
// Offsets are relative to the word a token belongs to.
func (t *Tokenizer) Encode(text string) (*Encoding, error) {
	words, err := t.splitter.Split(text)
	if err != nil {
		return nil, err
	}
	enc := &Encoding{}
	for _, word := range words {
		toks, err := t.model.Tokenize(word)
		if err != nil {
			return nil, err
		}
		for _, tok := range toks {
			enc.IDs = append(enc.IDs, tok.ID)
			enc.Tokens = append(enc.Tokens, tok.Value)
			enc.Offsets = append(enc.Offsets, [2]int{tok.Start, tok.End})
			enc.Continuation = append(enc.Continuation, tok.Continuation)
		}
	}
	return enc, nil
}

// Decode turns token IDs back into text.
func (t *Tokenizer) Decode(ids []uint32) (string, error) {
	return t.model.Decode(ids)
}

// Save writes the model artifact to w.
func (t *Tokenizer) Save(w io.Writer) error { return t.model.Save(w) }

// Load reads a model artifact and wraps it in a tokenizer.
func Load(r io.Reader, splitter *pretokenize.Splitter) (*Tokenizer, error) {
	model, err := pbpe.Load(r)
	if err != nil {
		return nil, err
	}
	return New(model, splitter), nil
}
