package pbpe

import "errors"

// Sentinel errors returned by training, encoding and model loading.
// Callers match them with errors.Is; wrapped variants carry detail.
var (
	// ErrEmptyCorpus is returned when training is started with no words.
	ErrEmptyCorpus = errors.New("pbpe: empty corpus")

	// ErrVocabTooSmall is returned when the requested vocabulary size does
	// not exceed the special tokens plus the initial alphabet.
	ErrVocabTooSmall = errors.New("pbpe: vocab size smaller than special tokens plus alphabet")

	// ErrUnknownToken is returned when encoding reaches a symbol that is
	// not in the vocabulary and neither byte fallback nor an unknown token
	// is configured.
	ErrUnknownToken = errors.New("pbpe: symbol not in vocabulary")

	// ErrMalformedModel is returned when a deserialized model fails its
	// invariant checks.
	ErrMalformedModel = errors.New("pbpe: malformed model")

	// ErrCancelled is returned when training observes cooperative
	// cancellation; the partial model up to the last completed step is
	// returned alongside it.
	ErrCancelled = errors.New("pbpe: training cancelled")
)
