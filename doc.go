// Package pickybpe provides a pure Go implementation of Picky Byte-Pair
// Encoding (PBPE): a BPE variant that interleaves merges with splits,
// undoing merged tokens whose parts prove statistically picky.
//
// The package wires the core engine (pbpe) to a pre-tokenizer
// (pretokenize): you can train a vocabulary from raw texts, encode text to
// token IDs with offsets, decode IDs back to text, and persist models as
// JSON artifacts.
package pickybpe
