package pickybpe

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poliakovva/picky-bpe/pbpe"
)

func trainTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	texts := []string{
		"low low low low low",
		"lower lower newest newest newest",
		"newest newest newest widest widest widest",
	}
	tok, err := Train(context.Background(), texts, nil, pbpe.TrainerConfig{
		VocabSize:       40,
		Threshold:       1.0,
		EndOfWordSuffix: "</w>",
		Workers:         2,
	})
	require.NoError(t, err)
	return tok
}

func TestTrainEncodeDecode(t *testing.T) {
	tok := trainTestTokenizer(t)

	enc, err := tok.Encode("newest lower")
	require.NoError(t, err)
	require.NotEmpty(t, enc.IDs)
	require.Len(t, enc.Tokens, len(enc.IDs))
	require.Len(t, enc.Offsets, len(enc.IDs))
	require.Len(t, enc.Continuation, len(enc.IDs))

	text, err := tok.Decode(enc.IDs)
	require.NoError(t, err)
	assert.Equal(t, "newest lower", strings.TrimSpace(text))
}

func TestEncodeOffsetsPerWord(t *testing.T) {
	tok := trainTestTokenizer(t)
	enc, err := tok.Encode("low low")
	require.NoError(t, err)

	// Offsets are relative to each source word, so the two encodings of
	// "low" are identical.
	half := len(enc.IDs) / 2
	require.Equal(t, enc.IDs[:half], enc.IDs[half:])
	require.Equal(t, enc.Offsets[:half], enc.Offsets[half:])
	assert.Equal(t, 0, enc.Offsets[0][0])
}

func TestSaveLoad(t *testing.T) {
	tok := trainTestTokenizer(t)
	var buf bytes.Buffer
	require.NoError(t, tok.Save(&buf))

	loaded, err := Load(&buf, nil)
	require.NoError(t, err)

	want, err := tok.Encode("widest newest")
	require.NoError(t, err)
	got, err := loaded.Encode("widest newest")
	require.NoError(t, err)
	assert.Equal(t, want.IDs, got.IDs)
}
