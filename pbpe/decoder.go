package pbpe

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Decode turns a token ID sequence back into text. The continuing-subword
// prefix is stripped without inserting a boundary, the end-of-word suffix
// becomes a space, and byte-fallback tokens are regrouped into maximal
// runs and decoded as UTF-8 with U+FFFD substituted for ill-formed bytes.
func (m *Model) Decode(ids []uint32) (string, error) {
	var sb strings.Builder
	var run []byte
	flushRun := func() {
		if len(run) > 0 {
			writeLossy(&sb, run)
			run = run[:0]
		}
	}

	for _, id := range ids {
		tok, ok := m.vocab.Token(id)
		if !ok {
			return "", fmt.Errorf("%w: token id %d out of range", ErrUnknownToken, id)
		}
		if b, isByte := parseByteToken(tok); isByte {
			run = append(run, b)
			continue
		}
		flushRun()
		if p := m.cfg.ContinuingSubwordPrefix; p != "" && strings.HasPrefix(tok, p) {
			tok = tok[len(p):]
		}
		if s := m.cfg.EndOfWordSuffix; s != "" && strings.HasSuffix(tok, s) {
			tok = tok[:len(tok)-len(s)] + " "
		}
		sb.WriteString(tok)
	}
	flushRun()
	return sb.String(), nil
}

// writeLossy appends the byte run as UTF-8, replacing every ill-formed
// byte with the replacement character.
func writeLossy(sb *strings.Builder, b []byte) {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[1:]
			continue
		}
		sb.Write(b[:size])
		b = b[size:]
	}
}
