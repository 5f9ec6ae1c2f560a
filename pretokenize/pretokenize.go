// Package pretokenize splits raw text into the word units consumed by the
// PBPE trainer and encoder, and aggregates word-frequency tables from a
// corpus. Words handed to the core are assumed already normalized and
// segmented; this package is that collaborator.
package pretokenize

import (
	"runtime"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"
)

// GPT4Pattern is a GPT-4 style segmentation pattern. regexp2 (Go/.NET
// syntax) has no possessive quantifiers, so atomic groups approximate the
// PCRE pattern used elsewhere.
const GPT4Pattern = `'(?i:[sdmt]|ll|ve|re)|(?>[^\r\n\p{L}\p{N}]?)\p{L}+|\p{N}{1,3}| ?(?>[^\s\p{L}\p{N}]+)[\r\n]*|\s*[\r\n]|\s+(?!\S)|\s+`

// Splitter cuts text into words. With a nil pattern it falls back to
// whitespace fields; NFC normalization is applied first when enabled.
type Splitter struct {
	re  *regexp2.Regexp
	nfc bool
}

// New compiles pattern into a splitter. An empty pattern selects plain
// whitespace splitting.
func New(pattern string, applyNFC bool) (*Splitter, error) {
	s := &Splitter{nfc: applyNFC}
	if pattern != "" {
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, err
		}
		s.re = re
	}
	return s, nil
}

// Whitespace returns a splitter that segments on whitespace only.
func Whitespace() *Splitter { return &Splitter{} }

// Split segments text into words.
func (s *Splitter) Split(text string) ([]string, error) {
	if s.nfc {
		text = norm.NFC.String(text)
	}
	if s.re == nil {
		return strings.Fields(text), nil
	}
	var out []string
	m, err := s.re.FindStringMatch(text)
	if err != nil {
		return nil, err
	}
	for m != nil {
		out = append(out, m.String())
		m, err = s.re.FindNextMatch(m)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Count segments every text and aggregates word frequencies across a
// worker pool sized to workers (or the CPU count when workers <= 0).
func (s *Splitter) Count(texts []string, workers int) (map[string]int64, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(texts) {
		workers = len(texts)
	}
	if workers <= 1 {
		agg := make(map[string]int64)
		for _, text := range texts {
			words, err := s.Split(text)
			if err != nil {
				return nil, err
			}
			for _, w := range words {
				agg[w]++
			}
		}
		return agg, nil
	}

	jobs := make(chan string, workers)
	results := make(chan map[string]int64, workers)
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			local := make(map[string]int64)
			for text := range jobs {
				words, err := s.Split(text)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					break
				}
				for _, w := range words {
					local[w]++
				}
			}
			results <- local
		}()
	}
	for _, text := range texts {
		jobs <- text
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	agg := make(map[string]int64)
	for local := range results {
		for w, n := range local {
			agg[w] += n
		}
	}
	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	return agg, nil
}
