package pretokenize

import (
	"reflect"
	"testing"
)

func TestWhitespaceSplit(t *testing.T) {
	s := Whitespace()
	words, err := s.Split("  the quick\tbrown\nfox ")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"the", "quick", "brown", "fox"}
	if !reflect.DeepEqual(words, want) {
		t.Fatalf("unexpected words: %v", words)
	}
}

func TestGPT4PatternSplit(t *testing.T) {
	s, err := New(GPT4Pattern, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	words, err := s.Split("Hello world, it's 2024")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"Hello", " world", ",", " it", "'s", " ", "202", "4"}
	if !reflect.DeepEqual(words, want) {
		t.Fatalf("unexpected words: %v", words)
	}
}

func TestNFCNormalization(t *testing.T) {
	// e + combining acute composes to é before splitting.
	s, err := New("", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	words, err := s.Split("cafe\u0301")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(words) != 1 || words[0] != "caf\u00e9" {
		t.Fatalf("unexpected words: %q", words)
	}
}

func TestCountMatchesSequential(t *testing.T) {
	texts := []string{
		"the quick brown fox",
		"the lazy dog",
		"the quick dog",
		"fox fox fox",
	}
	s := Whitespace()
	want, err := s.Count(texts, 1)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	for _, workers := range []int{2, 4, 8} {
		got, err := s.Count(texts, workers)
		if err != nil {
			t.Fatalf("Count(workers=%d): %v", workers, err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("workers=%d: %v != %v", workers, got, want)
		}
	}
	if want["the"] != 3 || want["fox"] != 4 {
		t.Fatalf("unexpected counts: %v", want)
	}
}
