package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	pickybpe "github.com/poliakovva/picky-bpe"
	"github.com/poliakovva/picky-bpe/pbpe"
	"github.com/poliakovva/picky-bpe/pretokenize"
)

func die(err error) { fmt.Fprintln(os.Stderr, err); os.Exit(1) }

func main() {
	if len(os.Args) < 2 {
		fmt.Println("picky-bpe [train|encode|decode]")
		return
	}
	switch os.Args[1] {
	case "train":
		train(os.Args[2:])
	case "encode":
		encode(os.Args[2:])
	case "decode":
		decode(os.Args[2:])
	default:
		die(fmt.Errorf("unknown command %q", os.Args[1]))
	}
}

func train(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	input := fs.String("input", "", "corpus file, one document per line")
	out := fs.String("model", "model.json", "output model path")
	vocabSize := fs.Int("vocab-size", 30000, "target vocabulary size")
	threshold := fs.Float64("threshold", pbpe.DefaultThreshold, "picky selection threshold")
	minFreq := fs.Int64("min-frequency", 0, "minimum pair frequency")
	maxLen := fs.Int("max-token-length", 0, "maximum token length in characters (0 = unlimited)")
	prefix := fs.String("prefix", "", "continuing subword prefix")
	suffix := fs.String("suffix", "", "end of word suffix")
	unk := fs.String("unk", "", "unknown token")
	byteFallback := fs.Bool("byte-fallback", false, "seed byte tokens and fall back to bytes")
	specials := fs.String("special", "", "comma-separated special tokens")
	pattern := fs.Bool("gpt4-pattern", false, "segment with the GPT-4 pattern instead of whitespace")
	_ = fs.Parse(args)
	if *input == "" {
		die(fmt.Errorf("train: -input is required"))
	}

	f, err := os.Open(*input)
	if err != nil {
		die(err)
	}
	defer f.Close()
	var texts []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<24)
	for sc.Scan() {
		texts = append(texts, sc.Text())
	}
	if err := sc.Err(); err != nil {
		die(err)
	}

	splitter := pretokenize.Whitespace()
	if *pattern {
		splitter, err = pretokenize.New(pretokenize.GPT4Pattern, true)
		if err != nil {
			die(err)
		}
	}

	cfg := pbpe.TrainerConfig{
		VocabSize:               *vocabSize,
		MinFrequency:            *minFreq,
		MaxTokenLength:          *maxLen,
		Threshold:               *threshold,
		UnkToken:                *unk,
		ContinuingSubwordPrefix: *prefix,
		EndOfWordSuffix:         *suffix,
		ByteFallback:            *byteFallback,
		ShowProgress:            true,
	}
	if *specials != "" {
		cfg.SpecialTokens = strings.Split(*specials, ",")
	}

	tok, err := pickybpe.Train(context.Background(), texts, splitter, cfg)
	if err != nil {
		die(err)
	}
	w, err := os.Create(*out)
	if err != nil {
		die(err)
	}
	defer w.Close()
	if err := tok.Save(w); err != nil {
		die(err)
	}
}

func encode(args []string) {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	modelPath := fs.String("model", "model.json", "model path")
	text := fs.String("text", "", "text to encode")
	_ = fs.Parse(args)

	tok := loadTokenizer(*modelPath)
	enc, err := tok.Encode(*text)
	if err != nil {
		die(err)
	}
	_ = json.NewEncoder(os.Stdout).Encode(enc)
}

func decode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	modelPath := fs.String("model", "model.json", "model path")
	idsArg := fs.String("ids", "", "comma-separated token IDs")
	_ = fs.Parse(args)

	tok := loadTokenizer(*modelPath)
	var ids []uint32
	for _, part := range strings.Split(*idsArg, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			die(err)
		}
		ids = append(ids, uint32(id))
	}
	text, err := tok.Decode(ids)
	if err != nil {
		die(err)
	}
	fmt.Println(text)
}

func loadTokenizer(path string) *pickybpe.Tokenizer {
	f, err := os.Open(path)
	if err != nil {
		die(err)
	}
	defer f.Close()
	tok, err := pickybpe.Load(f, nil)
	if err != nil {
		die(err)
	}
	return tok
}
