package bm25

import (
	"reflect"
	"testing"
)

func TestTokenizeLowercasesStripsStopWordsAndPunctuation(t *testing.T) {
	got := Tokenize("The Quick, brown Fox jumps over the lazy dog!")
	want := []string{"quick", "brown", "fox", "jumps", "over", "lazy", "dog"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTermFrequencies(t *testing.T) {
	freqs := TermFrequencies([]string{"fox", "dog", "fox"})
	if freqs["fox"] != 2 || freqs["dog"] != 1 {
		t.Fatalf("got %v", freqs)
	}
}

func TestScoreChunkZeroWhenNoOverlap(t *testing.T) {
	score := scoreChunk([]string{"zebra"}, map[string]int{"zebra": 1}, map[string]int{"fox": 1}, 10, 5, 8.0)
	if score != 0 {
		t.Fatalf("expected zero score, got %f", score)
	}
}

func TestScoreChunkPositiveOnOverlap(t *testing.T) {
	score := scoreChunk([]string{"fox"}, map[string]int{"fox": 2}, map[string]int{"fox": 3}, 10, 5, 8.0)
	if score <= 0 {
		t.Fatalf("expected positive score, got %f", score)
	}
}

func TestSortScoredDesc(t *testing.T) {
	scored := []Scored{{ChunkID: "a", Score: 0.1}, {ChunkID: "b", Score: 0.9}, {ChunkID: "c", Score: 0.5}}
	sortScoredDesc(scored)
	if scored[0].ChunkID != "b" || scored[1].ChunkID != "c" || scored[2].ChunkID != "a" {
		t.Fatalf("got %+v", scored)
	}
}
