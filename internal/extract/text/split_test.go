package text

import "testing"

func TestIntelligentSplitNeverBreaksMidSentence(t *testing.T) {
	raw := "This is sentence one. This is sentence two! Is this sentence three? Yes it is."
	chunks := IntelligentSplit(raw, 20)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for i, c := range chunks {
		if c.Content == "" {
			t.Fatalf("chunk %d empty", i)
		}
		if c.ContentIndex != i {
			t.Fatalf("chunk %d has content_index %d", i, c.ContentIndex)
		}
		if c.Location.NCharIndex == nil {
			t.Fatalf("chunk %d missing nchar_index", i)
		}
	}
}

func TestIntelligentSplitRespectsAbbreviations(t *testing.T) {
	raw := "Dr. Smith met Mr. Jones at 3 p.m. They discussed the U.S. economy in detail."
	chunks := IntelligentSplit(raw, 512)
	if len(chunks) != 1 {
		t.Fatalf("expected abbreviations to not fracture the single chunk, got %d chunks: %+v", len(chunks), chunks)
	}
}

func TestIntelligentSplitEmptyInput(t *testing.T) {
	if chunks := IntelligentSplit("   ", 512); chunks != nil {
		t.Fatalf("expected nil chunks for blank input, got %+v", chunks)
	}
}

func TestIntelligentSplitPacksToTargetSize(t *testing.T) {
	raw := ""
	for i := 0; i < 50; i++ {
		raw += "The quick brown fox jumps over the lazy dog. "
	}
	chunks := IntelligentSplit(raw, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long input, got %d", len(chunks))
	}
	for _, c := range chunks[:len(chunks)-1] {
		if len(c.Content) < 100 {
			t.Fatalf("non-final chunk under target size: %q", c.Content)
		}
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	got := NormalizeWhitespace("  foo\n\tbar   baz  ")
	if got != "foo bar baz" {
		t.Fatalf("got %q", got)
	}
}
