package text

import (
	"strings"
	"testing"
)

func TestSectionAtOffsetFindsLastBoundaryAtOrBeforeCharOffset(t *testing.T) {
	boundaries := []paragraphBoundary{
		{charOffset: 0, section: 0},
		{charOffset: 10, section: 1},
		{charOffset: 25, section: 2},
	}
	cases := []struct {
		offset int
		want   int
	}{
		{0, 0},
		{9, 0},
		{10, 1},
		{24, 1},
		{25, 2},
		{1000, 2},
	}
	for _, c := range cases {
		if got := sectionAtOffset(boundaries, c.offset); got != c.want {
			t.Fatalf("sectionAtOffset(%d) = %d, want %d", c.offset, got, c.want)
		}
	}
}

// A paragraph whose raw XML text contains a run of whitespace (line breaks,
// repeated spaces from a run split) must have its boundary recorded at the
// offset it lands at in the normalized body IntelligentSplit actually
// indexes against, not the longer pre-normalization offset.
func TestDocxBoundaryOffsetsMatchNormalizedBody(t *testing.T) {
	var body strings.Builder
	var boundaries []paragraphBoundary

	paragraphs := []string{
		"Intro   heading\n\ntext",
		"Second section body",
	}
	for i, raw := range paragraphs {
		text := NormalizeWhitespace(raw)
		boundaries = append(boundaries, paragraphBoundary{charOffset: body.Len(), section: i})
		body.WriteString(text)
		body.WriteByte(' ')
	}

	normalized := NormalizeWhitespace(body.String())
	for _, b := range boundaries {
		if b.charOffset > len(normalized) {
			t.Fatalf("boundary offset %d falls outside normalized body of length %d", b.charOffset, len(normalized))
		}
	}
	if sectionAtOffset(boundaries, boundaries[1].charOffset) != 1 {
		t.Fatalf("expected offset of second paragraph's start to resolve to section 1")
	}
}
