// Package text implements C5 Text Extractor: format-aware chunking for
// PDF, DOCX, XLSX, and plain text, sharing the "intelligent split" primitive
// that packs sentences into target-sized chunks without ever splitting
// mid-sentence.
package text

import (
	"regexp"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
)

const DefaultMinChunkSize = 512

// Location mirrors the Chunk.location structural fields from spec §3. Which
// fields are set depends on the format: PDF chunks carry Page and
// NCharIndex, DOCX chunks Section and NCharIndex, XLSX chunks SheetNumber,
// SheetName and RowNumber.
type Location struct {
	Page        *int    `json:"page,omitempty"`
	Section     *int    `json:"section,omitempty"`
	SheetNumber *int    `json:"sheet_number,omitempty"`
	SheetName   string  `json:"sheet_name,omitempty"`
	RowNumber   *int    `json:"row_number,omitempty"`
	NCharIndex  *int    `json:"nchar_index,omitempty"`
}

// Chunk is the format-handler output before ids are assigned (chunk ids are
// minted downstream by C7/C8, never here, per spec §4.5).
type Chunk struct {
	Content      string
	Location     Location
	CanSplit     bool
	ContentIndex int
}

var (
	sentenceBoundary     *regexp2.Regexp
	sentenceBoundaryOnce sync.Once
)

// commonAbbreviations guards the sentence splitter against breaking on
// "Mr. Smith", "e.g. foo", "U.S. policy", etc. This is the "bundled
// tokenizer resource" spec §9 calls for in place of a lazy NLTK download to
// /tmp: the data is a static Go literal compiled into the binary, and
// initialization is idempotent under concurrency via sync.Once.
var commonAbbreviations = []string{
	"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st", "vs", "etc",
	"e.g", "i.e", "u.s", "u.k", "inc", "ltd", "co", "corp", "fig", "no",
}

func initSentenceSplitter() {
	// Negative lookbehind for a preceding abbreviation, split on
	// [.!?] followed by whitespace and an uppercase letter or end of string.
	abbrevAlt := strings.Join(commonAbbreviations, "|")
	pattern := `(?<!\b(?:` + abbrevAlt + `))[.!?]+(?=\s+[A-Z]|\s*$)`
	sentenceBoundary = regexp2.MustCompile(pattern, regexp2.IgnoreCase)
}

func ensureSentenceSplitter() *regexp2.Regexp {
	sentenceBoundaryOnce.Do(initSentenceSplitter)
	return sentenceBoundary
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeWhitespace collapses runs of whitespace to single spaces and
// trims the result, matching the intelligent splitter's normalization step.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// sentences splits normalized text into sentence strings, preserving none of
// the delimiter itself other than what's needed to avoid losing the
// terminal punctuation (kept attached to the preceding sentence).
func sentences(normalized string) []string {
	re := ensureSentenceSplitter()
	var out []string
	start := 0
	m, _ := re.FindStringMatch(normalized)
	for m != nil {
		end := m.Index + m.Length
		sent := strings.TrimSpace(normalized[start:end])
		if sent != "" {
			out = append(out, sent)
		}
		start = end
		m, _ = re.FindNextMatch(m)
	}
	if start < len(normalized) {
		rest := strings.TrimSpace(normalized[start:])
		if rest != "" {
			out = append(out, rest)
		}
	}
	if len(out) == 0 && normalized != "" {
		out = []string{normalized}
	}
	return out
}

// IntelligentSplit normalizes whitespace, sentence-tokenizes, and greedily
// packs sentences into chunks targeting minChunkSize characters, never
// splitting mid-sentence. Each chunk carries location.nchar_index (the char
// offset of the chunk's start in the normalized text) and a zero-based
// content_index (spec §4.5).
func IntelligentSplit(raw string, minChunkSize int) []Chunk {
	if minChunkSize <= 0 {
		minChunkSize = DefaultMinChunkSize
	}
	normalized := NormalizeWhitespace(raw)
	if normalized == "" {
		return nil
	}

	sents := sentences(normalized)

	var chunks []Chunk
	var builder strings.Builder
	chunkStart := 0
	searchFrom := 0

	flush := func() {
		content := builder.String()
		if content == "" {
			return
		}
		idx := chunkStart
		chunks = append(chunks, Chunk{
			Content:      content,
			CanSplit:     false,
			ContentIndex: len(chunks),
			Location:     Location{NCharIndex: &idx},
		})
		builder.Reset()
	}

	for _, sent := range sents {
		pos := strings.Index(normalized[searchFrom:], sent)
		if pos < 0 {
			pos = 0
		} else {
			pos += searchFrom
		}
		if builder.Len() == 0 {
			chunkStart = pos
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(sent)
		searchFrom = pos + len(sent)

		if builder.Len() >= minChunkSize {
			flush()
		}
	}
	flush()

	return chunks
}
