package text

import (
	"os"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

var (
	paragraphPattern = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	headingPattern   = regexp.MustCompile(`<w:pStyle w:val="Heading\d*"`)
	textRunPattern   = regexp.MustCompile(`<w:t[^>]*>(.*?)</w:t>`)
)

// paragraphBoundary records where one paragraph's text starts in the
// concatenated document stream and which section it belongs to.
type paragraphBoundary struct {
	charOffset int
	section    int
}

// ExtractDOCX concatenates every paragraph's text in document order,
// tracking a rising section counter each time a Heading-styled paragraph is
// seen, intelligent-splits the whole stream, then back-annotates each
// resulting chunk with the section index at which it begins (spec §4.5).
func ExtractDOCX(data []byte) ([]Chunk, error) {
	f, err := os.CreateTemp("", "ingestcore-docx-*.docx")
	if err != nil {
		return nil, apperr.Fatal("create temp file for docx", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, apperr.Fatal("write temp file for docx", err)
	}
	f.Close()

	r, err := docx.ReadDocxFile(f.Name())
	if err != nil {
		return nil, apperr.Corruption("open docx", err)
	}
	defer r.Close()

	raw := r.Editable().GetContent()

	var body strings.Builder
	var boundaries []paragraphBoundary
	section := 0

	for _, match := range paragraphPattern.FindAllString(raw, -1) {
		if headingPattern.MatchString(match) {
			section++
		}
		var paragraphText strings.Builder
		for _, run := range textRunPattern.FindAllStringSubmatch(match, -1) {
			paragraphText.WriteString(unescapeXML(run[1]))
		}
		// Normalized here, not after concatenation: IntelligentSplit indexes
		// chunks against NormalizeWhitespace(body), so boundaries must be
		// recorded in that same offset space rather than the raw XML text's.
		text := NormalizeWhitespace(paragraphText.String())
		if text == "" {
			continue
		}
		boundaries = append(boundaries, paragraphBoundary{charOffset: body.Len(), section: section})
		body.WriteString(text)
		body.WriteByte(' ')
	}

	chunks := IntelligentSplit(body.String(), DefaultMinChunkSize)
	for i := range chunks {
		offset := 0
		if chunks[i].Location.NCharIndex != nil {
			offset = *chunks[i].Location.NCharIndex
		}
		sec := sectionAtOffset(boundaries, offset)
		chunks[i].Location.Section = &sec
	}
	return chunks, nil
}

// sectionAtOffset finds the section of the last paragraph starting at or
// before charOffset.
func sectionAtOffset(boundaries []paragraphBoundary, charOffset int) int {
	section := 0
	for _, b := range boundaries {
		if b.charOffset > charOffset {
			break
		}
		section = b.section
	}
	return section
}

func unescapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&apos;", "'",
	)
	return replacer.Replace(s)
}
