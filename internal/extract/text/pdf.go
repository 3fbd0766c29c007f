package text

import (
	"bytes"
	"sort"

	"github.com/ledongthuc/pdf"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

// ExtractPDF walks the document page by page (spec §4.5's page-at-a-time
// extraction), reconstructing reading order from each page's positioned
// text runs, then intelligent-splits every page's text independently so
// chunks never cross a page boundary.
func ExtractPDF(data []byte, minChunkSize int) ([]Chunk, error) {
	reader := bytes.NewReader(data)
	r, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, apperr.Corruption("open pdf", err)
	}

	var all []Chunk
	total := r.NumPage()
	for pageIndex := 1; pageIndex <= total; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		raw, err := pageText(page)
		if err != nil {
			continue
		}
		normalized := NormalizeWhitespace(raw)
		if normalized == "" {
			continue
		}

		var pageChunks []Chunk
		if len(normalized) > minChunkSize {
			pageChunks = IntelligentSplit(normalized, minChunkSize)
		} else {
			zero := 0
			pageChunks = []Chunk{{Content: normalized, Location: Location{NCharIndex: &zero}}}
		}

		for i := range pageChunks {
			pageNum := pageIndex
			pageChunks[i].Location.Page = &pageNum
			pageChunks[i].ContentIndex = len(all)
			all = append(all, pageChunks[i])
		}
	}
	return all, nil
}

// pageText reconstructs plain text from a page's positioned glyph runs,
// ordering top-to-bottom then left-to-right and inserting a space between
// runs that aren't already visually adjacent.
func pageText(page pdf.Page) (string, error) {
	content := page.Content()
	texts := content.Text
	if len(texts) == 0 {
		return "", nil
	}

	sort.SliceStable(texts, func(i, j int) bool {
		if texts[i].Y != texts[j].Y {
			return texts[i].Y > texts[j].Y
		}
		return texts[i].X < texts[j].X
	})

	var buf bytes.Buffer
	lastY := texts[0].Y
	lastEndX := 0.0
	for _, t := range texts {
		if t.Y != lastY {
			buf.WriteByte('\n')
			lastEndX = 0
		} else if t.X > lastEndX+1 {
			buf.WriteByte(' ')
		}
		buf.WriteString(t.S)
		lastY = t.Y
		lastEndX = t.X + t.W
	}
	return buf.String(), nil
}
