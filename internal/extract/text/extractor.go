package text

import "strings"

// Extract dispatches a text-lane document to its format-specific handler by
// file extension, falling back to the plain-text splitter for anything
// unrecognized (mirrors classify.Decide's "default to a sane lane" stance:
// this extractor defaults to a sane handler rather than failing closed).
func Extract(key string, data []byte, minChunkSize int) ([]Chunk, error) {
	switch ext(key) {
	case ".pdf":
		return ExtractPDF(data, minChunkSize)
	case ".docx":
		return ExtractDOCX(data)
	case ".xlsx", ".xls":
		return ExtractXLSX(data, minChunkSize)
	default:
		return ExtractPlain(data, minChunkSize)
	}
}

func ext(key string) string {
	idx := strings.LastIndexByte(key, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(key[idx:])
}
