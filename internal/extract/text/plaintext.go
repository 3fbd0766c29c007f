package text

// ExtractPlain handles markdown, source code, CSV, and any other
// single-stream text format: the whole document goes straight through the
// intelligent splitter with location.nchar_index as the only locator.
func ExtractPlain(data []byte, minChunkSize int) ([]Chunk, error) {
	return IntelligentSplit(string(data), minChunkSize), nil
}
