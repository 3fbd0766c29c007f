package text

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

// ExtractXLSX walks every sheet row by row, accumulating rows into a chunk
// until the buffered content reaches minChunkSize, then flushing with
// location {sheet_number, sheet_name, row_number} set to the row at which
// the chunk started (spec §4.5).
func ExtractXLSX(data []byte, minChunkSize int) ([]Chunk, error) {
	if minChunkSize <= 0 {
		minChunkSize = DefaultMinChunkSize
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Corruption("open xlsx", err)
	}
	defer f.Close()

	var all []Chunk
	for sheetIdx, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}

		var builder strings.Builder
		startRow := 0
		haveStart := false

		flush := func() {
			content := strings.TrimSpace(builder.String())
			builder.Reset()
			haveStart = false
			if content == "" {
				return
			}
			sheetNum := sheetIdx
			rowNum := startRow
			all = append(all, Chunk{
				Content:      content,
				ContentIndex: len(all),
				Location: Location{
					SheetNumber: &sheetNum,
					SheetName:   sheetName,
					RowNumber:   &rowNum,
				},
			})
		}

		for rowIdx, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			if !haveStart {
				startRow = rowIdx
				haveStart = true
			}
			if builder.Len() > 0 {
				builder.WriteByte('\n')
			}
			builder.WriteString(line)

			if builder.Len() >= minChunkSize {
				flush()
			}
		}
		flush()
	}
	return all, nil
}
